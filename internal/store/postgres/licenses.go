package postgres

import (
	"context"
	"fmt"

	"github.com/aliuyar1234/ctlplane/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const licenseColumns = `id, user_id, plan_id, status, billing_cycle, ai_calls_used, tokens_used,
	amount_paid, activated_at, created_at, updated_at`

func scanLicense(row pgx.Row, l *store.License) error {
	return row.Scan(
		&l.ID, &l.UserID, &l.PlanID, &l.Status, &l.BillingCycle, &l.AICallsUsed, &l.TokensUsed,
		&l.AmountPaid, &l.ActivatedAt, &l.CreatedAt, &l.UpdatedAt,
	)
}

func (s *Store) CreateLicense(ctx context.Context, l *store.License) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}

	query := `
		INSERT INTO licenses (id, user_id, plan_id, status, billing_cycle, ai_calls_used, tokens_used, amount_paid, activated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`
	err := s.pool.QueryRow(ctx, query,
		l.ID, l.UserID, l.PlanID, l.Status, l.BillingCycle, l.AICallsUsed, l.TokensUsed, l.AmountPaid, l.ActivatedAt,
	).Scan(&l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create license: %w", mapPostgresError(err))
	}
	return nil
}

func (s *Store) GetLicenseByUser(ctx context.Context, userID uuid.UUID) (*store.License, error) {
	var l store.License
	err := scanLicense(s.pool.QueryRow(ctx,
		`SELECT `+licenseColumns+` FROM licenses WHERE user_id = $1 ORDER BY updated_at DESC LIMIT 1`, userID,
	), &l)
	if err != nil {
		return nil, notFound(err, store.ErrLicenseNotFound)
	}
	return &l, nil
}

func (s *Store) ListLicensesByUser(ctx context.Context, userID uuid.UUID) ([]store.License, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+licenseColumns+` FROM licenses WHERE user_id = $1 ORDER BY updated_at DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list licenses: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var out []store.License
	for rows.Next() {
		var l store.License
		if err := scanLicense(rows, &l); err != nil {
			return nil, fmt.Errorf("failed to scan license: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) UpdateLicense(ctx context.Context, l *store.License) error {
	query := `
		UPDATE licenses SET
			plan_id = $2, status = $3, billing_cycle = $4, ai_calls_used = $5, tokens_used = $6,
			amount_paid = $7, activated_at = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at
	`
	err := s.pool.QueryRow(ctx, query,
		l.ID, l.PlanID, l.Status, l.BillingCycle, l.AICallsUsed, l.TokensUsed, l.AmountPaid, l.ActivatedAt,
	).Scan(&l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return notFound(err, store.ErrLicenseNotFound)
	}
	return nil
}

func (s *Store) DeleteLicensesByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM licenses WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete licenses: %w", mapPostgresError(err))
	}
	return tag.RowsAffected(), nil
}
