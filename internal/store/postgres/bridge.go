package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/aliuyar1234/ctlplane/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const tokenColumns = `id, user_id, name, token_hash, scopes, expires_at, revoked_at, last_used_at, created_by_user_id, created_at`

func scanToken(row pgx.Row, t *store.BridgeToken) error {
	return row.Scan(
		&t.ID, &t.UserID, &t.Name, &t.TokenHash, &t.Scopes, &t.ExpiresAt, &t.RevokedAt,
		&t.LastUsedAt, &t.CreatedByUserID, &t.CreatedAt,
	)
}

func (s *Store) CreateBridgeToken(ctx context.Context, t *store.BridgeToken) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}

	query := `
		INSERT INTO bridge_tokens (id, user_id, name, token_hash, scopes, expires_at, created_by_user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	err := s.pool.QueryRow(ctx, query,
		t.ID, t.UserID, t.Name, t.TokenHash, t.Scopes, t.ExpiresAt, t.CreatedByUserID,
	).Scan(&t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create bridge token: %w", mapPostgresError(err))
	}
	return nil
}

func (s *Store) GetBridgeTokenByHash(ctx context.Context, hash []byte) (*store.BridgeToken, error) {
	var t store.BridgeToken
	err := scanToken(s.pool.QueryRow(ctx, `SELECT `+tokenColumns+` FROM bridge_tokens WHERE token_hash = $1`, hash), &t)
	if err != nil {
		return nil, notFound(err, store.ErrBridgeTokenNotFound)
	}
	return &t, nil
}

func (s *Store) ListBridgeTokensByUser(ctx context.Context, userID uuid.UUID) ([]store.BridgeToken, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tokenColumns+` FROM bridge_tokens WHERE user_id = $1 ORDER BY created_at DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list bridge tokens: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var out []store.BridgeToken
	for rows.Next() {
		var t store.BridgeToken
		if err := scanToken(rows, &t); err != nil {
			return nil, fmt.Errorf("failed to scan bridge token: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) RevokeBridgeToken(ctx context.Context, userID, tokenID uuid.UUID) (*store.BridgeToken, error) {
	var t store.BridgeToken
	err := scanToken(s.pool.QueryRow(ctx, `
		UPDATE bridge_tokens SET revoked_at = COALESCE(revoked_at, NOW())
		WHERE id = $1 AND user_id = $2
		RETURNING `+tokenColumns,
		tokenID, userID,
	), &t)
	if err != nil {
		return nil, notFound(err, store.ErrBridgeTokenNotFound)
	}
	return &t, nil
}

func (s *Store) TouchBridgeToken(ctx context.Context, tokenID uuid.UUID, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE bridge_tokens SET last_used_at = $2 WHERE id = $1`, tokenID, at)
	if err != nil {
		return fmt.Errorf("failed to touch bridge token: %w", mapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		return store.ErrBridgeTokenNotFound
	}
	return nil
}

func (s *Store) DeleteStaleBridgeTokens(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM bridge_tokens
		WHERE (revoked_at IS NOT NULL AND revoked_at < $1)
			OR (expires_at IS NOT NULL AND expires_at < $1)
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale bridge tokens: %w", mapPostgresError(err))
	}
	return tag.RowsAffected(), nil
}
