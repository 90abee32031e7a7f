package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/aliuyar1234/ctlplane/internal/store"
	"github.com/jackc/pgx/v5"
)

func (s *Store) GetPlan(ctx context.Context, id string) (*store.Plan, error) {
	var p store.Plan
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, is_active, requires_organization, features, created_at FROM plans WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.IsActive, &p.RequiresOrganization, &p.Features, &p.CreatedAt)
	if err != nil {
		return nil, notFound(err, store.ErrPlanNotFound)
	}
	return &p, nil
}

func (s *Store) ListPlans(ctx context.Context) ([]store.Plan, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, is_active, requires_organization, features, created_at FROM plans ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var out []store.Plan
	for rows.Next() {
		var p store.Plan
		if err := rows.Scan(&p.ID, &p.Name, &p.IsActive, &p.RequiresOrganization, &p.Features, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) ListSettings(ctx context.Context, categories ...string) ([]store.PlatformSetting, error) {
	query := `SELECT key, value, category, is_sensitive, updated_by, updated_at FROM platform_settings`
	args := []any{}
	if len(categories) > 0 {
		query += ` WHERE category = ANY($1)`
		args = append(args, categories)
	}
	query += ` ORDER BY key`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var out []store.PlatformSetting
	for rows.Next() {
		var ps store.PlatformSetting
		if err := rows.Scan(&ps.Key, &ps.Value, &ps.Category, &ps.IsSensitive, &ps.UpdatedBy, &ps.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		out = append(out, ps)
	}
	return out, rows.Err()
}

func (s *Store) UpsertSettings(ctx context.Context, settings []store.PlatformSetting) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, ps := range settings {
			batch.Queue(`
				INSERT INTO platform_settings (key, value, category, is_sensitive, updated_by)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (key) DO UPDATE SET
					value = EXCLUDED.value,
					category = EXCLUDED.category,
					is_sensitive = EXCLUDED.is_sensitive,
					updated_by = EXCLUDED.updated_by,
					updated_at = NOW()
			`, ps.Key, ps.Value, ps.Category, ps.IsSensitive, ps.UpdatedBy)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to upsert settings: %w", mapPostgresError(err))
		}
		return nil
	})
}

func (s *Store) DeleteSetting(ctx context.Context, key string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM platform_settings WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("failed to delete setting: %w", mapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) InsertAuditLog(ctx context.Context, entry *store.AuditLog) error {
	changes := entry.Changes
	if changes == nil {
		changes = map[string]any{}
	}

	query := `
		INSERT INTO admin_audit_logs (admin_id, admin_email, action, resource_type, resource_id, changes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	err := s.pool.QueryRow(ctx, query,
		entry.AdminID, entry.AdminEmail, entry.Action, entry.ResourceType, entry.ResourceID, changes,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", mapPostgresError(err))
	}
	return nil
}

func (s *Store) ListAuditLogs(ctx context.Context, filter store.AuditFilter) ([]store.AuditLog, error) {
	var (
		where []string
		args  []any
	)
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		where = append(where, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("resource_type", filter.ResourceType)
	add("resource_id", filter.ResourceID)
	add("action", filter.Action)

	query := `SELECT id, admin_id, admin_email, action, resource_type, resource_id, changes, created_at FROM admin_audit_logs`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var out []store.AuditLog
	for rows.Next() {
		var e store.AuditLog
		if err := rows.Scan(&e.ID, &e.AdminID, &e.AdminEmail, &e.Action, &e.ResourceType, &e.ResourceID, &e.Changes, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
