package postgres

import (
	"context"
	"fmt"

	"github.com/aliuyar1234/ctlplane/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const orgColumns = `t.id, t.name, t.slug, t.owner_id, t.plan_id, t.max_members, t.max_agents,
	t.is_active, t.suspended_at, t.suspension_reason, t.created_at, t.updated_at`

func scanOrganization(row pgx.Row, org *store.Organization, extra ...any) error {
	dest := []any{
		&org.ID, &org.Name, &org.Slug, &org.OwnerID, &org.PlanID, &org.MaxMembers, &org.MaxAgents,
		&org.IsActive, &org.SuspendedAt, &org.SuspensionReason, &org.CreatedAt, &org.UpdatedAt,
	}
	return row.Scan(append(dest, extra...)...)
}

func (s *Store) CreateOrganization(ctx context.Context, org *store.Organization) error {
	if org.ID == uuid.Nil {
		org.ID = uuid.New()
	}

	query := `
		INSERT INTO teams (id, name, slug, owner_id, plan_id, max_members, max_agents, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	err := s.pool.QueryRow(ctx, query,
		org.ID, org.Name, org.Slug, org.OwnerID, org.PlanID, org.MaxMembers, org.MaxAgents, org.IsActive,
	).Scan(&org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", mapPostgresError(err))
	}
	return nil
}

func (s *Store) GetOrganization(ctx context.Context, id uuid.UUID) (*store.Organization, error) {
	var org store.Organization
	err := scanOrganization(s.pool.QueryRow(ctx, `SELECT `+orgColumns+` FROM teams t WHERE t.id = $1`, id), &org)
	if err != nil {
		return nil, notFound(err, store.ErrOrganizationNotFound)
	}
	return &org, nil
}

func (s *Store) GetOrganizationBySlug(ctx context.Context, slug string) (*store.Organization, error) {
	var org store.Organization
	err := scanOrganization(s.pool.QueryRow(ctx, `SELECT `+orgColumns+` FROM teams t WHERE t.slug = $1`, slug), &org)
	if err != nil {
		return nil, notFound(err, store.ErrOrganizationNotFound)
	}
	return &org, nil
}

func (s *Store) ListOrganizations(ctx context.Context) ([]store.OrganizationSummary, error) {
	query := `
		SELECT ` + orgColumns + `,
			(SELECT COUNT(*) FROM team_members tm WHERE tm.team_id = t.id AND tm.status = 'active'),
			COALESCE(p.name, ''),
			COALESCE(u.email, '')
		FROM teams t
		LEFT JOIN plans p ON p.id = t.plan_id
		LEFT JOIN users u ON u.id = t.owner_id
		ORDER BY t.created_at DESC
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var out []store.OrganizationSummary
	for rows.Next() {
		var sum store.OrganizationSummary
		if err := scanOrganization(rows, &sum.Organization, &sum.MemberCount, &sum.PlanName, &sum.OwnerEmail); err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *Store) UpdateOrganization(ctx context.Context, org *store.Organization) error {
	query := `
		UPDATE teams SET
			name = $2, slug = $3, plan_id = $4, max_members = $5, max_agents = $6,
			is_active = $7, suspended_at = $8, suspension_reason = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at
	`
	err := s.pool.QueryRow(ctx, query,
		org.ID, org.Name, org.Slug, org.PlanID, org.MaxMembers, org.MaxAgents,
		org.IsActive, org.SuspendedAt, org.SuspensionReason,
	).Scan(&org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return notFound(err, store.ErrOrganizationNotFound)
	}
	return nil
}

func (s *Store) DeleteOrganization(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM teams WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete organization: %w", mapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		return store.ErrOrganizationNotFound
	}
	return nil
}
