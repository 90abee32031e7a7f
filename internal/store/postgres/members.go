package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/aliuyar1234/ctlplane/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AddMemberIfBelowLimit admits the member inside one transaction. The team row is
// locked first so concurrent admissions to the same team serialize, and the
// conditional insert runs in a later statement whose snapshot sees every member
// committed before the lock was granted.
func (s *Store) AddMemberIfBelowLimit(ctx context.Context, m *store.TeamMember) error {
	if m.Status == "" {
		m.Status = store.MemberStatusActive
	}

	return s.inTx(ctx, func(tx pgx.Tx) error {
		var maxMembers int
		err := tx.QueryRow(ctx, `SELECT max_members FROM teams WHERE id = $1 FOR UPDATE`, m.TeamID).Scan(&maxMembers)
		if err != nil {
			return notFound(err, store.ErrOrganizationNotFound)
		}

		query := `
			INSERT INTO team_members (team_id, user_id, role, status, can_manage_agents, can_view_billing)
			SELECT $1, $2, $3, $4, $5, $6
			WHERE $7::int <= 0
				OR (SELECT COUNT(*) FROM team_members WHERE team_id = $1 AND status = 'active') < $7::int
			RETURNING created_at
		`
		err = tx.QueryRow(ctx, query,
			m.TeamID, m.UserID, m.Role, m.Status, m.CanManageAgents, m.CanViewBilling, maxMembers,
		).Scan(&m.CreatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrMemberLimitReached
		}
		return mapPostgresError(err)
	})
}

func (s *Store) RemoveMember(ctx context.Context, teamID, userID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM team_members WHERE team_id = $1 AND user_id = $2`, teamID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", mapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		return store.ErrMemberNotFound
	}
	return nil
}

func (s *Store) CountActiveMembers(ctx context.Context, teamID uuid.UUID) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM team_members WHERE team_id = $1 AND status = 'active'`, teamID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count members: %w", mapPostgresError(err))
	}
	return n, nil
}

const memberDetailQuery = `
	SELECT tm.team_id, tm.user_id, tm.role, tm.status, tm.can_manage_agents, tm.can_view_billing,
		tm.created_at, u.email, t.name
	FROM team_members tm
	JOIN users u ON u.id = tm.user_id
	JOIN teams t ON t.id = tm.team_id
`

func (s *Store) listMemberDetails(ctx context.Context, where string, arg uuid.UUID) ([]store.MemberDetail, error) {
	rows, err := s.pool.Query(ctx, memberDetailQuery+where+` ORDER BY tm.created_at ASC`, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var out []store.MemberDetail
	for rows.Next() {
		var d store.MemberDetail
		if err := rows.Scan(
			&d.TeamID, &d.UserID, &d.Role, &d.Status, &d.CanManageAgents, &d.CanViewBilling,
			&d.CreatedAt, &d.Email, &d.TeamName,
		); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) ListMembers(ctx context.Context, teamID uuid.UUID) ([]store.MemberDetail, error) {
	return s.listMemberDetails(ctx, `WHERE tm.team_id = $1`, teamID)
}

func (s *Store) ListMembershipsByUser(ctx context.Context, userID uuid.UUID) ([]store.MemberDetail, error) {
	return s.listMemberDetails(ctx, `WHERE tm.user_id = $1`, userID)
}
