package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/aliuyar1234/ctlplane/internal/store"
	"github.com/google/uuid"
)

const userColumns = `u.id, u.email, u.password_hash, u.is_superadmin, u.ora_key, u.created_at, u.updated_at`

func (s *Store) CreateUser(ctx context.Context, u *store.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}

	// ora_key comes from the column default.
	query := `
		INSERT INTO users (id, email, password_hash, is_superadmin)
		VALUES ($1, $2, $3, $4)
		RETURNING ora_key, created_at, updated_at
	`
	err := s.pool.QueryRow(ctx, query, u.ID, u.Email, u.PasswordHash, u.IsSuperadmin).
		Scan(&u.OraKey, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", mapPostgresError(err))
	}
	return nil
}

func (s *Store) getUser(ctx context.Context, where string, arg any) (*store.User, error) {
	var u store.User
	err := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users u WHERE `+where, arg).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.IsSuperadmin, &u.OraKey, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err, store.ErrUserNotFound)
	}
	return &u, nil
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*store.User, error) {
	return s.getUser(ctx, `u.id = $1`, id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	return s.getUser(ctx, `lower(u.email) = lower($1)`, email)
}

func (s *Store) ListUsers(ctx context.Context, params store.ListUsersParams) ([]store.User, int, error) {
	params.Normalize()
	search := "%" + strings.ToLower(strings.TrimSpace(params.Search)) + "%"

	filter := `
		FROM users u
		LEFT JOIN profiles p ON p.user_id = u.id
		WHERE $1 = '%%' OR lower(u.email) LIKE $1 OR lower(COALESCE(p.full_name, '')) LIKE $1
	`

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) `+filter, search).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", mapPostgresError(err))
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+userColumns+` `+filter+` ORDER BY u.created_at DESC LIMIT $2 OFFSET $3`,
		search, params.PageSize, params.Offset(),
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var out []store.User
	for rows.Next() {
		var u store.User
		if err := rows.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.IsSuperadmin, &u.OraKey, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, total, rows.Err()
}

// DeleteUser relies on ON DELETE CASCADE for profiles, licenses, memberships, tokens and research.
func (s *Store) DeleteUser(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", mapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		return store.ErrUserNotFound
	}
	return nil
}

func (s *Store) CountSuperadmins(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE is_superadmin`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count superadmins: %w", mapPostgresError(err))
	}
	return n, nil
}

func (s *Store) UpsertProfile(ctx context.Context, p *store.Profile) error {
	query := `
		INSERT INTO profiles (user_id, full_name, avatar_url, account_status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			avatar_url = EXCLUDED.avatar_url,
			account_status = EXCLUDED.account_status,
			updated_at = NOW()
		RETURNING updated_at
	`
	err := s.pool.QueryRow(ctx, query, p.UserID, p.FullName, p.AvatarURL, p.AccountStatus).Scan(&p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", mapPostgresError(err))
	}
	return nil
}

func (s *Store) GetProfile(ctx context.Context, userID uuid.UUID) (*store.Profile, error) {
	var p store.Profile
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, full_name, avatar_url, account_status, updated_at FROM profiles WHERE user_id = $1`, userID,
	).Scan(&p.UserID, &p.FullName, &p.AvatarURL, &p.AccountStatus, &p.UpdatedAt)
	if err != nil {
		return nil, notFound(err, store.ErrNotFound)
	}
	return &p, nil
}
