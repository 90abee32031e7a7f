package postgres

import (
	"errors"
	"fmt"

	"github.com/aliuyar1234/ctlplane/internal/store"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Unique index names from migrations/0001_init.sql.
const (
	constraintTeamSlug      = "teams_slug_key"
	constraintUserEmail     = "users_email_key"
	constraintLicenseUnique = "licenses_user_plan_key"
	constraintTeamMember    = "team_members_pkey"
)

// mapPostgresError translates PostgreSQL errors into store sentinels.
// Unrecognised errors are returned wrapped with their SQLSTATE.
func mapPostgresError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		switch pgErr.ConstraintName {
		case constraintTeamSlug:
			return store.ErrSlugTaken
		case constraintUserEmail:
			return store.ErrEmailTaken
		case constraintLicenseUnique:
			return store.ErrLicenseConflict
		case constraintTeamMember:
			return store.ErrAlreadyMember
		}
		return fmt.Errorf("unique constraint violation: %s: %w", pgErr.ConstraintName, err)

	case pgerrcode.ForeignKeyViolation:
		return fmt.Errorf("%w: %s", store.ErrNotFound, pgErr.Detail)

	case pgerrcode.CheckViolation:
		return fmt.Errorf("check constraint violation: %s: %w", pgErr.ConstraintName, err)

	case pgerrcode.ConnectionException,
		pgerrcode.ConnectionDoesNotExist,
		pgerrcode.ConnectionFailure,
		pgerrcode.CannotConnectNow,
		pgerrcode.SQLClientUnableToEstablishSQLConnection:
		return fmt.Errorf("database connection error: %w", err)

	case pgerrcode.QueryCanceled:
		return fmt.Errorf("query canceled: %w", err)

	default:
		return fmt.Errorf("postgres error [%s]: %s: %w", pgErr.Code, pgErr.Message, err)
	}
}

// notFound maps pgx.ErrNoRows to sentinel and leaves everything else to mapPostgresError.
func notFound(err error, sentinel error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return sentinel
	}
	return mapPostgresError(err)
}
