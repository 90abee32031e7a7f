package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aliuyar1234/ctlplane/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const jobColumns = `id, user_id, title, query, status, created_at, updated_at`

func scanJob(row pgx.Row, j *store.ResearchJob) error {
	return row.Scan(&j.ID, &j.UserID, &j.Title, &j.Query, &j.Status, &j.CreatedAt, &j.UpdatedAt)
}

func (s *Store) CreateResearchJob(ctx context.Context, job *store.ResearchJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO research_jobs (id, user_id, title, query, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`, job.ID, job.UserID, job.Title, job.Query, job.Status).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create research job: %w", mapPostgresError(err))
	}
	return nil
}

func (s *Store) GetResearchJob(ctx context.Context, id uuid.UUID) (*store.ResearchJob, error) {
	var j store.ResearchJob
	if err := scanJob(s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM research_jobs WHERE id = $1`, id), &j); err != nil {
		return nil, notFound(err, store.ErrResearchJobNotFound)
	}
	return &j, nil
}

func (s *Store) ListResearchJobs(ctx context.Context, filter store.ResearchFilter) ([]store.ResearchJob, error) {
	var (
		where []string
		args  []any
	)
	if filter.UserID != uuid.Nil {
		args = append(args, filter.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Since != nil {
		args = append(args, *filter.Since)
		where = append(where, fmt.Sprintf("updated_at >= $%d", len(args)))
	}

	query := `SELECT ` + jobColumns + ` FROM research_jobs`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY updated_at ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list research jobs: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var out []store.ResearchJob
	for rows.Next() {
		var j store.ResearchJob
		if err := scanJob(rows, &j); err != nil {
			return nil, fmt.Errorf("failed to scan research job: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *Store) UpdateResearchJobStatus(ctx context.Context, id uuid.UUID, status string) (*store.ResearchJob, error) {
	var j store.ResearchJob
	err := scanJob(s.pool.QueryRow(ctx, `
		UPDATE research_jobs SET status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+jobColumns, id, status), &j)
	if err != nil {
		return nil, notFound(err, store.ErrResearchJobNotFound)
	}
	return &j, nil
}

// DeleteResearchJob deletes the job and records its tombstone in one statement.
func (s *Store) DeleteResearchJob(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		WITH gone AS (
			DELETE FROM research_jobs WHERE id = $1 RETURNING id, user_id
		)
		INSERT INTO research_job_deletions (job_id, user_id)
		SELECT id, user_id FROM gone
		ON CONFLICT (job_id) DO UPDATE SET deleted_at = NOW()
	`, id)
	if err != nil {
		return fmt.Errorf("failed to delete research job: %w", mapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		return store.ErrResearchJobNotFound
	}
	return nil
}

func (s *Store) ListDeletedResearchJobs(ctx context.Context, userID uuid.UUID, since time.Time) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT job_id FROM research_job_deletions
		WHERE user_id = $1 AND deleted_at >= $2
		ORDER BY deleted_at ASC
	`, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list deleted research jobs: %w", mapPostgresError(err))
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("failed to scan deleted research job: %w", err)
	}
	return ids, nil
}

func (s *Store) DeleteResearchTombstones(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM research_job_deletions WHERE deleted_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete research tombstones: %w", mapPostgresError(err))
	}
	return tag.RowsAffected(), nil
}

// AddResearchFinding inserts the finding and bumps the job's updated_at so incremental sync picks it up.
func (s *Store) AddResearchFinding(ctx context.Context, f *store.ResearchFinding) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE research_jobs SET updated_at = NOW() WHERE id = $1`, f.JobID)
		if err != nil {
			return mapPostgresError(err)
		}
		if tag.RowsAffected() == 0 {
			return store.ErrResearchJobNotFound
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO research_findings (id, job_id, title, content, source_url)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING created_at
		`, f.ID, f.JobID, f.Title, f.Content, f.SourceURL).Scan(&f.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to add research finding: %w", mapPostgresError(err))
		}
		return nil
	})
}

func (s *Store) ListResearchFindings(ctx context.Context, jobIDs []uuid.UUID, since *time.Time) ([]store.ResearchFinding, error) {
	if len(jobIDs) == 0 {
		return nil, nil
	}

	query := `SELECT id, job_id, title, content, source_url, created_at FROM research_findings WHERE job_id = ANY($1)`
	args := []any{jobIDs}
	if since != nil {
		query += ` AND created_at >= $2`
		args = append(args, *since)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list research findings: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var out []store.ResearchFinding
	for rows.Next() {
		var f store.ResearchFinding
		if err := rows.Scan(&f.ID, &f.JobID, &f.Title, &f.Content, &f.SourceURL, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan research finding: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
