package memory

import (
	"context"
	"sort"
	"time"

	"github.com/aliuyar1234/ctlplane/internal/store"
	"github.com/google/uuid"
)

func (s *Store) CreateResearchJob(ctx context.Context, job *store.ResearchJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail("CreateResearchJob"); err != nil {
		return err
	}
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	job.CreatedAt = now()
	job.UpdatedAt = job.CreatedAt
	clone := *job
	s.jobs[job.ID] = &clone
	return nil
}

func (s *Store) GetResearchJob(ctx context.Context, id uuid.UUID) (*store.ResearchJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrResearchJobNotFound
	}
	clone := *job
	return &clone, nil
}

func (s *Store) ListResearchJobs(ctx context.Context, filter store.ResearchFilter) ([]store.ResearchJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.ResearchJob
	for _, job := range s.jobs {
		if filter.UserID != uuid.Nil && job.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		if filter.Since != nil && job.UpdatedAt.Before(*filter.Since) {
			continue
		}
		out = append(out, *job)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *Store) UpdateResearchJobStatus(ctx context.Context, id uuid.UUID, status string) (*store.ResearchJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrResearchJobNotFound
	}
	job.Status = status
	job.UpdatedAt = now()
	clone := *job
	return &clone, nil
}

type jobTombstone struct {
	jobID     uuid.UUID
	userID    uuid.UUID
	deletedAt time.Time
}

func (s *Store) DeleteResearchJob(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail("DeleteResearchJob"); err != nil {
		return err
	}
	job, ok := s.jobs[id]
	if !ok {
		return store.ErrResearchJobNotFound
	}
	s.deleted = append(s.deleted, jobTombstone{jobID: id, userID: job.UserID, deletedAt: now()})
	s.deleteJobLocked(id)
	return nil
}

func (s *Store) ListDeletedResearchJobs(ctx context.Context, userID uuid.UUID, since time.Time) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []uuid.UUID
	for _, d := range s.deleted {
		if d.userID == userID && !d.deletedAt.Before(since) {
			out = append(out, d.jobID)
		}
	}
	return out, nil
}

func (s *Store) DeleteResearchTombstones(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	kept := s.deleted[:0]
	for _, d := range s.deleted {
		if d.deletedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, d)
	}
	s.deleted = kept
	return n, nil
}

// deleteJobLocked must be called with s.mu held.
func (s *Store) deleteJobLocked(id uuid.UUID) {
	delete(s.jobs, id)
	kept := s.findings[:0]
	for _, f := range s.findings {
		if f.JobID != id {
			kept = append(kept, f)
		}
	}
	s.findings = kept
}

func (s *Store) AddResearchFinding(ctx context.Context, f *store.ResearchFinding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[f.JobID]
	if !ok {
		return store.ErrResearchJobNotFound
	}
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	f.CreatedAt = now()
	job.UpdatedAt = f.CreatedAt
	s.findings = append(s.findings, *f)
	return nil
}

func (s *Store) ListResearchFindings(ctx context.Context, jobIDs []uuid.UUID, since *time.Time) ([]store.ResearchFinding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[uuid.UUID]bool, len(jobIDs))
	for _, id := range jobIDs {
		wanted[id] = true
	}

	var out []store.ResearchFinding
	for _, f := range s.findings {
		if !wanted[f.JobID] {
			continue
		}
		if since != nil && f.CreatedAt.Before(*since) {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}
