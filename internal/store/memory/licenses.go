package memory

import (
	"context"
	"sort"

	"github.com/aliuyar1234/ctlplane/internal/store"
	"github.com/google/uuid"
)

// licenseConflictLocked mirrors the (user_id, plan_id) unique index; NULL plans never conflict.
func (s *Store) licenseConflictLocked(l *store.License) bool {
	if l.PlanID == nil {
		return false
	}
	for id, other := range s.licenses {
		if id == l.ID || other.UserID != l.UserID || other.PlanID == nil {
			continue
		}
		if *other.PlanID == *l.PlanID {
			return true
		}
	}
	return false
}

func (s *Store) CreateLicense(ctx context.Context, l *store.License) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail("CreateLicense"); err != nil {
		return err
	}
	if _, ok := s.users[l.UserID]; !ok {
		return store.ErrUserNotFound
	}
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if s.licenseConflictLocked(l) {
		return store.ErrLicenseConflict
	}

	l.CreatedAt = now()
	l.UpdatedAt = l.CreatedAt
	clone := *l
	clone.PlanID = clonePtr(l.PlanID)
	s.licenses[l.ID] = &clone
	return nil
}

func (s *Store) GetLicenseByUser(ctx context.Context, userID uuid.UUID) (*store.License, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *store.License
	for _, l := range s.licenses {
		if l.UserID != userID {
			continue
		}
		if latest == nil || l.UpdatedAt.After(latest.UpdatedAt) {
			latest = l
		}
	}
	if latest == nil {
		return nil, store.ErrLicenseNotFound
	}
	clone := *latest
	clone.PlanID = clonePtr(latest.PlanID)
	return &clone, nil
}

func (s *Store) ListLicensesByUser(ctx context.Context, userID uuid.UUID) ([]store.License, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.License
	for _, l := range s.licenses {
		if l.UserID == userID {
			clone := *l
			clone.PlanID = clonePtr(l.PlanID)
			out = append(out, clone)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *Store) UpdateLicense(ctx context.Context, l *store.License) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail("UpdateLicense"); err != nil {
		return err
	}
	existing, ok := s.licenses[l.ID]
	if !ok {
		return store.ErrLicenseNotFound
	}
	if s.licenseConflictLocked(l) {
		return store.ErrLicenseConflict
	}

	l.CreatedAt = existing.CreatedAt
	l.UpdatedAt = now()
	clone := *l
	clone.PlanID = clonePtr(l.PlanID)
	s.licenses[l.ID] = &clone
	return nil
}

func (s *Store) DeleteLicensesByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, l := range s.licenses {
		if l.UserID == userID {
			delete(s.licenses, id)
			n++
		}
	}
	return n, nil
}

// SeedLicense inserts l without constraint checks, preserving its timestamps.
// Tests use it to reproduce legacy duplicate rows.
func (s *Store) SeedLicense(l store.License) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now()
	}
	if l.UpdatedAt.IsZero() {
		l.UpdatedAt = l.CreatedAt
	}
	l.PlanID = clonePtr(l.PlanID)
	s.licenses[l.ID] = &l
}
