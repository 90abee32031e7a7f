package memory

import (
	"context"
	"sort"

	"github.com/aliuyar1234/ctlplane/internal/store"
	"github.com/google/uuid"
)

// SeedPlans replaces the plan catalogue.
func (s *Store) SeedPlans(plans []store.Plan) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.plans = make(map[string]*store.Plan, len(plans))
	for _, p := range plans {
		p := p
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now()
		}
		p.Features = append([]string(nil), p.Features...)
		s.plans[p.ID] = &p
	}
}

func (s *Store) GetPlan(ctx context.Context, id string) (*store.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.fail("GetPlan"); err != nil {
		return nil, err
	}
	p, ok := s.plans[id]
	if !ok {
		return nil, store.ErrPlanNotFound
	}
	clone := *p
	clone.Features = append([]string(nil), p.Features...)
	return &clone, nil
}

func (s *Store) ListPlans(ctx context.Context) ([]store.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]store.Plan, 0, len(s.plans))
	for _, p := range s.plans {
		clone := *p
		clone.Features = append([]string(nil), p.Features...)
		out = append(out, clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListSettings(ctx context.Context, categories ...string) ([]store.PlatformSetting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.fail("ListSettings"); err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(categories))
	for _, c := range categories {
		wanted[c] = true
	}

	var out []store.PlatformSetting
	for _, setting := range s.settings {
		if len(wanted) > 0 && !wanted[setting.Category] {
			continue
		}
		out = append(out, *setting)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *Store) UpsertSettings(ctx context.Context, settings []store.PlatformSetting) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail("UpsertSettings"); err != nil {
		return err
	}
	for _, setting := range settings {
		setting := setting
		setting.UpdatedAt = now()
		s.settings[setting.Key] = &setting
	}
	return nil
}

func (s *Store) DeleteSetting(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.settings[key]; !ok {
		return store.ErrNotFound
	}
	delete(s.settings, key)
	return nil
}

func (s *Store) InsertAuditLog(ctx context.Context, entry *store.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail("InsertAuditLog"); err != nil {
		return err
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	entry.CreatedAt = now()
	s.audit = append(s.audit, *entry)
	return nil
}

func (s *Store) ListAuditLogs(ctx context.Context, filter store.AuditFilter) ([]store.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.AuditLog
	for i := len(s.audit) - 1; i >= 0; i-- {
		entry := s.audit[i]
		if filter.ResourceType != "" && entry.ResourceType != filter.ResourceType {
			continue
		}
		if filter.ResourceID != "" && entry.ResourceID != filter.ResourceID {
			continue
		}
		if filter.Action != "" && entry.Action != filter.Action {
			continue
		}
		out = append(out, entry)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}
