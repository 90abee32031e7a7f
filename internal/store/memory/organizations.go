package memory

import (
	"context"
	"sort"

	"github.com/aliuyar1234/ctlplane/internal/store"
	"github.com/google/uuid"
)

func (s *Store) CreateOrganization(ctx context.Context, org *store.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail("CreateOrganization"); err != nil {
		return err
	}
	for _, existing := range s.orgs {
		if existing.Slug == org.Slug {
			return store.ErrSlugTaken
		}
	}

	if org.ID == uuid.Nil {
		org.ID = uuid.New()
	}
	org.CreatedAt = now()
	org.UpdatedAt = org.CreatedAt

	clone := *org
	s.orgs[org.ID] = &clone
	return nil
}

func (s *Store) GetOrganization(ctx context.Context, id uuid.UUID) (*store.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	org, ok := s.orgs[id]
	if !ok {
		return nil, store.ErrOrganizationNotFound
	}
	clone := *org
	return &clone, nil
}

func (s *Store) GetOrganizationBySlug(ctx context.Context, slug string) (*store.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, org := range s.orgs {
		if org.Slug == slug {
			clone := *org
			return &clone, nil
		}
	}
	return nil, store.ErrOrganizationNotFound
}

func (s *Store) ListOrganizations(ctx context.Context) ([]store.OrganizationSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.fail("ListOrganizations"); err != nil {
		return nil, err
	}

	out := make([]store.OrganizationSummary, 0, len(s.orgs))
	for _, org := range s.orgs {
		summary := store.OrganizationSummary{
			Organization: *org,
			MemberCount:  s.countActiveLocked(org.ID),
		}
		if org.PlanID != nil {
			if plan, ok := s.plans[*org.PlanID]; ok {
				summary.PlanName = plan.Name
			}
		}
		if owner, ok := s.users[org.OwnerID]; ok {
			summary.OwnerEmail = owner.Email
		}
		out = append(out, summary)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) UpdateOrganization(ctx context.Context, org *store.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail("UpdateOrganization"); err != nil {
		return err
	}
	existing, ok := s.orgs[org.ID]
	if !ok {
		return store.ErrOrganizationNotFound
	}
	for id, other := range s.orgs {
		if id != org.ID && other.Slug == org.Slug {
			return store.ErrSlugTaken
		}
	}

	org.CreatedAt = existing.CreatedAt
	org.UpdatedAt = now()
	clone := *org
	s.orgs[org.ID] = &clone
	return nil
}

func (s *Store) DeleteOrganization(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orgs[id]; !ok {
		return store.ErrOrganizationNotFound
	}
	delete(s.orgs, id)
	for key := range s.members {
		if key.teamID == id {
			delete(s.members, key)
		}
	}
	return nil
}
