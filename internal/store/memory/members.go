package memory

import (
	"context"
	"sort"

	"github.com/aliuyar1234/ctlplane/internal/store"
	"github.com/google/uuid"
)

// countActiveLocked must be called with s.mu held.
func (s *Store) countActiveLocked(teamID uuid.UUID) int {
	n := 0
	for key, m := range s.members {
		if key.teamID == teamID && m.Status == store.MemberStatusActive {
			n++
		}
	}
	return n
}

func (s *Store) AddMemberIfBelowLimit(ctx context.Context, m *store.TeamMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail("AddMemberIfBelowLimit"); err != nil {
		return err
	}
	org, ok := s.orgs[m.TeamID]
	if !ok {
		return store.ErrOrganizationNotFound
	}
	key := memberKey{teamID: m.TeamID, userID: m.UserID}
	if _, exists := s.members[key]; exists {
		return store.ErrAlreadyMember
	}
	if org.MaxMembers > 0 && s.countActiveLocked(m.TeamID) >= org.MaxMembers {
		return store.ErrMemberLimitReached
	}

	if m.Status == "" {
		m.Status = store.MemberStatusActive
	}
	m.CreatedAt = now()
	clone := *m
	s.members[key] = &clone
	return nil
}

func (s *Store) RemoveMember(ctx context.Context, teamID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := memberKey{teamID: teamID, userID: userID}
	if _, ok := s.members[key]; !ok {
		return store.ErrMemberNotFound
	}
	delete(s.members, key)
	return nil
}

func (s *Store) CountActiveMembers(ctx context.Context, teamID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.fail("CountActiveMembers"); err != nil {
		return 0, err
	}
	return s.countActiveLocked(teamID), nil
}

func (s *Store) ListMembers(ctx context.Context, teamID uuid.UUID) ([]store.MemberDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.MemberDetail
	for key, m := range s.members {
		if key.teamID == teamID {
			out = append(out, s.memberDetailLocked(m))
		}
	}
	sortMembers(out)
	return out, nil
}

func (s *Store) ListMembershipsByUser(ctx context.Context, userID uuid.UUID) ([]store.MemberDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.MemberDetail
	for key, m := range s.members {
		if key.userID == userID {
			out = append(out, s.memberDetailLocked(m))
		}
	}
	sortMembers(out)
	return out, nil
}

func (s *Store) memberDetailLocked(m *store.TeamMember) store.MemberDetail {
	detail := store.MemberDetail{TeamMember: *m}
	if u, ok := s.users[m.UserID]; ok {
		detail.Email = u.Email
	}
	if org, ok := s.orgs[m.TeamID]; ok {
		detail.TeamName = org.Name
	}
	return detail
}

func sortMembers(members []store.MemberDetail) {
	sort.Slice(members, func(i, j int) bool {
		return members[i].CreatedAt.Before(members[j].CreatedAt)
	})
}
