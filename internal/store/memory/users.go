package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/aliuyar1234/ctlplane/internal/store"
	"github.com/google/uuid"
)

func (s *Store) CreateUser(ctx context.Context, u *store.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail("CreateUser"); err != nil {
		return err
	}
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return store.ErrEmailTaken
		}
	}

	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.OraKey = newOraKey()
	u.CreatedAt = now()
	u.UpdatedAt = u.CreatedAt

	clone := *u
	s.users[u.ID] = &clone
	return nil
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*store.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.fail("GetUser"); err != nil {
		return nil, err
	}
	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	clone := *u
	return &clone, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			clone := *u
			return &clone, nil
		}
	}
	return nil, store.ErrUserNotFound
}

func (s *Store) ListUsers(ctx context.Context, params store.ListUsersParams) ([]store.User, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	params.Normalize()
	search := strings.ToLower(strings.TrimSpace(params.Search))

	var matched []store.User
	for _, u := range s.users {
		if search != "" {
			name := ""
			if p, ok := s.profiles[u.ID]; ok {
				name = strings.ToLower(p.FullName)
			}
			if !strings.Contains(strings.ToLower(u.Email), search) && !strings.Contains(name, search) {
				continue
			}
		}
		matched = append(matched, *u)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := params.Offset()
	if start > total {
		start = total
	}
	end := start + params.PageSize
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (s *Store) DeleteUser(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return store.ErrUserNotFound
	}
	delete(s.users, id)
	delete(s.profiles, id)
	for lid, l := range s.licenses {
		if l.UserID == id {
			delete(s.licenses, lid)
		}
	}
	for key := range s.members {
		if key.userID == id {
			delete(s.members, key)
		}
	}
	for tid, t := range s.tokens {
		if t.UserID == id {
			delete(s.tokens, tid)
		}
	}
	for jid, j := range s.jobs {
		if j.UserID == id {
			s.deleteJobLocked(jid)
		}
	}
	kept := s.deleted[:0]
	for _, d := range s.deleted {
		if d.userID != id {
			kept = append(kept, d)
		}
	}
	s.deleted = kept
	return nil
}

func (s *Store) CountSuperadmins(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, u := range s.users {
		if u.IsSuperadmin {
			n++
		}
	}
	return n, nil
}

func (s *Store) UpsertProfile(ctx context.Context, p *store.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail("UpsertProfile"); err != nil {
		return err
	}
	if _, ok := s.users[p.UserID]; !ok {
		return store.ErrUserNotFound
	}
	p.UpdatedAt = now()
	clone := *p
	s.profiles[p.UserID] = &clone
	return nil
}

func (s *Store) GetProfile(ctx context.Context, userID uuid.UUID) (*store.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := *p
	return &clone, nil
}
