package memory

import (
	"bytes"
	"context"
	"sort"
	"time"

	"github.com/aliuyar1234/ctlplane/internal/store"
	"github.com/google/uuid"
)

func cloneToken(t *store.BridgeToken) store.BridgeToken {
	clone := *t
	clone.Scopes = append([]string(nil), t.Scopes...)
	clone.TokenHash = append([]byte(nil), t.TokenHash...)
	clone.ExpiresAt = clonePtr(t.ExpiresAt)
	clone.RevokedAt = clonePtr(t.RevokedAt)
	clone.LastUsedAt = clonePtr(t.LastUsedAt)
	return clone
}

func (s *Store) CreateBridgeToken(ctx context.Context, t *store.BridgeToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[t.UserID]; !ok {
		return store.ErrUserNotFound
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.CreatedAt = now()
	clone := cloneToken(t)
	s.tokens[t.ID] = &clone
	return nil
}

func (s *Store) GetBridgeTokenByHash(ctx context.Context, hash []byte) (*store.BridgeToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.tokens {
		if bytes.Equal(t.TokenHash, hash) {
			clone := cloneToken(t)
			return &clone, nil
		}
	}
	return nil, store.ErrBridgeTokenNotFound
}

func (s *Store) ListBridgeTokensByUser(ctx context.Context, userID uuid.UUID) ([]store.BridgeToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.BridgeToken
	for _, t := range s.tokens {
		if t.UserID == userID {
			out = append(out, cloneToken(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) RevokeBridgeToken(ctx context.Context, userID, tokenID uuid.UUID) (*store.BridgeToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[tokenID]
	if !ok || t.UserID != userID {
		return nil, store.ErrBridgeTokenNotFound
	}
	if t.RevokedAt == nil {
		revokedAt := now()
		t.RevokedAt = &revokedAt
	}
	clone := cloneToken(t)
	return &clone, nil
}

func (s *Store) TouchBridgeToken(ctx context.Context, tokenID uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[tokenID]
	if !ok {
		return store.ErrBridgeTokenNotFound
	}
	t.LastUsedAt = &at
	return nil
}

func (s *Store) DeleteStaleBridgeTokens(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, t := range s.tokens {
		revoked := t.RevokedAt != nil && t.RevokedAt.Before(cutoff)
		expired := t.ExpiresAt != nil && t.ExpiresAt.Before(cutoff)
		if revoked || expired {
			delete(s.tokens, id)
			n++
		}
	}
	return n, nil
}
