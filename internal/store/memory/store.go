// Package memory implements store.Store with in-process maps. It backs the
// test suites and CP_STORE_DRIVER=memory; data is lost on restart.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/aliuyar1234/ctlplane/internal/store"
	"github.com/google/uuid"
)

var _ store.Store = (*Store)(nil)

type memberKey struct {
	teamID uuid.UUID
	userID uuid.UUID
}

// Store is a mutex-guarded in-memory store.
type Store struct {
	mu sync.RWMutex

	orgs     map[uuid.UUID]*store.Organization
	members  map[memberKey]*store.TeamMember
	users    map[uuid.UUID]*store.User
	profiles map[uuid.UUID]*store.Profile
	licenses map[uuid.UUID]*store.License
	plans    map[string]*store.Plan
	settings map[string]*store.PlatformSetting
	audit    []store.AuditLog
	tokens   map[uuid.UUID]*store.BridgeToken
	jobs     map[uuid.UUID]*store.ResearchJob
	findings []store.ResearchFinding
	deleted  []jobTombstone

	// failures lets tests force an error from a named operation.
	failures map[string]error
}

// New creates an empty store.
func New() *Store {
	return &Store{
		orgs:     make(map[uuid.UUID]*store.Organization),
		members:  make(map[memberKey]*store.TeamMember),
		users:    make(map[uuid.UUID]*store.User),
		profiles: make(map[uuid.UUID]*store.Profile),
		licenses: make(map[uuid.UUID]*store.License),
		plans:    make(map[string]*store.Plan),
		settings: make(map[string]*store.PlatformSetting),
		tokens:   make(map[uuid.UUID]*store.BridgeToken),
		jobs:     make(map[uuid.UUID]*store.ResearchJob),
		failures: make(map[string]error),
	}
}

// FailOn makes every later call of the named operation return err.
// Passing a nil err clears the failure.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// fail must be called with s.mu held.
func (s *Store) fail(op string) error {
	return s.failures[op]
}

// Ping always succeeds unless a "Ping" failure is set.
func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fail("Ping")
}

// Close is a no-op.
func (s *Store) Close() {}

func now() time.Time {
	return time.Now().UTC()
}

func newOraKey() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
