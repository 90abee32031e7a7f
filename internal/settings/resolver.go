// Package settings resolves runtime configuration from the platform_settings
// table with an environment-variable fallback, and serves the admin settings API.
package settings

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/aliuyar1234/ctlplane/internal/metrics"
	"github.com/aliuyar1234/ctlplane/internal/store"
	"github.com/rs/zerolog/log"
)

// DefaultTTL is how long a successful load stays fresh.
const DefaultTTL = 5 * time.Minute

// Loader reads setting rows. store.SettingStore satisfies it.
type Loader interface {
	ListSettings(ctx context.Context, categories ...string) ([]store.PlatformSetting, error)
}

type cache struct {
	values   map[string]string
	loadedAt time.Time
}

// Resolver is a read-mostly cache over platform_settings. The cached map is
// replaced wholesale on reload and never mutated in place, so readers see
// either the old or the new map.
type Resolver struct {
	loader     Loader
	ttl        time.Duration
	categories []string
	now        func() time.Time
	lookupEnv  func(string) (string, bool)

	mu    sync.RWMutex
	cache *cache
	stale bool
}

// Option configures a Resolver.
type Option func(*Resolver)

func WithTTL(ttl time.Duration) Option {
	return func(r *Resolver) { r.ttl = ttl }
}

// WithCategories limits which setting categories are cached.
func WithCategories(categories ...string) Option {
	return func(r *Resolver) { r.categories = categories }
}

func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

func WithLookupEnv(lookup func(string) (string, bool)) Option {
	return func(r *Resolver) { r.lookupEnv = lookup }
}

// NewResolver builds a resolver. Nothing is loaded until the first read.
func NewResolver(loader Loader, opts ...Option) *Resolver {
	r := &Resolver{
		loader:     loader,
		ttl:        DefaultTTL,
		categories: []string{"billing"},
		now:        time.Now,
		lookupEnv:  os.LookupEnv,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get resolves key: a non-empty stored value wins, then the fallbackEnv
// variable, then "". It never fails; load errors fall back to the last good
// values (or none).
func (r *Resolver) Get(ctx context.Context, key, fallbackEnv string) string {
	if v := r.values(ctx)[key]; v != "" {
		return v
	}
	if fallbackEnv != "" {
		if v, ok := r.lookupEnv(fallbackEnv); ok {
			return v
		}
	}
	return ""
}

// Snapshot returns a copy of the cached values, loading them if needed.
func (r *Resolver) Snapshot(ctx context.Context) map[string]string {
	values := r.values(ctx)
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

// Invalidate forces the next read to reload regardless of TTL.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	r.stale = true
	r.mu.Unlock()
}

// Reload loads the settings now. On failure the previous cache is kept and
// the error is returned; Get never sees it.
func (r *Resolver) Reload(ctx context.Context) error {
	rows, err := r.loader.ListSettings(ctx, r.categories...)
	if err != nil {
		metrics.SettingsReloads.WithLabelValues("error").Inc()
		return err
	}

	values := make(map[string]string, len(rows))
	for _, row := range rows {
		values[row.Key] = DecodeValue(row.Value)
	}

	r.mu.Lock()
	r.cache = &cache{values: values, loadedAt: r.now()}
	r.stale = false
	r.mu.Unlock()

	metrics.SettingsReloads.WithLabelValues("ok").Inc()
	return nil
}

func (r *Resolver) values(ctx context.Context) map[string]string {
	r.mu.RLock()
	c, stale := r.cache, r.stale
	r.mu.RUnlock()

	if c != nil && !stale && r.now().Sub(c.loadedAt) < r.ttl {
		return c.values
	}

	// Concurrent readers may reload together; the last one to finish wins.
	if err := r.Reload(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to reload platform settings, using previous values")
		if c == nil {
			return map[string]string{}
		}
		return c.values
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cache.values
}

// DecodeValue turns a stored JSON scalar into its string form. Values that
// are not valid JSON are returned unchanged.
func DecodeValue(raw string) string {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case nil:
		return ""
	default:
		return raw
	}
}

// EncodeValue JSON-encodes a scalar for storage. Objects and arrays are rejected.
func EncodeValue(v any) (string, bool) {
	switch v.(type) {
	case string, bool, float64, nil:
	default:
		return "", false
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", false
	}
	return string(b), true
}
