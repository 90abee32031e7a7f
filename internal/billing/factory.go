// Package billing builds the payments API client from runtime settings.
package billing

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/aliuyar1234/ctlplane/internal/metrics"
	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v81/client"
)

// Setting keys and their environment fallbacks.
const (
	SecretKeySetting      = "stripe_secret_key"
	SecretKeyEnv          = "STRIPE_SECRET_KEY"
	PublishableKeySetting = "stripe_publishable_key"
	PublishableKeyEnv     = "STRIPE_PUBLISHABLE_KEY"
	WebhookSecretSetting  = "stripe_webhook_secret"
	WebhookSecretEnv      = "STRIPE_WEBHOOK_SECRET"
)

// SettingsGetter resolves a setting with an environment fallback. *settings.Resolver satisfies it.
type SettingsGetter interface {
	Get(ctx context.Context, key, fallbackEnv string) string
}

// ConfigurationError means no secret key could be resolved. Its message tells
// an operator where to set one; callers show it as is and do not retry.
type ConfigurationError struct {
	Setting string
	EnvVar  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf(
		"payments are not configured: add the Stripe secret key in Superadmin → Settings → Billing (%s) or set %s",
		e.Setting, e.EnvVar,
	)
}

// ClientFactory lazily builds one payments client per secret key. Nothing is
// built until the first Client call.
type ClientFactory struct {
	settings  SettingsGetter
	newClient func(key string) *client.API

	mu      sync.Mutex
	client  *client.API
	keyUsed string
}

// FactoryOption configures a ClientFactory.
type FactoryOption func(*ClientFactory)

// WithClientConstructor replaces the client constructor, for tests.
func WithClientConstructor(fn func(key string) *client.API) FactoryOption {
	return func(f *ClientFactory) { f.newClient = fn }
}

func NewClientFactory(settings SettingsGetter, opts ...FactoryOption) *ClientFactory {
	f := &ClientFactory{
		settings: settings,
		newClient: func(key string) *client.API {
			return client.New(key, nil)
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Client returns the client for the currently resolved secret key, building a
// new one only when the key differs from the one the cached client used.
func (f *ClientFactory) Client(ctx context.Context) (*client.API, error) {
	key := strings.TrimSpace(f.settings.Get(ctx, SecretKeySetting, SecretKeyEnv))
	if key == "" {
		return nil, &ConfigurationError{Setting: SecretKeySetting, EnvVar: SecretKeyEnv}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.client != nil && f.keyUsed == key {
		return f.client, nil
	}

	f.client = f.newClient(key)
	f.keyUsed = key
	metrics.PaymentsClientBuilds.Inc()
	log.Info().Str("mode", Mode(key)).Msg("Payments client initialized")
	return f.client, nil
}

// Invalidate drops the cached client; the next Client call rebuilds it.
func (f *ClientFactory) Invalidate() {
	f.mu.Lock()
	f.client = nil
	f.keyUsed = ""
	f.mu.Unlock()
}

// Mode reports "live" or "test" from a secret key's prefix.
func Mode(key string) string {
	switch {
	case strings.HasPrefix(key, "sk_live_"), strings.HasPrefix(key, "rk_live_"):
		return "live"
	case strings.HasPrefix(key, "sk_test_"), strings.HasPrefix(key, "rk_test_"):
		return "test"
	default:
		return "unknown"
	}
}
