// Package notify posts operator notifications to a webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Setting key and environment fallback for the webhook URL.
const (
	WebhookURLSetting = "ops_webhook_url"
	WebhookURLEnv     = "OPS_WEBHOOK_URL"
)

// SettingsGetter resolves a setting with an environment fallback.
type SettingsGetter interface {
	Get(ctx context.Context, key, fallbackEnv string) string
}

// SuspensionEvent describes an organization being suspended or reinstated.
type SuspensionEvent struct {
	OrganizationID   string
	OrganizationName string
	Suspended        bool
	Reason           string
	AdminEmail       string
}

// Notifier sends webhook notifications. A missing webhook URL disables it.
type Notifier struct {
	settings   SettingsGetter
	httpClient *http.Client
	timeout    time.Duration
}

func NewNotifier(settings SettingsGetter, timeoutMS int) *Notifier {
	timeout := time.Duration(timeoutMS) * time.Millisecond
	return &Notifier{
		settings:   settings,
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
	}
}

type payload struct {
	Text  string         `json:"text"`
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

// OrganizationSuspensionChanged posts ev. It never returns an error; failures
// are logged at WARN.
func (n *Notifier) OrganizationSuspensionChanged(ctx context.Context, ev SuspensionEvent) {
	url := n.settings.Get(ctx, WebhookURLSetting, WebhookURLEnv)
	if url == "" {
		log.Debug().Msg("Ops webhook not configured, skipping notification")
		return
	}

	event := "organization.reinstated"
	text := fmt.Sprintf("Organization *%s* was reinstated by %s", ev.OrganizationName, ev.AdminEmail)
	if ev.Suspended {
		event = "organization.suspended"
		text = fmt.Sprintf("Organization *%s* was suspended by %s", ev.OrganizationName, ev.AdminEmail)
		if ev.Reason != "" {
			text += ": " + ev.Reason
		}
	}

	n.post(ctx, url, payload{
		Text:  text,
		Event: event,
		Data: map[string]any{
			"organization_id":   ev.OrganizationID,
			"organization_name": ev.OrganizationName,
			"suspended":         ev.Suspended,
			"reason":            ev.Reason,
		},
	})
}

func (n *Notifier) post(ctx context.Context, url string, p payload) {
	body, err := json.Marshal(p)
	if err != nil {
		log.Warn().Err(err).Str("event", p.Event).Msg("Failed to marshal webhook payload")
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		log.Warn().Err(err).Str("webhook_url", "<set>").Msg("Failed to create webhook request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warn().Err(err).Dur("timeout", n.timeout).Str("event", p.Event).Msg("Webhook notification timed out")
		} else {
			log.Warn().Err(err).Str("event", p.Event).Msg("Failed to send webhook notification")
		}
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warn().Int("status_code", resp.StatusCode).Str("event", p.Event).Msg("Webhook returned non-2xx status")
		return
	}

	log.Info().Str("event", p.Event).Msg("Webhook notification sent")
}
