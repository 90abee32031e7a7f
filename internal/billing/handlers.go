package billing

import (
	"errors"
	"net/http"
	"strings"

	"github.com/aliuyar1234/ctlplane/internal/apperrors"
	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v81"
)

// StatusResponse describes the payments configuration without exposing keys.
type StatusResponse struct {
	Configured               bool   `json:"configured"`
	Mode                     string `json:"mode"`
	PublishableKeyConfigured bool   `json:"publishable_key_configured"`
	WebhookSecretConfigured  bool   `json:"webhook_secret_configured"`
	Verified                 *bool  `json:"verified,omitempty"`
}

// HandleStatus handles GET /api/superadmin/settings/billing/status. With
// ?verify=true it also makes one authenticated call to the payments API.
func HandleStatus(factory *ClientFactory, settings SettingsGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		api, err := factory.Client(ctx)
		if err != nil {
			var cfgErr *ConfigurationError
			if errors.As(err, &cfgErr) {
				apperrors.WriteError(w, r, http.StatusServiceUnavailable, apperrors.CodeConfigurationNeeded, cfgErr.Error())
				return
			}
			log.Error().Err(err).Msg("Failed to build payments client")
			apperrors.WriteInternalError(w, r, "Failed to build payments client")
			return
		}

		secret := settings.Get(ctx, SecretKeySetting, SecretKeyEnv)
		resp := StatusResponse{
			Configured:               true,
			Mode:                     Mode(strings.TrimSpace(secret)),
			PublishableKeyConfigured: settings.Get(ctx, PublishableKeySetting, PublishableKeyEnv) != "",
			WebhookSecretConfigured:  settings.Get(ctx, WebhookSecretSetting, WebhookSecretEnv) != "",
		}

		if r.URL.Query().Get("verify") == "true" {
			_, err := api.Balance.Get(&stripe.BalanceParams{})
			verified := err == nil
			resp.Verified = &verified
			if err != nil {
				log.Warn().Err(err).Msg("Payments key verification failed")
			}
		}

		apperrors.WriteJSON(w, http.StatusOK, resp)
	}
}
