package settings

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/aliuyar1234/ctlplane/internal/apperrors"
	"github.com/aliuyar1234/ctlplane/internal/audit"
	"github.com/aliuyar1234/ctlplane/internal/auth"
	"github.com/aliuyar1234/ctlplane/internal/store"
	"github.com/aliuyar1234/ctlplane/internal/validation"
	"github.com/rs/zerolog/log"
)

// maskPrefix replaces sensitive values in responses. A PUT that sends a
// masked value back leaves the stored value unchanged.
const maskPrefix = "********"

var keyRegex = regexp.MustCompile(`^[a-z][a-z0-9_]{1,99}$`)

// Invalidator is anything caching derived state that must be dropped after settings change.
type Invalidator interface {
	Invalidate()
}

// SettingResponse is one setting as returned to the admin UI.
type SettingResponse struct {
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Category    string    `json:"category"`
	IsSensitive bool      `json:"is_sensitive"`
	Configured  bool      `json:"configured"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// UpdateItem is one entry of a PUT body. Value must be a JSON scalar.
type UpdateItem struct {
	Key         string `json:"key" validate:"required"`
	Value       any    `json:"value"`
	Category    string `json:"category" validate:"required,max=50"`
	IsSensitive bool   `json:"is_sensitive"`
}

// UpdateRequest is the PUT /api/superadmin/settings body.
type UpdateRequest struct {
	Settings []UpdateItem `json:"settings" validate:"required,min=1,max=100,dive"`
}

// Mask hides all but the last four characters of a sensitive value.
func Mask(value string) string {
	if value == "" {
		return ""
	}
	if len(value) <= 8 {
		return maskPrefix
	}
	return maskPrefix + value[len(value)-4:]
}

func toResponse(row store.PlatformSetting) SettingResponse {
	value := DecodeValue(row.Value)
	resp := SettingResponse{
		Key:         row.Key,
		Value:       value,
		Category:    row.Category,
		IsSensitive: row.IsSensitive,
		Configured:  value != "",
		UpdatedAt:   row.UpdatedAt,
	}
	if row.IsSensitive {
		resp.Value = Mask(value)
	}
	return resp
}

// HandleList handles GET /api/superadmin/settings?category=
func HandleList(s store.SettingStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var categories []string
		if c := strings.TrimSpace(r.URL.Query().Get("category")); c != "" {
			categories = append(categories, c)
		}

		rows, err := s.ListSettings(r.Context(), categories...)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list settings")
			apperrors.WriteInternalError(w, r, "Failed to list settings")
			return
		}

		resp := make([]SettingResponse, 0, len(rows))
		for _, row := range rows {
			resp = append(resp, toResponse(row))
		}

		apperrors.WriteJSON(w, http.StatusOK, map[string]any{
			"settings": resp,
		})
	}
}

// HandleUpdate handles PUT /api/superadmin/settings. All rows are written in
// one batch, then every invalidator is called so the next read sees them.
func HandleUpdate(s store.SettingStore, auditor *audit.Writer, invalidators ...Invalidator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req UpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}
		if err := validation.Struct(req); err != nil {
			apperrors.WriteErr(w, r, apperrors.Validation(err.Error()))
			return
		}

		admin := auth.GetAdmin(ctx)

		rows := make([]store.PlatformSetting, 0, len(req.Settings))
		changes := make(map[string]any, len(req.Settings))
		for _, item := range req.Settings {
			key := strings.TrimSpace(item.Key)
			if !keyRegex.MatchString(key) {
				apperrors.WriteErr(w, r, apperrors.Validation("setting key "+key+" must be lowercase letters, digits and underscores"))
				return
			}
			if v, ok := item.Value.(string); ok && item.IsSensitive && strings.HasPrefix(v, maskPrefix) {
				continue
			}

			encoded, ok := EncodeValue(item.Value)
			if !ok {
				apperrors.WriteErr(w, r, apperrors.Validation("setting "+key+" must be a string, number, boolean or null"))
				return
			}

			row := store.PlatformSetting{
				Key:         key,
				Value:       encoded,
				Category:    item.Category,
				IsSensitive: item.IsSensitive,
			}
			if admin != nil {
				id := admin.ID
				row.UpdatedBy = &id
			}
			rows = append(rows, row)

			if item.IsSensitive {
				changes[key] = "[REDACTED]"
			} else {
				changes[key] = item.Value
			}
		}

		if len(rows) > 0 {
			if err := s.UpsertSettings(ctx, rows); err != nil {
				log.Error().Err(err).Msg("Failed to save settings")
				apperrors.WriteInternalError(w, r, "Failed to save settings")
				return
			}
			for _, inv := range invalidators {
				inv.Invalidate()
			}

			auditor.Record(ctx, audit.Entry{
				Action:       audit.ActionSettingsUpdated,
				ResourceType: audit.ResourceSetting,
				ResourceID:   settingsResourceID(rows),
				Changes:      changes,
			})
		}

		apperrors.WriteJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"updated": len(rows),
		})
	}
}

// HandleDelete handles DELETE /api/superadmin/settings?key=
func HandleDelete(s store.SettingStore, auditor *audit.Writer, invalidators ...Invalidator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		key := strings.TrimSpace(r.URL.Query().Get("key"))
		if key == "" {
			apperrors.WriteBadRequest(w, r, "key is required")
			return
		}

		if err := s.DeleteSetting(ctx, key); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				apperrors.WriteNotFound(w, r, "Setting not found")
				return
			}
			log.Error().Err(err).Str("key", key).Msg("Failed to delete setting")
			apperrors.WriteInternalError(w, r, "Failed to delete setting")
			return
		}
		for _, inv := range invalidators {
			inv.Invalidate()
		}

		auditor.Record(ctx, audit.Entry{
			Action:       audit.ActionSettingDeleted,
			ResourceType: audit.ResourceSetting,
			ResourceID:   key,
		})

		apperrors.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

// settingsResourceID lists the changed keys.
func settingsResourceID(rows []store.PlatformSetting) string {
	keys := make([]string, len(rows))
	for i, row := range rows {
		keys[i] = row.Key
	}
	return strings.Join(keys, ",")
}
