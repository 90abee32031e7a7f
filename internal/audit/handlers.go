package audit

import (
	"net/http"
	"strconv"

	"github.com/aliuyar1234/ctlplane/internal/apperrors"
	"github.com/aliuyar1234/ctlplane/internal/store"
	"github.com/rs/zerolog/log"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// HandleList handles GET /api/superadmin/audit-logs
func HandleList(s store.AuditStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		limit := defaultListLimit
		if raw := q.Get("limit"); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil || v <= 0 {
				apperrors.WriteBadRequest(w, r, "limit must be a positive integer")
				return
			}
			limit = min(v, maxListLimit)
		}

		logs, err := s.ListAuditLogs(r.Context(), store.AuditFilter{
			ResourceType: q.Get("resource_type"),
			ResourceID:   q.Get("resource_id"),
			Action:       q.Get("action"),
			Limit:        limit,
		})
		if err != nil {
			log.Error().Err(err).Msg("Failed to list audit logs")
			apperrors.WriteInternalError(w, r, "Failed to list audit logs")
			return
		}
		if logs == nil {
			logs = []store.AuditLog{}
		}

		apperrors.WriteJSON(w, http.StatusOK, map[string]any{
			"logs": logs,
		})
	}
}
