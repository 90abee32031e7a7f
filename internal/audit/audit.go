// Package audit records admin mutations in the admin_audit_logs table.
package audit

import (
	"context"
	"time"

	"github.com/aliuyar1234/ctlplane/internal/auth"
	"github.com/aliuyar1234/ctlplane/internal/metrics"
	"github.com/aliuyar1234/ctlplane/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Actions.
const (
	ActionOrganizationCreated = "organization.created"
	ActionOrganizationUpdated = "organization.updated"
	ActionOrganizationDeleted = "organization.deleted"
	ActionUserCreated         = "user.created"
	ActionUserUpdated         = "user.updated"
	ActionUserDeleted         = "user.deleted"
	ActionSettingsUpdated     = "settings.updated"
	ActionSettingDeleted      = "setting.deleted"
	ActionBridgeTokenCreated  = "bridge_token.created"
	ActionBridgeTokenRevoked  = "bridge_token.revoked"
)

// Resource types.
const (
	ResourceOrganization = "organization"
	ResourceUser         = "user"
	ResourceSetting      = "platform_setting"
	ResourceBridgeToken  = "bridge_token"
)

// writeTimeout bounds the insert so a slow database cannot hold the response.
const writeTimeout = 3 * time.Second

// Entry is one admin action.
type Entry struct {
	Action       string
	ResourceType string
	ResourceID   string
	Changes      map[string]any
}

// Writer appends audit rows. Writes are best-effort: a failure is logged and
// counted but never reaches the caller, and the mutation it describes stands.
type Writer struct {
	store store.AuditStore
}

func NewWriter(s store.AuditStore) *Writer {
	return &Writer{store: s}
}

// Record writes e attributed to the admin in ctx.
func (w *Writer) Record(ctx context.Context, e Entry) {
	row := &store.AuditLog{
		Action:       e.Action,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Changes:      e.Changes,
	}
	if row.Changes == nil {
		row.Changes = map[string]any{}
	}
	if admin := auth.GetAdmin(ctx); admin != nil {
		id := admin.ID
		row.AdminID = &id
		row.AdminEmail = admin.Email
	}

	// The request may be finishing; keep the write alive on its own deadline.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	if err := w.store.InsertAuditLog(writeCtx, row); err != nil {
		metrics.AuditWriteFailures.Inc()
		log.Error().
			Err(err).
			Str("action", e.Action).
			Str("resource_type", e.ResourceType).
			Str("resource_id", e.ResourceID).
			Msg("Failed to write audit log")
		return
	}

	metrics.AdminMutations.WithLabelValues(e.ResourceType, e.Action).Inc()
	log.Info().
		Str("action", e.Action).
		Str("resource_type", e.ResourceType).
		Str("resource_id", e.ResourceID).
		Str("admin_email", row.AdminEmail).
		Msg("Audit event logged")
}

// ResourceID formats a UUID resource identifier.
func ResourceID(id uuid.UUID) string {
	return id.String()
}
