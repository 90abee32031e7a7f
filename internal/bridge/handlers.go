package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/aliuyar1234/ctlplane/internal/apperrors"
	"github.com/aliuyar1234/ctlplane/internal/audit"
	"github.com/aliuyar1234/ctlplane/internal/auth"
	"github.com/aliuyar1234/ctlplane/internal/store"
	"github.com/aliuyar1234/ctlplane/internal/validation"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// AdminStore is the store surface the token admin endpoints need.
type AdminStore interface {
	GetUser(ctx context.Context, id uuid.UUID) (*store.User, error)
	CreateBridgeToken(ctx context.Context, t *store.BridgeToken) error
	ListBridgeTokensByUser(ctx context.Context, userID uuid.UUID) ([]store.BridgeToken, error)
	RevokeBridgeToken(ctx context.Context, userID, tokenID uuid.UUID) (*store.BridgeToken, error)
}

// CreateRequest is the body of POST /api/superadmin/users/{user_id}/bridge-tokens.
type CreateRequest struct {
	Name          string   `json:"name" validate:"required,max=100"`
	Scopes        []string `json:"scopes" validate:"omitempty,dive,oneof=read write"`
	ExpiresInDays int      `json:"expires_in_days" validate:"min=0,max=3650"`
}

// CreateResponse carries the plaintext token. It is never shown again.
type CreateResponse struct {
	Token       string             `json:"token"`
	BridgeToken *store.BridgeToken `json:"bridge_token"`
}

func userFromPath(w http.ResponseWriter, r *http.Request, s AdminStore) (*store.User, bool) {
	userID, err := uuid.Parse(chi.URLParam(r, "user_id"))
	if err != nil {
		apperrors.WriteBadRequest(w, r, "Invalid user ID")
		return nil, false
	}
	u, err := s.GetUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			apperrors.WriteNotFound(w, r, "User not found")
			return nil, false
		}
		log.Error().Err(err).Msg("Failed to get user")
		apperrors.WriteInternalError(w, r, "Failed to get user")
		return nil, false
	}
	return u, true
}

// HandleCreate handles POST /api/superadmin/users/{user_id}/bridge-tokens
func HandleCreate(s AdminStore, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		u, ok := userFromPath(w, r, s)
		if !ok {
			return
		}

		var req CreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if err := validation.Struct(req); err != nil {
			apperrors.WriteErr(w, r, apperrors.Validation(err.Error()))
			return
		}
		if len(req.Scopes) == 0 {
			req.Scopes = []string{ScopeRead}
		}

		token, hash, err := GenerateToken()
		if err != nil {
			log.Error().Err(err).Msg("Failed to generate bridge token")
			apperrors.WriteInternalError(w, r, "Failed to generate bridge token")
			return
		}

		t := &store.BridgeToken{
			UserID:    u.ID,
			Name:      req.Name,
			TokenHash: hash,
			Scopes:    dedupe(req.Scopes),
		}
		if req.ExpiresInDays > 0 {
			expires := time.Now().UTC().Add(time.Duration(req.ExpiresInDays) * 24 * time.Hour)
			t.ExpiresAt = &expires
		}
		if a := auth.GetAdmin(ctx); a != nil {
			t.CreatedByUserID = a.ID
		}

		if err := s.CreateBridgeToken(ctx, t); err != nil {
			log.Error().Err(err).Msg("Failed to create bridge token")
			apperrors.WriteInternalError(w, r, "Failed to create bridge token")
			return
		}

		auditor.Record(ctx, audit.Entry{
			Action:       audit.ActionBridgeTokenCreated,
			ResourceType: audit.ResourceBridgeToken,
			ResourceID:   audit.ResourceID(t.ID),
			Changes: map[string]any{
				"user_id":    u.ID.String(),
				"name":       t.Name,
				"scopes":     t.Scopes,
				"expires_at": t.ExpiresAt,
			},
		})

		apperrors.WriteJSON(w, http.StatusCreated, CreateResponse{Token: token, BridgeToken: t})
	}
}

// HandleList handles GET /api/superadmin/users/{user_id}/bridge-tokens
func HandleList(s AdminStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, ok := userFromPath(w, r, s)
		if !ok {
			return
		}

		tokens, err := s.ListBridgeTokensByUser(r.Context(), u.ID)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list bridge tokens")
			apperrors.WriteInternalError(w, r, "Failed to list bridge tokens")
			return
		}
		if tokens == nil {
			tokens = []store.BridgeToken{}
		}
		apperrors.WriteJSON(w, http.StatusOK, map[string]any{"tokens": tokens})
	}
}

// HandleRevoke handles DELETE /api/superadmin/users/{user_id}/bridge-tokens/{token_id}
func HandleRevoke(s AdminStore, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		u, ok := userFromPath(w, r, s)
		if !ok {
			return
		}
		tokenID, err := uuid.Parse(chi.URLParam(r, "token_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid token ID")
			return
		}

		t, err := s.RevokeBridgeToken(ctx, u.ID, tokenID)
		if err != nil {
			if errors.Is(err, store.ErrBridgeTokenNotFound) {
				apperrors.WriteNotFound(w, r, "Bridge token not found")
				return
			}
			log.Error().Err(err).Msg("Failed to revoke bridge token")
			apperrors.WriteInternalError(w, r, "Failed to revoke bridge token")
			return
		}

		auditor.Record(ctx, audit.Entry{
			Action:       audit.ActionBridgeTokenRevoked,
			ResourceType: audit.ResourceBridgeToken,
			ResourceID:   audit.ResourceID(t.ID),
			Changes:      map[string]any{"user_id": u.ID.String(), "name": t.Name},
		})

		apperrors.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

func dedupe(scopes []string) []string {
	seen := make(map[string]bool, len(scopes))
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
