// Package orgs implements superadmin organization management.
package orgs

import (
	"encoding/json"
	"net/http"

	"github.com/aliuyar1234/ctlplane/internal/apperrors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// HandleList handles GET /api/superadmin/organizations
func HandleList(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := svc.List(r.Context())
		if err != nil {
			apperrors.WriteErr(w, r, err)
			return
		}
		apperrors.WriteJSON(w, http.StatusOK, resp)
	}
}

// HandleCreate handles POST /api/superadmin/organizations
func HandleCreate(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		resp, err := svc.Create(r.Context(), req)
		if err != nil {
			apperrors.WriteErr(w, r, err)
			return
		}
		apperrors.WriteJSON(w, http.StatusOK, resp)
	}
}

// HandleUpdate handles PATCH /api/superadmin/organizations
func HandleUpdate(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req UpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		resp, err := svc.Update(r.Context(), req)
		if err != nil {
			apperrors.WriteErr(w, r, err)
			return
		}
		apperrors.WriteJSON(w, http.StatusOK, resp)
	}
}

// HandleDelete handles DELETE /api/superadmin/organizations?org_id=
func HandleDelete(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := r.URL.Query().Get("org_id")
		if raw == "" {
			apperrors.WriteBadRequest(w, r, "org_id is required")
			return
		}
		orgID, err := uuid.Parse(raw)
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid organization ID")
			return
		}

		if err := svc.Delete(r.Context(), orgID); err != nil {
			apperrors.WriteErr(w, r, err)
			return
		}
		apperrors.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

// HandleListMembers handles GET /api/superadmin/organizations/{org_id}/members
func HandleListMembers(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, err := uuid.Parse(chi.URLParam(r, "org_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid organization ID")
			return
		}

		members, err := svc.Members(r.Context(), orgID)
		if err != nil {
			apperrors.WriteErr(w, r, err)
			return
		}
		apperrors.WriteJSON(w, http.StatusOK, map[string]any{"members": members})
	}
}
