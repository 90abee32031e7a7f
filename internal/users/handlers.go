// Package users implements superadmin user and license management.
package users

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/aliuyar1234/ctlplane/internal/apperrors"
	"github.com/aliuyar1234/ctlplane/internal/store"
	"github.com/google/uuid"
)

// HandleList handles GET /api/superadmin/users?search=&page=&page_size=
// and GET /api/superadmin/users?user_id= for a single user.
func HandleList(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		if raw := q.Get("user_id"); raw != "" {
			userID, err := uuid.Parse(raw)
			if err != nil {
				apperrors.WriteBadRequest(w, r, "Invalid user ID")
				return
			}
			d, err := svc.Get(r.Context(), userID)
			if err != nil {
				apperrors.WriteErr(w, r, err)
				return
			}
			apperrors.WriteJSON(w, http.StatusOK, map[string]any{"user": d})
			return
		}

		params := store.ListUsersParams{Search: q.Get("search")}
		var err error
		if raw := q.Get("page"); raw != "" {
			if params.Page, err = strconv.Atoi(raw); err != nil {
				apperrors.WriteBadRequest(w, r, "page must be a number")
				return
			}
		}
		if raw := q.Get("page_size"); raw != "" {
			if params.PageSize, err = strconv.Atoi(raw); err != nil {
				apperrors.WriteBadRequest(w, r, "page_size must be a number")
				return
			}
		}

		resp, err := svc.List(r.Context(), params)
		if err != nil {
			apperrors.WriteErr(w, r, err)
			return
		}
		apperrors.WriteJSON(w, http.StatusOK, resp)
	}
}

// HandleCreate handles POST /api/superadmin/users
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

// HandleUpdate handles PATCH /api/superadmin/users
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

// HandleDelete handles DELETE /api/superadmin/users?user_id=
func HandleDelete(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := r.URL.Query().Get("user_id")
		if raw == "" {
			apperrors.WriteBadRequest(w, r, "user_id is required")
			return
		}
		userID, err := uuid.Parse(raw)
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid user ID")
			return
		}

		if err := svc.Delete(r.Context(), userID); err != nil {
			apperrors.WriteErr(w, r, err)
			return
		}
		apperrors.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}
