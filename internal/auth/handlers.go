package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aliuyar1234/ctlplane/internal/apperrors"
	"github.com/aliuyar1234/ctlplane/internal/store"
	"github.com/aliuyar1234/ctlplane/internal/validation"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// SessionConfig is the session cookie and token configuration shared by the handlers.
type SessionConfig struct {
	Secret       string
	SessionDays  int
	IsProduction bool
}

// EmailLookup is the store surface HandleLogin needs.
type EmailLookup interface {
	GetUserByEmail(ctx context.Context, email string) (*store.User, error)
}

// LoginRequest represents the login request payload
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is returned on successful login. Token is for API clients that
// send it as a Bearer header; browsers use the cookie.
type LoginResponse struct {
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	CSRFToken string    `json:"csrf_token"`
}

// HandleLogin handles POST /api/auth/login. Only superadmins may sign in.
func HandleLogin(users EmailLookup, cfg SessionConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		email := validation.NormalizeEmail(req.Email)
		if email == "" || req.Password == "" {
			apperrors.WriteUnauthorized(w, r, "Invalid credentials")
			return
		}

		user, err := users.GetUserByEmail(r.Context(), email)
		if err != nil {
			if errors.Is(err, store.ErrUserNotFound) {
				log.Debug().Str("email", email).Msg("Login failed: user not found")
				apperrors.WriteUnauthorized(w, r, "Invalid credentials")
				return
			}
			log.Error().Err(err).Str("email", email).Msg("Failed to query user")
			apperrors.WriteInternalError(w, r, "Login failed")
			return
		}

		if user.PasswordHash == "" || VerifyPassword(user.PasswordHash, req.Password) != nil {
			log.Debug().Str("email", email).Msg("Login failed: wrong password")
			apperrors.WriteUnauthorized(w, r, "Invalid credentials")
			return
		}
		if !user.IsSuperadmin {
			log.Warn().Str("user_id", user.ID.String()).Msg("Login refused: not a superadmin")
			apperrors.WriteForbidden(w, r, "Superadmin access required")
			return
		}

		token, err := CreateToken(user.ID, user.Email, cfg.Secret, cfg.SessionDays)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create token")
			apperrors.WriteInternalError(w, r, "Failed to create session")
			return
		}
		csrfToken, err := GenerateCSRFToken()
		if err != nil {
			log.Error().Err(err).Msg("Failed to create CSRF token")
			apperrors.WriteInternalError(w, r, "Failed to create session")
			return
		}

		SetSessionCookie(w, token, cfg.SessionDays, cfg.IsProduction)
		SetCSRFCookie(w, csrfToken, cfg.IsProduction)

		log.Info().
			Str("user_id", user.ID.String()).
			Str("email", user.Email).
			Msg("Admin logged in")

		apperrors.WriteJSON(w, http.StatusOK, LoginResponse{
			UserID:    user.ID,
			Email:     user.Email,
			Token:     token,
			CSRFToken: csrfToken,
		})
	}
}

// HandleLogout handles POST /api/auth/logout.
func HandleLogout(isProduction bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ClearSessionCookie(w, isProduction)

		if sess := GetSession(r.Context()); sess != nil {
			log.Info().Str("user_id", sess.UserID.String()).Msg("Admin logged out")
		}

		apperrors.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

// HandleMe handles GET /api/auth/me.
func HandleMe(w http.ResponseWriter, r *http.Request) {
	admin := GetAdmin(r.Context())
	if admin == nil {
		apperrors.WriteUnauthorized(w, r, "Authentication required")
		return
	}
	apperrors.WriteJSON(w, http.StatusOK, map[string]any{
		"user_id": admin.ID,
		"email":   admin.Email,
	})
}
