package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/aliuyar1234/ctlplane/internal/apperrors"
	"github.com/aliuyar1234/ctlplane/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type contextKey string

const (
	sessionContextKey contextKey = "session"
	adminContextKey   contextKey = "admin"
)

// Session is the identity carried by a valid session token.
type Session struct {
	UserID uuid.UUID
	Email  string
	// Bearer is true when the token came from the Authorization header.
	Bearer bool
}

// Admin is a superadmin loaded from the store for the current request.
type Admin struct {
	ID    uuid.UUID
	Email string
}

// UserGetter is the store surface RequireSuperadmin needs.
type UserGetter interface {
	GetUser(ctx context.Context, id uuid.UUID) (*store.User, error)
}

// Authenticate reads a session token from the Authorization header or the
// session cookie and stores the Session in the request context. Invalid
// tokens leave the request anonymous; Require* middleware rejects it later.
func Authenticate(secret string, isProduction bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, bearer := tokenFromRequest(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := ValidateToken(token, secret)
			if err != nil {
				log.Debug().Err(err).Bool("bearer", bearer).Msg("Invalid session token")
				if !bearer {
					ClearSessionCookie(w, isProduction)
				}
				next.ServeHTTP(w, r)
				return
			}

			sess := &Session{UserID: claims.UserID, Email: claims.Email, Bearer: bearer}
			ctx := context.WithValue(r.Context(), sessionContextKey, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func tokenFromRequest(r *http.Request) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			return "", true
		}
		return strings.TrimSpace(token), true
	}
	return GetSessionCookie(r), false
}

// RequireSuperadmin rejects anonymous requests with 401 and non-superadmins
// with 403. The admin is re-read from the store on every request so revoked
// privileges take effect before the session expires.
func RequireSuperadmin(users UserGetter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := GetSession(r.Context())
			if sess == nil {
				apperrors.WriteUnauthorized(w, r, "Authentication required")
				return
			}

			user, err := users.GetUser(r.Context(), sess.UserID)
			if err != nil {
				if errors.Is(err, store.ErrUserNotFound) {
					apperrors.WriteUnauthorized(w, r, "Authentication required")
					return
				}
				log.Error().Err(err).Str("user_id", sess.UserID.String()).Msg("Failed to load admin user")
				apperrors.WriteInternalError(w, r, "Failed to verify permissions")
				return
			}
			if !user.IsSuperadmin {
				log.Warn().Str("user_id", user.ID.String()).Str("path", r.URL.Path).Msg("Superadmin access denied")
				apperrors.WriteForbidden(w, r, "Superadmin access required")
				return
			}

			ctx := context.WithValue(r.Context(), adminContextKey, &Admin{ID: user.ID, Email: user.Email})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetSession returns the request's session or nil.
func GetSession(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey).(*Session)
	return sess
}

// GetAdmin returns the superadmin set by RequireSuperadmin or nil.
func GetAdmin(ctx context.Context) *Admin {
	admin, _ := ctx.Value(adminContextKey).(*Admin)
	return admin
}

// WithAdmin returns ctx carrying admin. Used by tests that call handlers directly.
func WithAdmin(ctx context.Context, admin *Admin) context.Context {
	return context.WithValue(ctx, adminContextKey, admin)
}
