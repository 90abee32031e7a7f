package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/aliuyar1234/ctlplane/internal/apperrors"
	"github.com/aliuyar1234/ctlplane/internal/store"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// CodeInvalidToken is returned for any token that cannot authenticate.
const CodeInvalidToken = "INVALID_BRIDGE_TOKEN"

var (
	ErrMissingToken = errors.New("missing bridge token in Authorization header")
	ErrInvalidToken = errors.New("invalid bridge token")
	ErrRevokedToken = errors.New("bridge token has been revoked")
	ErrExpiredToken = errors.New("bridge token has expired")
	errHeaderFormat = errors.New("invalid Authorization header format, expected 'Bearer <token>'")
)

type contextKey string

const tokenContextKey contextKey = "bridge_token"

// TokenStore is the store surface the middleware needs.
type TokenStore interface {
	GetBridgeTokenByHash(ctx context.Context, hash []byte) (*store.BridgeToken, error)
	TouchBridgeToken(ctx context.Context, tokenID uuid.UUID, at time.Time) error
}

// ExtractToken reads "Authorization: Bearer <token>".
func ExtractToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", errHeaderFormat
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

// Validate looks up token and checks it is neither revoked nor expired.
func Validate(ctx context.Context, s TokenStore, token string, now time.Time) (*store.BridgeToken, error) {
	if !ValidateTokenFormat(token) {
		return nil, ErrInvalidToken
	}
	t, err := s.GetBridgeTokenByHash(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, store.ErrBridgeTokenNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to validate bridge token: %w", err)
	}
	if t.IsRevoked() {
		return nil, ErrRevokedToken
	}
	if t.IsExpired(now) {
		return nil, ErrExpiredToken
	}
	return t, nil
}

// HasScope reports whether t carries scope.
func HasScope(t *store.BridgeToken, scope string) bool {
	return slices.Contains(t.Scopes, scope)
}

// RequireToken authenticates a bridge client (401) and checks it carries
// scope (403) before calling next.
func RequireToken(s TokenStore, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			raw, err := ExtractToken(r)
			if err != nil {
				if errors.Is(err, ErrMissingToken) {
					apperrors.WriteError(w, r, http.StatusUnauthorized, apperrors.CodeUnauthorized, "Missing Authorization header")
					return
				}
				apperrors.WriteError(w, r, http.StatusUnauthorized, apperrors.CodeUnauthorized, "Invalid Authorization header")
				return
			}

			t, err := Validate(ctx, s, raw, time.Now())
			if err != nil {
				switch {
				case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrRevokedToken), errors.Is(err, ErrExpiredToken):
					apperrors.WriteError(w, r, http.StatusUnauthorized, CodeInvalidToken, "Invalid bridge token")
				default:
					log.Error().Err(err).Msg("Failed to validate bridge token")
					apperrors.WriteInternalError(w, r, "Authentication failed")
				}
				return
			}

			if !HasScope(t, scope) {
				apperrors.WriteError(w, r, http.StatusForbidden, apperrors.CodeForbidden,
					fmt.Sprintf("Bridge token missing required scope: %s", scope))
				return
			}

			go func(id uuid.UUID) {
				touchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				defer cancel()
				if err := s.TouchBridgeToken(touchCtx, id, time.Now().UTC()); err != nil {
					log.Error().Err(err).Str("bridge_token_id", id.String()).Msg("Failed to update last_used_at")
				}
			}(t.ID)

			next.ServeHTTP(w, r.WithContext(WithToken(ctx, t)))
		})
	}
}

// RateLimitByToken limits requests per bridge token per minute.
func RateLimitByToken(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			t := GetToken(r.Context())
			if t == nil {
				return httprate.KeyByIP(r)
			}
			return "bridge:" + t.ID.String(), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			if t := GetToken(r.Context()); t != nil {
				log.Warn().
					Str("bridge_token_id", t.ID.String()).
					Str("bridge_token_name", t.Name).
					Str("path", r.URL.Path).
					Msg("Rate limit exceeded")
			}
			w.Header().Set("Retry-After", "60")
			apperrors.WriteTooManyRequests(w, r, "Rate limit exceeded. Please retry after 60 seconds.")
		}),
	)
}

// WithToken stores the authenticated token in ctx.
func WithToken(ctx context.Context, t *store.BridgeToken) context.Context {
	return context.WithValue(ctx, tokenContextKey, t)
}

// GetToken returns the authenticated token, or nil.
func GetToken(ctx context.Context) *store.BridgeToken {
	t, _ := ctx.Value(tokenContextKey).(*store.BridgeToken)
	return t
}
