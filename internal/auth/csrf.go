package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	"github.com/aliuyar1234/ctlplane/internal/apperrors"
	"github.com/rs/zerolog/log"
)

const (
	// CSRFCookieName is the name of the CSRF cookie
	CSRFCookieName = "_csrf"

	// CSRFHeaderName carries the double-submitted token.
	CSRFHeaderName = "X-CSRF-Token"

	// CSRFTokenBytes is the number of random bytes for CSRF tokens
	CSRFTokenBytes = 32
)

// GenerateCSRFToken returns a base64url-encoded random token.
func GenerateCSRFToken() (string, error) {
	b := make([]byte, CSRFTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// SetCSRFCookie sets the CSRF token in a cookie readable by the dashboard script.
func SetCSRFCookie(w http.ResponseWriter, token string, isProduction bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: false,
		Secure:   isProduction,
		SameSite: http.SameSiteLaxMode,
	})
}

// ValidateCSRF compares the X-CSRF-Token header with the _csrf cookie.
func ValidateCSRF(r *http.Request) error {
	cookie, err := r.Cookie(CSRFCookieName)
	if err != nil || cookie.Value == "" {
		return errors.New("missing CSRF cookie")
	}

	header := r.Header.Get(CSRFHeaderName)
	if header == "" {
		return errors.New("missing CSRF token in request")
	}

	if subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(header)) != 1 {
		return errors.New("CSRF token mismatch")
	}
	return nil
}

func isMutation(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// CSRFMiddleware enforces double-submit CSRF on mutations authenticated by the
// session cookie. Requests carrying an Authorization header are not
// cookie-authenticated and skip the check.
func CSRFMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isMutation(r.Method) || r.Header.Get("Authorization") != "" || GetSessionCookie(r) == "" {
			next.ServeHTTP(w, r)
			return
		}

		if err := ValidateCSRF(r); err != nil {
			log.Warn().
				Err(err).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Msg("CSRF validation failed")

			apperrors.WriteForbidden(w, r, "Invalid CSRF token")
			return
		}
		next.ServeHTTP(w, r)
	})
}
