package auth

import (
	"net/http"
)

const (
	// SessionCookieName is the name of the session cookie
	SessionCookieName = "cp_session"
)

// SetSessionCookie sets the session cookie with the JWT token.
// HttpOnly and SameSite=Lax always; Secure in production.
func SetSessionCookie(w http.ResponseWriter, token string, sessionDays int, isProduction bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   sessionDays * 24 * 60 * 60,
		HttpOnly: true,
		Secure:   isProduction,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the session cookie.
func ClearSessionCookie(w http.ResponseWriter, isProduction bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   isProduction,
		SameSite: http.SameSiteLaxMode,
	})
}

// GetSessionCookie returns the session cookie value or "".
func GetSessionCookie(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
