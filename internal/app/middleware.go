package app

import (
	"net/http"
	"time"

	"github.com/aliuyar1234/ctlplane/internal/apperrors"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog/log"
)

// LoggingMiddleware logs HTTP requests with structured fields.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		ev := log.Info()
		if wrapped.statusCode >= http.StatusInternalServerError {
			ev = log.Warn()
		}
		ev.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.statusCode).
			Dur("duration", time.Since(start)).
			Str("request_id", apperrors.GetRequestID(r.Context())).
			Str("remote_addr", r.RemoteAddr).
			Msg("HTTP request")
	})
}

// RecoveryMiddleware recovers from panics and returns a 500 error.
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				log.Error().
					Interface("error", err).
					Str("request_id", apperrors.GetRequestID(r.Context())).
					Str("path", r.URL.Path).
					Msg("Panic recovered")

				apperrors.WriteInternalError(w, r, "Internal server error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}

type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// ContentTypeJSON sets Content-Type to application/json.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// NoCacheMiddleware adds headers to prevent caching.
func NoCacheMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		next.ServeHTTP(w, r)
	})
}

// LoginRateLimitMiddleware limits login attempts per IP address to 10/minute.
func LoginRateLimitMiddleware() func(http.Handler) http.Handler {
	return httprate.Limit(
		10,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "60")
			apperrors.WriteTooManyRequests(w, r, "Too many login attempts. Try again later.")
		}),
	)
}
