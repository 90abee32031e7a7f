package app

import (
	"context"
	"net/http"
	"time"

	"github.com/aliuyar1234/ctlplane/internal/apperrors"
	"github.com/aliuyar1234/ctlplane/internal/audit"
	"github.com/aliuyar1234/ctlplane/internal/auth"
	"github.com/aliuyar1234/ctlplane/internal/billing"
	"github.com/aliuyar1234/ctlplane/internal/bridge"
	"github.com/aliuyar1234/ctlplane/internal/config"
	"github.com/aliuyar1234/ctlplane/internal/metrics"
	"github.com/aliuyar1234/ctlplane/internal/notify"
	"github.com/aliuyar1234/ctlplane/internal/orgs"
	"github.com/aliuyar1234/ctlplane/internal/plans"
	"github.com/aliuyar1234/ctlplane/internal/research"
	"github.com/aliuyar1234/ctlplane/internal/settings"
	"github.com/aliuyar1234/ctlplane/internal/store"
	"github.com/aliuyar1234/ctlplane/internal/users"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"
)

// Deps are the long-lived components the router wires into handlers.
type Deps struct {
	Config   *config.Config
	Store    store.Store
	Settings *settings.Resolver
	Payments *billing.ClientFactory
}

// NewRouter creates and configures the Chi router with all middleware and routes
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()

	cfg := d.Config
	isProduction := !cfg.IsDev()

	r.Use(middleware.RealIP)
	r.Use(apperrors.RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.BaseURL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", auth.CSRFHeaderName},
		ExposedHeaders:   []string{apperrors.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	auditor := audit.NewWriter(d.Store)
	enforcer := plans.NewEnforcer(d.Store)
	notifier := notify.NewNotifier(d.Settings, cfg.NotifyTimeoutMS)
	orgService := orgs.NewService(d.Store, enforcer, auditor, notifier)
	userService := users.NewService(d.Store, enforcer, auditor)

	r.Get("/healthz", handleHealthz)
	r.Get("/readyz", handleReadyz(d.Store))
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/auth", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(auth.Authenticate(cfg.JWTSecret, isProduction))

		r.With(LoginRateLimitMiddleware()).Post("/login", auth.HandleLogin(d.Store, auth.SessionConfig{
			Secret:       cfg.JWTSecret,
			SessionDays:  cfg.SessionDays,
			IsProduction: isProduction,
		}))
		r.Post("/logout", auth.HandleLogout(isProduction))
		r.With(auth.RequireSuperadmin(d.Store)).Get("/me", auth.HandleMe)
	})

	r.Route("/api/superadmin", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(NoCacheMiddleware)
		r.Use(auth.Authenticate(cfg.JWTSecret, isProduction))
		r.Use(auth.RequireSuperadmin(d.Store))
		r.Use(auth.CSRFMiddleware)

		r.Get("/organizations", orgs.HandleList(orgService))
		r.Post("/organizations", orgs.HandleCreate(orgService))
		r.Patch("/organizations", orgs.HandleUpdate(orgService))
		r.Delete("/organizations", orgs.HandleDelete(orgService))
		r.Get("/organizations/{org_id}/members", orgs.HandleListMembers(orgService))

		r.Get("/users", users.HandleList(userService))
		r.Post("/users", users.HandleCreate(userService))
		r.Patch("/users", users.HandleUpdate(userService))
		r.Delete("/users", users.HandleDelete(userService))

		r.Post("/users/{user_id}/bridge-tokens", bridge.HandleCreate(d.Store, auditor))
		r.Get("/users/{user_id}/bridge-tokens", bridge.HandleList(d.Store))
		r.Delete("/users/{user_id}/bridge-tokens/{token_id}", bridge.HandleRevoke(d.Store, auditor))

		r.Get("/settings", settings.HandleList(d.Store))
		r.Put("/settings", settings.HandleUpdate(d.Store, auditor, d.Settings, d.Payments))
		r.Delete("/settings", settings.HandleDelete(d.Store, auditor, d.Settings, d.Payments))
		r.Get("/settings/billing/status", billing.HandleStatus(d.Payments, d.Settings))

		r.Get("/plans", plans.HandleList(d.Store))
		r.Get("/audit-logs", audit.HandleList(d.Store))
	})

	// One limiter for both methods: the budget is per token, not per route.
	researchLimit := bridge.RateLimitByToken(cfg.RateLimitRPM)
	r.Route("/api/v1/research", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.With(bridge.RequireToken(d.Store, bridge.ScopeRead), researchLimit).Get("/", research.HandleGet(d.Store))
		r.With(bridge.RequireToken(d.Store, bridge.ScopeWrite), researchLimit).Post("/", research.HandlePost(d.Store, enforcer))
	})

	return r
}

// handleHealthz is the liveness probe.
func handleHealthz(w http.ResponseWriter, r *http.Request) {
	apperrors.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type pinger interface {
	Ping(ctx context.Context) error
}

// handleReadyz reports 503 until the store answers a ping.
func handleReadyz(s pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := s.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("Readiness check failed")
			apperrors.WriteServiceUnavailable(w, r, "Store unavailable")
			return
		}
		apperrors.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready", "store": "ok"})
	}
}
