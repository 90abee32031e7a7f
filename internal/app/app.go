package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/aliuyar1234/ctlplane/internal/auth"
	"github.com/aliuyar1234/ctlplane/internal/billing"
	"github.com/aliuyar1234/ctlplane/internal/config"
	"github.com/aliuyar1234/ctlplane/internal/db"
	"github.com/aliuyar1234/ctlplane/internal/plans"
	"github.com/aliuyar1234/ctlplane/internal/settings"
	"github.com/aliuyar1234/ctlplane/internal/store"
	"github.com/aliuyar1234/ctlplane/internal/store/memory"
	"github.com/aliuyar1234/ctlplane/internal/store/postgres"
	"github.com/aliuyar1234/ctlplane/internal/validation"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// App holds the application state
type App struct {
	Config   *config.Config
	Store    store.Store
	Settings *settings.Resolver
	Payments *billing.ClientFactory
	Router   http.Handler

	server *http.Server
}

// New creates and initializes a new application instance
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	setupLogger(cfg)

	log.Info().Msg("Initializing control plane")
	log.Info().Interface("config", cfg.RedactedValues()).Msg("Configuration loaded")

	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := bootstrapAdmin(ctx, st, cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword); err != nil {
		st.Close()
		return nil, err
	}

	resolver := settings.NewResolver(st,
		settings.WithTTL(cfg.SettingsTTL),
		settings.WithCategories(cfg.SettingsCategories...),
	)
	// Payments clients are built lazily on first use, never here.
	payments := billing.NewClientFactory(resolver)

	app := &App{
		Config:   cfg,
		Store:    st,
		Settings: resolver,
		Payments: payments,
	}
	app.Router = NewRouter(Deps{
		Config:   cfg,
		Store:    st,
		Settings: resolver,
		Payments: payments,
	})
	app.server = &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      app.Router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().Msg("Application initialized successfully")
	return app, nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		log.Warn().Msg("Using in-memory store; data is lost on restart")
		s := memory.New()
		s.SeedPlans(plans.DefaultPlans())
		return s, nil
	}

	log.Info().Msg("Connecting to database...")
	pool, err := db.Connect(ctx, cfg.DBDSN, db.PoolOptions{MaxConns: int32(cfg.DBMaxConns)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info().Msg("Database connection established")

	if cfg.IsDev() {
		log.Info().Msg("Development mode: running migrations automatically")
		if err := db.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	} else {
		log.Info().Msg("Production mode: migrations must be run manually")
	}

	return postgres.New(pool), nil
}

// bootstrapAdmin creates the first superadmin when email is set and no user
// with that email exists yet.
func bootstrapAdmin(ctx context.Context, st store.UserStore, email, password string) error {
	email = validation.NormalizeEmail(email)
	if email == "" {
		return nil
	}

	existing, err := st.GetUserByEmail(ctx, email)
	if err == nil {
		if !existing.IsSuperadmin {
			log.Warn().Str("email", email).Msg("Bootstrap admin email belongs to a non-superadmin user")
		}
		return nil
	}
	if !errors.Is(err, store.ErrUserNotFound) {
		return fmt.Errorf("failed to look up bootstrap admin: %w", err)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash bootstrap admin password: %w", err)
	}
	u := &store.User{Email: email, PasswordHash: hash, IsSuperadmin: true}
	if err := st.CreateUser(ctx, u); err != nil {
		return fmt.Errorf("failed to create bootstrap admin: %w", err)
	}

	log.Info().Str("user_id", u.ID.String()).Str("email", email).Msg("Bootstrap superadmin created")
	return nil
}

// Start starts the HTTP server and blocks until it stops.
func (a *App) Start() error {
	log.Info().Str("addr", a.server.Addr).Msg("Starting HTTP server")
	return a.server.ListenAndServe()
}

// Shutdown drains in-flight requests and closes the store.
func (a *App) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down application")
	err := a.server.Shutdown(ctx)
	a.Close()
	return err
}

// Close releases the store.
func (a *App) Close() {
	if a.Store != nil {
		log.Info().Msg("Closing store")
		a.Store.Close()
	}
}

// setupLogger configures the global logger: console output in dev, JSON in prod.
func setupLogger(cfg *config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.IsDev() {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Str("service", "ctlplane").Logger()
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Debug().Str("level", level.String()).Msg("Logger configured")
}
