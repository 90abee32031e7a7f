package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aliuyar1234/ctlplane/internal/app"
	"github.com/aliuyar1234/ctlplane/internal/config"
	"github.com/aliuyar1234/ctlplane/internal/retention"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

const (
	settingsReloadSchedule = "*/5 * * * *"
	retentionSchedule      = "0 3 * * *"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	application, err := app.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	scheduler, err := setupCron(cfg, application)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to setup cron: %v\n", err)
		application.Close()
		os.Exit(1)
	}
	scheduler.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- application.Start()
	}()

	exitCode := 0
	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Server error")
			exitCode = 1
		}
		application.Close()
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := application.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Shutdown failed")
			exitCode = 1
		}
		cancel()
	}

	<-scheduler.Stop().Done()
	os.Exit(exitCode)
}

// setupCron schedules the settings warm-reload and the retention cleanup. Times are UTC.
func setupCron(cfg *config.Config, a *app.App) (*cron.Cron, error) {
	c := cron.New(cron.WithLocation(time.UTC))

	if _, err := c.AddFunc(settingsReloadSchedule, func() {
		defer recoverJob("settings reload")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := a.Settings.Reload(ctx); err != nil {
			log.Warn().Err(err).Msg("Settings reload failed; keeping cached values")
		}
	}); err != nil {
		return nil, fmt.Errorf("failed to schedule settings reload: %w", err)
	}

	if _, err := c.AddFunc(retentionSchedule, func() {
		defer recoverJob("retention")
		if err := retention.RunRetentionJob(context.Background(), a.Store, cfg.TokenRetentionDays); err != nil {
			log.Error().Err(err).Msg("Retention job failed")
		}
	}); err != nil {
		return nil, fmt.Errorf("failed to schedule retention job: %w", err)
	}

	return c, nil
}

func recoverJob(name string) {
	if r := recover(); r != nil {
		log.Error().Interface("panic", r).Str("job", name).Msg("Cron job panicked")
	}
}
