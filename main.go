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

	"github.com/abdusco/linkdash/internal/auth"
	"github.com/abdusco/linkdash/internal/config"
	"github.com/abdusco/linkdash/internal/db"
	"github.com/abdusco/linkdash/internal/handler"
	"github.com/abdusco/linkdash/internal/logger"
	"github.com/abdusco/linkdash/internal/repo"
	"github.com/abdusco/linkdash/internal/service"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if err := logger.Setup(cfg.Log.Level, cfg.Log.Debug); err != nil {
		log.Fatal().Err(err).Str("level", cfg.Log.Level).Msg("failed to set up logging")
	}

	log.Info().
		Str("address", cfg.Server.Address()).
		Str("base_url", cfg.Server.BaseURL).
		Bool("permanent_redirects", cfg.Redirect.Permanent).
		Bool("rate_limit", cfg.RateLimit.Enabled).
		Msg("current configuration")

	ctx := context.Background()
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("application error")
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	log.Info().
		Str("version", version).
		Str("build_time", buildTime).
		Msg("starting application")

	credentials, err := auth.NewCredentials(cfg.Auth.AdminCredentials)
	if err != nil {
		return fmt.Errorf("failed to parse admin credentials: %w", err)
	}

	loc, err := cfg.Server.Location()
	if err != nil {
		return err
	}

	database, err := db.Open(ctx, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	linksRepo := repo.NewLinksRepo(database)
	clicksRepo := repo.NewClicksRepo(database)
	usersRepo := repo.NewUsersRepo(database)

	authenticator := auth.NewAuthenticator(usersRepo, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.CookieSecure)
	if err := authenticator.EnsureUser(ctx, credentials); err != nil {
		return fmt.Errorf("failed to create bootstrap user: %w", err)
	}

	accountant := service.NewAccountant(linksRepo, clicksRepo)
	resolver := service.NewResolver(linksRepo, accountant, cfg.Redirect.AccountingTimeout)

	e := handler.NewServer(handler.Deps{
		DB:            database,
		Resolver:      resolver,
		Manager:       service.NewManager(linksRepo, cfg.Server.BaseURL),
		Stats:         service.NewAggregator(linksRepo, clicksRepo, loc),
		Authenticator: authenticator,
		Redirect: handler.RedirectConfig{
			Permanent:   cfg.Redirect.Permanent,
			ExpiredURL:  cfg.Redirect.ExpiredURL,
			NotFoundURL: cfg.Redirect.NotFoundURL,
		},
		RateLimit: handler.RateLimitConfig{
			Enabled: cfg.RateLimit.Enabled,
			RPS:     cfg.RateLimit.RedirectRPS,
			Burst:   cfg.RateLimit.RedirectBurst,
		},
	})
	defer e.Close()

	log.Info().Str("address", cfg.Server.Address()).Msg("server starting")

	// Run server and handle graceful shutdown
	runServer(ctx, e, cfg.Server.Address(), cfg.Server.ShutdownTimeout)

	drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.Redirect.AccountingTimeout)
	defer drainCancel()
	if err := resolver.Drain(drainCtx); err != nil {
		log.Warn().Err(err).Msg("click accounting still running at shutdown")
	}

	return nil
}

func runServer(ctx context.Context, e *echo.Echo, address string, shutdownTimeout time.Duration) {
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- e.Start(address)
	}()

	// Wait for context cancellation (Ctrl+C or SIGTERM)
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received, gracefully shutting down...")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during graceful shutdown")
	}

	if err := <-serverErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("server error")
	}

	log.Info().Msg("server stopped")
}
