package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hyperfoil/horreum-auth/internal/auth/domain"
	httpapi "github.com/hyperfoil/horreum-auth/internal/auth/http"
	"github.com/hyperfoil/horreum-auth/internal/auth/metrics"
	"github.com/hyperfoil/horreum-auth/internal/auth/service"
	"github.com/hyperfoil/horreum-auth/internal/auth/store"
	"github.com/hyperfoil/horreum-auth/internal/auth/store/drivers/sqlite"
	"github.com/hyperfoil/horreum-auth/pkg/rolescope"
	"github.com/hyperfoil/horreum-auth/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the auth service application with all its
// dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db       store.Store
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	// Services
	apiKeyService *service.ApiKeyService
	augmentor     *service.RolesAugmentor
	resolver      *service.IdentityResolver
	sweeper       *service.Sweeper

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "horreum-auth",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
		registry: prometheus.NewRegistry(),
	}
	app.metrics = metrics.New(app.registry)

	// The archival grace period is process-wide.
	if cfg.ArchiveGraceDays > 0 {
		domain.ArchiveAfterDays = cfg.ArchiveGraceDays
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	app.initServices()
	app.initHTTP()

	if err := app.bootstrap(); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	if err := app.sweeper.Start(); err != nil {
		return fmt.Errorf("failed to start expiry sweeper: %w", err)
	}

	app.logger.Info("horreum auth service starting", "port", app.cfg.Port, "version", BuildVersion)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a shutdown signal or server error
	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down horreum auth service...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.sweeper.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("horreum auth service stopped")
	return nil
}

// initDatabase initializes the database and applies migrations.
func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initServices initializes all business logic services.
func (app *Application) initServices() {
	app.apiKeyService = service.NewApiKeyService(app.db, app.metrics)
	if app.cfg.ActiveDays > 0 {
		app.apiKeyService.ActiveDays = app.cfg.ActiveDays
	}

	app.augmentor = &service.RolesAugmentor{
		Directory: app.db.Directory(),
		Naming:    domain.SuffixNaming{Suffix: app.cfg.TeamSuffix},
	}
	app.resolver = &service.IdentityResolver{
		Keys:      app.apiKeyService,
		Augmentor: app.augmentor,
	}

	app.sweeper = &service.Sweeper{
		Store:    app.db,
		Notifier: &service.LogNotifier{Logger: app.logger},
		Logger:   app.logger,
		Metrics:  app.metrics,
		Schedule: app.cfg.SweepSchedule,
		Offsets:  app.cfg.NotifyOffsets,
	}
}

// initHTTP initializes the HTTP router and server.
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(BuildVersion, app.db, app.registry, app.logger)

	router.ApiKeyService = app.apiKeyService
	router.Resolver = app.resolver
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// bootstrap provisions the configured initial user so a fresh deployment has
// an account that can mint keys. Reruns are no-ops.
func (app *Application) bootstrap() error {
	if app.cfg.BootstrapUser == "" {
		return nil
	}

	ctx := rolescope.Push(context.Background(), domain.RoleSystem)
	dir := app.db.Directory()

	err := dir.CreateUser(ctx, app.cfg.BootstrapUser)
	switch {
	case errors.Is(err, store.ErrAlreadyExists):
		return nil
	case err != nil:
		return fmt.Errorf("failed to create bootstrap user: %w", err)
	}

	if err := dir.GrantRole(ctx, app.cfg.BootstrapUser, domain.RoleManager); err != nil {
		return fmt.Errorf("failed to grant bootstrap role: %w", err)
	}
	if app.cfg.BootstrapTeam != "" {
		m := domain.TeamMembership{Team: app.cfg.BootstrapTeam, Role: domain.RoleManager}
		if err := dir.AddTeamMembership(ctx, app.cfg.BootstrapUser, m); err != nil {
			return fmt.Errorf("failed to add bootstrap team membership: %w", err)
		}
	}

	app.logger.Info("bootstrap user provisioned", "username", app.cfg.BootstrapUser)
	return nil
}
