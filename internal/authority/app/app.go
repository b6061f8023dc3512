package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/aussiebroadwan/gatekeep/internal/authority/http"
	"github.com/aussiebroadwan/gatekeep/internal/authority/revocation"
	"github.com/aussiebroadwan/gatekeep/internal/authority/service"
	"github.com/aussiebroadwan/gatekeep/internal/authority/store"
	"github.com/aussiebroadwan/gatekeep/internal/authority/store/drivers/postgres"
	"github.com/aussiebroadwan/gatekeep/internal/authority/store/drivers/sqlite"
	"github.com/aussiebroadwan/gatekeep/pkg/authsdk"
	"github.com/aussiebroadwan/gatekeep/pkg/cryptox"
	"github.com/aussiebroadwan/gatekeep/pkg/jwtx"
	"github.com/aussiebroadwan/gatekeep/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the authority with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db          store.Store
	revocations revocation.Store
	closers     []io.Closer
	codec       *jwtx.Codec
	hasher      *cryptox.PasswordHasher

	// Services
	authService         *service.AuthService
	userService         *service.UserService
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "gatekeep-authority",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	ctx := context.Background()

	if err := app.initDatabase(ctx); err != nil {
		return nil, err
	}

	if err := app.initRevocation(ctx); err != nil {
		_ = app.closeAll()
		return nil, err
	}

	if err := app.initCrypto(); err != nil {
		_ = app.closeAll()
		return nil, err
	}

	app.initServices()

	if _, err := app.userService.SeedAdmin(slogx.WithContext(ctx, app.logger), service.AdminSeed{
		Username:     cfg.AdminUsername,
		Password:     cfg.AdminPassword,
		PasswordFile: cfg.AdminPasswordFile,
	}); err != nil {
		_ = app.closeAll()
		return nil, err
	}

	app.initHTTP()

	return app, nil
}

// Handler returns the authority's HTTP handler.
func (app *Application) Handler() http.Handler { return app.router }

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	// Start housekeeping service
	app.housekeepingService.Start()

	app.logger.Info("authority starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"database", app.cfg.DatabaseDriver,
		"revocation", app.cfg.RevocationBackend,
	)

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

		// Perform graceful shutdown
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down authority...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	// Shutdown the HTTP server
	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	// Stop the housekeeping service
	app.housekeepingService.Stop()

	if err := app.closeAll(); err != nil {
		app.logger.Error("error closing resources", "error", err)
		return err
	}

	app.logger.Info("authority stopped")
	return nil
}

// Close releases the database and revocation backends without touching the
// HTTP server. It is for callers that serve Handler themselves.
func (app *Application) Close() error { return app.closeAll() }

// closeAll releases resources in reverse order of acquisition.
func (app *Application) closeAll() error {
	var errs []error
	for i := len(app.closers) - 1; i >= 0; i-- {
		errs = append(errs, app.closers[i].Close())
	}
	app.closers = nil
	return errors.Join(errs...)
}

// initDatabase opens the configured user store and applies migrations
func (app *Application) initDatabase(ctx context.Context) error {
	var (
		db  store.Store
		err error
	)

	switch app.cfg.DatabaseDriver {
	case DriverPostgres:
		db, err = postgres.NewStore(ctx, app.cfg.DatabaseURL, postgres.PoolConfig{})
	default:
		db, err = sqlite.NewStore(fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", app.cfg.DatabaseFile))
	}
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db
	app.closers = append(app.closers, db)

	if err := db.ApplyMigrations(); err != nil {
		_ = app.closeAll()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully", "driver", app.cfg.DatabaseDriver)
	return nil
}

// initRevocation selects where invalidated token ids are recorded
func (app *Application) initRevocation(ctx context.Context) error {
	switch app.cfg.RevocationBackend {
	case RevocationRedis:
		client, err := revocation.OpenRedis(ctx, app.cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to connect revocation store: %w", err)
		}
		app.closers = append(app.closers, client)
		app.revocations = revocation.NewRedis(client, "")
	case RevocationMemory:
		app.logger.Warn("revocation store is in-memory, revoked tokens are forgotten on restart and not shared between replicas")
		app.revocations = revocation.NewMemory()
	default:
		app.revocations = store.NewRevocationAdapter(app.db)
	}
	return nil
}

func (app *Application) initCrypto() error {
	codec, err := InitCodec(app.cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize token codec: %w", err)
	}
	app.codec = codec

	hasher, err := InitPasswordHasher(app.cfg, app.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize password hasher: %w", err)
	}
	app.hasher = hasher
	return nil
}

// initServices initializes all business logic services
func (app *Application) initServices() {
	app.authService = &service.AuthService{
		Store:       app.db,
		Revocations: app.revocations,
		Codec:       app.codec,
		Hasher:      app.hasher,
		AccessTTL:   app.cfg.ValidDuration,

		RequireActivation: app.cfg.RequireActivation,
	}

	// Codes are dropped until a delivery channel is configured.
	app.userService = &service.UserService{
		Store:  app.db,
		Hasher: app.hasher,
		Codes:  service.DiscardCodeSender{},
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.revocations,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	decoder := authsdk.NewDecoder(service.LocalIntrospector{Auth: app.authService}, app.codec)

	router := httpapi.NewRouter(
		decoder,
		BuildVersion,
		app.db,
		app.revocations,
		app.logger,
	)

	// Wire services to router
	router.AuthService = app.authService
	router.UserService = app.userService
	router.ApplyRoutes()

	app.router = router

	// Initialize HTTP server
	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
