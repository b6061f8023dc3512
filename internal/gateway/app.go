package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/gatekeep/pkg/authsdk"
	"github.com/aussiebroadwan/gatekeep/pkg/httpx"
	"github.com/aussiebroadwan/gatekeep/pkg/slogx"
	"github.com/gin-gonic/gin"
)

// BuildVersion should be set at build time via ldflags.
const BuildVersion = "v0.1.0"

// Application is the gateway process.
type Application struct {
	cfg       Config
	logger    *slog.Logger
	startTime time.Time

	filter *AuthFilter
	proxy  *Proxy
	engine *gin.Engine
	server *http.Server
}

// New validates cfg and wires the gateway.
func New(cfg Config, logger *slog.Logger) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	proxy, err := NewProxy(cfg.APIPrefix, cfg.Routes)
	if err != nil {
		return nil, err
	}

	app := &Application{
		cfg:       cfg,
		logger:    logger,
		startTime: time.Now(),
		filter: &AuthFilter{
			Public:       PublicPaths{APIPrefix: cfg.APIPrefix, Suffixes: cfg.PublicPaths},
			Introspector: authsdk.NewClientWithTimeout(cfg.Authority.URL, cfg.Authority.IntrospectTimeout),
			Timeout:      cfg.Authority.IntrospectTimeout,
		},
		proxy: proxy,
	}

	app.engine = app.newEngine()
	app.server = &http.Server{
		Addr:              cfg.Listen,
		Handler:           app.engine,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

func (app *Application) newEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(slogx.GinMiddleware(app.logger))

	// The gateway's own health check never needs a token.
	r.GET("/livez", func(c *gin.Context) {
		httpx.NoCache(c.Writer)
		c.JSON(http.StatusOK, authsdk.HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(app.startTime).String(),
			Version: BuildVersion,
		})
	})

	// Everything else is filtered and then proxied.
	r.NoRoute(app.filter.Handle, app.proxy.Handle)
	return r
}

// Handler returns the gateway's HTTP handler.
func (app *Application) Handler() http.Handler { return app.engine }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (app *Application) Run(ctx context.Context) error {
	serverErrors := make(chan error, 1)
	go func() {
		app.logger.Info("gateway listening",
			"addr", app.cfg.Listen,
			"authority", app.cfg.Authority.URL,
			"routes", len(app.cfg.Routes),
		)
		serverErrors <- app.server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	app.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(shutdownCtx); err != nil {
		app.logger.Error("http shutdown failed", "err", err)
		return err
	}

	app.logger.Info("gateway stopped")
	return nil
}
