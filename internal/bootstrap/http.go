package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/swachh/portal-core/config"
)

// NewHTTPServer builds the portal's HTTP server without starting it.
func NewHTTPServer(cfg config.HTTPConfig, handler http.Handler) *http.Server {
	// Guard against empty addr to avoid listening on Go default
	addr := cfg.Addr
	if addr == "" {
		addr = ":8080"
	}
	readHeader := cfg.ReadHeaderTimeout
	if readHeader <= 0 {
		readHeader = 10 * time.Second
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeader,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// ShutdownConfig contains dependencies for HTTP server shutdown.
type ShutdownConfig struct {
	Server  *http.Server
	Timeout time.Duration
	Logger  *slog.Logger
}

// ShutdownHTTPServer gracefully shuts down the HTTP server.
func ShutdownHTTPServer(cfg ShutdownConfig) error {
	if cfg.Server == nil {
		return nil
	}
	if cfg.Logger != nil {
		cfg.Logger.Info("shutting down HTTP server")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := cfg.Server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if cfg.Logger != nil {
		cfg.Logger.Info("HTTP server stopped")
	}
	return nil
}

// RunConfig contains everything Run needs.
type RunConfig struct {
	Config *config.AppConfig
	Portal *Portal
	Server *http.Server // optional; built from Config.HTTP when nil
	Logger *slog.Logger
}

// Run serves the portal until ctx is done or a component fails. The HTTP
// server drains before portal clients are closed.
func Run(ctx context.Context, cfg RunConfig) error {
	if cfg.Config == nil || cfg.Portal == nil {
		return errors.New("run requires config and portal")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	server := cfg.Server
	if server == nil {
		server = NewHTTPServer(cfg.Config.HTTP, cfg.Portal.Handler)
	}

	// Clients outlive the request context so in-flight requests can finish.
	clientsCtx, stopClients := context.WithCancel(context.WithoutCancel(ctx))
	defer stopClients()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return cfg.Portal.Clients.Run(clientsCtx)
	})

	if cfg.Portal.Bus != nil {
		g.Go(func() error {
			return cfg.Portal.Bus.Run(gctx)
		})
	}

	g.Go(func() error {
		logger.Info("starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		defer stopClients()
		return ShutdownHTTPServer(ShutdownConfig{
			Server:  server,
			Timeout: cfg.Config.HTTP.ShutdownTimeout,
			Logger:  logger,
		})
	})

	return g.Wait()
}
