package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/codex-k8s/orion-orchestrator/internal/http/health"
)

const (
	defaultReadHeaderTimeout = 15 * time.Second
	defaultIdleTimeout       = 60 * time.Second
	defaultShutdownTimeout   = 10 * time.Second
)

// App controls the HTTP server lifecycle.
type App struct {
	baseCtx         context.Context
	server          *http.Server
	health          *health.Handler
	logger          *slog.Logger
	shutdownTimeout time.Duration
}

// Options configures the HTTP server.
type Options struct {
	// Listen is the TCP address to serve on.
	Listen string
	// Routes maps URL patterns to handlers.
	Routes map[string]http.Handler
	// Logger is used for lifecycle logs.
	Logger *slog.Logger
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration
	// OnShutdown runs after the listener stops accepting requests.
	OnShutdown []func()
}

// New initializes the HTTP server with health endpoints. WebSocket and
// streaming MCP connections are long-lived, so no write timeout is set.
func New(baseCtx context.Context, opts Options) (*App, error) {
	if baseCtx == nil {
		return nil, fmt.Errorf("base context is nil")
	}
	if len(opts.Routes) == 0 {
		return nil, fmt.Errorf("no routes configured")
	}

	healthHandler := health.New()
	mux := http.NewServeMux()
	healthHandler.Register(mux)
	for path, route := range opts.Routes {
		if strings.TrimSpace(path) == "" || route == nil {
			continue
		}
		mux.Handle(path, route)
	}

	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	srv := &http.Server{
		Addr:              opts.Listen,
		Handler:           mux,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		IdleTimeout:       defaultIdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	for _, fn := range opts.OnShutdown {
		if fn != nil {
			srv.RegisterOnShutdown(fn)
		}
	}

	return &App{
		baseCtx:         baseCtx,
		server:          srv,
		health:          healthHandler,
		logger:          logger,
		shutdownTimeout: shutdownTimeout,
	}, nil
}

// Handler returns the root handler, including health endpoints.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// Run listens on the configured address and blocks until shutdown.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.server.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve accepts connections on ln and blocks until ctx is done or the
// server fails.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		a.health.SetReady()
		a.logger.Info("http server started", "addr", ln.Addr().String())
		errCh <- a.server.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown requested")
		return a.shutdown()
	case err := <-errCh:
		a.health.SetNotReady()
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		a.logger.Error("http server error", "error", err)
		return err
	}
}

func (a *App) shutdown() error {
	a.health.SetNotReady()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(a.baseCtx), a.shutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
