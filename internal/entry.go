// Package internal provides the main application initialization and runtime logic.
package internal

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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/notegraph/internal/api"
	"github.com/starford/notegraph/internal/index"
	"github.com/starford/notegraph/internal/mcpserver"
	"github.com/starford/notegraph/internal/sse"
	"github.com/starford/notegraph/internal/watcher"
)

// Run starts the HTTP server, the file watcher and an initial sync, and
// blocks until a signal arrives or ctx is cancelled.
func Run(ctx context.Context, opts ...Option) error {
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	rt, err := Open(func(res *index.SyncResult) {
		broker.PublishSync(sse.SyncEvent{
			RunID:   res.RunID,
			Added:   res.Added,
			Updated: res.Updated,
			Deleted: res.Deleted,
		})
	}, opts...)
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg, logger, svc := rt.Config, rt.Logger, rt.Service

	if _, err := svc.Sync(ctx); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := rt.DB.NoteCount(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Watch.Enabled {
		w := watcher.New(cfg.Vault.Path, logger, func(ctx context.Context) {
			if _, err := svc.SyncQueued(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("watch sync failed", slog.String("error", err.Error()))
			}
		},
			watcher.WithDebounce(cfg.Watch.Debounce),
			watcher.WithOrderFile(cfg.Vault.OrderFile),
			watcher.WithIgnore(cfg.DBPath()),
		)
		g.Go(func() error {
			return w.Run(gCtx)
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		// A non-nil return cancels gCtx, which stops the watcher.
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the errgroup context once a signal has been handled.
var errShutdown = errors.New("shutdown")

// ServeMCP syncs the index and serves the MCP tools on stdin/stdout.
func ServeMCP(ctx context.Context, opts ...Option) error {
	rt, err := Open(nil, append([]Option{WithLogOutput(os.Stderr)}, opts...)...)
	if err != nil {
		return err
	}
	defer rt.Close()

	if _, err := rt.Service.Sync(ctx); err != nil {
		rt.Logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	srv := mcpserver.New(rt.Service, rt.Version)
	rt.Logger.Info("MCP server listening on stdio")
	return srv.ServeStdio()
}
