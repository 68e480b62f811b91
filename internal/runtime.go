package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/starford/notegraph/internal/index"
	"github.com/starford/notegraph/internal/noteservice"
	"github.com/starford/notegraph/internal/storage"
)

// Runtime bundles the engine pieces every command needs.
type Runtime struct {
	Config  *Config
	Logger  *slog.Logger
	Store   *storage.FS
	DB      *index.DB
	Service *noteservice.Service
	Version string
}

// Open builds the logger, store, index and service described by the options.
// onSync, if non-nil, runs after every committed sync. Close releases the index.
func Open(onSync func(*index.SyncResult), opts ...Option) (*Runtime, error) {
	app := newApplication(opts...)
	if app.config == nil {
		return nil, errors.New("config is required")
	}
	cfg := app.config

	logger := slog.New(slog.NewJSONHandler(app.logOut, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	dbPath := cfg.DBPath()
	logger.Info("Configuration loaded",
		slog.String("version", app.version),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", dbPath),
		slog.String("sqlite_driver", index.DriverName),
		slog.String("log_level", cfg.App.LogLevel.String()))

	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}
	db, err := index.OpenWithLogger(dbPath, logger)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	svc, err := noteservice.NewService(store, db, logger, noteservice.Options{
		OrderFile:         cfg.Vault.OrderFile,
		Reserved:          []string{filepath.Base(dbPath)},
		CacheSize:         cfg.Search.CacheSize,
		DefaultLimit:      cfg.Search.DefaultLimit,
		WeakThreshold:     cfg.Graph.WeakThreshold,
		TagEdgeMaxMembers: cfg.Graph.TagEdgeMaxMembers,
		OnSync:            onSync,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init service: %w", err)
	}

	return &Runtime{
		Config:  cfg,
		Logger:  logger,
		Store:   store,
		DB:      db,
		Service: svc,
		Version: app.version,
	}, nil
}

// Close closes the index.
func (rt *Runtime) Close() error {
	return rt.DB.Close()
}
