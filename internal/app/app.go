// Package app wires configuration, logging, storage and metrics into the
// dependencies shared by the function binaries and the CLI.
package app

import (
	"context"
	"fmt"

	"github.com/newthinker/s3zip/internal/config"
	"github.com/newthinker/s3zip/internal/handler"
	"github.com/newthinker/s3zip/internal/logger"
	"github.com/newthinker/s3zip/internal/metrics"
	"github.com/newthinker/s3zip/internal/storage"
	"go.uber.org/zap"
)

// Options control bootstrap.
type Options struct {
	ConfigPath string
	Debug      bool
	// LocalRoot switches storage to the local filesystem rooted here.
	LocalRoot string
}

// App holds the wired dependencies of one process.
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Store   storage.ObjectStore
	Metrics *metrics.Registry
}

// New loads and validates configuration, then builds the logger, object
// store and metrics registry.
func New(ctx context.Context, opts Options) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if opts.Debug {
		cfg.Log.Level = "debug"
		cfg.Log.Development = true
	}
	if opts.LocalRoot != "" {
		cfg.Storage.Type = "localfs"
		cfg.Storage.Path = opts.LocalRoot
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	store, err := NewStore(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("creating storage: %w", err)
	}

	log.Debug("application initialized",
		zap.String("storage", cfg.Storage.Type),
		zap.Bool("metrics_push", cfg.Metrics.PushgatewayURL != ""),
	)

	return &App{
		Config:  cfg,
		Logger:  log,
		Store:   store,
		Metrics: metrics.NewRegistry(),
	}, nil
}

// NewStore creates the configured object store.
func NewStore(ctx context.Context, cfg config.StorageConfig) (storage.ObjectStore, error) {
	switch cfg.Type {
	case "localfs":
		return storage.NewLocalFS(cfg.Path)
	case "s3":
		return storage.NewS3(ctx, storage.S3Config{
			Region:       cfg.S3.Region,
			Endpoint:     cfg.S3.Endpoint,
			AccessKey:    cfg.S3.AccessKey,
			SecretKey:    cfg.S3.SecretKey,
			UsePathStyle: cfg.S3.UsePathStyle,
			PartSize:     cfg.S3.PartSize,
			Concurrency:  cfg.S3.Concurrency,
		})
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// Deps returns the handler dependencies.
func (a *App) Deps() handler.Deps {
	return handler.Deps{
		Config:  a.Config,
		Store:   a.Store,
		Logger:  a.Logger,
		Metrics: a.Metrics,
	}
}

// Close flushes the logger.
func (a *App) Close() {
	_ = a.Logger.Sync()
}
