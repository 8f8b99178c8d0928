// Package app wires configuration into a logger, a compute engine and a
// pipeline. It is shared by the server and the command line tool.
package app

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/satindex/satindex/internal/catalog"
	"github.com/satindex/satindex/internal/config"
	"github.com/satindex/satindex/internal/engine"
	"github.com/satindex/satindex/internal/engine/local"
	"github.com/satindex/satindex/internal/engine/remote"
	"github.com/satindex/satindex/internal/pipeline"
)

// SetupLogger creates the process logger from a level and format name.
func SetupLogger(w io.Writer, level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// NewEngine creates the compute engine selected by cfg.Engine.Type. The
// returned close function releases engine resources.
func NewEngine(cfg *config.Config, logger *slog.Logger) (engine.Engine, func(), error) {
	switch cfg.Engine.Type {
	case "local":
		archive, err := local.LoadArchive(cfg.Local.ArchivePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load scene archive: %w", err)
		}
		eng := local.New(archive, local.Options{
			ImageTTL:        cfg.Local.ImageTTL,
			CleanupInterval: cfg.Local.CleanupInterval,
			Workers:         cfg.Local.Workers,
			MaxPixels:       cfg.Local.MaxPixels,
		}).WithLogger(logger)

		logger.Info("using local engine",
			slog.String("archive", cfg.Local.ArchivePath),
			slog.Int("collections", len(archive.Collections)),
			slog.Int("workers", cfg.Local.Workers),
		)
		return eng, eng.Close, nil

	case "remote":
		client := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.Timeout, remote.Credentials{
			TokenURL:     cfg.Remote.TokenURL,
			ClientID:     cfg.Remote.ClientID,
			ClientSecret: cfg.Remote.ClientSecret,
			Scopes:       cfg.Remote.ScopeList(),
		}).WithLogger(logger)

		logger.Info("using remote engine",
			slog.String("base_url", cfg.Remote.BaseURL),
			slog.Bool("oauth2", cfg.Remote.TokenURL != ""),
		)
		return client, func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown engine type %q", cfg.Engine.Type)
	}
}

// NewDatasets returns the builtin datasets plus the profiles found in
// cfg.Catalog.ProfilesDir, if set.
func NewDatasets(cfg *config.Config, logger *slog.Logger) (*catalog.DatasetRegistry, error) {
	datasets := catalog.BuiltinDatasets()
	if cfg.Catalog.ProfilesDir == "" {
		return datasets, nil
	}

	n, err := config.LoadProfiles(cfg.Catalog.ProfilesDir, datasets)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset profiles: %w", err)
	}
	logger.Info("loaded dataset profiles",
		slog.String("dir", cfg.Catalog.ProfilesDir),
		slog.Int("count", n),
	)
	return datasets, nil
}

// pipelineOptions maps the configuration onto pipeline options. The pixel
// budget is a local engine setting; the remote service applies its own.
func pipelineOptions(cfg *config.Config) pipeline.Options {
	opts := pipeline.Options{
		MaxConcurrentYears: cfg.Pipeline.MaxConcurrentYears,
		CompositeTTL:       cfg.Pipeline.CompositeCacheTTL,
	}
	if cfg.Engine.Type == "local" {
		opts.MaxPixels = cfg.Local.MaxPixels
	}
	return opts
}

// NewPipeline builds the engine and the pipeline. The returned close
// function stops the pipeline and then the engine.
func NewPipeline(cfg *config.Config, logger *slog.Logger) (*pipeline.Pipeline, func(), error) {
	datasets, err := NewDatasets(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	eng, closeEngine, err := NewEngine(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	p := pipeline.New(datasets, catalog.BuiltinIndices(), eng, pipelineOptions(cfg)).WithLogger(logger)

	logger.Info("pipeline ready",
		slog.Int("datasets", datasets.Count()),
		slog.Int("max_concurrent_years", cfg.Pipeline.MaxConcurrentYears),
		slog.Duration("composite_cache_ttl", cfg.Pipeline.CompositeCacheTTL),
	)

	return p, func() {
		p.Close()
		closeEngine()
	}, nil
}
