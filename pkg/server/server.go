// Package server provides a public API for embedding the satindex service.
package server

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/satindex/satindex/internal/api"
	"github.com/satindex/satindex/internal/app"
	"github.com/satindex/satindex/internal/config"
)

// EngineType specifies which compute engine to use.
type EngineType string

const (
	// EngineRemote delegates computation to the hosted compute service.
	EngineRemote EngineType = "remote"
	// EngineLocal computes over a scene archive file.
	EngineLocal EngineType = "local"
)

// Options configures the satindex server.
type Options struct {
	// BaseURL is the public-facing URL for self-referential links (required).
	// Example: "https://api.example.com/satindex" or "http://localhost:8080"
	BaseURL string

	// Engine specifies which compute engine to use.
	// Default: EngineRemote
	Engine EngineType

	// RemoteBaseURL is the compute service base URL.
	// Default: "https://compute.example.com"
	RemoteBaseURL string

	// RemoteTokenURL enables OAuth2 client credentials when set.
	RemoteTokenURL     string
	RemoteClientID     string
	RemoteClientSecret string
	RemoteScopes       []string

	// Timeout is the compute service request timeout.
	// Default: 120s
	Timeout time.Duration

	// ArchivePath is the scene archive of the local engine.
	ArchivePath string

	// MaxConcurrentYears bounds the per-year fan-out of a series.
	// Default: 4
	MaxConcurrentYears int

	// CompositeCacheTTL enables the composite memo when positive.
	CompositeCacheTTL time.Duration

	// MaxUploadSize bounds request bodies and shapefile uploads in bytes.
	// Default: 32 MiB
	MaxUploadSize int64

	// ProfilesDir is the path to extra dataset profile JSON files.
	// Default: "" (built-in datasets only)
	ProfilesDir string

	// Title is the API title.
	// Default: "satindex"
	Title string

	// Description is the API description.
	Description string

	// Logger is the slog logger to use.
	// Default: slog.Default()
	Logger *slog.Logger
}

// Server is a satindex server that can be embedded in another application.
type Server struct {
	router chi.Router
	close  func()
}

// New creates a new satindex server with the given options.
func New(opts Options) (*Server, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if opts.Engine == "" {
		opts.Engine = EngineRemote
	}
	if opts.RemoteBaseURL == "" {
		opts.RemoteBaseURL = "https://compute.example.com"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 120 * time.Second
	}
	if opts.MaxConcurrentYears == 0 {
		opts.MaxConcurrentYears = 4
	}
	if opts.MaxUploadSize == 0 {
		opts.MaxUploadSize = 32 << 20
	}
	if opts.Title == "" {
		opts.Title = "satindex"
	}
	if opts.Description == "" {
		opts.Description = "Satellite index composites and yearly series"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	cfg := &config.Config{
		Server: config.ServerConfig{
			MaxUploadSize:  opts.MaxUploadSize,
			RequestTimeout: opts.Timeout * 2,
		},
		API: config.APIConfig{
			BaseURL:     opts.BaseURL,
			Title:       opts.Title,
			Description: opts.Description,
			StacVersion: "1.0.0",
		},
		Engine: config.EngineConfig{
			Type: string(opts.Engine),
		},
		Remote: config.RemoteConfig{
			BaseURL:      opts.RemoteBaseURL,
			Timeout:      opts.Timeout,
			TokenURL:     opts.RemoteTokenURL,
			ClientID:     opts.RemoteClientID,
			ClientSecret: opts.RemoteClientSecret,
		},
		Local: config.LocalConfig{
			ArchivePath:     opts.ArchivePath,
			ImageTTL:        15 * time.Minute,
			CleanupInterval: time.Minute,
			Workers:         4,
			MaxPixels:       10_000_000,
		},
		Pipeline: config.PipelineConfig{
			MaxConcurrentYears: opts.MaxConcurrentYears,
			CompositeCacheTTL:  opts.CompositeCacheTTL,
		},
		Catalog: config.CatalogConfig{
			ProfilesDir: opts.ProfilesDir,
		},
	}
	cfg.Remote.Scopes = strings.Join(opts.RemoteScopes, " ")
	// memoized composites must not outlive their local images
	if opts.CompositeCacheTTL >= cfg.Local.ImageTTL {
		cfg.Local.ImageTTL = 2 * opts.CompositeCacheTTL
	}

	p, closePipeline, err := app.NewPipeline(cfg, opts.Logger)
	if err != nil {
		return nil, err
	}

	handlers := api.NewHandlers(cfg, p, opts.Logger)

	return &Server{
		router: api.NewRouter(handlers, opts.Logger),
		close:  closePipeline,
	}, nil
}

// Router returns the chi.Router for mounting in another application.
func (s *Server) Router() chi.Router {
	return s.router
}

// Close stops background goroutines (composite memo and image store cleanup).
func (s *Server) Close() {
	if s.close != nil {
		s.close()
	}
}
