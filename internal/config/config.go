// Package config provides configuration management for the satindex service.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds the complete application configuration loaded from environment variables.
type Config struct {
	Server   ServerConfig   `envPrefix:"SERVER_"`
	API      APIConfig      `envPrefix:"API_"`
	Engine   EngineConfig   `envPrefix:"ENGINE_"`
	Remote   RemoteConfig   `envPrefix:"REMOTE_"`
	Local    LocalConfig    `envPrefix:"LOCAL_"`
	Pipeline PipelineConfig `envPrefix:"PIPELINE_"`
	Catalog  CatalogConfig  `envPrefix:"CATALOG_"`
	Logging  LoggingConfig  `envPrefix:"LOG_"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host            string        `env:"HOST" envDefault:"0.0.0.0"`
	Port            int           `env:"PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"300s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	// RequestTimeout bounds composite, evaluate and series requests.
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"240s"`
	// MaxUploadSize bounds shapefile uploads in bytes.
	MaxUploadSize int64 `env:"MAX_UPLOAD_SIZE" envDefault:"33554432"`
}

// APIConfig contains the public metadata of the API.
type APIConfig struct {
	BaseURL     string `env:"BASE_URL"` // Public-facing URL (required)
	Title       string `env:"TITLE" envDefault:"satindex"`
	Description string `env:"DESCRIPTION" envDefault:"Satellite index composites and yearly series"`
	StacVersion string `env:"STAC_VERSION" envDefault:"1.0.0"`
}

// EngineConfig selects the compute engine.
type EngineConfig struct {
	// Type specifies which engine to use: "remote" or "local"
	Type string `env:"TYPE" envDefault:"remote"`
}

// RemoteConfig contains compute service client configuration.
// Authentication is enabled when TokenURL is set.
type RemoteConfig struct {
	BaseURL      string        `env:"BASE_URL" envDefault:"https://compute.example.com"`
	Timeout      time.Duration `env:"TIMEOUT" envDefault:"120s"`
	TokenURL     string        `env:"TOKEN_URL" envDefault:""`
	ClientID     string        `env:"CLIENT_ID" envDefault:""`
	ClientSecret string        `env:"CLIENT_SECRET" envDefault:""`
	Scopes       string        `env:"SCOPES" envDefault:""` // space separated
}

// ScopeList splits Scopes on whitespace.
func (r *RemoteConfig) ScopeList() []string {
	return strings.Fields(r.Scopes)
}

// LocalConfig contains local engine configuration.
type LocalConfig struct {
	ArchivePath     string        `env:"ARCHIVE_PATH" envDefault:"data/archive.msgpack"`
	ImageTTL        time.Duration `env:"IMAGE_TTL" envDefault:"15m"`
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"1m"`
	Workers         int           `env:"WORKERS" envDefault:"4"`
	MaxPixels       int           `env:"MAX_PIXELS" envDefault:"10000000"`
}

// PipelineConfig contains pipeline limits.
type PipelineConfig struct {
	MaxConcurrentYears int `env:"MAX_CONCURRENT_YEARS" envDefault:"4"`
	// CompositeCacheTTL enables the composite memo when positive.
	CompositeCacheTTL time.Duration `env:"COMPOSITE_CACHE_TTL" envDefault:"0s"`
}

// CatalogConfig points at optional extra dataset profiles.
type CatalogConfig struct {
	ProfilesDir string `env:"PROFILES_DIR" envDefault:""`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

// Load parses configuration from environment variables.
// It returns an error if required fields are missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}

	opts := env.Options{
		RequiredIfNoDef: true,
	}

	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive, got %s", c.Server.ReadTimeout)
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive, got %s", c.Server.WriteTimeout)
	}

	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server shutdown timeout must be positive, got %s", c.Server.ShutdownTimeout)
	}

	if c.Server.MaxUploadSize <= 0 {
		return fmt.Errorf("server max upload size must be positive, got %d", c.Server.MaxUploadSize)
	}

	if c.API.BaseURL == "" {
		return fmt.Errorf("API base URL is required")
	}

	switch c.Engine.Type {
	case "remote":
		if c.Remote.BaseURL == "" {
			return fmt.Errorf("remote base URL is required")
		}
		if c.Remote.Timeout <= 0 {
			return fmt.Errorf("remote timeout must be positive, got %s", c.Remote.Timeout)
		}
		if c.Remote.TokenURL != "" && c.Remote.ClientID == "" {
			return fmt.Errorf("remote client ID is required when a token URL is set")
		}
	case "local":
		if c.Local.ArchivePath == "" {
			return fmt.Errorf("local archive path is required")
		}
		if c.Local.ImageTTL <= 0 {
			return fmt.Errorf("local image TTL must be positive, got %s", c.Local.ImageTTL)
		}
		if c.Local.Workers < 1 {
			return fmt.Errorf("local workers must be at least 1, got %d", c.Local.Workers)
		}
		if c.Local.MaxPixels < 0 {
			return fmt.Errorf("local max pixels must not be negative, got %d", c.Local.MaxPixels)
		}
	default:
		return fmt.Errorf("engine type must be 'remote' or 'local', got %q", c.Engine.Type)
	}

	if c.Pipeline.MaxConcurrentYears < 1 {
		return fmt.Errorf("pipeline max concurrent years must be at least 1, got %d", c.Pipeline.MaxConcurrentYears)
	}

	if c.Pipeline.CompositeCacheTTL < 0 {
		return fmt.Errorf("pipeline composite cache TTL must not be negative, got %s", c.Pipeline.CompositeCacheTTL)
	}

	// memoized composites hold local image handles
	if c.Engine.Type == "local" && c.Pipeline.CompositeCacheTTL > 0 && c.Pipeline.CompositeCacheTTL >= c.Local.ImageTTL {
		return fmt.Errorf("pipeline composite cache TTL (%s) must be shorter than local image TTL (%s)",
			c.Pipeline.CompositeCacheTTL, c.Local.ImageTTL)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format %q, must be one of: json, text", c.Logging.Format)
	}

	return nil
}

// Address returns the server listen address in the format "host:port".
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
