package config

import (
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	t.Setenv("API_BASE_URL", "https://example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("expected default host 0.0.0.0, got %s", cfg.Server.Host)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}

	if cfg.Engine.Type != "remote" {
		t.Errorf("expected default engine remote, got %s", cfg.Engine.Type)
	}

	if cfg.Remote.TokenURL != "" {
		t.Errorf("expected authentication disabled by default, got token URL %s", cfg.Remote.TokenURL)
	}

	if cfg.Pipeline.MaxConcurrentYears != 4 {
		t.Errorf("expected 4 concurrent years, got %d", cfg.Pipeline.MaxConcurrentYears)
	}

	if cfg.Pipeline.CompositeCacheTTL != 0 {
		t.Errorf("expected composite memo disabled by default, got %s", cfg.Pipeline.CompositeCacheTTL)
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("expected default log level info, got %s", cfg.Logging.Level)
	}
}

func TestLoadMissingBaseURL(t *testing.T) {
	t.Setenv("API_BASE_URL", "")

	if _, err := Load(); err == nil {
		t.Error("expected error without API base URL")
	}
}

func TestLoadWithCustomValues(t *testing.T) {
	t.Setenv("API_BASE_URL", "https://index.example.com")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("SERVER_READ_TIMEOUT", "60s")
	t.Setenv("ENGINE_TYPE", "local")
	t.Setenv("LOCAL_ARCHIVE_PATH", "/data/scenes.msgpack")
	t.Setenv("LOCAL_WORKERS", "8")
	t.Setenv("REMOTE_SCOPES", "compute.read  compute.write")
	t.Setenv("PIPELINE_MAX_CONCURRENT_YEARS", "2")
	t.Setenv("PIPELINE_COMPOSITE_CACHE_TTL", "5m")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}

	if cfg.Server.ReadTimeout != 60*time.Second {
		t.Errorf("expected read timeout 60s, got %s", cfg.Server.ReadTimeout)
	}

	if cfg.Engine.Type != "local" {
		t.Errorf("expected local engine, got %s", cfg.Engine.Type)
	}

	if cfg.Local.ArchivePath != "/data/scenes.msgpack" || cfg.Local.Workers != 8 {
		t.Errorf("unexpected local config %+v", cfg.Local)
	}

	if scopes := cfg.Remote.ScopeList(); len(scopes) != 2 || scopes[1] != "compute.write" {
		t.Errorf("unexpected scopes %v", scopes)
	}

	if cfg.Pipeline.MaxConcurrentYears != 2 {
		t.Errorf("expected 2 concurrent years, got %d", cfg.Pipeline.MaxConcurrentYears)
	}

	if cfg.Pipeline.CompositeCacheTTL != 5*time.Minute {
		t.Errorf("expected composite cache TTL 5m, got %s", cfg.Pipeline.CompositeCacheTTL)
	}

	if cfg.Logging.Format != "text" {
		t.Errorf("expected log format text, got %s", cfg.Logging.Format)
	}
}

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxUploadSize:   1 << 20,
		},
		API: APIConfig{BaseURL: "https://index.example.com"},
		Engine: EngineConfig{
			Type: "remote",
		},
		Remote: RemoteConfig{
			BaseURL: "https://compute.example.com",
			Timeout: 30 * time.Second,
		},
		Local: LocalConfig{
			ArchivePath: "archive.msgpack",
			ImageTTL:    time.Minute,
			Workers:     2,
		},
		Pipeline: PipelineConfig{MaxConcurrentYears: 4},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantError bool
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:   "valid local engine",
			mutate: func(c *Config) { c.Engine.Type = "local" },
		},
		{
			name:      "invalid port",
			mutate:    func(c *Config) { c.Server.Port = 0 },
			wantError: true,
		},
		{
			name:      "zero read timeout",
			mutate:    func(c *Config) { c.Server.ReadTimeout = 0 },
			wantError: true,
		},
		{
			name:      "missing API base URL",
			mutate:    func(c *Config) { c.API.BaseURL = "" },
			wantError: true,
		},
		{
			name:      "unknown engine",
			mutate:    func(c *Config) { c.Engine.Type = "gee" },
			wantError: true,
		},
		{
			name:      "token URL without client ID",
			mutate:    func(c *Config) { c.Remote.TokenURL = "https://auth.example.com/token" },
			wantError: true,
		},
		{
			name: "local engine without workers",
			mutate: func(c *Config) {
				c.Engine.Type = "local"
				c.Local.Workers = 0
			},
			wantError: true,
		},
		{
			name: "local composite cache shorter than image TTL",
			mutate: func(c *Config) {
				c.Engine.Type = "local"
				c.Pipeline.CompositeCacheTTL = 30 * time.Second
			},
		},
		{
			name: "local composite cache as long as image TTL",
			mutate: func(c *Config) {
				c.Engine.Type = "local"
				c.Pipeline.CompositeCacheTTL = time.Minute
			},
			wantError: true,
		},
		{
			name:   "remote composite cache ignores image TTL",
			mutate: func(c *Config) { c.Pipeline.CompositeCacheTTL = time.Hour },
		},
		{
			name:      "no concurrent years",
			mutate:    func(c *Config) { c.Pipeline.MaxConcurrentYears = 0 },
			wantError: true,
		},
		{
			name:      "invalid log level",
			mutate:    func(c *Config) { c.Logging.Level = "verbose" },
			wantError: true,
		},
		{
			name:      "invalid log format",
			mutate:    func(c *Config) { c.Logging.Format = "xml" },
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantError {
				t.Errorf("Validate() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestServerConfig_Address(t *testing.T) {
	s := ServerConfig{Host: "127.0.0.1", Port: 9000}
	if got := s.Address(); got != "127.0.0.1:9000" {
		t.Errorf("Address() = %s, want 127.0.0.1:9000", got)
	}
}
