package app

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/satindex/satindex/internal/catalog"
	"github.com/satindex/satindex/internal/config"
	"github.com/satindex/satindex/internal/engine/local"
	"github.com/satindex/satindex/internal/region"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func localConfig(t *testing.T) *config.Config {
	t.Helper()

	archive, err := local.GenerateArchive(catalog.BuiltinDatasets(), local.SyntheticOptions{
		Bound:         orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}},
		PixelSize:     0.25,
		Years:         catalog.YearRange{Min: 2020, Max: 2021},
		ScenesPerYear: 2,
		Seed:          3,
	})
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "archive.msgpack")
	if err := local.SaveArchive(path, archive); err != nil {
		t.Fatal(err)
	}

	return &config.Config{
		Engine: config.EngineConfig{Type: "local"},
		Local: config.LocalConfig{
			ArchivePath:     path,
			ImageTTL:        time.Minute,
			CleanupInterval: time.Minute,
			Workers:         2,
		},
		Pipeline: config.PipelineConfig{MaxConcurrentYears: 2},
	}
}

func TestSetupLogger(t *testing.T) {
	tests := []struct {
		level, format string
		wantDebug     bool
		wantPrefix    string
	}{
		{"debug", "json", true, "{"},
		{"info", "text", false, "time="},
		{"bogus", "text", false, "time="},
	}

	for _, tt := range tests {
		t.Run(tt.level+"/"+tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			logger := SetupLogger(&buf, tt.level, tt.format)

			if got := logger.Enabled(context.Background(), slog.LevelDebug); got != tt.wantDebug {
				t.Errorf("debug enabled = %v, want %v", got, tt.wantDebug)
			}
			logger.Info("hello")
			if !strings.HasPrefix(buf.String(), tt.wantPrefix) {
				t.Errorf("output %q does not start with %q", buf.String(), tt.wantPrefix)
			}
		})
	}
}

func TestNewPipeline_Local(t *testing.T) {
	cfg := localConfig(t)

	p, closeFn, err := NewPipeline(cfg, discard())
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}
	defer closeFn()

	if p.Engine().Name() != "local" {
		t.Fatalf("engine = %q, want local", p.Engine().Name())
	}

	r, _ := region.NewPoint(0.5, 0.5)
	series, err := p.Series(context.Background(), "Landsat-8", "NDVI", 2020, 2021, r, nil)
	if err != nil {
		t.Fatalf("Series failed: %v", err)
	}
	if len(series.Years) != 2 {
		t.Errorf("expected 2 years, got %d", len(series.Years))
	}
}

func TestPipelineOptions_MaxPixels(t *testing.T) {
	tests := []struct {
		engine string
		want   int
	}{
		{engine: "local", want: 5000},
		{engine: "remote", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.engine, func(t *testing.T) {
			cfg := &config.Config{
				Engine:   config.EngineConfig{Type: tt.engine},
				Local:    config.LocalConfig{MaxPixels: 5000},
				Pipeline: config.PipelineConfig{MaxConcurrentYears: 3, CompositeCacheTTL: time.Minute},
			}
			opts := pipelineOptions(cfg)
			if opts.MaxPixels != tt.want {
				t.Errorf("MaxPixels = %d, want %d", opts.MaxPixels, tt.want)
			}
			if opts.MaxConcurrentYears != 3 || opts.CompositeTTL != time.Minute {
				t.Errorf("unexpected options %+v", opts)
			}
		})
	}
}

func TestNewEngine_Remote(t *testing.T) {
	cfg := &config.Config{
		Engine: config.EngineConfig{Type: "remote"},
		Remote: config.RemoteConfig{BaseURL: "http://127.0.0.1:1", Timeout: time.Second},
	}

	eng, closeFn, err := NewEngine(cfg, discard())
	if err != nil {
		t.Fatal(err)
	}
	defer closeFn()

	if eng.Name() != "remote" {
		t.Errorf("engine = %q, want remote", eng.Name())
	}
}

func TestNewEngine_Errors(t *testing.T) {
	cfg := localConfig(t)
	cfg.Local.ArchivePath = filepath.Join(t.TempDir(), "missing.msgpack")
	if _, _, err := NewEngine(cfg, discard()); err == nil {
		t.Error("expected an error for a missing archive")
	}

	cfg.Engine.Type = "quantum"
	if _, _, err := NewEngine(cfg, discard()); err == nil {
		t.Error("expected an error for an unknown engine type")
	}
}

func TestNewDatasets_ProfilesDir(t *testing.T) {
	cfg := localConfig(t)
	cfg.Catalog.ProfilesDir = t.TempDir()

	// an empty directory is a configuration error
	if _, err := NewDatasets(cfg, discard()); err == nil {
		t.Error("expected an error for a profiles directory without profiles")
	}

	cfg.Catalog.ProfilesDir = ""
	datasets, err := NewDatasets(cfg, discard())
	if err != nil {
		t.Fatal(err)
	}
	if datasets.Count() != 5 {
		t.Errorf("expected 5 builtin datasets, got %d", datasets.Count())
	}
}
