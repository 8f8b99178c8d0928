// Package pipeline turns dataset, index, year and region selections into
// composites, index statistics and yearly series on a compute engine.
package pipeline

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/satindex/satindex/internal/catalog"
	"github.com/satindex/satindex/internal/engine"
	"github.com/satindex/satindex/internal/region"
	"github.com/satindex/satindex/internal/store"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultScale is the reduction scale in metres.
	DefaultScale = 30.0

	// DefaultMaxConcurrentYears bounds the per-year fan-out of a series.
	DefaultMaxConcurrentYears = 4
)

// Options configures a Pipeline.
type Options struct {
	MaxConcurrentYears int
	// CompositeTTL enables the composite memo when positive.
	CompositeTTL time.Duration
	MaxPixels    int
}

// Pipeline runs the composite, evaluate and series operations.
// It is safe for concurrent use.
type Pipeline struct {
	datasets *catalog.DatasetRegistry
	indices  *catalog.IndexRegistry
	engine   engine.Engine
	logger   *slog.Logger

	maxConcurrentYears int
	maxPixels          int

	memo   *store.Memory[*Composite]
	builds singleflight.Group
}

// New creates a pipeline over the given registries and engine.
func New(datasets *catalog.DatasetRegistry, indices *catalog.IndexRegistry, eng engine.Engine, opts Options) *Pipeline {
	if opts.MaxConcurrentYears <= 0 {
		opts.MaxConcurrentYears = DefaultMaxConcurrentYears
	}

	p := &Pipeline{
		datasets:           datasets,
		indices:            indices,
		engine:             eng,
		logger:             slog.Default(),
		maxConcurrentYears: opts.MaxConcurrentYears,
		maxPixels:          opts.MaxPixels,
	}
	if opts.CompositeTTL > 0 {
		p.memo = store.NewMemory[*Composite](opts.CompositeTTL, opts.CompositeTTL)
	}
	return p
}

// WithLogger sets a custom logger for the pipeline
func (p *Pipeline) WithLogger(logger *slog.Logger) *Pipeline {
	p.logger = logger
	return p
}

// Close stops the composite memo.
func (p *Pipeline) Close() {
	if p.memo != nil {
		p.memo.Stop()
	}
}

// Datasets returns the dataset registry.
func (p *Pipeline) Datasets() *catalog.DatasetRegistry {
	return p.datasets
}

// Indices returns the index registry.
func (p *Pipeline) Indices() *catalog.IndexRegistry {
	return p.indices
}

// Engine returns the compute engine.
func (p *Pipeline) Engine() engine.Engine {
	return p.engine
}

// YearWindow returns the acquisition window of a year:
// [year-01-01T00:00Z, (year+1)-01-01T00:00Z).
func YearWindow(year int) (start, end time.Time) {
	start = time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(1, 0, 0)
}

// resolve validates a dataset, year and region before any engine call.
func (p *Pipeline) resolve(dataset string, year int, r *region.Region) (*catalog.SatelliteProfile, error) {
	profile, err := p.datasets.Profile(dataset)
	if err != nil {
		return nil, err
	}
	if !profile.Years.Contains(year) {
		return nil, fmt.Errorf("%w: %s covers %d-%d, not %d",
			ErrInvalidRange, profile.Name, profile.Years.Min, profile.Years.Max, year)
	}
	if r == nil {
		return nil, region.ErrMissingRegion
	}
	return profile, nil
}
