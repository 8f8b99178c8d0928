package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/satindex/satindex/internal/catalog"
	"github.com/satindex/satindex/internal/engine"
	"github.com/satindex/satindex/internal/region"
)

// Status tells data apart from an empty result.
type Status string

const (
	StatusData  Status = "data"
	StatusEmpty Status = "empty"
)

// Evaluation is an index raster with its statistics over the region.
type Evaluation struct {
	Dataset   string            `json:"dataset"`
	Index     string            `json:"index"`
	Year      int               `json:"year"`
	Composite *Composite        `json:"composite"`
	Raster    engine.ImageRef   `json:"raster"`
	Stats     engine.ZonalStats `json:"stats"`
}

// Status is StatusEmpty when no valid pixel contributed to the statistics.
func (e *Evaluation) Status() Status {
	if e.Stats.Empty() {
		return StatusEmpty
	}
	return StatusData
}

// Evaluate computes index over the composite of dataset for year and
// reduces it over r. Roles bind to the profile slots and L is DefaultL.
func (p *Pipeline) Evaluate(ctx context.Context, dataset, index string, year int, r *region.Region, clip bool) (*Evaluation, error) {
	profile, err := p.datasets.Profile(dataset)
	if err != nil {
		return nil, err
	}
	def, err := p.indices.Index(index)
	if err != nil {
		return nil, err
	}
	if _, err := p.resolve(dataset, year, r); err != nil {
		return nil, err
	}
	return p.evaluate(ctx, profile, def, year, r, clip)
}

func (p *Pipeline) evaluate(ctx context.Context, profile *catalog.SatelliteProfile, def *catalog.IndexDefinition, year int, r *region.Region, clip bool) (*Evaluation, error) {
	comp, cached, err := p.composite(ctx, profile, year, r, clip)
	if err != nil {
		return nil, err
	}

	raster, err := p.indexRaster(ctx, profile, def, comp)
	if err != nil && cached && errors.Is(err, engine.ErrEngine) {
		// the engine may have evicted the memoized image; rebuild once
		p.logger.WarnContext(ctx, "memoized composite rejected by engine, rebuilding",
			slog.String("dataset", profile.Name),
			slog.Int("year", year),
			slog.String("image", comp.Image.ID),
			slog.String("error", err.Error()),
		)
		p.forget(profile, year, r, clip)
		comp, _, err = p.composite(ctx, profile, year, r, clip)
		if err != nil {
			return nil, err
		}
		raster, err = p.indexRaster(ctx, profile, def, comp)
	}
	if err != nil {
		return nil, err
	}

	stats, err := p.engine.ReduceRegion(ctx, engine.ReduceRequest{
		Image:      *raster,
		Band:       def.Name,
		Region:     r,
		Scale:      DefaultScale,
		BestEffort: true,
		MaxPixels:  p.maxPixels,
	})
	if err != nil {
		return nil, fmt.Errorf("zonal statistics failed: %w", err)
	}

	ev := &Evaluation{
		Dataset:   profile.Name,
		Index:     def.Name,
		Year:      year,
		Composite: comp,
		Raster:    *raster,
		Stats:     *stats,
	}

	p.logger.DebugContext(ctx, "index evaluated",
		slog.String("dataset", profile.Name),
		slog.String("index", def.Name),
		slog.Int("year", year),
		slog.String("status", string(ev.Status())),
	)
	return ev, nil
}

func (p *Pipeline) indexRaster(ctx context.Context, profile *catalog.SatelliteProfile, def *catalog.IndexDefinition, comp *Composite) (*engine.ImageRef, error) {
	raster, err := p.engine.Expression(ctx, engine.ExpressionRequest{
		Image:      comp.Image,
		Expression: def.Formula,
		Bindings:   profile.Bindings(),
		Constants:  map[string]float64{catalog.ConstantL: catalog.DefaultL},
		Name:       def.Name,
	})
	if err != nil {
		return nil, fmt.Errorf("index evaluation failed: %w", err)
	}
	return raster, nil
}
