package pipeline

import (
	"context"
	"fmt"
	"regexp"

	"github.com/satindex/satindex/internal/engine"
)

const (
	DefaultBrightness = 3.0
	DefaultGamma      = 1.4
)

// DefaultPalette is the low, mid and high color of index layers.
var DefaultPalette = [3]string{"#ff0000", "#ffff00", "#00ff00"}

var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// CompositeVis styles a composite as RGB of the first three slots, stretched
// from 0 to brightness*1000.
func (p *Pipeline) CompositeVis(dataset string, brightness, gamma float64) (engine.VisParams, error) {
	profile, err := p.datasets.Profile(dataset)
	if err != nil {
		return engine.VisParams{}, err
	}
	if brightness <= 0 {
		brightness = DefaultBrightness
	}
	if gamma <= 0 {
		gamma = DefaultGamma
	}
	return engine.VisParams{
		Bands: profile.VisualBands(),
		Min:   0,
		Max:   brightness * 1000,
		Gamma: gamma,
	}, nil
}

// IndexVis styles an index raster on a fixed [-1, 1] ramp through three
// colors. Empty colors fall back to DefaultPalette.
func IndexVis(palette [3]string) (engine.VisParams, error) {
	colors := make([]string, 3)
	for i, c := range palette {
		if c == "" {
			c = DefaultPalette[i]
		}
		if !hexColor.MatchString(c) {
			return engine.VisParams{}, fmt.Errorf("%w: color %q is not #rrggbb", ErrInvalidInput, c)
		}
		colors[i] = c
	}
	return engine.VisParams{Min: -1, Max: 1, Palette: colors}, nil
}

// CompositeLayer returns the map layer of a composite.
func (p *Pipeline) CompositeLayer(ctx context.Context, c *Composite, brightness, gamma float64) (*engine.Layer, error) {
	vis, err := p.CompositeVis(c.Dataset, brightness, gamma)
	if err != nil {
		return nil, err
	}
	layer, err := p.engine.MapLayer(ctx, c.Image, vis)
	if err != nil {
		return nil, fmt.Errorf("composite layer failed: %w", err)
	}
	return layer, nil
}

// IndexLayer returns the map layer of an index raster.
func (p *Pipeline) IndexLayer(ctx context.Context, ev *Evaluation, palette [3]string) (*engine.Layer, error) {
	vis, err := IndexVis(palette)
	if err != nil {
		return nil, err
	}
	layer, err := p.engine.MapLayer(ctx, ev.Raster, vis)
	if err != nil {
		return nil, fmt.Errorf("index layer failed: %w", err)
	}
	return layer, nil
}
