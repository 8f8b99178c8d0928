package local

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/paulmach/orb"
	"github.com/satindex/satindex/internal/catalog"
)

// SyntheticOptions controls GenerateArchive.
type SyntheticOptions struct {
	Bound         orb.Bound
	PixelSize     float64 // degrees
	Years         catalog.YearRange
	ScenesPerYear int
	// CloudFraction is the share of pixels flagged cloudy in the quality band.
	CloudFraction float64
	Seed          int64
}

// reflectance per role of a vegetated surface
var baseReflectance = map[catalog.Role]float64{
	catalog.RoleRed:     0.06,
	catalog.RoleGreen:   0.09,
	catalog.RoleBlue:    0.04,
	catalog.RoleNIR:     0.38,
	catalog.RoleRedEdge: 0.18,
}

// GenerateArchive builds a deterministic archive for every profile of
// registry, restricted to the years each profile supports. It is used for
// demos and tests of the local engine.
func GenerateArchive(registry *catalog.DatasetRegistry, opts SyntheticOptions) (*Archive, error) {
	if opts.PixelSize <= 0 {
		return nil, fmt.Errorf("pixel size must be positive")
	}
	if opts.ScenesPerYear <= 0 {
		opts.ScenesPerYear = 4
	}

	width := int(math.Ceil((opts.Bound.Max.Lon() - opts.Bound.Min.Lon()) / opts.PixelSize))
	height := int(math.Ceil((opts.Bound.Max.Lat() - opts.Bound.Min.Lat()) / opts.PixelSize))
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("bound %v is empty", opts.Bound)
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	archive := &Archive{}

	for _, p := range registry.All() {
		c := &Collection{
			ID: p.CollectionID,
			Grid: Grid{
				West:       opts.Bound.Min.Lon(),
				North:      opts.Bound.Max.Lat(),
				PixelSize:  opts.PixelSize,
				Width:      width,
				Height:     height,
				Resolution: nominalResolution(p),
			},
		}

		for year := max(opts.Years.Min, p.Years.Min); year <= min(opts.Years.Max, p.Years.Max); year++ {
			for n := 0; n < opts.ScenesPerYear; n++ {
				c.Scenes = append(c.Scenes, syntheticScene(rng, p, c.Grid, year, n, opts))
			}
		}
		archive.Collections = append(archive.Collections, c)
	}
	return archive, nil
}

func nominalResolution(p *catalog.SatelliteProfile) float64 {
	switch p.CollectionID {
	case "COPERNICUS/S2_SR_HARMONIZED":
		return 10
	case "MODIS/006/MOD09GA":
		return 500
	default:
		return 30
	}
}

func syntheticScene(rng *rand.Rand, p *catalog.SatelliteProfile, g Grid, year, n int, opts SyntheticOptions) *Scene {
	// spread acquisitions over the year, away from the boundaries
	day := 1 + (n*365)/opts.ScenesPerYear + 7
	s := &Scene{
		ID:       fmt.Sprintf("%s_%d_%03d", p.Name, year, day),
		Acquired: time.Date(year, time.January, 1, 10, 30, 0, 0, time.UTC).AddDate(0, 0, day-1),
		Properties: map[string]float64{
			"CLOUDY_PIXEL_PERCENTAGE": math.Round(opts.CloudFraction * 100),
			"SNOW_ICE_PERCENTAGE":     0,
		},
		Bands: make(map[string][]float64),
	}

	bindings := p.Bindings()
	for _, role := range catalog.Roles {
		band := bindings[role]
		if _, done := s.Bands[band]; done {
			continue
		}
		values := make([]float64, g.Len())
		for i := range values {
			values[i] = baseReflectance[role] * (0.9 + 0.2*rng.Float64())
		}
		s.Bands[band] = values
	}

	if p.CloudMask != nil {
		flag := float64(lowestBit(p.CloudMask.Bitmask))
		quality := make([]float64, g.Len())
		for i := range quality {
			if rng.Float64() < opts.CloudFraction {
				quality[i] = flag
			}
		}
		s.Bands[p.CloudMask.QualityBand] = quality
	}
	return s
}

func lowestBit(mask uint32) uint32 {
	return mask & -mask
}
