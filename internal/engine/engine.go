// Package engine defines the compute service the pipeline delegates raster
// work to. Images live inside the engine and are referenced by handle.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/satindex/satindex/internal/catalog"
	"github.com/satindex/satindex/internal/region"
)

// ErrEngine marks failures reported by or while talking to a compute engine.
var ErrEngine = errors.New("compute engine failure")

// Engine is a geospatial compute service.
// The remote and local engines both implement this interface.
type Engine interface {
	// SearchScenes returns the scenes of a collection that intersect the
	// region, were acquired in [Start, End) and pass every filter.
	SearchScenes(ctx context.Context, q SceneQuery) ([]SceneRef, error)

	// Composite masks each scene and reduces the stack to its per-pixel,
	// per-band median, optionally clipped to a polygon.
	Composite(ctx context.Context, req CompositeRequest) (*ImageRef, error)

	// Expression evaluates a band expression per pixel into a single band.
	Expression(ctx context.Context, req ExpressionRequest) (*ImageRef, error)

	// ReduceRegion computes zonal statistics of one band over a region.
	ReduceRegion(ctx context.Context, req ReduceRequest) (*ZonalStats, error)

	// MapLayer returns a tile layer descriptor for an image.
	MapLayer(ctx context.Context, img ImageRef, vis VisParams) (*Layer, error)

	// Name returns the engine name (e.g., "remote", "local").
	Name() string
}

// SceneQuery selects scenes from a collection. All filters are conjunctive.
type SceneQuery struct {
	Collection string
	Region     *region.Region
	Start      time.Time
	End        time.Time // exclusive
	Filters    []catalog.SceneFilter
}

// SceneRef identifies one acquisition.
type SceneRef struct {
	ID         string             `json:"id"`
	Acquired   time.Time          `json:"acquired"`
	Properties map[string]float64 `json:"properties,omitempty"`
}

// CompositeRequest asks for the median composite of a set of scenes.
type CompositeRequest struct {
	Collection string
	Scenes     []string
	Bands      []string
	Mask       *catalog.CloudMask // nil keeps every pixel
	Clip       *region.Region     // nil or a point region leaves the image unclipped
}

// ImageRef is a handle to an engine-owned raster.
type ImageRef struct {
	ID    string   `json:"id"`
	Bands []string `json:"bands"`
}

// ExpressionRequest evaluates Expression over Image with roles bound to bands.
type ExpressionRequest struct {
	Image      ImageRef
	Expression catalog.Expr
	Bindings   map[catalog.Role]string
	Constants  map[string]float64
	Name       string
}

// ReduceRequest asks for the statistics of Band over Region.
type ReduceRequest struct {
	Image      ImageRef
	Band       string
	Region     *region.Region
	Scale      float64 // metres
	BestEffort bool
	MaxPixels  int
}

// ZonalStats holds regional statistics. A nil field means no valid pixel
// contributed; all nil is the empty result.
type ZonalStats struct {
	Min    *float64 `json:"min"`
	Max    *float64 `json:"max"`
	Mean   *float64 `json:"mean"`
	StdDev *float64 `json:"stdDev"`
	Count  int      `json:"count"`
}

// Empty reports whether no statistic is defined.
func (z *ZonalStats) Empty() bool {
	return z == nil || (z.Min == nil && z.Max == nil && z.Mean == nil && z.StdDev == nil)
}

// VisParams describes how a layer is styled.
type VisParams struct {
	Bands   []string `json:"bands,omitempty"`
	Min     float64  `json:"min"`
	Max     float64  `json:"max"`
	Gamma   float64  `json:"gamma,omitempty"`
	Palette []string `json:"palette,omitempty"`
}

// Layer is a map tile layer descriptor.
type Layer struct {
	MapID       string    `json:"map_id"`
	URLTemplate string    `json:"url_template"`
	Vis         VisParams `json:"vis"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}
