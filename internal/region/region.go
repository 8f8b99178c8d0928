// Package region models the area of interest of a request as an explicit
// tagged variant: a lon/lat point or a (multi)polygon.
package region

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

var (
	// ErrMissingRegion is returned when neither a point nor a geometry is supplied.
	ErrMissingRegion = errors.New("missing region")

	// ErrInvalidGeometry is returned when a supplied geometry cannot be used.
	ErrInvalidGeometry = errors.New("invalid geometry")

	// ErrMalformedUpload is returned when an uploaded shapefile archive is unusable.
	ErrMalformedUpload = errors.New("malformed upload")
)

// Kind distinguishes the region variants.
type Kind int

const (
	KindPoint Kind = iota + 1
	KindPolygon
)

func (k Kind) String() string {
	switch k {
	case KindPoint:
		return "point"
	case KindPolygon:
		return "polygon"
	default:
		return "unknown"
	}
}

// Region is a point or a multipolygon. The zero value is not valid; use
// NewPoint, NewPolygon or one of the decoders.
type Region struct {
	kind    Kind
	point   orb.Point
	polygon orb.MultiPolygon
}

// NewPoint creates a point region. (0, 0) is a valid location.
func NewPoint(lon, lat float64) (*Region, error) {
	if math.IsNaN(lon) || math.IsNaN(lat) || lon < -180 || lon > 180 || lat < -90 || lat > 90 {
		return nil, fmt.Errorf("%w: point (%g, %g) is outside lon/lat bounds", ErrInvalidGeometry, lon, lat)
	}
	return &Region{kind: KindPoint, point: orb.Point{lon, lat}}, nil
}

// NewPolygon creates a polygon region from a multipolygon.
func NewPolygon(mp orb.MultiPolygon) (*Region, error) {
	if len(mp) == 0 {
		return nil, fmt.Errorf("%w: multipolygon has no polygons", ErrInvalidGeometry)
	}
	for i, p := range mp {
		if len(p) == 0 || len(p[0]) < 4 {
			return nil, fmt.Errorf("%w: polygon %d needs a closed outer ring of at least 4 points", ErrInvalidGeometry, i)
		}
	}
	return &Region{kind: KindPolygon, polygon: mp}, nil
}

// Kind returns the region variant.
func (r *Region) Kind() Kind { return r.kind }

// Point returns the point of a point region.
func (r *Region) Point() (orb.Point, bool) {
	return r.point, r.kind == KindPoint
}

// Polygon returns the multipolygon of a polygon region.
func (r *Region) Polygon() (orb.MultiPolygon, bool) {
	return r.polygon, r.kind == KindPolygon
}

// Geometry returns the region as an orb geometry.
func (r *Region) Geometry() orb.Geometry {
	if r.kind == KindPoint {
		return r.point
	}
	return r.polygon
}

// Bound returns the bounding box of the region.
func (r *Region) Bound() orb.Bound {
	return r.Geometry().Bound()
}

// Clippable reports whether clipping to the region changes a raster.
// Clipping to a point has no effect.
func (r *Region) Clippable() bool {
	return r.kind == KindPolygon
}

// Contains reports whether p lies inside a polygon region.
// A point region contains nothing.
func (r *Region) Contains(p orb.Point) bool {
	if r.kind != KindPolygon {
		return false
	}
	return planar.MultiPolygonContains(r.polygon, p)
}

// WKT returns the well-known text form, used for cache keys and logging.
func (r *Region) WKT() string {
	return wkt.MarshalString(r.Geometry())
}

// MarshalJSON encodes the region as a GeoJSON geometry.
func (r *Region) MarshalJSON() ([]byte, error) {
	return geojson.NewGeometry(r.Geometry()).MarshalJSON()
}

// Input is the JSON form of a region in API requests.
// A geometry takes precedence over a point.
type Input struct {
	Point    *PointInput     `json:"point,omitempty"`
	Geometry json.RawMessage `json:"geometry,omitempty"`
}

// PointInput is a lon/lat pair.
type PointInput struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Parse resolves an Input into a Region.
func Parse(in *Input) (*Region, error) {
	if in == nil {
		return nil, ErrMissingRegion
	}
	if len(bytes.TrimSpace(in.Geometry)) > 0 && !bytes.Equal(bytes.TrimSpace(in.Geometry), []byte("null")) {
		return FromGeoJSON(in.Geometry)
	}
	if in.Point != nil {
		return NewPoint(in.Point.Lon, in.Point.Lat)
	}
	return nil, ErrMissingRegion
}

// FromGeoJSON decodes a GeoJSON Point, Polygon, MultiPolygon, Feature or
// FeatureCollection. Polygons from all features are merged into one region.
func FromGeoJSON(data []byte) (*Region, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
	}

	var geoms []orb.Geometry
	switch head.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
		}
		for _, f := range fc.Features {
			geoms = append(geoms, f.Geometry)
		}
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
		}
		geoms = append(geoms, f.Geometry)
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
		}
		geoms = append(geoms, g.Geometry())
	}

	return fromGeometries(geoms)
}

func fromGeometries(geoms []orb.Geometry) (*Region, error) {
	if len(geoms) == 1 {
		if p, ok := geoms[0].(orb.Point); ok {
			return NewPoint(p.Lon(), p.Lat())
		}
	}

	var mp orb.MultiPolygon
	for _, g := range geoms {
		switch v := g.(type) {
		case orb.Polygon:
			mp = append(mp, v)
		case orb.MultiPolygon:
			mp = append(mp, v...)
		case orb.Bound:
			mp = append(mp, v.ToPolygon())
		case nil:
			continue
		default:
			return nil, fmt.Errorf("%w: unsupported geometry type %s", ErrInvalidGeometry, g.GeoJSONType())
		}
	}
	return NewPolygon(mp)
}
