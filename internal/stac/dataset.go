package stac

import (
	"fmt"
	"time"

	gostac "github.com/planetlabs/go-stac"
	"github.com/satindex/satindex/internal/catalog"
)

// GlobalBBox is the spatial extent of every dataset.
var GlobalBBox = []float64{-180, -90, 180, 90}

// DatasetCollection describes a satellite profile as a STAC collection.
// The temporal extent spans the profile's supported years.
func DatasetCollection(p *catalog.SatelliteProfile, baseURL, version string) *gostac.Collection {
	collection := NewCollection(p.Name, p.Name, p.Description, version)
	collection.License = "proprietary"

	start := time.Date(p.Years.Min, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(p.Years.Max, time.December, 31, 23, 59, 59, 0, time.UTC)

	collection.Extent = &gostac.Extent{
		Spatial: &gostac.SpatialExtent{
			Bbox: [][]float64{GlobalBBox},
		},
		Temporal: &gostac.TemporalExtent{
			Interval: [][]any{{start.Format(time.RFC3339), end.Format(time.RFC3339)}},
		},
	}

	bindings := p.Bindings()
	roles := make(map[string]string, len(bindings))
	for role, band := range bindings {
		roles[string(role)] = band
	}

	collection.Summaries["eo:bands"] = p.SourceBands()
	collection.Summaries["satindex:roles"] = roles
	collection.Summaries["satindex:source_collection"] = p.CollectionID
	collection.Summaries["satindex:years"] = map[string]int{"minimum": p.Years.Min, "maximum": p.Years.Max}
	if p.CloudMask != nil {
		collection.Summaries["satindex:cloud_mask"] = p.CloudMask
	}
	if len(p.SceneFilters) > 0 {
		collection.Summaries["satindex:scene_filters"] = p.SceneFilters
	}

	collection.Links = append(collection.Links,
		&gostac.Link{
			Rel:  "self",
			Href: fmt.Sprintf("%s/datasets/%s", baseURL, p.Name),
			Type: "application/json",
		},
		&gostac.Link{
			Rel:  "root",
			Href: baseURL + "/",
			Type: "application/json",
		},
		&gostac.Link{
			Rel:  "parent",
			Href: baseURL + "/datasets",
			Type: "application/json",
		},
	)

	return collection
}
