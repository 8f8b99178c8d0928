package stac

import (
	"encoding/json"
	"testing"

	"github.com/satindex/satindex/internal/catalog"
)

func TestDatasetCollection(t *testing.T) {
	p, err := catalog.BuiltinDatasets().Profile("Landsat-7")
	if err != nil {
		t.Fatal(err)
	}

	c := DatasetCollection(p, "http://localhost:8080", "1.0.0")

	if c.Id != "Landsat-7" {
		t.Errorf("Id = %q, want Landsat-7", c.Id)
	}
	if c.Extent == nil || len(c.Extent.Temporal.Interval) != 1 {
		t.Fatal("expected a single temporal interval")
	}
	if got := c.Extent.Temporal.Interval[0][0]; got != "2000-01-01T00:00:00Z" {
		t.Errorf("interval start = %v", got)
	}
	if _, ok := c.Summaries["satindex:cloud_mask"]; !ok {
		t.Error("Landsat-7 summaries should include its cloud mask")
	}

	var self string
	for _, l := range c.Links {
		if l.Rel == "self" {
			self = l.Href
		}
	}
	if self != "http://localhost:8080/datasets/Landsat-7" {
		t.Errorf("self link = %q", self)
	}

	if _, err := json.Marshal(c); err != nil {
		t.Fatalf("collection does not marshal: %v", err)
	}
}

func TestDatasetCollection_SceneFilters(t *testing.T) {
	p, _ := catalog.BuiltinDatasets().Profile("Sentinel-2")
	c := DatasetCollection(p, "", "1.0.0")

	filters, ok := c.Summaries["satindex:scene_filters"].([]catalog.SceneFilter)
	if !ok || len(filters) == 0 {
		t.Fatalf("expected scene filters in summaries, got %v", c.Summaries["satindex:scene_filters"])
	}
}

func TestLandingPage_Links(t *testing.T) {
	lp := NewLandingPage("root", "t", "d", "1.0.0", DefaultConformance())
	lp.AddLink("self", "/", "application/json")
	lp.AddMethodLink("evaluate", "/evaluate", "application/json", "POST", "Evaluate")

	if len(lp.Links) != 2 {
		t.Fatalf("expected 2 links, got %d", len(lp.Links))
	}
	if lp.Links[1].Method != "POST" {
		t.Errorf("method = %q, want POST", lp.Links[1].Method)
	}
}
