package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/satindex/satindex/internal/pipeline"
	"github.com/satindex/satindex/internal/region"
)

func TestParseBBox(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"9.5,44.5,11.5,46.5", false},
		{" -1, -1, 1, 1 ", false},
		{"1,2,3", true},
		{"a,b,c,d", true},
		{"2,0,1,1", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			_, err := parseBBox(tt.in)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseBBox(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
		})
	}
}

func TestParseYears(t *testing.T) {
	yr, err := parseYears("2015-2020")
	if err != nil || yr.Min != 2015 || yr.Max != 2020 {
		t.Errorf("parseYears(2015-2020) = %+v, %v", yr, err)
	}

	yr, err = parseYears("2018")
	if err != nil || yr.Min != 2018 || yr.Max != 2018 {
		t.Errorf("parseYears(2018) = %+v, %v", yr, err)
	}

	if _, err := parseYears("2020-2015"); !errors.Is(err, pipeline.ErrInvalidRange) {
		t.Errorf("expected ErrInvalidRange, got %v", err)
	}
}

func TestRegionFlags(t *testing.T) {
	if _, err := (&regionFlags{}).resolve(); !errors.Is(err, region.ErrMissingRegion) {
		t.Errorf("expected ErrMissingRegion, got %v", err)
	}

	r, err := (&regionFlags{lon: "0", lat: "0"}).resolve()
	if err != nil || r.Kind() != region.KindPoint {
		t.Errorf("origin point: %v, %v", r, err)
	}

	if _, err := (&regionFlags{lon: "east", lat: "1"}).resolve(); !errors.Is(err, region.ErrInvalidGeometry) {
		t.Errorf("expected ErrInvalidGeometry, got %v", err)
	}

	path := filepath.Join(t.TempDir(), "aoi.geojson")
	os.WriteFile(path, []byte(`{"type": "Polygon", "coordinates": [[[0,0],[1,0],[1,1],[0,1],[0,0]]]}`), 0o644)
	r, err = (&regionFlags{geometry: path, lon: "5", lat: "5"}).resolve()
	if err != nil || r.Kind() != region.KindPolygon {
		t.Errorf("geometry should win over the point: %v, %v", r, err)
	}
}

func synthArchive(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "archive.msgpack")

	var out bytes.Buffer
	err := runSynth([]string{"-o", path, "-bbox", "0,0,1,1", "-pixel", "0.25", "-years", "2020-2021", "-scenes", "2"}, &out)
	if err != nil {
		t.Fatalf("synth failed: %v", err)
	}
	if !strings.HasPrefix(out.String(), "wrote ") {
		t.Errorf("unexpected synth output %q", out.String())
	}
	return path
}

func useLocalEngine(t *testing.T, archive string) {
	t.Setenv("ENGINE_TYPE", "local")
	t.Setenv("LOCAL_ARCHIVE_PATH", archive)
	t.Setenv("API_BASE_URL", "http://localhost")
	t.Setenv("LOG_LEVEL", "error")
}

func TestRunSeries(t *testing.T) {
	useLocalEngine(t, synthArchive(t))

	var out bytes.Buffer
	err := runSeries(context.Background(), []string{
		"-dataset", "Landsat-8", "-index", "NDVI", "-start", "2019", "-end", "2021",
		"-fields", "mean", "-lon", "0.4", "-lat", "0.4", "-progress=false",
	}, &out)
	if err != nil {
		t.Fatalf("series failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header and 3 rows, got %q", out.String())
	}
	if !strings.HasPrefix(lines[1], "Landsat-8,NDVI,2019,empty") {
		t.Errorf("2019 should be empty, got %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "Landsat-8,NDVI,2020,data") {
		t.Errorf("2020 should carry data, got %q", lines[2])
	}
}

func TestRunSeries_InvalidRange(t *testing.T) {
	useLocalEngine(t, synthArchive(t))

	err := runSeries(context.Background(), []string{
		"-start", "2021", "-end", "2020", "-lon", "0.4", "-lat", "0.4", "-progress=false",
	}, &bytes.Buffer{})
	if !errors.Is(err, pipeline.ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
}

func TestRunEvaluate(t *testing.T) {
	useLocalEngine(t, synthArchive(t))

	var out bytes.Buffer
	err := runEvaluate(context.Background(), []string{
		"-dataset", "Landsat-8", "-index", "EVI", "-year", "2020", "-lon", "0.4", "-lat", "0.4",
	}, &out)
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}

	var result map[string]any
	if err := json.Unmarshal(out.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result["status"] != "data" {
		t.Errorf("status = %v, want data", result["status"])
	}
}
