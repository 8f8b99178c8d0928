package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/satindex/satindex/internal/catalog"
	"github.com/satindex/satindex/internal/engine"
	"github.com/satindex/satindex/internal/region"
)

func quietClient(url string, creds Credentials) *Client {
	return NewClient(url, 5*time.Second, creds).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestClient_SearchScenes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST request, got %s", r.Method)
		}
		if r.URL.Path != "/v1/scenes:search" {
			t.Errorf("Expected path /v1/scenes:search, got %s", r.URL.Path)
		}

		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if req.Collection != "COPERNICUS/S2_SR_HARMONIZED" {
			t.Errorf("unexpected collection %s", req.Collection)
		}
		if !req.End.Equal(time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("unexpected end %s", req.End)
		}
		if len(req.Filters) != 1 || req.Filters[0].Property != "CLOUDY_PIXEL_PERCENTAGE" || req.Filters[0].LessThan != 20 {
			t.Errorf("unexpected filters %+v", req.Filters)
		}
		if !strings.Contains(string(req.Region), `"Point"`) {
			t.Errorf("expected a GeoJSON point region, got %s", req.Region)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"scenes":[{"id":"S2A_1","acquired":"2020-03-01T10:00:00Z","properties":{"CLOUDY_PIXEL_PERCENTAGE":3}}]}`))
	}))
	defer server.Close()

	pt, _ := region.NewPoint(0, 0)
	scenes, err := quietClient(server.URL, Credentials{}).SearchScenes(context.Background(), engine.SceneQuery{
		Collection: "COPERNICUS/S2_SR_HARMONIZED",
		Region:     pt,
		Start:      time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		End:        time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
		Filters:    []catalog.SceneFilter{{Property: "CLOUDY_PIXEL_PERCENTAGE", Max: 20}},
	})
	if err != nil {
		t.Fatalf("SearchScenes failed: %v", err)
	}
	if len(scenes) != 1 || scenes[0].ID != "S2A_1" {
		t.Fatalf("unexpected scenes %+v", scenes)
	}
	if scenes[0].Properties["CLOUDY_PIXEL_PERCENTAGE"] != 3 {
		t.Errorf("properties not decoded: %+v", scenes[0].Properties)
	}
}

func TestClient_Composite(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req compositeRequest
		json.NewDecoder(r.Body).Decode(&req)

		if req.Reducer != "median" {
			t.Errorf("expected median reducer, got %q", req.Reducer)
		}
		if req.Mask == nil || req.Mask.Bitmask != 62 || req.Mask.QualityBand != "QA_PIXEL" {
			t.Errorf("unexpected mask %+v", req.Mask)
		}
		if len(req.Clip) == 0 {
			t.Error("expected clip geometry for polygon region")
		}
		w.Write([]byte(`{"image":{"id":"img-1","bands":["SR_B4","SR_B3"]}}`))
	}))
	defer server.Close()

	poly, err := region.FromGeoJSON([]byte(`{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}`))
	if err != nil {
		t.Fatal(err)
	}

	ref, err := quietClient(server.URL, Credentials{}).Composite(context.Background(), engine.CompositeRequest{
		Collection: "LANDSAT/LC08/C02/T1_L2",
		Scenes:     []string{"a", "b"},
		Bands:      []string{"SR_B4", "SR_B3"},
		Mask:       &catalog.CloudMask{QualityBand: "QA_PIXEL", Bitmask: 62},
		Clip:       poly,
	})
	if err != nil {
		t.Fatalf("Composite failed: %v", err)
	}
	if ref.ID != "img-1" || len(ref.Bands) != 2 {
		t.Errorf("unexpected image ref %+v", ref)
	}
}

func TestClient_Expression(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req expressionRequest
		json.NewDecoder(r.Body).Decode(&req)

		if req.Expression != "(((NIR - RED) / ((NIR + RED) + L)) * (1 + L))" {
			t.Errorf("unexpected expression %q", req.Expression)
		}
		if req.Map["NIR"] != "B8" || req.Map["RED"] != "B4" || len(req.Map) != 2 {
			t.Errorf("unexpected band map %v", req.Map)
		}
		if req.Constants["L"] != 0.5 {
			t.Errorf("unexpected constants %v", req.Constants)
		}
		w.Write([]byte(`{"image":{"id":"img-2","bands":["SAVI"]}}`))
	}))
	defer server.Close()

	def, _ := catalog.BuiltinIndices().Index("SAVI")
	p, _ := catalog.BuiltinDatasets().Profile("Sentinel-2")

	ref, err := quietClient(server.URL, Credentials{}).Expression(context.Background(), engine.ExpressionRequest{
		Image:      engine.ImageRef{ID: "img-1"},
		Expression: def.Formula,
		Bindings:   p.Bindings(),
		Constants:  map[string]float64{catalog.ConstantL: catalog.DefaultL},
		Name:       "SAVI",
	})
	if err != nil {
		t.Fatalf("Expression failed: %v", err)
	}
	if ref.Bands[0] != "SAVI" {
		t.Errorf("expected SAVI band, got %v", ref.Bands)
	}
}

func TestClient_Expression_IncompleteBindings(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	def, _ := catalog.BuiltinIndices().Index("SAVI")
	p, _ := catalog.BuiltinDatasets().Profile("Sentinel-2")
	bindings := p.Bindings()
	delete(bindings, catalog.RoleNIR)

	tests := []struct {
		name      string
		bindings  map[catalog.Role]string
		constants map[string]float64
	}{
		{"unbound role", bindings, map[string]float64{catalog.ConstantL: catalog.DefaultL}},
		{"missing constant", p.Bindings(), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := quietClient(server.URL, Credentials{}).Expression(context.Background(), engine.ExpressionRequest{
				Image:      engine.ImageRef{ID: "img-1"},
				Expression: def.Formula,
				Bindings:   tt.bindings,
				Constants:  tt.constants,
				Name:       "SAVI",
			})
			if !errors.Is(err, engine.ErrEngine) {
				t.Errorf("expected ErrEngine, got %v", err)
			}
		})
	}

	if hits.Load() != 0 {
		t.Errorf("expected no requests, got %d", hits.Load())
	}
}

func TestClient_ReduceRegion(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantEmpty bool
		wantMean  float64
	}{
		{
			name:     "values",
			body:     `{"stats":{"NDVI_mean":0.42,"NDVI_min":0.1,"NDVI_max":0.8,"NDVI_stdDev":0.05},"count":120}`,
			wantMean: 0.42,
		},
		{
			name:      "no valid pixel",
			body:      `{"stats":{"NDVI_mean":null,"NDVI_min":null,"NDVI_max":null,"NDVI_stdDev":null},"count":0}`,
			wantEmpty: true,
		},
		{
			name:     "zero is a real value",
			body:     `{"stats":{"NDVI_mean":0,"NDVI_min":0,"NDVI_max":0,"NDVI_stdDev":0},"count":4}`,
			wantMean: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var req reduceRequest
				json.NewDecoder(r.Body).Decode(&req)
				if req.Scale != 30 || !req.BestEffort || req.Band != "NDVI" {
					t.Errorf("unexpected reduce request %+v", req)
				}
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			pt, _ := region.NewPoint(5, 5)
			stats, err := quietClient(server.URL, Credentials{}).ReduceRegion(context.Background(), engine.ReduceRequest{
				Image:      engine.ImageRef{ID: "img-2", Bands: []string{"NDVI"}},
				Region:     pt,
				Scale:      30,
				BestEffort: true,
			})
			if err != nil {
				t.Fatalf("ReduceRegion failed: %v", err)
			}
			if stats.Empty() != tt.wantEmpty {
				t.Fatalf("Empty() = %v, want %v", stats.Empty(), tt.wantEmpty)
			}
			if !tt.wantEmpty && *stats.Mean != tt.wantMean {
				t.Errorf("mean = %v, want %v", *stats.Mean, tt.wantMean)
			}
		})
	}
}

func TestClient_ErrorStatus(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"code":"Unavailable","message":"quota exceeded"}`))
	}))
	defer server.Close()

	_, err := quietClient(server.URL, Credentials{}).MapLayer(context.Background(), engine.ImageRef{ID: "x"}, engine.VisParams{})
	if !errors.Is(err, engine.ErrEngine) {
		t.Fatalf("expected ErrEngine, got %v", err)
	}
	if !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("expected service message in error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected exactly one attempt, got %d", calls.Load())
	}
}

func TestClient_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	}))
	defer server.Close()

	_, err := quietClient(server.URL, Credentials{}).Composite(context.Background(), engine.CompositeRequest{})
	if !errors.Is(err, engine.ErrEngine) {
		t.Fatalf("expected ErrEngine, got %v", err)
	}
}

func TestClient_OAuth2(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.Form.Get("grant_type") != "client_credentials" {
			t.Errorf("unexpected grant type %q", r.Form.Get("grant_type"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"secret-token","token_type":"bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/v1/maps", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret-token" {
			t.Errorf("unexpected Authorization header %q", got)
		}
		w.Write([]byte(`{"map_id":"m1","url_template":"https://tiles/{z}/{x}/{y}"}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := quietClient(server.URL, Credentials{
		TokenURL:     server.URL + "/token",
		ClientID:     "id",
		ClientSecret: "secret",
	})

	layer, err := client.MapLayer(context.Background(), engine.ImageRef{ID: "img"}, engine.VisParams{Min: -1, Max: 1})
	if err != nil {
		t.Fatalf("MapLayer failed: %v", err)
	}
	if layer.MapID != "m1" || layer.Vis.Max != 1 {
		t.Errorf("unexpected layer %+v", layer)
	}
}
