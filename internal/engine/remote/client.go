// Package remote implements the compute engine as a JSON-over-HTTPS client
// of the hosted geospatial compute service.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/satindex/satindex/internal/catalog"
	"github.com/satindex/satindex/internal/engine"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Credentials configures OAuth2 client credentials. An empty TokenURL
// disables authentication.
type Credentials struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// Client handles communication with the compute service
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new compute service client
func NewClient(baseURL string, timeout time.Duration, creds Credentials) *Client {
	base := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	httpClient := base
	if creds.TokenURL != "" {
		cfg := clientcredentials.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			TokenURL:     creds.TokenURL,
			Scopes:       creds.Scopes,
		}
		// token requests reuse the base transport
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		httpClient = cfg.Client(ctx)
		httpClient.Timeout = timeout
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     slog.Default(),
	}
}

// WithLogger sets a custom logger for the client
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	c.logger = logger
	return c
}

// Name returns "remote".
func (c *Client) Name() string {
	return "remote"
}

// SearchScenes implements engine.Engine.
func (c *Client) SearchScenes(ctx context.Context, q engine.SceneQuery) ([]engine.SceneRef, error) {
	req := searchRequest{
		Collection: q.Collection,
		Start:      q.Start.UTC(),
		End:        q.End.UTC(),
	}
	if q.Region != nil {
		geom, err := q.Region.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("failed to encode region: %w", err)
		}
		req.Region = geom
	}
	for _, f := range q.Filters {
		req.Filters = append(req.Filters, filter{Property: f.Property, LessThan: f.Max})
	}

	var resp searchResponse
	if err := c.post(ctx, "/v1/scenes:search", req, &resp); err != nil {
		return nil, err
	}

	c.logger.DebugContext(ctx, "scene search completed",
		slog.String("collection", q.Collection),
		slog.Int("scene_count", len(resp.Scenes)),
	)
	return resp.Scenes, nil
}

// Composite implements engine.Engine.
func (c *Client) Composite(ctx context.Context, r engine.CompositeRequest) (*engine.ImageRef, error) {
	req := compositeRequest{
		Collection: r.Collection,
		Scenes:     r.Scenes,
		Bands:      r.Bands,
		Reducer:    "median",
	}
	if r.Mask != nil {
		req.Mask = &mask{QualityBand: r.Mask.QualityBand, Bitmask: r.Mask.Bitmask}
	}
	if r.Clip != nil && r.Clip.Clippable() {
		geom, err := r.Clip.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("failed to encode clip geometry: %w", err)
		}
		req.Clip = geom
	}

	var resp imageResponse
	if err := c.post(ctx, "/v1/images:composite", req, &resp); err != nil {
		return nil, err
	}
	return &resp.Image, nil
}

// Expression implements engine.Engine. The expression is sent in its
// canonical text form with roles mapped to band names.
func (c *Client) Expression(ctx context.Context, r engine.ExpressionRequest) (*engine.ImageRef, error) {
	req := expressionRequest{
		Image:      r.Image.ID,
		Expression: r.Expression.String(),
		Map:        make(map[string]string),
		Name:       r.Name,
	}
	for _, role := range catalog.ReferencedRoles(r.Expression) {
		band, ok := r.Bindings[role]
		if !ok {
			return nil, fmt.Errorf("%w: role %s is not bound to a band", engine.ErrEngine, role)
		}
		req.Map[string(role)] = band
	}
	for _, name := range catalog.ReferencedConstants(r.Expression) {
		v, ok := r.Constants[name]
		if !ok {
			return nil, fmt.Errorf("%w: constant %s has no value", engine.ErrEngine, name)
		}
		if req.Constants == nil {
			req.Constants = make(map[string]float64)
		}
		req.Constants[name] = v
	}

	var resp imageResponse
	if err := c.post(ctx, "/v1/images:expression", req, &resp); err != nil {
		return nil, err
	}
	return &resp.Image, nil
}

// ReduceRegion implements engine.Engine.
func (c *Client) ReduceRegion(ctx context.Context, r engine.ReduceRequest) (*engine.ZonalStats, error) {
	if r.Region == nil {
		return nil, fmt.Errorf("reduce without region")
	}
	geom, err := r.Region.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to encode region: %w", err)
	}

	band := r.Band
	if band == "" && len(r.Image.Bands) == 1 {
		band = r.Image.Bands[0]
	}

	req := reduceRequest{
		Image:      r.Image.ID,
		Band:       band,
		Region:     geom,
		Reducers:   []string{"mean", "min", "max", "stdDev"},
		Scale:      r.Scale,
		BestEffort: r.BestEffort,
		MaxPixels:  r.MaxPixels,
	}

	var resp reduceResponse
	if err := c.post(ctx, "/v1/images:reduceRegion", req, &resp); err != nil {
		return nil, err
	}

	key := func(reducer string) *float64 {
		if band == "" {
			return resp.Stats[reducer]
		}
		return resp.Stats[band+"_"+reducer]
	}
	return &engine.ZonalStats{
		Min:    key("min"),
		Max:    key("max"),
		Mean:   key("mean"),
		StdDev: key("stdDev"),
		Count:  resp.Count,
	}, nil
}

// MapLayer implements engine.Engine.
func (c *Client) MapLayer(ctx context.Context, img engine.ImageRef, vis engine.VisParams) (*engine.Layer, error) {
	var resp mapResponse
	if err := c.post(ctx, "/v1/maps", mapRequest{Image: img.ID, Vis: vis}, &resp); err != nil {
		return nil, err
	}
	return &engine.Layer{MapID: resp.MapID, URLTemplate: resp.URLTemplate, Vis: vis}, nil
}

// post sends body as JSON and decodes a 2xx response into out. Failures
// wrap engine.ErrEngine; requests are never retried.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	endpoint, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	c.logger.DebugContext(ctx, "calling compute service",
		slog.String("url", endpoint),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "satindex/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "compute service request failed",
			slog.String("error", err.Error()),
			slog.String("url", endpoint),
		)
		return fmt.Errorf("%w: request to %s failed: %v", engine.ErrEngine, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		c.logger.ErrorContext(ctx, "compute service returned error status",
			slog.Int("status_code", resp.StatusCode),
			slog.String("response_body", string(data)),
		)
		var apiErr apiError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("%w: %s returned status %d: %s: %s", engine.ErrEngine, path, resp.StatusCode, apiErr.Code, apiErr.Message)
		}
		return fmt.Errorf("%w: %s returned status %d: %s", engine.ErrEngine, path, resp.StatusCode, string(data))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.logger.ErrorContext(ctx, "failed to decode compute service response",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%w: failed to decode %s response: %v", engine.ErrEngine, path, err)
	}
	return nil
}
