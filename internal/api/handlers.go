package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/paulmach/orb/geojson"
	"github.com/planetlabs/go-stac"
	"github.com/satindex/satindex/internal/catalog"
	"github.com/satindex/satindex/internal/config"
	"github.com/satindex/satindex/internal/engine"
	"github.com/satindex/satindex/internal/pipeline"
	"github.com/satindex/satindex/internal/region"
	intstac "github.com/satindex/satindex/internal/stac"
)

// Handlers contains all HTTP handlers of the service.
type Handlers struct {
	cfg      *config.Config
	pipeline *pipeline.Pipeline
	logger   *slog.Logger
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(cfg *config.Config, p *pipeline.Pipeline, logger *slog.Logger) *Handlers {
	return &Handlers{
		cfg:      cfg,
		pipeline: p,
		logger:   logger,
	}
}

// CompositeRequest is the body of POST /composite.
type CompositeRequest struct {
	Dataset    string        `json:"dataset"`
	Year       int           `json:"year"`
	Region     *region.Input `json:"region"`
	Clip       bool          `json:"clip"`
	Brightness float64       `json:"brightness,omitempty"`
	Gamma      float64       `json:"gamma,omitempty"`
}

// CompositeResponse carries a composite and its map layer, or an empty status.
type CompositeResponse struct {
	Status    pipeline.Status     `json:"status"`
	Message   string              `json:"message,omitempty"`
	Composite *pipeline.Composite `json:"composite,omitempty"`
	Layer     *engine.Layer       `json:"layer,omitempty"`
}

// EvaluateRequest is the body of POST /evaluate.
type EvaluateRequest struct {
	Dataset string        `json:"dataset"`
	Index   string        `json:"index"`
	Year    int           `json:"year"`
	Region  *region.Input `json:"region"`
	Clip    bool          `json:"clip"`
	// Palette holds the low, mid and high colors; empty entries use defaults.
	Palette [3]string `json:"palette"`
}

// EvaluateResponse carries index statistics and the index map layer.
type EvaluateResponse struct {
	Status     pipeline.Status      `json:"status"`
	Message    string               `json:"message,omitempty"`
	Evaluation *pipeline.Evaluation `json:"evaluation,omitempty"`
	Layer      *engine.Layer        `json:"layer,omitempty"`
}

// SeriesRequest is the body of POST /series.
type SeriesRequest struct {
	Dataset   string        `json:"dataset"`
	Index     string        `json:"index"`
	StartYear int           `json:"start_year"`
	EndYear   int           `json:"end_year"`
	Region    *region.Input `json:"region"`
	Fields    []string      `json:"fields,omitempty"`
}

// IndexInfo describes an index definition.
type IndexInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Expression  string         `json:"expression"`
	Roles       []catalog.Role `json:"roles"`
	Constants   []string       `json:"constants,omitempty"`
}

// IndexList is the response of GET /indices.
type IndexList struct {
	Indices []IndexInfo  `json:"indices"`
	Links   []*stac.Link `json:"links"`
}

// LandingPage returns the API landing page.
// GET /
func (h *Handlers) LandingPage(w http.ResponseWriter, r *http.Request) {
	baseURL := h.cfg.API.BaseURL

	landing := intstac.NewLandingPage(
		"satindex",
		h.cfg.API.Title,
		h.cfg.API.Description,
		h.cfg.API.StacVersion,
		intstac.DefaultConformance(),
	)

	landing.AddLink("self", baseURL+"/", "application/json")
	landing.AddLink("root", baseURL+"/", "application/json")
	landing.AddLink("conformance", baseURL+"/conformance", "application/json")
	landing.AddLink("data", baseURL+"/datasets", "application/json")
	landing.AddLink("indices", baseURL+"/indices", "application/json")

	landing.AddMethodLink("composite", baseURL+"/composite", "application/json", http.MethodPost, "Median composite and map layer")
	landing.AddMethodLink("evaluate", baseURL+"/evaluate", "application/json", http.MethodPost, "Index statistics for one year")
	landing.AddMethodLink("series", baseURL+"/series", "application/json", http.MethodPost, "Yearly index series")
	landing.AddMethodLink("region", baseURL+"/regions/shapefile", "application/geo+json", http.MethodPost, "Region from a zipped shapefile")

	WriteJSON(w, http.StatusOK, landing)
}

// Conformance returns the conformance classes supported by this API.
// GET /conformance
func (h *Handlers) Conformance(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, &intstac.Conformance{
		ConformsTo: intstac.DefaultConformance(),
	})
}

// Datasets returns every dataset as a STAC collection.
// GET /datasets
func (h *Handlers) Datasets(w http.ResponseWriter, r *http.Request) {
	baseURL := h.cfg.API.BaseURL

	profiles := h.pipeline.Datasets().All()
	collections := make([]*stac.Collection, 0, len(profiles))
	for _, p := range profiles {
		collections = append(collections, intstac.DatasetCollection(p, baseURL, h.cfg.API.StacVersion))
	}

	response := intstac.NewCollectionsList(collections)
	response.AddLink("self", baseURL+"/datasets", "application/json")
	response.AddLink("root", baseURL+"/", "application/json")

	WriteJSON(w, http.StatusOK, response)
}

// Dataset returns a single dataset by name.
// GET /datasets/{dataset}
func (h *Handlers) Dataset(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "dataset")
	if name == "" {
		WriteBadRequest(w, "dataset name is required")
		return
	}

	profile, err := h.pipeline.Datasets().Profile(name)
	if err != nil {
		WriteNotFound(w, fmt.Sprintf("dataset %q not found", name))
		return
	}

	WriteJSON(w, http.StatusOK, intstac.DatasetCollection(profile, h.cfg.API.BaseURL, h.cfg.API.StacVersion))
}

// Indices returns every index definition.
// GET /indices
func (h *Handlers) Indices(w http.ResponseWriter, r *http.Request) {
	baseURL := h.cfg.API.BaseURL

	defs := h.pipeline.Indices().All()
	response := IndexList{
		Indices: make([]IndexInfo, 0, len(defs)),
		Links: []*stac.Link{
			{Rel: "self", Href: baseURL + "/indices", Type: "application/json"},
			{Rel: "root", Href: baseURL + "/", Type: "application/json"},
		},
	}
	for _, def := range defs {
		response.Indices = append(response.Indices, indexInfo(def))
	}

	WriteJSON(w, http.StatusOK, response)
}

// Index returns a single index definition.
// GET /indices/{index}
func (h *Handlers) Index(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "index")

	def, err := h.pipeline.Indices().Index(name)
	if err != nil {
		WriteNotFound(w, fmt.Sprintf("index %q not found", name))
		return
	}

	WriteJSON(w, http.StatusOK, indexInfo(def))
}

func indexInfo(def *catalog.IndexDefinition) IndexInfo {
	return IndexInfo{
		Name:        def.Name,
		Description: def.Description,
		Expression:  def.Expression(),
		Roles:       catalog.ReferencedRoles(def.Formula),
		Constants:   catalog.ReferencedConstants(def.Formula),
	}
}

// Composite builds the median composite of a dataset year and its RGB layer.
// POST /composite
func (h *Handlers) Composite(w http.ResponseWriter, r *http.Request) {
	var req CompositeRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	reg, err := parseRegion(req.Region)
	if err != nil {
		h.writePipelineError(w, r, err)
		return
	}

	ctx := r.Context()
	comp, err := h.pipeline.Composite(ctx, req.Dataset, req.Year, reg, req.Clip)
	if errors.Is(err, pipeline.ErrEmptyResult) {
		WriteJSON(w, http.StatusOK, CompositeResponse{Status: pipeline.StatusEmpty, Message: err.Error()})
		return
	}
	if err != nil {
		h.writePipelineError(w, r, err)
		return
	}

	layer, err := h.pipeline.CompositeLayer(ctx, comp, req.Brightness, req.Gamma)
	if err != nil {
		h.writePipelineError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, CompositeResponse{
		Status:    pipeline.StatusData,
		Composite: comp,
		Layer:     layer,
	})
}

// Evaluate computes an index for one year with zonal statistics and layer.
// POST /evaluate
func (h *Handlers) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	if _, err := pipeline.IndexVis(req.Palette); err != nil {
		h.writePipelineError(w, r, err)
		return
	}

	reg, err := parseRegion(req.Region)
	if err != nil {
		h.writePipelineError(w, r, err)
		return
	}

	ctx := r.Context()
	ev, err := h.pipeline.Evaluate(ctx, req.Dataset, req.Index, req.Year, reg, req.Clip)
	if errors.Is(err, pipeline.ErrEmptyResult) {
		WriteJSON(w, http.StatusOK, EvaluateResponse{Status: pipeline.StatusEmpty, Message: err.Error()})
		return
	}
	if err != nil {
		h.writePipelineError(w, r, err)
		return
	}

	layer, err := h.pipeline.IndexLayer(ctx, ev, req.Palette)
	if err != nil {
		h.writePipelineError(w, r, err)
		return
	}

	response := EvaluateResponse{
		Status:     ev.Status(),
		Evaluation: ev,
		Layer:      layer,
	}
	if response.Status == pipeline.StatusEmpty {
		response.Message = "no valid pixels in the region"
	}

	WriteJSON(w, http.StatusOK, response)
}

// Series assembles a yearly series of index statistics.
// POST /series[?format=json|csv|msgpack]
func (h *Handlers) Series(w http.ResponseWriter, r *http.Request) {
	format, err := responseFormat(r)
	if err != nil {
		WriteInvalidParameter(w, err.Error())
		return
	}

	var req SeriesRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	// an inverted range is reported ahead of any other input error
	if err := pipeline.CheckYearRange(req.StartYear, req.EndYear); err != nil {
		h.writePipelineError(w, r, err)
		return
	}

	fields, err := pipeline.ParseFields(req.Fields)
	if err != nil {
		h.writePipelineError(w, r, err)
		return
	}

	reg, err := parseRegion(req.Region)
	if err != nil {
		h.writePipelineError(w, r, err)
		return
	}

	series, err := h.pipeline.Series(r.Context(), req.Dataset, req.Index, req.StartYear, req.EndYear, reg, fields)
	if err != nil {
		h.writePipelineError(w, r, err)
		return
	}

	writeFormatted(w, format, http.StatusOK, series)
}

// RegionFromShapefile converts an uploaded zipped shapefile into a region.
// The multipart form field is "file".
// POST /regions/shapefile
func (h *Handlers) RegionFromShapefile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.Server.MaxUploadSize)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			WriteError(w, http.StatusRequestEntityTooLarge, ErrCodeMalformedUpload,
				fmt.Sprintf("upload exceeds %d bytes", maxErr.Limit))
			return
		}
		WriteError(w, http.StatusBadRequest, ErrCodeMalformedUpload, "multipart field \"file\" with a zipped shapefile is required")
		return
	}
	defer file.Close()

	reg, err := region.FromShapefileZip(file, header.Size)
	if err != nil {
		h.writePipelineError(w, r, err)
		return
	}

	h.logger.DebugContext(r.Context(), "shapefile region parsed",
		slog.String("filename", header.Filename),
		slog.Int64("size", header.Size),
		slog.String("kind", reg.Kind().String()),
	)

	feature := geojson.NewFeature(reg.Geometry())
	feature.Properties["kind"] = reg.Kind().String()
	feature.Properties["filename"] = header.Filename
	feature.BBox = geojson.NewBBox(reg.Bound())

	WriteGeoJSON(w, http.StatusOK, feature)
}

// Health returns the health status of the service.
// GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	response := map[string]string{
		"status": "ok",
		"engine": h.pipeline.Engine().Name(),
	}

	WriteJSON(w, http.StatusOK, response)
}

// decodeJSON decodes the request body into v, writing a 400 on failure.
func (h *Handlers) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.Server.MaxUploadSize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteBadRequest(w, fmt.Sprintf("invalid JSON body: %v", err))
		return false
	}
	return true
}

// parseRegion resolves a region input. A missing region yields nil so the
// pipeline reports it in its own validation order.
func parseRegion(in *region.Input) (*region.Region, error) {
	reg, err := region.Parse(in)
	if errors.Is(err, region.ErrMissingRegion) {
		return nil, nil
	}
	return reg, err
}

// writePipelineError maps pipeline, catalog, region and engine errors to
// STAC error responses.
func (h *Handlers) writePipelineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		WriteNotFound(w, err.Error())
	case errors.Is(err, pipeline.ErrInvalidRange):
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRange, err.Error())
	case errors.Is(err, region.ErrMissingRegion):
		WriteError(w, http.StatusBadRequest, ErrCodeMissingRegion, "a point or geometry region is required")
	case errors.Is(err, region.ErrMalformedUpload):
		WriteError(w, http.StatusBadRequest, ErrCodeMalformedUpload, err.Error())
	case errors.Is(err, region.ErrInvalidGeometry), errors.Is(err, pipeline.ErrInvalidInput):
		WriteInvalidParameter(w, err.Error())
	case errors.Is(err, engine.ErrEngine):
		h.logger.ErrorContext(r.Context(), "compute engine request failed",
			slog.String("engine", h.pipeline.Engine().Name()),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		WriteUpstreamError(w, "compute engine request failed")
	case errors.Is(err, context.DeadlineExceeded):
		h.logger.WarnContext(r.Context(), "request timed out",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		WriteError(w, http.StatusGatewayTimeout, ErrCodeTimeout, "request timed out")
	default:
		h.logger.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		WriteInternalErrorWithRequestID(w, "internal server error", GetRequestID(r.Context()))
	}
}
