package remote

import (
	"encoding/json"
	"time"

	"github.com/satindex/satindex/internal/engine"
)

type filter struct {
	Property string  `json:"property"`
	LessThan float64 `json:"lt"`
}

type searchRequest struct {
	Collection string          `json:"collection"`
	Start      time.Time       `json:"start"`
	End        time.Time       `json:"end"`
	Region     json.RawMessage `json:"region,omitempty"`
	Filters    []filter        `json:"filters,omitempty"`
}

type searchResponse struct {
	Scenes []engine.SceneRef `json:"scenes"`
}

type mask struct {
	QualityBand string `json:"quality_band"`
	Bitmask     uint32 `json:"bitmask"`
}

type compositeRequest struct {
	Collection string          `json:"collection"`
	Scenes     []string        `json:"scenes"`
	Bands      []string        `json:"bands"`
	Reducer    string          `json:"reducer"`
	Mask       *mask           `json:"mask,omitempty"`
	Clip       json.RawMessage `json:"clip,omitempty"`
}

type expressionRequest struct {
	Image      string             `json:"image"`
	Expression string             `json:"expression"`
	Map        map[string]string  `json:"map"`
	Constants  map[string]float64 `json:"constants,omitempty"`
	Name       string             `json:"name"`
}

type imageResponse struct {
	Image engine.ImageRef `json:"image"`
}

type reduceRequest struct {
	Image      string          `json:"image"`
	Band       string          `json:"band,omitempty"`
	Region     json.RawMessage `json:"region"`
	Reducers   []string        `json:"reducers"`
	Scale      float64         `json:"scale"`
	BestEffort bool            `json:"best_effort"`
	MaxPixels  int             `json:"max_pixels,omitempty"`
}

// reduceResponse keys statistics as "<band>_<reducer>"; a null value means
// no pixel contributed.
type reduceResponse struct {
	Stats map[string]*float64 `json:"stats"`
	Count int                 `json:"count"`
}

type mapRequest struct {
	Image string           `json:"image"`
	Vis   engine.VisParams `json:"vis"`
}

type mapResponse struct {
	MapID       string `json:"map_id"`
	URLTemplate string `json:"url_template"`
}

// apiError is the error body of the compute service.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
