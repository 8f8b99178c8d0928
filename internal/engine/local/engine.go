package local

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/google/uuid"
	"github.com/satindex/satindex/internal/engine"
	"github.com/satindex/satindex/internal/store"
)

// Options configures the local engine.
type Options struct {
	ImageTTL        time.Duration
	CleanupInterval time.Duration
	Workers         int
	MaxPixels       int
}

// Engine implements engine.Engine over an in-memory scene archive.
type Engine struct {
	collections map[string]*Collection
	images      *store.Memory[*Image]
	workers     int
	maxPixels   int
	logger      *slog.Logger
}

// New creates a local engine serving the collections of archive.
func New(archive *Archive, opts Options) *Engine {
	if opts.ImageTTL <= 0 {
		opts.ImageTTL = 10 * time.Minute
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}

	collections := make(map[string]*Collection, len(archive.Collections))
	for _, c := range archive.Collections {
		collections[c.ID] = c
	}

	return &Engine{
		collections: collections,
		images:      store.NewMemory[*Image](opts.ImageTTL, opts.CleanupInterval),
		workers:     opts.Workers,
		maxPixels:   opts.MaxPixels,
		logger:      slog.Default(),
	}
}

// WithLogger sets a custom logger for the engine
func (e *Engine) WithLogger(logger *slog.Logger) *Engine {
	e.logger = logger
	return e
}

// Name returns "local".
func (e *Engine) Name() string {
	return "local"
}

// Close releases the image store.
func (e *Engine) Close() {
	e.images.Stop()
}

func (e *Engine) collection(id string) (*Collection, error) {
	c, ok := e.collections[id]
	if !ok {
		return nil, fmt.Errorf("%w: collection %q is not in the archive", engine.ErrEngine, id)
	}
	return c, nil
}

func (e *Engine) image(ref engine.ImageRef) (*Image, error) {
	img, err := e.images.Get(ref.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: image %s: %v", engine.ErrEngine, ref.ID, err)
	}
	return img, nil
}

func (e *Engine) put(img *Image) *engine.ImageRef {
	id := uuid.NewString()
	e.images.Put(id, img)
	return &engine.ImageRef{ID: id, Bands: append([]string(nil), img.Order...)}
}

// SearchScenes returns matching scenes ordered by acquisition time.
// A scene missing a filtered property does not pass the filter.
func (e *Engine) SearchScenes(ctx context.Context, q engine.SceneQuery) ([]engine.SceneRef, error) {
	c, err := e.collection(q.Collection)
	if err != nil {
		return nil, err
	}

	footprint := c.Grid.Bound()
	if q.Region != nil && !footprint.Intersects(q.Region.Bound()) {
		return nil, nil
	}

	var scenes []engine.SceneRef
	for _, s := range c.Scenes {
		if s.Acquired.Before(q.Start) || !s.Acquired.Before(q.End) {
			continue
		}
		if !passes(s, q) {
			continue
		}
		scenes = append(scenes, engine.SceneRef{ID: s.ID, Acquired: s.Acquired, Properties: s.Properties})
	}
	sort.Slice(scenes, func(i, j int) bool { return scenes[i].Acquired.Before(scenes[j].Acquired) })

	e.logger.DebugContext(ctx, "scene search completed",
		slog.String("collection", q.Collection),
		slog.Int("scene_count", len(scenes)),
	)
	return scenes, nil
}

func passes(s *Scene, q engine.SceneQuery) bool {
	for _, f := range q.Filters {
		v, ok := s.Properties[f.Property]
		if !ok || !(v < f.Max) {
			return false
		}
	}
	return true
}

// Composite masks every scene on a worker pool, then reduces the stack to
// its median and clips it.
func (e *Engine) Composite(ctx context.Context, req engine.CompositeRequest) (*engine.ImageRef, error) {
	c, err := e.collection(req.Collection)
	if err != nil {
		return nil, err
	}
	if len(req.Scenes) == 0 {
		return nil, fmt.Errorf("%w: composite of zero scenes", engine.ErrEngine)
	}

	byID := make(map[string]*Scene, len(c.Scenes))
	for _, s := range c.Scenes {
		byID[s.ID] = s
	}

	var (
		mu       sync.Mutex
		stack    = make([]*Image, len(req.Scenes))
		firstErr error
	)
	wp := workerpool.New(e.workers)
	for i, id := range req.Scenes {
		i, id := i, id
		wp.Submit(func() {
			if ctx.Err() != nil {
				return
			}
			img, err := maskedScene(c.Grid, byID[id], id, req)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			stack[i] = img
		})
	}
	wp.StopWait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if firstErr != nil {
		return nil, firstErr
	}

	composite := Clip(Median(c.Grid, req.Bands, stack), req.Clip)

	e.logger.DebugContext(ctx, "composite built",
		slog.String("collection", req.Collection),
		slog.Int("scene_count", len(stack)),
		slog.Bool("clipped", req.Clip != nil && req.Clip.Clippable()),
	)
	return e.put(composite), nil
}

func maskedScene(grid Grid, s *Scene, id string, req engine.CompositeRequest) (*Image, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: scene %s not found in %s", engine.ErrEngine, id, req.Collection)
	}

	img := &Image{Grid: grid, Order: req.Bands, Bands: make(map[string][]float64, len(req.Bands))}
	for _, b := range req.Bands {
		values, ok := s.Bands[b]
		if !ok {
			return nil, fmt.Errorf("%w: scene %s has no band %s", engine.ErrEngine, id, b)
		}
		img.Bands[b] = values
	}

	if req.Mask == nil {
		return img, nil
	}
	quality, ok := s.Bands[req.Mask.QualityBand]
	if !ok {
		return nil, fmt.Errorf("%w: scene %s has no quality band %s", engine.ErrEngine, id, req.Mask.QualityBand)
	}
	return ApplyMask(img, quality, req.Mask), nil
}

// Expression evaluates the expression per pixel into a band named req.Name.
func (e *Engine) Expression(ctx context.Context, req engine.ExpressionRequest) (*engine.ImageRef, error) {
	img, err := e.image(req.Image)
	if err != nil {
		return nil, err
	}
	for role, band := range req.Bindings {
		if _, ok := img.Bands[band]; !ok {
			return nil, fmt.Errorf("%w: role %s is bound to missing band %s", engine.ErrEngine, role, band)
		}
	}

	return e.put(Evaluate(img, req.Expression, req.Bindings, req.Constants, req.Name)), nil
}

// ReduceRegion computes zonal statistics. MaxPixels falls back to the
// engine default when unset.
func (e *Engine) ReduceRegion(ctx context.Context, req engine.ReduceRequest) (*engine.ZonalStats, error) {
	img, err := e.image(req.Image)
	if err != nil {
		return nil, err
	}
	if req.Region == nil {
		return nil, fmt.Errorf("%w: reduce without region", engine.ErrEngine)
	}

	band := req.Band
	if band == "" && len(img.Order) == 1 {
		band = img.Order[0]
	}
	maxPixels := req.MaxPixels
	if maxPixels <= 0 {
		maxPixels = e.maxPixels
	}

	return Reduce(img, band, req.Region, req.Scale, req.BestEffort, maxPixels)
}

// MapLayer returns a layer descriptor for a stored image. Tiles are not
// served by the local engine.
func (e *Engine) MapLayer(ctx context.Context, ref engine.ImageRef, vis engine.VisParams) (*engine.Layer, error) {
	if _, err := e.image(ref); err != nil {
		return nil, err
	}
	return &engine.Layer{
		MapID:       ref.ID,
		URLTemplate: "local://images/" + ref.ID + "/tiles/{z}/{x}/{y}",
		Vis:         vis,
	}, nil
}

// Pixels exposes the raw values of a stored image band.
func (e *Engine) Pixels(ref engine.ImageRef, band string) (Grid, []float64, error) {
	img, err := e.image(ref)
	if err != nil {
		return Grid{}, nil, err
	}
	values, ok := img.Bands[band]
	if !ok {
		return Grid{}, nil, fmt.Errorf("%w: image has no band %q", engine.ErrEngine, band)
	}
	return img.Grid, values, nil
}
