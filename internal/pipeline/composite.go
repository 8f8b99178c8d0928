package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/satindex/satindex/internal/catalog"
	"github.com/satindex/satindex/internal/engine"
	"github.com/satindex/satindex/internal/region"
)

// Composite is a median composite of one dataset year over a region.
type Composite struct {
	Dataset    string          `json:"dataset"`
	Year       int             `json:"year"`
	Image      engine.ImageRef `json:"image"`
	SceneCount int             `json:"scene_count"`
	Clipped    bool            `json:"clipped"`
}

// Composite searches the scenes of dataset acquired during year over r,
// applies the dataset mask policy and reduces them to their median.
// With clip the result is clipped to a polygon region.
//
// It returns catalog.ErrNotFound, ErrInvalidRange or region.ErrMissingRegion
// before contacting the engine, and ErrEmptyResult when no scene qualifies.
func (p *Pipeline) Composite(ctx context.Context, dataset string, year int, r *region.Region, clip bool) (*Composite, error) {
	profile, err := p.resolve(dataset, year, r)
	if err != nil {
		return nil, err
	}
	comp, _, err := p.composite(ctx, profile, year, r, clip)
	return comp, err
}

func compositeKey(profile *catalog.SatelliteProfile, year int, r *region.Region, clip bool) string {
	return fmt.Sprintf("%s|%d|%t|%s", profile.Name, year, clip && r.Clippable(), r.WKT())
}

type memoResult struct {
	comp   *Composite
	cached bool
}

// composite returns the composite of a dataset year, reporting whether it
// came from the memo. A build shared by concurrent callers runs detached
// from the cancellation of the caller that started it; each caller still
// stops waiting when its own context is done.
func (p *Pipeline) composite(ctx context.Context, profile *catalog.SatelliteProfile, year int, r *region.Region, clip bool) (*Composite, bool, error) {
	if p.memo == nil {
		comp, err := p.buildComposite(ctx, profile, year, r, clip)
		return comp, false, err
	}

	key := compositeKey(profile, year, r, clip)
	if c, err := p.memo.Get(key); err == nil {
		p.logger.DebugContext(ctx, "composite memo hit",
			slog.String("dataset", profile.Name),
			slog.Int("year", year),
		)
		return c, true, nil
	}

	buildCtx := context.WithoutCancel(ctx)
	ch := p.builds.DoChan(key, func() (any, error) {
		// a flight for key may have finished since the lookup above
		if c, err := p.memo.Get(key); err == nil {
			return memoResult{comp: c, cached: true}, nil
		}
		c, err := p.buildComposite(buildCtx, profile, year, r, clip)
		if err != nil {
			return nil, err
		}
		p.memo.Put(key, c)
		return memoResult{comp: c}, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		mr := res.Val.(memoResult)
		return mr.comp, mr.cached, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// forget drops a memoized composite whose image the engine no longer holds.
func (p *Pipeline) forget(profile *catalog.SatelliteProfile, year int, r *region.Region, clip bool) {
	if p.memo != nil {
		p.memo.Delete(compositeKey(profile, year, r, clip))
	}
}

func (p *Pipeline) buildComposite(ctx context.Context, profile *catalog.SatelliteProfile, year int, r *region.Region, clip bool) (*Composite, error) {
	start, end := YearWindow(year)
	policy := PolicyFor(profile)

	scenes, err := p.engine.SearchScenes(ctx, engine.SceneQuery{
		Collection: profile.CollectionID,
		Region:     r,
		Start:      start,
		End:        end,
		Filters:    policy.SceneFilters,
	})
	if err != nil {
		return nil, fmt.Errorf("scene search failed: %w", err)
	}
	if len(scenes) == 0 {
		p.logger.InfoContext(ctx, "no scenes for composite",
			slog.String("dataset", profile.Name),
			slog.Int("year", year),
			slog.String("region", r.Kind().String()),
		)
		return nil, fmt.Errorf("%w: no %s scenes in %d over the region", ErrEmptyResult, profile.Name, year)
	}

	ids := make([]string, len(scenes))
	for i, s := range scenes {
		ids[i] = s.ID
	}

	req := engine.CompositeRequest{
		Collection: profile.CollectionID,
		Scenes:     ids,
		Bands:      profile.SourceBands(),
		Mask:       policy.PixelMask,
	}
	if clip {
		req.Clip = r
	}

	img, err := p.engine.Composite(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("composite failed: %w", err)
	}

	p.logger.DebugContext(ctx, "composite built",
		slog.String("dataset", profile.Name),
		slog.Int("year", year),
		slog.Int("scene_count", len(ids)),
		slog.Bool("masked", !policy.None()),
		slog.String("image", img.ID),
	)

	return &Composite{
		Dataset:    profile.Name,
		Year:       year,
		Image:      *img,
		SceneCount: len(ids),
		Clipped:    clip && r.Clippable(),
	}, nil
}
