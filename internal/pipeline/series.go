package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/satindex/satindex/internal/engine"
	"github.com/satindex/satindex/internal/region"
	"golang.org/x/sync/errgroup"
)

// Field is a statistic recorded in a series.
type Field string

const (
	FieldMin  Field = "min"
	FieldMean Field = "mean"
	FieldMax  Field = "max"
)

// AllFields lists the series fields in display order.
var AllFields = []Field{FieldMin, FieldMean, FieldMax}

// ParseFields validates field names. No names selects every field.
func ParseFields(names []string) ([]Field, error) {
	if len(names) == 0 {
		return AllFields, nil
	}

	seen := make(map[Field]bool)
	var fields []Field
	for _, name := range names {
		f := Field(strings.ToLower(strings.TrimSpace(name)))
		switch f {
		case FieldMin, FieldMean, FieldMax:
		default:
			return nil, fmt.Errorf("%w: unknown statistic field %q", ErrInvalidInput, name)
		}
		if !seen[f] {
			seen[f] = true
			fields = append(fields, f)
		}
	}
	return fields, nil
}

func (f Field) pick(s engine.ZonalStats) *float64 {
	switch f {
	case FieldMin:
		return s.Min
	case FieldMax:
		return s.Max
	default:
		return s.Mean
	}
}

// YearValues is one entry of a series.
type YearValues struct {
	Year   int                `json:"year"`
	Status Status             `json:"status"`
	Values map[Field]*float64 `json:"values"`
}

// YearlySeries holds one entry per year, ascending.
type YearlySeries struct {
	Dataset string       `json:"dataset"`
	Index   string       `json:"index"`
	Fields  []Field      `json:"fields"`
	Years   []YearValues `json:"years"`
}

// SeriesOption customizes a Series call.
type SeriesOption func(*seriesConfig)

type seriesConfig struct {
	onYear func(YearValues)
}

// OnYear registers a callback invoked as each year completes, in
// completion order. It may be called concurrently.
func OnYear(fn func(YearValues)) SeriesOption {
	return func(c *seriesConfig) {
		c.onYear = fn
	}
}

// CheckYearRange returns ErrInvalidRange when startYear is after endYear.
func CheckYearRange(startYear, endYear int) error {
	if startYear > endYear {
		return fmt.Errorf("%w: start year %d is after end year %d", ErrInvalidRange, startYear, endYear)
	}
	return nil
}

// Series evaluates index for every year in [startYear, endYear] without
// clipping and records the requested fields. A year without scenes or
// without valid pixels is recorded as StatusEmpty. Years run concurrently up
// to the configured limit; the first hard failure cancels the rest.
func (p *Pipeline) Series(ctx context.Context, dataset, index string, startYear, endYear int, r *region.Region, fields []Field, opts ...SeriesOption) (*YearlySeries, error) {
	if err := CheckYearRange(startYear, endYear); err != nil {
		return nil, err
	}

	var cfg seriesConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(fields) == 0 {
		fields = AllFields
	}

	profile, err := p.datasets.Profile(dataset)
	if err != nil {
		return nil, err
	}
	def, err := p.indices.Index(index)
	if err != nil {
		return nil, err
	}
	if !profile.Years.Contains(startYear) || !profile.Years.Contains(endYear) {
		return nil, fmt.Errorf("%w: %s covers %d-%d, not %d-%d",
			ErrInvalidRange, profile.Name, profile.Years.Min, profile.Years.Max, startYear, endYear)
	}
	if r == nil {
		return nil, region.ErrMissingRegion
	}

	p.logger.InfoContext(ctx, "assembling series",
		slog.String("dataset", profile.Name),
		slog.String("index", def.Name),
		slog.Int("start_year", startYear),
		slog.Int("end_year", endYear),
	)

	years := make([]YearValues, endYear-startYear+1)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxConcurrentYears)

	for i := range years {
		year := startYear + i
		g.Go(func() error {
			entry := YearValues{Year: year, Status: StatusEmpty, Values: make(map[Field]*float64, len(fields))}

			ev, err := p.evaluate(gctx, profile, def, year, r, false)
			switch {
			case errors.Is(err, ErrEmptyResult):
			case err != nil:
				return fmt.Errorf("year %d: %w", year, err)
			default:
				entry.Status = ev.Status()
				for _, f := range fields {
					entry.Values[f] = f.pick(ev.Stats)
				}
			}
			for _, f := range fields {
				if _, ok := entry.Values[f]; !ok {
					entry.Values[f] = nil
				}
			}

			years[i] = entry
			if cfg.onYear != nil {
				cfg.onYear(entry)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &YearlySeries{
		Dataset: profile.Name,
		Index:   def.Name,
		Fields:  fields,
		Years:   years,
	}, nil
}
