package local

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/satindex/satindex/internal/engine"
	"github.com/satindex/satindex/internal/region"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrTooManyPixels is returned when a reduction exceeds its pixel budget
// and best effort was not requested.
var ErrTooManyPixels = fmt.Errorf("%w: too many pixels in region", engine.ErrEngine)

// Reduce computes zonal statistics of one band over a region.
//
// A point region reads the pixel containing the point. A polygon region
// samples the pixels whose centers fall inside it, every stride pixels,
// where stride follows scale over the grid resolution. With bestEffort the
// stride grows until the sample fits maxPixels.
func Reduce(img *Image, band string, r *region.Region, scale float64, bestEffort bool, maxPixels int) (*engine.ZonalStats, error) {
	values, ok := img.Bands[band]
	if !ok {
		return nil, fmt.Errorf("%w: image has no band %q", engine.ErrEngine, band)
	}

	var sample []float64
	if pt, isPoint := r.Point(); isPoint {
		if row, col, inside := img.Grid.Pixel(pt); inside {
			sample = append(sample, values[row*img.Grid.Width+col])
		}
	} else {
		var err error
		sample, err = samplePolygon(img.Grid, values, r, stride(img.Grid, scale), bestEffort, maxPixels)
		if err != nil {
			return nil, err
		}
	}

	return summarize(sample), nil
}

func stride(g Grid, scale float64) int {
	if scale <= 0 || g.Resolution <= 0 {
		return 1
	}
	s := int(math.Round(scale / g.Resolution))
	if s < 1 {
		return 1
	}
	return s
}

func samplePolygon(g Grid, values []float64, r *region.Region, step int, bestEffort bool, maxPixels int) ([]float64, error) {
	b := r.Bound()
	minRow, minCol := g.clamped(orb.Point{b.Min.Lon(), b.Max.Lat()})
	maxRow, maxCol := g.clamped(orb.Point{b.Max.Lon(), b.Min.Lat()})

	rows, cols := maxRow-minRow+1, maxCol-minCol+1
	if maxPixels > 0 {
		for sampled(rows, step)*sampled(cols, step) > maxPixels {
			if !bestEffort {
				return nil, fmt.Errorf("%w: %d pixels exceed the limit of %d", ErrTooManyPixels, rows*cols, maxPixels)
			}
			step++
		}
	}

	var sample []float64
	for row := minRow; row <= maxRow; row += step {
		for col := minCol; col <= maxCol; col += step {
			if !r.Contains(g.Center(row, col)) {
				continue
			}
			sample = append(sample, values[row*g.Width+col])
		}
	}
	return sample, nil
}

func sampled(n, step int) int {
	if n <= 0 {
		return 0
	}
	return (n + step - 1) / step
}

// summarize drops no-data values and computes min, max, mean and the
// population standard deviation of the rest.
func summarize(sample []float64) *engine.ZonalStats {
	valid := sample[:0:0]
	for _, v := range sample {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			valid = append(valid, v)
		}
	}
	if len(valid) == 0 {
		return &engine.ZonalStats{}
	}

	mean, std := stat.PopMeanStdDev(valid, nil)
	return &engine.ZonalStats{
		Min:    engine.Float(floats.Min(valid)),
		Max:    engine.Float(floats.Max(valid)),
		Mean:   engine.Float(mean),
		StdDev: engine.Float(std),
		Count:  len(valid),
	}
}
