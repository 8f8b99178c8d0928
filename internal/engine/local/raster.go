package local

import (
	"math"
	"sort"

	"github.com/satindex/satindex/internal/catalog"
	"github.com/satindex/satindex/internal/region"
)

// Image is an in-memory multi-band raster on a grid.
type Image struct {
	Grid  Grid
	Order []string
	Bands map[string][]float64
}

func newImage(grid Grid, bands []string) *Image {
	img := &Image{
		Grid:  grid,
		Order: append([]string(nil), bands...),
		Bands: make(map[string][]float64, len(bands)),
	}
	for _, b := range bands {
		img.Bands[b] = make([]float64, grid.Len())
	}
	return img
}

// ApplyMask returns a copy of img restricted to the pixels whose quality
// value has none of the mask bits set. Other pixels become NaN in every band.
// A nil mask returns img unchanged.
func ApplyMask(img *Image, quality []float64, mask *catalog.CloudMask) *Image {
	if mask == nil {
		return img
	}

	out := newImage(img.Grid, img.Order)
	for _, b := range img.Order {
		src, dst := img.Bands[b], out.Bands[b]
		for i := range src {
			q := quality[i]
			if math.IsNaN(q) || !mask.Clear(uint32(q)) {
				dst[i] = math.NaN()
				continue
			}
			dst[i] = src[i]
		}
	}
	return out
}

// Median reduces a stack of images to the per-pixel, per-band median of the
// valid values. Pixels without any valid value are NaN.
func Median(grid Grid, bands []string, stack []*Image) *Image {
	out := newImage(grid, bands)
	values := make([]float64, 0, len(stack))

	for _, b := range bands {
		dst := out.Bands[b]
		for i := range dst {
			values = values[:0]
			for _, img := range stack {
				if v := img.Bands[b][i]; !math.IsNaN(v) {
					values = append(values, v)
				}
			}
			dst[i] = median(values)
		}
	}
	return out
}

func median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return math.NaN()
	}
	sort.Float64s(values)
	if n%2 == 1 {
		return values[n/2]
	}
	return (values[n/2-1] + values[n/2]) / 2
}

// Clip sets every pixel whose center lies outside r to NaN.
// Point regions leave the image unchanged.
func Clip(img *Image, r *region.Region) *Image {
	if r == nil || !r.Clippable() {
		return img
	}

	inside := make([]bool, img.Grid.Len())
	for row := 0; row < img.Grid.Height; row++ {
		for col := 0; col < img.Grid.Width; col++ {
			inside[row*img.Grid.Width+col] = r.Contains(img.Grid.Center(row, col))
		}
	}

	out := newImage(img.Grid, img.Order)
	for _, b := range img.Order {
		src, dst := img.Bands[b], out.Bands[b]
		for i := range src {
			if inside[i] {
				dst[i] = src[i]
			} else {
				dst[i] = math.NaN()
			}
		}
	}
	return out
}

type pixelEnv struct {
	bands     map[catalog.Role][]float64
	constants map[string]float64
	i         int
}

func (e *pixelEnv) Band(r catalog.Role) float64 {
	values, ok := e.bands[r]
	if !ok {
		return math.NaN()
	}
	return values[e.i]
}

func (e *pixelEnv) Constant(name string) float64 {
	v, ok := e.constants[name]
	if !ok {
		return math.NaN()
	}
	return v
}

// Evaluate computes expr per pixel into a single band called name.
// Bands the expression does not reference are never read.
func Evaluate(img *Image, expr catalog.Expr, bindings map[catalog.Role]string, constants map[string]float64, name string) *Image {
	env := &pixelEnv{bands: make(map[catalog.Role][]float64), constants: constants}
	for _, role := range catalog.ReferencedRoles(expr) {
		if values, ok := img.Bands[bindings[role]]; ok {
			env.bands[role] = values
		}
	}

	out := newImage(img.Grid, []string{name})
	dst := out.Bands[name]
	for i := range dst {
		env.i = i
		dst[i] = expr.Eval(env)
	}
	return out
}
