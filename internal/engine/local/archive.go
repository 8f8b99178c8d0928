// Package local implements the compute engine in process over a scene
// archive file. Every scene of a collection shares the collection grid;
// NaN marks no-data.
package local

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/paulmach/orb"
	"github.com/vmihailenco/msgpack/v5"
)

// Archive is the on-disk scene archive, encoded as MessagePack.
type Archive struct {
	Collections []*Collection `msgpack:"collections"`
}

// Collection is a set of co-registered scenes.
type Collection struct {
	ID     string   `msgpack:"id"`
	Grid   Grid     `msgpack:"grid"`
	Scenes []*Scene `msgpack:"scenes"`
}

// Scene is one acquisition. Each band is a row-major raster of Grid.Len()
// values.
type Scene struct {
	ID         string               `msgpack:"id"`
	Acquired   time.Time            `msgpack:"acquired"`
	Properties map[string]float64   `msgpack:"properties"`
	Bands      map[string][]float64 `msgpack:"bands"`
}

// Grid is a north-up lon/lat raster grid.
type Grid struct {
	West      float64 `msgpack:"west"`
	North     float64 `msgpack:"north"`
	PixelSize float64 `msgpack:"pixel_size"` // degrees
	Width     int     `msgpack:"width"`
	Height    int     `msgpack:"height"`
	// Resolution is the nominal ground sample distance in metres.
	Resolution float64 `msgpack:"resolution"`
}

// Len returns the number of pixels.
func (g Grid) Len() int {
	return g.Width * g.Height
}

// Bound returns the grid extent.
func (g Grid) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{g.West, g.North - float64(g.Height)*g.PixelSize},
		Max: orb.Point{g.West + float64(g.Width)*g.PixelSize, g.North},
	}
}

// Center returns the lon/lat of the center of pixel (row, col).
func (g Grid) Center(row, col int) orb.Point {
	return orb.Point{
		g.West + (float64(col)+0.5)*g.PixelSize,
		g.North - (float64(row)+0.5)*g.PixelSize,
	}
}

// Pixel returns the row and column containing p.
func (g Grid) Pixel(p orb.Point) (row, col int, ok bool) {
	col = int(math.Floor((p.Lon() - g.West) / g.PixelSize))
	row = int(math.Floor((g.North - p.Lat()) / g.PixelSize))
	if col < 0 || col >= g.Width || row < 0 || row >= g.Height {
		return 0, 0, false
	}
	return row, col, true
}

// Validate checks that every scene band matches the grid.
func (c *Collection) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("collection id is required")
	}
	if c.Grid.Width <= 0 || c.Grid.Height <= 0 || c.Grid.PixelSize <= 0 {
		return fmt.Errorf("collection %s: invalid grid %dx%d @ %g", c.ID, c.Grid.Width, c.Grid.Height, c.Grid.PixelSize)
	}
	for _, s := range c.Scenes {
		for band, values := range s.Bands {
			if len(values) != c.Grid.Len() {
				return fmt.Errorf("collection %s: scene %s band %s has %d pixels, want %d",
					c.ID, s.ID, band, len(values), c.Grid.Len())
			}
		}
	}
	return nil
}

// ReadArchive decodes an archive.
func ReadArchive(r io.Reader) (*Archive, error) {
	var a Archive
	if err := msgpack.NewDecoder(bufio.NewReader(r)).Decode(&a); err != nil {
		return nil, fmt.Errorf("failed to decode scene archive: %w", err)
	}
	for _, c := range a.Collections {
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}
	return &a, nil
}

// WriteArchive encodes an archive.
func WriteArchive(w io.Writer, a *Archive) error {
	bw := bufio.NewWriter(w)
	if err := msgpack.NewEncoder(bw).Encode(a); err != nil {
		return fmt.Errorf("failed to encode scene archive: %w", err)
	}
	return bw.Flush()
}

// LoadArchive reads an archive file.
func LoadArchive(path string) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open scene archive: %w", err)
	}
	defer f.Close()
	return ReadArchive(f)
}

// SaveArchive writes an archive file.
func SaveArchive(path string, a *Archive) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create scene archive: %w", err)
	}
	if err := WriteArchive(f, a); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// clamped returns the pixel containing p, clamped to the grid.
func (g Grid) clamped(p orb.Point) (row, col int) {
	col = int(math.Floor((p.Lon() - g.West) / g.PixelSize))
	row = int(math.Floor((g.North - p.Lat()) / g.PixelSize))
	return min(max(row, 0), g.Height-1), min(max(col, 0), g.Width-1)
}
