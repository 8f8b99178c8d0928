package region

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// MaxShapefileSize bounds the extracted size of the .shp member.
const MaxShapefileSize = 64 << 20

// FromShapefileZip reads a zipped shapefile and returns the union of its
// polygon features as one region. Coordinates are taken as lon/lat (WGS84).
func FromShapefileZip(r io.ReaderAt, size int64) (*Region, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("%w: not a zip archive: %v", ErrMalformedUpload, err)
	}

	var member *zip.File
	for _, f := range zr.File {
		name := path.Base(f.Name)
		if f.FileInfo().IsDir() || strings.HasPrefix(f.Name, "__MACOSX/") || strings.HasPrefix(name, ".") {
			continue
		}
		if strings.EqualFold(path.Ext(name), ".shp") {
			member = f
			break
		}
	}
	if member == nil {
		return nil, fmt.Errorf("%w: shapefile (.shp) not found in the uploaded zip file", ErrMalformedUpload)
	}

	dir, err := os.MkdirTemp("", "satindex-shp-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(dir)

	shpPath := filepath.Join(dir, "upload.shp")
	if err := extract(member, shpPath); err != nil {
		return nil, err
	}

	mp, err := readPolygons(shpPath)
	if err != nil {
		return nil, err
	}
	if len(mp) == 0 {
		return nil, fmt.Errorf("%w: shapefile has no polygon features", ErrMalformedUpload)
	}
	return NewPolygon(mp)
}

func extract(f *zip.File, dst string) error {
	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: failed to open %s: %v", ErrMalformedUpload, f.Name, err)
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	defer out.Close()

	n, err := io.Copy(out, io.LimitReader(src, MaxShapefileSize+1))
	if err != nil {
		return fmt.Errorf("%w: failed to extract %s: %v", ErrMalformedUpload, f.Name, err)
	}
	if n > MaxShapefileSize {
		return fmt.Errorf("%w: %s exceeds %d bytes", ErrMalformedUpload, f.Name, MaxShapefileSize)
	}
	return nil
}

func readPolygons(shpPath string) (mp orb.MultiPolygon, err error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedUpload, err)
	}
	defer reader.Close()

	// go-shp panics on some truncated records
	defer func() {
		if rec := recover(); rec != nil {
			mp, err = nil, fmt.Errorf("%w: corrupt shapefile: %v", ErrMalformedUpload, rec)
		}
	}()

	for reader.Next() {
		_, shape := reader.Shape()
		switch s := shape.(type) {
		case *shp.Polygon:
			mp = append(mp, ringsToPolygons(s.Parts, s.Points)...)
		case *shp.PolygonZ:
			mp = append(mp, ringsToPolygons(s.Parts, s.Points)...)
		case *shp.PolygonM:
			mp = append(mp, ringsToPolygons(s.Parts, s.Points)...)
		}
	}
	if err := reader.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedUpload, err)
	}
	return mp, nil
}

// ringsToPolygons groups shapefile rings into polygons. Clockwise rings are
// outer boundaries; counter-clockwise rings are holes of the outer ring that
// contains them.
func ringsToPolygons(parts []int32, points []shp.Point) []orb.Polygon {
	var polygons []orb.Polygon
	var holes []orb.Ring

	for i := range parts {
		start := int(parts[i])
		end := len(points)
		if i+1 < len(parts) {
			end = int(parts[i+1])
		}
		if start < 0 || end > len(points) || end-start < 4 {
			continue
		}

		ring := make(orb.Ring, 0, end-start)
		for _, p := range points[start:end] {
			ring = append(ring, orb.Point{p.X, p.Y})
		}

		if ring.Orientation() == orb.CW {
			polygons = append(polygons, orb.Polygon{ring})
		} else {
			holes = append(holes, ring)
		}
	}

	for _, hole := range holes {
		placed := false
		for i := range polygons {
			if planar.RingContains(polygons[i][0], hole[0]) {
				polygons[i] = append(polygons[i], hole)
				placed = true
				break
			}
		}
		// a lone counter-clockwise ring is an outer ring written the other way
		if !placed {
			polygons = append(polygons, orb.Polygon{hole})
		}
	}
	return polygons
}
