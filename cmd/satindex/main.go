// Command satindex runs index evaluations and yearly series from the command
// line against the configured engine, and generates synthetic scene archives
// for the local engine.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/paulmach/orb"
	"github.com/satindex/satindex/internal/app"
	"github.com/satindex/satindex/internal/catalog"
	"github.com/satindex/satindex/internal/config"
	"github.com/satindex/satindex/internal/engine/local"
	"github.com/satindex/satindex/internal/pipeline"
	"github.com/satindex/satindex/internal/region"
	"github.com/schollz/progressbar/v3"
)

const usage = `Usage: satindex <command> [flags]

Commands:
  series    yearly index statistics as CSV
  evaluate  index statistics for one year as JSON
  synth     write a synthetic scene archive for the local engine

Run "satindex <command> -h" for the flags of a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "series":
		err = runSeries(ctx, os.Args[2:], os.Stdout)
	case "evaluate":
		err = runEvaluate(ctx, os.Args[2:], os.Stdout)
	case "synth":
		err = runSynth(os.Args[2:], os.Stdout)
	case "-h", "-help", "--help", "help":
		fmt.Fprint(os.Stdout, usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// regionFlags selects the region of a command.
type regionFlags struct {
	lon, lat  string
	geometry  string
	shapefile string
}

func (f *regionFlags) register(flags *flag.FlagSet) {
	flags.StringVar(&f.lon, "lon", "", "Point longitude")
	flags.StringVar(&f.lat, "lat", "", "Point latitude")
	flags.StringVar(&f.geometry, "geometry", "", "Path to a GeoJSON geometry, feature or feature collection")
	flags.StringVar(&f.shapefile, "shapefile", "", "Path to a zipped shapefile")
}

// resolve returns the selected region. A shapefile takes precedence over a
// geometry, and a geometry over a point.
func (f *regionFlags) resolve() (*region.Region, error) {
	switch {
	case f.shapefile != "":
		file, err := os.Open(f.shapefile)
		if err != nil {
			return nil, err
		}
		defer file.Close()

		info, err := file.Stat()
		if err != nil {
			return nil, err
		}
		return region.FromShapefileZip(file, info.Size())

	case f.geometry != "":
		data, err := os.ReadFile(f.geometry)
		if err != nil {
			return nil, err
		}
		return region.FromGeoJSON(data)

	case f.lon != "" || f.lat != "":
		lon, err := strconv.ParseFloat(f.lon, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: lon %q: %v", region.ErrInvalidGeometry, f.lon, err)
		}
		lat, err := strconv.ParseFloat(f.lat, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: lat %q: %v", region.ErrInvalidGeometry, f.lat, err)
		}
		return region.NewPoint(lon, lat)

	default:
		return nil, region.ErrMissingRegion
	}
}

// loadConfig reads .env and the environment. The API base URL only matters
// to the server, so a placeholder is accepted here.
func loadConfig() (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	if os.Getenv("API_BASE_URL") == "" {
		os.Setenv("API_BASE_URL", "http://localhost")
	}
	return config.Load()
}

func newPipeline() (*pipeline.Pipeline, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := app.SetupLogger(os.Stderr, cfg.Logging.Level, "text")
	return app.NewPipeline(cfg, logger)
}

func runSeries(ctx context.Context, args []string, out io.Writer) error {
	flags := flag.NewFlagSet("series", flag.ContinueOnError)
	var (
		dataset  = flags.String("dataset", "Landsat-8", "Dataset name")
		index    = flags.String("index", "NDVI", "Index name")
		start    = flags.Int("start", 0, "First year (required)")
		end      = flags.Int("end", 0, "Last year (required)")
		fields   = flags.String("fields", "min,mean,max", "Comma separated statistics")
		output   = flags.String("o", "", "Write CSV to this file instead of stdout")
		progress = flags.Bool("progress", true, "Show a progress bar on stderr")
		rf       regionFlags
	)
	rf.register(flags)
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *start == 0 || *end == 0 {
		flags.Usage()
		return fmt.Errorf("-start and -end are required")
	}

	selected, err := pipeline.ParseFields(splitList(*fields))
	if err != nil {
		return err
	}
	r, err := rf.resolve()
	if err != nil {
		return err
	}

	p, closeFn, err := newPipeline()
	if err != nil {
		return err
	}
	defer closeFn()

	var opts []pipeline.SeriesOption
	if *progress && *end >= *start {
		bar := progressbar.Default(int64(*end-*start+1), fmt.Sprintf("%s %s", *dataset, *index))
		defer bar.Finish()
		opts = append(opts, pipeline.OnYear(func(pipeline.YearValues) {
			bar.Add(1)
		}))
	}

	series, err := p.Series(ctx, *dataset, *index, *start, *end, r, selected, opts...)
	if err != nil {
		return err
	}

	if *output != "" {
		file, err := os.Create(*output)
		if err != nil {
			return err
		}
		defer file.Close()
		out = file
	}
	return series.WriteCSV(out)
}

func runEvaluate(ctx context.Context, args []string, out io.Writer) error {
	flags := flag.NewFlagSet("evaluate", flag.ContinueOnError)
	var (
		dataset = flags.String("dataset", "Landsat-8", "Dataset name")
		index   = flags.String("index", "NDVI", "Index name")
		year    = flags.Int("year", 0, "Year (required)")
		clip    = flags.Bool("clip", false, "Clip the composite to a polygon region")
		rf      regionFlags
	)
	rf.register(flags)
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *year == 0 {
		flags.Usage()
		return fmt.Errorf("-year is required")
	}

	r, err := rf.resolve()
	if err != nil {
		return err
	}

	p, closeFn, err := newPipeline()
	if err != nil {
		return err
	}
	defer closeFn()

	result := map[string]any{}
	ev, err := p.Evaluate(ctx, *dataset, *index, *year, r, *clip)
	switch {
	case errors.Is(err, pipeline.ErrEmptyResult):
		result["status"] = pipeline.StatusEmpty
		result["message"] = err.Error()
	case err != nil:
		return err
	default:
		result["status"] = ev.Status()
		result["evaluation"] = ev
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func runSynth(args []string, out io.Writer) error {
	flags := flag.NewFlagSet("synth", flag.ContinueOnError)
	var (
		output = flags.String("o", "data/archive.msgpack", "Archive path")
		bbox   = flags.String("bbox", "9.5,44.5,11.5,46.5", "Bounding box west,south,east,north")
		pixel  = flags.Float64("pixel", 0.01, "Pixel size in degrees")
		years  = flags.String("years", "2014-2023", "Inclusive year range first-last")
		scenes = flags.Int("scenes", 6, "Scenes per dataset year")
		cloud  = flags.Float64("cloud", 0.1, "Cloud fraction between 0 and 1")
		seed   = flags.Int64("seed", 1, "Random seed")
	)
	if err := flags.Parse(args); err != nil {
		return err
	}

	bound, err := parseBBox(*bbox)
	if err != nil {
		return err
	}
	yr, err := parseYears(*years)
	if err != nil {
		return err
	}

	archive, err := local.GenerateArchive(catalog.BuiltinDatasets(), local.SyntheticOptions{
		Bound:         bound,
		PixelSize:     *pixel,
		Years:         yr,
		ScenesPerYear: *scenes,
		CloudFraction: *cloud,
		Seed:          *seed,
	})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(*output), 0o755); err != nil {
		return err
	}
	if err := local.SaveArchive(*output, archive); err != nil {
		return err
	}

	total := 0
	for _, c := range archive.Collections {
		total += len(c.Scenes)
	}
	fmt.Fprintf(out, "wrote %d collections, %d scenes to %s\n", len(archive.Collections), total, *output)
	return nil
}

func splitList(s string) []string {
	var items []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func parseBBox(s string) (orb.Bound, error) {
	parts := splitList(s)
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("bbox needs 4 values, got %d", len(parts))
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("bbox value %q: %w", p, err)
		}
		v[i] = f
	}
	if v[0] >= v[2] || v[1] >= v[3] {
		return orb.Bound{}, fmt.Errorf("bbox %s is empty", s)
	}
	return orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, nil
}

func parseYears(s string) (catalog.YearRange, error) {
	first, last, found := strings.Cut(s, "-")
	if !found {
		last = first
	}
	lo, err := strconv.Atoi(strings.TrimSpace(first))
	if err != nil {
		return catalog.YearRange{}, fmt.Errorf("year %q: %w", first, err)
	}
	hi, err := strconv.Atoi(strings.TrimSpace(last))
	if err != nil {
		return catalog.YearRange{}, fmt.Errorf("year %q: %w", last, err)
	}
	if lo > hi {
		return catalog.YearRange{}, fmt.Errorf("%w: %d is after %d", pipeline.ErrInvalidRange, lo, hi)
	}
	return catalog.YearRange{Min: lo, Max: hi}, nil
}
