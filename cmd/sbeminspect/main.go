package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"sbeminspect/internal/models"
	"sbeminspect/pkg/config"
	"sbeminspect/pkg/inspection"
	"sbeminspect/pkg/visualization"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: %s <command> [flags]

Commands:
  aggregate        collect all coarse offsets and tile ID maps into the
                   _inspect archives, with missing-section reports
  locate-inf       report every infinite value in the aggregated offset
                   tensor with its resolved tile pair
  detect-outliers  flag tile-pair shift traces deviating from their local
                   temporal trend
  plot-traces      render per-tile trace plots with outliers highlighted
  init-config      write a default configuration file

Run '%s <command> -h' for command flags.
`, os.Args[0], os.Args[0])
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "aggregate":
		runAggregate(args)
	case "locate-inf":
		runLocateInf(args)
	case "detect-outliers":
		runDetectOutliers(args)
	case "plot-traces":
		runPlotTraces(args)
	case "init-config":
		runInitConfig(args)
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

// loadSetup resolves the config file and experiment root shared by all
// analysis commands.
func loadSetup(configPath, rootOverride string) (*config.Config, *inspection.Inspection) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	root := cfg.Experiment.SBEMRootDir
	if rootOverride != "" {
		root = rootOverride
	}
	if root == "" {
		log.Fatalf("No experiment root: set experiment.sbemRootDir in %s or pass -root", configPath)
	}
	return cfg, inspection.New(root)
}

func runAggregate(args []string) {
	fs := flag.NewFlagSet("aggregate", flag.ExitOnError)
	configPath := fs.String("config", "inspection_config.yaml", "path to the YAML configuration file")
	root := fs.String("root", "", "experiment root directory (overrides config)")
	fs.Parse(args)

	_, ins := loadSetup(*configPath, *root)

	startTime := time.Now()
	if err := ins.BackupOffsets(); err != nil {
		log.Fatalf("Offset aggregation failed: %v", err)
	}
	if err := ins.BackupTileIDMaps(); err != nil {
		log.Fatalf("Tile ID map aggregation failed: %v", err)
	}
	fmt.Printf("Aggregation completed in %.2f seconds\n", time.Since(startTime).Seconds())
}

func runLocateInf(args []string) {
	fs := flag.NewFlagSet("locate-inf", flag.ExitOnError)
	configPath := fs.String("config", "inspection_config.yaml", "path to the YAML configuration file")
	root := fs.String("root", "", "experiment root directory (overrides config)")
	fs.Parse(args)

	_, ins := loadSetup(*configPath, *root)

	offsets, err := ins.LoadOffsets()
	if err != nil {
		log.Fatalf("Failed to load offset archive: %v", err)
	}
	tileMaps, err := ins.LoadTileIDMaps()
	if err != nil {
		log.Fatalf("Failed to load tile ID map archive: %v", err)
	}

	records := inspection.LocateInfValues(offsets, tileMaps)
	path, err := ins.WriteInfReport(records)
	if err != nil {
		log.Fatalf("Failed to write inf report: %v", err)
	}
	fmt.Printf("Found %d infinite values across %d sections\n", len(records), len(offsets))
	fmt.Printf("Report written to: %s\n", path)
}

func runDetectOutliers(args []string) {
	fs := flag.NewFlagSet("detect-outliers", flag.ExitOnError)
	configPath := fs.String("config", "inspection_config.yaml", "path to the YAML configuration file")
	root := fs.String("root", "", "experiment root directory (overrides config)")
	nBefore := fs.Int("n-before", -1, "observed sections before the evaluated one in the local window (default from config)")
	nAfter := fs.Int("n-after", -1, "observed sections after the evaluated one in the local window (default from config)")
	thresh := fs.Float64("thresh", -1, "stddev multiplier separating outliers from the local mean (default from config)")
	workers := fs.Int("workers", 0, "parallel workers for the tile sweep (default from config)")
	tileIDs := fs.String("tile-ids", "", "comma-separated tile IDs to process (default: all)")
	fs.Parse(args)

	cfg, ins := loadSetup(*configPath, *root)
	opts := detectOptions(cfg, *nBefore, *nAfter, *thresh, *workers)

	offsets, err := ins.LoadOffsets()
	if err != nil {
		log.Fatalf("Failed to load offset archive: %v", err)
	}
	tileMaps, err := ins.LoadTileIDMaps()
	if err != nil {
		log.Fatalf("Failed to load tile ID map archive: %v", err)
	}

	ids, err := parseTileIDs(*tileIDs)
	if err != nil {
		log.Fatalf("Invalid -tile-ids: %v", err)
	}

	records, err := inspection.ProcessAllTiles(tileMaps, offsets, ids, opts)
	if err != nil {
		log.Fatalf("Outlier detection failed: %v", err)
	}
	if len(records) == 0 {
		fmt.Println("No outliers found")
		return
	}
	path, err := ins.AppendOutlierReport(records)
	if err != nil {
		log.Fatalf("Failed to write outlier report: %v", err)
	}
	fmt.Printf("Flagged %d observations\n", len(records))
	fmt.Printf("Report appended to: %s\n", path)
}

func runPlotTraces(args []string) {
	fs := flag.NewFlagSet("plot-traces", flag.ExitOnError)
	configPath := fs.String("config", "inspection_config.yaml", "path to the YAML configuration file")
	root := fs.String("root", "", "experiment root directory (overrides config)")
	nBefore := fs.Int("n-before", -1, "observed sections before the evaluated one in the local window (default from config)")
	nAfter := fs.Int("n-after", -1, "observed sections after the evaluated one in the local window (default from config)")
	thresh := fs.Float64("thresh", -1, "stddev multiplier separating outliers from the local mean (default from config)")
	tileIDs := fs.String("tile-ids", "", "comma-separated tile IDs to plot (required)")
	fs.Parse(args)

	cfg, ins := loadSetup(*configPath, *root)
	opts := detectOptions(cfg, *nBefore, *nAfter, *thresh, 0)

	ids, err := parseTileIDs(*tileIDs)
	if err != nil {
		log.Fatalf("Invalid -tile-ids: %v", err)
	}
	if len(ids) == 0 {
		log.Fatalf("plot-traces requires -tile-ids")
	}

	offsets, err := ins.LoadOffsets()
	if err != nil {
		log.Fatalf("Failed to load offset archive: %v", err)
	}
	tileMaps, err := ins.LoadTileIDMaps()
	if err != nil {
		log.Fatalf("Failed to load tile ID map archive: %v", err)
	}

	outDir := cfg.Plot.OutputDir
	if !filepath.IsAbs(outDir) {
		outDir = filepath.Join(ins.DirInspect, outDir)
	}

	for _, id := range ids {
		// Flag once per tile so the plots mirror the report.
		flagged := make(map[int]bool)
		for _, rec := range inspection.ProcessTile(tileMaps, offsets, id, opts) {
			flagged[rec.Section] = true
		}
		for _, axis := range []models.Axis{models.AxisHorizontal, models.AxisVertical} {
			trace := inspection.ExtractTrace(tileMaps, offsets, id, axis)
			if trace == nil {
				log.Printf("Tile %d not present in any section, skipping", id)
				break
			}
			path, err := visualization.PlotTrace(trace, flagged, id, axis, outDir)
			if err != nil {
				log.Fatalf("Failed to plot tile %d: %v", id, err)
			}
			fmt.Printf("Wrote %s\n", path)
		}
	}
}

func runInitConfig(args []string) {
	fs := flag.NewFlagSet("init-config", flag.ExitOnError)
	configPath := fs.String("config", "inspection_config.yaml", "path of the configuration file to create")
	fs.Parse(args)

	if err := config.CreateDefaultConfigFile(*configPath); err != nil {
		log.Fatalf("Failed to create config: %v", err)
	}
	fmt.Printf("Default configuration written to: %s\n", *configPath)
}

// detectOptions merges command line overrides with config defaults.
// Negative flag values mean "not set".
func detectOptions(cfg *config.Config, nBefore, nAfter int, thresh float64, workers int) inspection.DetectOptions {
	opts := inspection.DetectOptions{
		WindowBefore: cfg.Detection.WindowBefore,
		WindowAfter:  cfg.Detection.WindowAfter,
		Threshold:    cfg.Detection.Threshold,
		Workers:      cfg.Detection.Workers,
	}
	if nBefore >= 0 {
		opts.WindowBefore = nBefore
	}
	if nAfter >= 0 {
		opts.WindowAfter = nAfter
	}
	if thresh >= 0 {
		opts.Threshold = thresh
	}
	if workers > 0 {
		opts.Workers = workers
	}
	return opts
}

// parseTileIDs parses a comma-separated ID list; empty input means all.
func parseTileIDs(s string) ([]int64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("tile ID %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
