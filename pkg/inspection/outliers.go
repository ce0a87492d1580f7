package inspection

import (
	"fmt"
	"math"
	"runtime"
	"sort"

	"gonum.org/v1/gonum/stat"

	"sbeminspect/internal/models"
	"sbeminspect/pkg/npz"
)

// DetectOptions holds the caller-supplied outlier detection policy.
// The component embeds no default threshold judgment; defaults live in
// the config layer.
type DetectOptions struct {
	// WindowBefore and WindowAfter bound the local window in observed
	// points before and after the evaluated one. Windows truncate at
	// the ends of the series and never wrap.
	WindowBefore int
	WindowAfter  int

	// Threshold is the multiple of the local standard deviation beyond
	// which a deviation from the local mean is flagged.
	Threshold float64

	// Workers bounds the parallel fan-out of the all-tiles sweep.
	// Zero means one worker per CPU.
	Workers int
}

// FindOutliers flags the sections whose value deviates from its local
// trend. The series keys need not be contiguous: the window is defined
// over sequence positions of the key-sorted series, so N neighbors
// always means N observed points regardless of numeric gaps. The
// evaluated point is excluded from its own window, and non-finite window
// values are dropped (infinite shifts are the degenerate-value signal
// handled by LocateInfValues). A point with an empty window, or whose
// own value is non-finite, is not evaluable and is never flagged.
//
// When the local standard deviation is zero the comparison degenerates
// to |v - mean| > 0: any nonzero deviation is flagged, and a strictly
// constant series flags nothing.
func FindOutliers(series map[int]float64, windowBefore, windowAfter int, threshold float64) []int {
	nums := make([]int, 0, len(series))
	for num := range series {
		nums = append(nums, num)
	}
	sort.Ints(nums)

	values := make([]float64, len(nums))
	for i, num := range nums {
		values[i] = series[num]
	}

	var flagged []int
	window := make([]float64, 0, windowBefore+windowAfter)
	for i, v := range values {
		if !models.IsFinite(v) {
			continue
		}
		window = window[:0]
		for j := i - windowBefore; j < i; j++ {
			if j >= 0 && models.IsFinite(values[j]) {
				window = append(window, values[j])
			}
		}
		for j := i + 1; j <= i+windowAfter && j < len(values); j++ {
			if models.IsFinite(values[j]) {
				window = append(window, values[j])
			}
		}
		if len(window) == 0 {
			continue
		}
		mean := stat.Mean(window, nil)
		std := stat.PopStdDev(window, nil)
		if math.Abs(v-mean) > threshold*std {
			flagged = append(flagged, nums[i])
		}
	}
	return flagged
}

// ProcessTile runs trace extraction and windowed detection for one tile
// over both axes and both vector components, and maps every flagged
// section back to its tile pair. As in the report semantics of the rest
// of the pipeline, one record is kept per flagged section; a later
// axis/component hit for the same section replaces the earlier one.
func ProcessTile(tileMaps map[int]models.TileIDMap, offsets map[int]*npz.Array, tileID int64, opts DetectOptions) []models.OutlierRecord {
	mapped := make(map[int]models.OutlierRecord)

	for _, axis := range []models.Axis{models.AxisHorizontal, models.AxisVertical} {
		trace := ExtractTrace(tileMaps, offsets, tileID, axis)
		if trace == nil {
			continue
		}
		for comp := 0; comp < 2; comp++ {
			series := trace.Component(comp)
			for _, num := range FindOutliers(series, opts.WindowBefore, opts.WindowAfter, opts.Threshold) {
				pt := trace[num]
				grid := tileMaps[num]

				rec := models.OutlierRecord{
					Section:    num,
					Axis:       axis,
					Component:  comp,
					Row:        pt.Row,
					Col:        pt.Col,
					TileID:     tileID,
					NeighborID: models.NoTile,
				}
				var neighbor int64
				var ok bool
				if axis == models.AxisVertical {
					neighbor, ok = grid.VerticalNeighbor(tileID)
				} else {
					neighbor, ok = grid.At(pt.Row, pt.Col+1)
				}
				if ok {
					rec.NeighborID = neighbor
				}
				mapped[num] = rec
			}
		}
	}

	records := make([]models.OutlierRecord, 0, len(mapped))
	for _, num := range sortedSectionKeys(mapped) {
		records = append(records, mapped[num])
	}
	return records
}

// tileResult carries one tile's records back from a worker.
type tileResult struct {
	tileID  int64
	records []models.OutlierRecord
}

// ProcessAllTiles sweeps every tile ID present anywhere in the
// acquisition (or just tileIDs when non-empty) through ProcessTile.
// Tiles are independent of each other, so the sweep fans out over a
// bounded set of workers with read-only access to the loaded archives;
// results are collected here and returned in tile ID order so a single
// writer can append them to the report.
func ProcessAllTiles(tileMaps map[int]models.TileIDMap, offsets map[int]*npz.Array, tileIDs []int64, opts DetectOptions) ([]models.OutlierRecord, error) {
	ids := tileIDs
	if len(ids) == 0 {
		ids = AllTileIDs(tileMaps)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no tile IDs present in any section")
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(ids) {
		workers = len(ids)
	}

	jobs := make(chan int64)
	results := make(chan tileResult)

	for w := 0; w < workers; w++ {
		go func() {
			for id := range jobs {
				results <- tileResult{tileID: id, records: ProcessTile(tileMaps, offsets, id, opts)}
			}
		}()
	}
	go func() {
		for _, id := range ids {
			jobs <- id
		}
		close(jobs)
	}()

	byTile := make(map[int64][]models.OutlierRecord, len(ids))
	for range ids {
		res := <-results
		byTile[res.tileID] = res.records
		fmt.Printf("\rProcessing tiles: %d/%d complete", len(byTile), len(ids))
	}
	fmt.Println()

	var all []models.OutlierRecord
	for _, id := range ids {
		all = append(all, byTile[id]...)
	}
	return all, nil
}
