package inspection

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"sbeminspect/internal/models"
	"sbeminspect/pkg/npz"
)

// Per-section input file names produced by the upstream pipeline stages.
const (
	tileIDMapFile  = "tile_id_map.json"
	coarseJSONFile = "cx_cy.json"
	coarseNPZFile  = "coarse.npz"
)

// Output artifacts under the experiment's _inspect directory.
const (
	offsetsArchive        = "all_offsets.npz"
	tileMapsArchive       = "all_tile_id_maps.npz"
	offsetsMissingReport  = "all_offsets_missing_files.txt"
	tileMapsMissingReport = "all_missing_tile_id_maps.txt"
	infValsReport         = "inf_vals.txt"
	outliersReport        = "coarse_offset_outliers.txt"
)

// Inspection anchors one analysis run to an experiment root. It holds
// only derived paths; all loaded data is passed explicitly between the
// aggregation and analysis operations so each run stays idempotent.
type Inspection struct {
	Root        string
	DirSections string
	DirInspect  string

	PathOffsets  string
	PathTileMaps string
}

// New creates an Inspection rooted at the (normalized) experiment path.
func New(root string) *Inspection {
	root = NormalizePath(root)
	dirInspect := filepath.Join(root, "_inspect")
	return &Inspection{
		Root:         root,
		DirSections:  filepath.Join(root, "sections"),
		DirInspect:   dirInspect,
		PathOffsets:  filepath.Join(dirInspect, offsetsArchive),
		PathTileMaps: filepath.Join(dirInspect, tileMapsArchive),
	}
}

// SectionDirs lists the experiment's section directories in section
// number order.
func (ins *Inspection) SectionDirs() ([]string, error) {
	return ListSectionDirs(ins.DirSections)
}

// AggregateOffsets loads every section's coarse offset file into one
// keyed collection. Sections without an offset file are returned in
// missing and skipped; a file that exists but cannot be parsed fails the
// whole pass.
func AggregateOffsets(sectionDirs []string) (offsets map[int]*npz.Array, missing []int, err error) {
	offsets = make(map[int]*npz.Array)
	for _, dir := range sectionDirs {
		num, ok := SectionNumber(dir)
		if !ok {
			continue
		}
		path, ok := findCoarseFile(dir)
		if !ok {
			missing = append(missing, num)
			continue
		}
		cx, cy, err := readCoarseFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("section s%d: %w", num, err)
		}
		stacked, err := stackOffsets(cx, cy)
		if err != nil {
			return nil, nil, fmt.Errorf("section s%d: %w", num, err)
		}
		offsets[num] = stacked
	}
	return offsets, missing, nil
}

// findCoarseFile locates the per-section offset file, preferring the
// JSON form over the archive form when both exist.
func findCoarseFile(sectionDir string) (string, bool) {
	for _, name := range []string{coarseJSONFile, coarseNPZFile} {
		path := filepath.Join(sectionDir, name)
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}

// readCoarseFile parses cx and cy from either supported encoding and
// squeezes them to the canonical rank-3 shape (component, row, col).
func readCoarseFile(path string) (cx, cy *npz.Array, err error) {
	switch filepath.Ext(path) {
	case ".json":
		cx, cy, err = readCoarseJSON(path)
	case ".npz":
		cx, cy, err = readCoarseNPZ(path)
	default:
		return nil, nil, fmt.Errorf("unsupported coarse offset format %q", path)
	}
	if err != nil {
		return nil, nil, err
	}
	if err := cx.SqueezeTo(3); err != nil {
		return nil, nil, fmt.Errorf("%s: cx: %w", path, err)
	}
	if err := cy.SqueezeTo(3); err != nil {
		return nil, nil, fmt.Errorf("%s: cy: %w", path, err)
	}
	return cx, cy, nil
}

// readCoarseJSON parses a cx_cy.json document. The producer serializes
// with Python's json module, which emits bare Infinity/NaN literals for
// the degenerate values; those are rewritten to quoted tokens before
// decoding.
func readCoarseJSON(path string) (cx, cy *npz.Array, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", path, err)
	}
	raw = quoteNonFinite(raw)

	var doc struct {
		Cx json.RawMessage `json:"cx"`
		Cy json.RawMessage `json:"cy"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if cx, err = nestedArray(doc.Cx); err != nil {
		return nil, nil, fmt.Errorf("%s: cx: %w", path, err)
	}
	if cy, err = nestedArray(doc.Cy); err != nil {
		return nil, nil, fmt.Errorf("%s: cy: %w", path, err)
	}
	return cx, cy, nil
}

// quoteNonFinite turns the bare Infinity/-Infinity/NaN tokens of
// Python-flavored JSON into quoted strings the stdlib decoder accepts.
// The offset documents contain no string values, so a plain byte-level
// replacement is safe.
func quoteNonFinite(raw []byte) []byte {
	raw = bytes.ReplaceAll(raw, []byte("-Infinity"), []byte(`"-inf"`))
	raw = bytes.ReplaceAll(raw, []byte("Infinity"), []byte(`"inf"`))
	raw = bytes.ReplaceAll(raw, []byte("NaN"), []byte(`"nan"`))
	return raw
}

// nestedArray decodes an arbitrarily nested JSON array of numbers into a
// rectangular Array, checking that all sibling dimensions agree.
func nestedArray(raw json.RawMessage) (*npz.Array, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	shape, err := nestedShape(v)
	if err != nil {
		return nil, err
	}
	data := make([]float64, 0)
	data, err = flattenNested(v, data)
	if err != nil {
		return nil, err
	}
	return npz.NewArray(shape, data)
}

// nestedShape derives the shape from the first element at each depth.
func nestedShape(v interface{}) ([]int, error) {
	var shape []int
	for {
		list, ok := v.([]interface{})
		if !ok {
			return shape, nil
		}
		shape = append(shape, len(list))
		if len(list) == 0 {
			return nil, fmt.Errorf("empty dimension in nested array")
		}
		v = list[0]
	}
}

// flattenNested appends all scalars of v to data in row-major order.
func flattenNested(v interface{}, data []float64) ([]float64, error) {
	switch elem := v.(type) {
	case []interface{}:
		var err error
		for _, child := range elem {
			if data, err = flattenNested(child, data); err != nil {
				return nil, err
			}
		}
		return data, nil
	case float64:
		return append(data, elem), nil
	case string:
		f, err := parseNonFinite(elem)
		if err != nil {
			return nil, err
		}
		return append(data, f), nil
	default:
		return nil, fmt.Errorf("unexpected value %v in nested array", v)
	}
}

// parseNonFinite maps the quoted placeholders back to their values.
func parseNonFinite(s string) (float64, error) {
	switch s {
	case "inf":
		return math.Inf(1), nil
	case "-inf":
		return math.Inf(-1), nil
	case "nan":
		return math.NaN(), nil
	}
	return 0, fmt.Errorf("unexpected string %q in nested array", s)
}

// readCoarseNPZ pulls cx and cy out of a coarse.npz archive. The
// optional coarse_mesh entry is not part of the aggregation and is
// ignored.
func readCoarseNPZ(path string) (cx, cy *npz.Array, err error) {
	arc, err := npz.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer arc.Close()
	if cx, err = arc.Float64("cx"); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	if cy, err = arc.Float64("cy"); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return cx, cy, nil
}

// stackOffsets combines the two rank-3 shift fields into one rank-4
// tensor shaped (axis, component, row, col).
func stackOffsets(cx, cy *npz.Array) (*npz.Array, error) {
	if len(cx.Shape) != 3 || cx.Shape[0] != 2 {
		return nil, fmt.Errorf("cx has shape %v, want (2, rows, cols)", cx.Shape)
	}
	if len(cy.Shape) != 3 || cy.Shape[0] != 2 {
		return nil, fmt.Errorf("cy has shape %v, want (2, rows, cols)", cy.Shape)
	}
	if cx.Shape[1] != cy.Shape[1] || cx.Shape[2] != cy.Shape[2] {
		return nil, fmt.Errorf("cx shape %v does not match cy shape %v", cx.Shape, cy.Shape)
	}
	shape := []int{2, 2, cx.Shape[1], cx.Shape[2]}
	data := make([]float64, 0, 2*len(cx.Data))
	data = append(data, cx.Data...)
	data = append(data, cy.Data...)
	return npz.NewArray(shape, data)
}

// AggregateTileIDMaps loads every section's tile ID map into one keyed
// collection, with the same missing/failure semantics as
// AggregateOffsets.
func AggregateTileIDMaps(sectionDirs []string) (maps map[int]models.TileIDMap, missing []int, err error) {
	maps = make(map[int]models.TileIDMap)
	for _, dir := range sectionDirs {
		num, ok := SectionNumber(dir)
		if !ok {
			continue
		}
		path := filepath.Join(dir, tileIDMapFile)
		if _, err := os.Stat(path); err != nil {
			missing = append(missing, num)
			continue
		}
		grid, err := loadTileIDMap(path)
		if err != nil {
			return nil, nil, fmt.Errorf("section s%d: %w", num, err)
		}
		maps[num] = grid
	}
	return maps, missing, nil
}

// loadTileIDMap parses one tile_id_map.json grid.
func loadTileIDMap(path string) (models.TileIDMap, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var grid [][]int64
	if err := json.Unmarshal(raw, &grid); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return models.TileIDMap(grid), nil
}

// BackupOffsets aggregates all coarse offsets and persists them as
// _inspect/all_offsets.npz plus a missing-sections report.
func (ins *Inspection) BackupOffsets() error {
	dirs, err := ins.SectionDirs()
	if err != nil {
		return err
	}
	offsets, missing, err := AggregateOffsets(dirs)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(ins.DirInspect, 0755); err != nil {
		return fmt.Errorf("creating inspect directory: %w", err)
	}

	w, err := npz.Create(ins.PathOffsets)
	if err != nil {
		return err
	}
	for _, num := range sortedSectionKeys(offsets) {
		arr := offsets[num]
		if err := w.WriteFloat64(strconv.Itoa(num), arr.Shape, arr.Data); err != nil {
			w.Close()
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}
	log.Printf("Coarse offsets saved to: %s", ins.PathOffsets)

	reportPath := filepath.Join(ins.DirInspect, offsetsMissingReport)
	if err := writeMissingReport(reportPath, missing); err != nil {
		return err
	}
	log.Printf("Missing offsets saved to: %s", reportPath)
	return nil
}

// BackupTileIDMaps aggregates all tile ID maps and persists them as
// _inspect/all_tile_id_maps.npz plus a missing-sections report.
func (ins *Inspection) BackupTileIDMaps() error {
	dirs, err := ins.SectionDirs()
	if err != nil {
		return err
	}
	maps, missing, err := AggregateTileIDMaps(dirs)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(ins.DirInspect, 0755); err != nil {
		return fmt.Errorf("creating inspect directory: %w", err)
	}

	w, err := npz.Create(ins.PathTileMaps)
	if err != nil {
		return err
	}
	for _, num := range sortedSectionKeys(maps) {
		grid := maps[num]
		rows := len(grid)
		cols := 0
		if rows > 0 {
			cols = len(grid[0])
		}
		flat := make([]int64, 0, rows*cols)
		for _, row := range grid {
			if len(row) != cols {
				w.Close()
				return fmt.Errorf("section s%d: ragged tile ID map", num)
			}
			flat = append(flat, row...)
		}
		if err := w.WriteInt64(strconv.Itoa(num), []int{rows, cols}, flat); err != nil {
			w.Close()
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}
	log.Printf("Tile ID maps saved to: %s", ins.PathTileMaps)

	reportPath := filepath.Join(ins.DirInspect, tileMapsMissingReport)
	if err := writeMissingReport(reportPath, missing); err != nil {
		return err
	}
	log.Printf("Missing tile ID maps saved to: %s", reportPath)
	return nil
}

// writeMissingReport stores one s<num> label per line, overwriting any
// previous report.
func writeMissingReport(path string, missing []int) error {
	var buf bytes.Buffer
	for _, num := range missing {
		fmt.Fprintf(&buf, "s%d\n", num)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("writing missing report: %w", err)
	}
	return nil
}

// LoadOffsets reads the aggregated offset archive back into memory,
// keyed by section number.
func (ins *Inspection) LoadOffsets() (map[int]*npz.Array, error) {
	arc, err := npz.Open(ins.PathOffsets)
	if err != nil {
		return nil, err
	}
	defer arc.Close()

	offsets := make(map[int]*npz.Array)
	for _, key := range arc.Keys() {
		num, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("offset archive has non-numeric key %q", key)
		}
		arr, err := arc.Float64(key)
		if err != nil {
			return nil, err
		}
		offsets[num] = arr
	}
	return offsets, nil
}

// LoadTileIDMaps reads the aggregated tile ID map archive back into
// memory, keyed by section number.
func (ins *Inspection) LoadTileIDMaps() (map[int]models.TileIDMap, error) {
	arc, err := npz.Open(ins.PathTileMaps)
	if err != nil {
		return nil, err
	}
	defer arc.Close()

	maps := make(map[int]models.TileIDMap)
	for _, key := range arc.Keys() {
		num, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("tile map archive has non-numeric key %q", key)
		}
		grid, err := arc.Int64Grid(key)
		if err != nil {
			return nil, err
		}
		maps[num] = models.TileIDMap(grid)
	}
	return maps, nil
}

// sortedSectionKeys returns the map's section numbers in ascending
// order, for deterministic archive layout.
func sortedSectionKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
