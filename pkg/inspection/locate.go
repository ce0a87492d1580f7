package inspection

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"sbeminspect/internal/models"
	"sbeminspect/pkg/npz"
)

// reportHeader labels the coordinate columns of both text reports. The
// column names follow the rank-4 tensor layout: C is the neighbor axis,
// Z the vector component, then grid row and column.
const reportHeader = "# Slice\tC\tZ\tY\tX\tTileID\tTileID_nn\n"

// LocateInfValues scans every section's stacked tensor for infinite
// values and resolves each hit to the offending tile pair. The neighbor
// direction follows the leading coordinate: axis 0 (cx) pairs with the
// tile one column to the right, any other axis with the tile one row
// down. Records are ordered section-major, then in row-major scan order
// within a section. The tensors are never modified.
func LocateInfValues(offsets map[int]*npz.Array, tileMaps map[int]models.TileIDMap) []models.OutlierRecord {
	var records []models.OutlierRecord
	for _, num := range sortedSectionKeys(offsets) {
		arr := offsets[num]
		grid := tileMaps[num]
		if len(arr.Shape) < 2 {
			continue
		}
		for i, v := range arr.Data {
			if !math.IsInf(v, 0) {
				continue
			}
			coords := arr.Coords(i)
			records = append(records, resolveRecord(num, coords, grid))
		}
	}
	return records
}

// resolveRecord maps one degenerate coordinate to its tile pair. A
// missing tile map or out-of-bounds neighbor yields the NoTile sentinel
// rather than an error; localization is best-effort diagnostics.
func resolveRecord(section int, coords []int, grid models.TileIDMap) models.OutlierRecord {
	row := coords[len(coords)-2]
	col := coords[len(coords)-1]

	rec := models.OutlierRecord{
		Section:    section,
		Axis:       models.Axis(coords[0]),
		Row:        row,
		Col:        col,
		TileID:     models.NoTile,
		NeighborID: models.NoTile,
	}
	if len(coords) >= 2 {
		rec.Component = coords[1]
	}
	if grid == nil {
		return rec
	}

	if id, ok := grid.At(row, col); ok {
		rec.TileID = id
	}

	dy, dx := 1, 0
	if coords[0] == 0 {
		dy, dx = 0, 1
	}
	if id, ok := grid.At(row+dy, col+dx); ok {
		rec.NeighborID = id
	}
	return rec
}

// WriteInfReport stores the degenerate-value records as a tab-separated
// report, overwriting any previous run's output.
func (ins *Inspection) WriteInfReport(records []models.OutlierRecord) (string, error) {
	if err := os.MkdirAll(ins.DirInspect, 0755); err != nil {
		return "", fmt.Errorf("creating inspect directory: %w", err)
	}
	path := filepath.Join(ins.DirInspect, infValsReport)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating inf report: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if _, err := w.WriteString(reportHeader); err != nil {
		return "", err
	}
	for _, rec := range records {
		if _, err := w.WriteString(recordRow(rec)); err != nil {
			return "", err
		}
	}
	if err := w.Flush(); err != nil {
		return "", err
	}
	return path, nil
}

// AppendOutlierReport appends trace outlier records to the incremental
// report, writing the header only when the file does not exist yet.
// Callers are expected to funnel all records through one writer; the
// parallel sweep collects per-tile results before calling this.
func (ins *Inspection) AppendOutlierReport(records []models.OutlierRecord) (string, error) {
	if err := os.MkdirAll(ins.DirInspect, 0755); err != nil {
		return "", fmt.Errorf("creating inspect directory: %w", err)
	}
	path := filepath.Join(ins.DirInspect, outliersReport)

	_, statErr := os.Stat(path)
	writeHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return "", fmt.Errorf("opening outlier report: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if writeHeader {
		if _, err := w.WriteString(reportHeader); err != nil {
			return "", err
		}
	}
	for _, rec := range records {
		if _, err := w.WriteString(recordRow(rec)); err != nil {
			return "", err
		}
	}
	if err := w.Flush(); err != nil {
		return "", err
	}
	return path, nil
}

// recordRow renders one report line.
func recordRow(rec models.OutlierRecord) string {
	return fmt.Sprintf("%d\t%d\t%d\t%d\t%d\t%d\t%d\n",
		rec.Section, rec.Axis, rec.Component, rec.Row, rec.Col, rec.TileID, rec.NeighborID)
}
