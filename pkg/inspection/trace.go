package inspection

import (
	"sort"

	"sbeminspect/internal/models"
	"sbeminspect/pkg/npz"
)

// ExtractTrace builds the time series of one tile's shift vector along
// one axis across all sections where the tile exists. Absence of the
// tile from a section is normal (tiles appear and disappear at grid
// edges over an acquisition), as is a section without tensor data; both
// are skipped. Returns nil when the tile occurs in no section at all.
func ExtractTrace(tileMaps map[int]models.TileIDMap, offsets map[int]*npz.Array, tileID int64, axis models.Axis) models.Trace {
	trace := make(models.Trace)
	for num, grid := range tileMaps {
		row, col, ok := grid.Locate(tileID)
		if !ok {
			continue
		}
		arr, ok := offsets[num]
		if !ok {
			continue
		}
		tensor, ok := models.NewOffsetTensor(arr)
		if !ok {
			continue
		}
		vec, ok := tensor.Vector(axis, row, col)
		if !ok {
			continue
		}
		trace[num] = models.TracePoint{Vec: vec, Row: row, Col: col}
	}
	if len(trace) == 0 {
		return nil
	}
	return trace
}

// AllTileIDs returns the union of tile IDs across all sections, sorted.
func AllTileIDs(tileMaps map[int]models.TileIDMap) []int64 {
	seen := make(map[int64]struct{})
	for _, grid := range tileMaps {
		for _, id := range grid.TileIDs() {
			seen[id] = struct{}{}
		}
	}
	ids := make([]int64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
