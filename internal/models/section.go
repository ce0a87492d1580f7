package models

import (
	"math"
	"sort"

	"sbeminspect/pkg/npz"
)

// NoTile is the sentinel value marking an empty position in a tile ID map.
const NoTile = -1

// Axis identifies the neighbor direction of a coarse shift field.
type Axis int

const (
	// AxisHorizontal selects cx, the shifts between horizontal neighbors.
	AxisHorizontal Axis = 0

	// AxisVertical selects cy, the shifts between vertical neighbors.
	AxisVertical Axis = 1
)

// TileIDMap is the 2-D grid locating tile identities within one section's
// mosaic. Cell values are non-negative tile IDs, or NoTile where the grid
// has a hole. Within one section each tile ID appears at most once.
type TileIDMap [][]int64

// At returns the tile ID at (row, col), with ok=false when the position
// lies outside the grid.
func (m TileIDMap) At(row, col int) (int64, bool) {
	if row < 0 || row >= len(m) {
		return NoTile, false
	}
	if col < 0 || col >= len(m[row]) {
		return NoTile, false
	}
	return m[row][col], true
}

// Locate returns the (row, col) position of tileID within the grid,
// scanning in row-major order so the first occurrence wins.
// ok is false when the tile does not exist in this section.
func (m TileIDMap) Locate(tileID int64) (row, col int, ok bool) {
	for r := range m {
		for c := range m[r] {
			if m[r][c] == tileID {
				return r, c, true
			}
		}
	}
	return 0, 0, false
}

// VerticalNeighbor returns the tile ID immediately below tileID in the
// grid. ok is false when tileID is absent or the row below is out of
// bounds. A NoTile hole below is returned as-is; holes are a valid
// neighbor value for reporting.
func (m TileIDMap) VerticalNeighbor(tileID int64) (int64, bool) {
	row, col, ok := m.Locate(tileID)
	if !ok {
		return NoTile, false
	}
	return m.At(row+1, col)
}

// HorizontalNeighbor returns the tile ID immediately to the right of
// tileID, with the same not-found semantics as VerticalNeighbor.
func (m TileIDMap) HorizontalNeighbor(tileID int64) (int64, bool) {
	row, col, ok := m.Locate(tileID)
	if !ok {
		return NoTile, false
	}
	return m.At(row, col+1)
}

// TileIDs returns the sorted unique non-sentinel tile IDs in the grid.
func (m TileIDMap) TileIDs() []int64 {
	seen := make(map[int64]struct{})
	for _, row := range m {
		for _, id := range row {
			if id != NoTile {
				seen[id] = struct{}{}
			}
		}
	}
	ids := make([]int64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// OffsetTensor is one section's stacked coarse shift fields, shaped
// (2 axes, 2 vector components, grid rows, grid cols). Axis 0 holds cx,
// axis 1 holds cy. Missing or failed pairwise computations are marked
// with infinities in one or both components.
type OffsetTensor struct {
	arr *npz.Array
}

// NewOffsetTensor wraps a rank-4 array as an offset tensor.
// ok is false when the array does not have the expected rank or a
// leading shape other than (2, 2, ...).
func NewOffsetTensor(arr *npz.Array) (*OffsetTensor, bool) {
	if arr == nil || len(arr.Shape) != 4 || arr.Shape[0] != 2 || arr.Shape[1] != 2 {
		return nil, false
	}
	return &OffsetTensor{arr: arr}, true
}

// Rows returns the grid row count of the tensor.
func (t *OffsetTensor) Rows() int { return t.arr.Shape[2] }

// Cols returns the grid column count of the tensor.
func (t *OffsetTensor) Cols() int { return t.arr.Shape[3] }

// Array exposes the backing array, for persistence.
func (t *OffsetTensor) Array() *npz.Array { return t.arr }

// Vector returns the (x, y) shift vector for the given axis at grid
// position (row, col). ok is false when the position is out of range.
func (t *OffsetTensor) Vector(axis Axis, row, col int) ([2]float64, bool) {
	if axis != AxisHorizontal && axis != AxisVertical {
		return [2]float64{}, false
	}
	if row < 0 || row >= t.Rows() || col < 0 || col >= t.Cols() {
		return [2]float64{}, false
	}
	var vec [2]float64
	for comp := 0; comp < 2; comp++ {
		v, err := t.arr.At(int(axis), comp, row, col)
		if err != nil {
			return [2]float64{}, false
		}
		vec[comp] = v
	}
	return vec, true
}

// TracePoint is one observation of a tile's shift vector in one section:
// the vector itself plus the grid position it was read from. The position
// is retained so flagged sections can be mapped back to a tile pair.
type TracePoint struct {
	Vec [2]float64
	Row int
	Col int
}

// Trace is the time series of one tile's shift observations along one
// axis, keyed by section number. Sections where the tile is absent carry
// no entry.
type Trace map[int]TracePoint

// SectionNumbers returns the trace's section keys in ascending order.
func (tr Trace) SectionNumbers() []int {
	nums := make([]int, 0, len(tr))
	for num := range tr {
		nums = append(nums, num)
	}
	sort.Ints(nums)
	return nums
}

// Component extracts the scalar series of one vector component,
// keyed by section number.
func (tr Trace) Component(comp int) map[int]float64 {
	series := make(map[int]float64, len(tr))
	for num, pt := range tr {
		series[num] = pt.Vec[comp]
	}
	return series
}

// OutlierRecord identifies one flagged observation: a degenerate value or
// an anomalous deviation in a tile's shift trace. Records are append-only
// report rows and are never mutated.
type OutlierRecord struct {
	// Section is the section number the observation belongs to.
	Section int

	// Axis is the neighbor direction (0=horizontal, 1=vertical).
	Axis Axis

	// Component is the shift vector component (0=x, 1=y).
	Component int

	// Row, Col locate the primary tile within the section's grid.
	Row, Col int

	// TileID is the primary tile of the flagged pair.
	TileID int64

	// NeighborID is the paired tile, or NoTile when the neighbor
	// position falls outside the grid.
	NeighborID int64
}

// IsFinite reports whether v is neither infinite nor NaN.
func IsFinite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}
