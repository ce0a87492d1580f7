package models

import (
	"math"
	"testing"

	"sbeminspect/pkg/npz"
)

// testGrid is the 3x3 reference grid used across lookup tests
func testGrid() TileIDMap {
	return TileIDMap{
		{1, 2, 3},
		{4, 5, 6},
		{7, 8, 9},
	}
}

// TestLocate verifies row-major first-occurrence semantics, including a
// fabricated duplicate (the per-section uniqueness invariant makes
// duplicates impossible in real data, so first-match order is pinned
// here synthetically)
func TestLocate(t *testing.T) {
	grid := testGrid()

	row, col, ok := grid.Locate(5)
	if !ok || row != 1 || col != 1 {
		t.Errorf("Expected Locate(5)=(1,1), got (%d,%d) ok=%v", row, col, ok)
	}

	if _, _, ok := grid.Locate(42); ok {
		t.Errorf("Expected Locate(42) to report not found")
	}

	dup := TileIDMap{
		{7, 3},
		{3, NoTile},
	}
	row, col, ok = dup.Locate(3)
	if !ok || row != 0 || col != 1 {
		t.Errorf("Expected first occurrence (0,1) for duplicated id, got (%d,%d) ok=%v", row, col, ok)
	}
}

// TestVerticalNeighbor checks the neighbor-below lookup and its
// boundary behavior
func TestVerticalNeighbor(t *testing.T) {
	grid := testGrid()

	id, ok := grid.VerticalNeighbor(5)
	if !ok || id != 8 {
		t.Errorf("Expected VerticalNeighbor(5)=8, got %d ok=%v", id, ok)
	}

	if _, ok := grid.VerticalNeighbor(9); ok {
		t.Errorf("Expected VerticalNeighbor(9) to report not found (no row below)")
	}

	if _, ok := grid.VerticalNeighbor(42); ok {
		t.Errorf("Expected VerticalNeighbor(42) to report not found (absent id)")
	}
}

// TestHorizontalNeighbor checks the neighbor-right lookup
func TestHorizontalNeighbor(t *testing.T) {
	grid := testGrid()

	id, ok := grid.HorizontalNeighbor(4)
	if !ok || id != 5 {
		t.Errorf("Expected HorizontalNeighbor(4)=5, got %d ok=%v", id, ok)
	}

	if _, ok := grid.HorizontalNeighbor(6); ok {
		t.Errorf("Expected HorizontalNeighbor(6) to report not found (no column right)")
	}
}

// TestTileIDs verifies that holes are excluded and ids are sorted
func TestTileIDs(t *testing.T) {
	grid := TileIDMap{
		{9, NoTile},
		{2, 5},
	}

	ids := grid.TileIDs()
	expected := []int64{2, 5, 9}
	if len(ids) != len(expected) {
		t.Fatalf("Expected %d tile ids, got %d", len(expected), len(ids))
	}
	for i := range expected {
		if ids[i] != expected[i] {
			t.Errorf("Expected ids %v, got %v", expected, ids)
			break
		}
	}
}

// TestOffsetTensorVector reads shift vectors out of a stacked tensor
func TestOffsetTensorVector(t *testing.T) {
	// Shape (2 axes, 2 components, 1 row, 2 cols)
	data := make([]float64, 8)
	for i := range data {
		data[i] = float64(i)
	}
	arr, err := npz.NewArray([]int{2, 2, 1, 2}, data)
	if err != nil {
		t.Fatalf("NewArray failed: %v", err)
	}

	tensor, ok := NewOffsetTensor(arr)
	if !ok {
		t.Fatalf("NewOffsetTensor rejected a valid rank-4 array")
	}

	vec, ok := tensor.Vector(AxisHorizontal, 0, 1)
	if !ok {
		t.Fatalf("Vector(0,0,1) reported out of range")
	}
	// cx component 0 at (0,1) is flat index 1; component 1 is index 3
	if vec[0] != 1 || vec[1] != 3 {
		t.Errorf("Expected vector [1 3], got %v", vec)
	}

	vec, ok = tensor.Vector(AxisVertical, 0, 0)
	if !ok {
		t.Fatalf("Vector(1,0,0) reported out of range")
	}
	if vec[0] != 4 || vec[1] != 6 {
		t.Errorf("Expected vector [4 6], got %v", vec)
	}

	if _, ok := tensor.Vector(AxisHorizontal, 1, 0); ok {
		t.Errorf("Expected out-of-range row to report not ok")
	}

	// Wrong leading shape is rejected
	bad, _ := npz.NewArray([]int{3, 2, 1, 2}, make([]float64, 12))
	if _, ok := NewOffsetTensor(bad); ok {
		t.Errorf("Expected NewOffsetTensor to reject shape [3 2 1 2]")
	}
}

// TestTraceHelpers covers key ordering and component extraction
func TestTraceHelpers(t *testing.T) {
	trace := Trace{
		20: {Vec: [2]float64{1, 2}},
		5:  {Vec: [2]float64{3, 4}},
		11: {Vec: [2]float64{5, 6}},
	}

	nums := trace.SectionNumbers()
	expected := []int{5, 11, 20}
	for i := range expected {
		if nums[i] != expected[i] {
			t.Errorf("Expected section order %v, got %v", expected, nums)
			break
		}
	}

	series := trace.Component(1)
	if series[5] != 4 || series[11] != 6 || series[20] != 2 {
		t.Errorf("Expected component 1 series {5:4 11:6 20:2}, got %v", series)
	}
}

// TestIsFinite pins the degenerate-value predicate
func TestIsFinite(t *testing.T) {
	if !IsFinite(1.5) {
		t.Errorf("Expected 1.5 to be finite")
	}
	if IsFinite(math.Inf(1)) || IsFinite(math.Inf(-1)) || IsFinite(math.NaN()) {
		t.Errorf("Expected Inf and NaN to be non-finite")
	}
}
