package npz

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"
)

// TestArrayAt verifies row-major coordinate indexing and bounds checks
func TestArrayAt(t *testing.T) {
	arr, err := NewArray([]int{2, 3}, []float64{0, 1, 2, 3, 4, 5})
	if err != nil {
		t.Fatalf("NewArray failed: %v", err)
	}

	v, err := arr.At(1, 2)
	if err != nil {
		t.Fatalf("At(1,2) failed: %v", err)
	}
	if v != 5 {
		t.Errorf("Expected At(1,2)=5, got %v", v)
	}

	if _, err := arr.At(2, 0); err == nil {
		t.Errorf("Expected out-of-range error for At(2,0)")
	}
	if _, err := arr.At(0); err == nil {
		t.Errorf("Expected rank mismatch error for At(0)")
	}
}

// TestArrayCoords verifies that Coords inverts flat indexing
func TestArrayCoords(t *testing.T) {
	arr, err := NewArray([]int{2, 2, 2, 2}, make([]float64, 16))
	if err != nil {
		t.Fatalf("NewArray failed: %v", err)
	}

	coords := arr.Coords(4)
	expected := []int{0, 1, 0, 0}
	for i := range expected {
		if coords[i] != expected[i] {
			t.Errorf("Expected Coords(4)=%v, got %v", expected, coords)
			break
		}
	}
}

// TestNewArrayShapeMismatch ensures shape/data disagreement is rejected
func TestNewArrayShapeMismatch(t *testing.T) {
	if _, err := NewArray([]int{2, 2}, []float64{1, 2, 3}); err == nil {
		t.Errorf("Expected error for mismatched shape and data length")
	}
}

// TestSqueezeTo verifies removal of singleton wrapper axes after the
// leading component axis
func TestSqueezeTo(t *testing.T) {
	arr, err := NewArray([]int{2, 1, 1, 3, 4}, make([]float64, 24))
	if err != nil {
		t.Fatalf("NewArray failed: %v", err)
	}
	if err := arr.SqueezeTo(3); err != nil {
		t.Fatalf("SqueezeTo(3) failed: %v", err)
	}

	expected := []int{2, 3, 4}
	if len(arr.Shape) != len(expected) {
		t.Fatalf("Expected shape %v, got %v", expected, arr.Shape)
	}
	for i := range expected {
		if arr.Shape[i] != expected[i] {
			t.Errorf("Expected shape %v, got %v", expected, arr.Shape)
			break
		}
	}

	// A non-singleton second axis cannot be squeezed away
	arr2, _ := NewArray([]int{2, 2, 3}, make([]float64, 12))
	if err := arr2.SqueezeTo(2); err == nil {
		t.Errorf("Expected error squeezing non-singleton axis")
	}

	// Already at target rank is a no-op
	arr3, _ := NewArray([]int{2, 3, 4}, make([]float64, 24))
	if err := arr3.SqueezeTo(3); err != nil {
		t.Errorf("Expected no-op squeeze to succeed, got %v", err)
	}
}

// TestArchiveRoundTrip writes float and int entries and reads them back
// bit-identically, including non-finite values
func TestArchiveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.npz")

	floats := []float64{1.5, math.Inf(1), -2.25, math.Inf(-1), 0, 42}
	ints := []int64{1, -1, 7, 9}

	w, err := Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := w.WriteFloat64("10", []int{2, 3}, floats); err != nil {
		t.Fatalf("WriteFloat64 failed: %v", err)
	}
	if err := w.WriteInt64("11", []int{2, 2}, ints); err != nil {
		t.Fatalf("WriteInt64 failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	arc, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer arc.Close()

	keys := arc.Keys()
	if len(keys) != 2 || keys[0] != "10" || keys[1] != "11" {
		t.Errorf("Expected keys [10 11], got %v", keys)
	}

	arr, err := arc.Float64("10")
	if err != nil {
		t.Fatalf("Float64 failed: %v", err)
	}
	if len(arr.Shape) != 2 || arr.Shape[0] != 2 || arr.Shape[1] != 3 {
		t.Errorf("Expected shape [2 3], got %v", arr.Shape)
	}
	for i, want := range floats {
		got := arr.Data[i]
		if got != want && !(math.IsInf(want, 1) && math.IsInf(got, 1)) && !(math.IsInf(want, -1) && math.IsInf(got, -1)) {
			t.Errorf("Expected element %d = %v, got %v", i, want, got)
		}
	}

	grid, err := arc.Int64Grid("11")
	if err != nil {
		t.Fatalf("Int64Grid failed: %v", err)
	}
	if grid[0][1] != -1 || grid[1][0] != 7 {
		t.Errorf("Expected grid [[1 -1] [7 9]], got %v", grid)
	}

	if _, err := arc.Float64("missing"); err == nil {
		t.Errorf("Expected error for missing entry")
	}
}

// TestArchiveDeterministic ensures two writes of the same content produce
// byte-identical archives
func TestArchiveDeterministic(t *testing.T) {
	dir := t.TempDir()
	data := []float64{1, 2, 3, 4}

	write := func(name string) []byte {
		path := filepath.Join(dir, name)
		w, err := Create(path)
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if err := w.WriteFloat64("1", []int{2, 2}, data); err != nil {
			t.Fatalf("WriteFloat64 failed: %v", err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("ReadFile failed: %v", err)
		}
		return raw
	}

	first := write("a.npz")
	second := write("b.npz")
	if !bytes.Equal(first, second) {
		t.Errorf("Expected byte-identical archives across runs")
	}
}

// TestParseNPYDict covers the header dict parser against numpy's output
// formats
func TestParseNPYDict(t *testing.T) {
	hdr, err := parseNPYDict("{'descr': '<f8', 'fortran_order': False, 'shape': (2, 3), }")
	if err != nil {
		t.Fatalf("parseNPYDict failed: %v", err)
	}
	if hdr.descr != "<f8" {
		t.Errorf("Expected descr <f8, got %q", hdr.descr)
	}
	if hdr.fortran {
		t.Errorf("Expected fortran_order=False")
	}
	if len(hdr.shape) != 2 || hdr.shape[0] != 2 || hdr.shape[1] != 3 {
		t.Errorf("Expected shape [2 3], got %v", hdr.shape)
	}

	hdr, err = parseNPYDict("{'descr': '<i8', 'fortran_order': False, 'shape': (5,), }")
	if err != nil {
		t.Fatalf("parseNPYDict failed on 1-D shape: %v", err)
	}
	if len(hdr.shape) != 1 || hdr.shape[0] != 5 {
		t.Errorf("Expected shape [5], got %v", hdr.shape)
	}

	if _, err := parseNPYDict("{'fortran_order': False, 'shape': (1,), }"); err == nil {
		t.Errorf("Expected error for header without descr")
	}
}
