// Package npz reads and writes NumPy array files (.npy) and keyed
// archives of them (.npz, a zip container). Only the subset needed for
// the inspection stores is implemented: little-endian C-order arrays of
// float64/float32/int64/int32, read back uniformly as float64.
package npz

import "fmt"

// Array is an n-dimensional array in row-major (C) order.
type Array struct {
	Shape []int
	Data  []float64
}

// NewArray wraps shape and data, validating that the element count
// matches the shape's volume.
func NewArray(shape []int, data []float64) (*Array, error) {
	if n := volume(shape); n != len(data) {
		return nil, fmt.Errorf("npz: shape %v holds %d elements, got %d", shape, n, len(data))
	}
	return &Array{Shape: shape, Data: data}, nil
}

// volume returns the element count implied by shape.
func volume(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// Len returns the total element count.
func (a *Array) Len() int { return len(a.Data) }

// At returns the element at the given full coordinate.
func (a *Array) At(coords ...int) (float64, error) {
	if len(coords) != len(a.Shape) {
		return 0, fmt.Errorf("npz: coordinate rank %d does not match array rank %d", len(coords), len(a.Shape))
	}
	idx := 0
	for i, c := range coords {
		if c < 0 || c >= a.Shape[i] {
			return 0, fmt.Errorf("npz: coordinate %v out of range for shape %v", coords, a.Shape)
		}
		idx = idx*a.Shape[i] + c
	}
	return a.Data[idx], nil
}

// Coords converts a flat row-major index back to a full coordinate.
func (a *Array) Coords(idx int) []int {
	coords := make([]int, len(a.Shape))
	for i := len(a.Shape) - 1; i >= 0; i-- {
		coords[i] = idx % a.Shape[i]
		idx /= a.Shape[i]
	}
	return coords
}

// SqueezeTo removes singleton axes following the leading axis until the
// array has the target rank. Encodings of the per-section offset files
// vary in how many wrapper dimensions they carry; the canonical shift
// field is rank 3 (component, row, col). Dropping a singleton axis does
// not reorder row-major data, so only the shape changes.
func (a *Array) SqueezeTo(rank int) error {
	for len(a.Shape) > rank {
		if len(a.Shape) < 2 || a.Shape[1] != 1 {
			return fmt.Errorf("npz: cannot squeeze shape %v to rank %d", a.Shape, rank)
		}
		a.Shape = append(a.Shape[:1], a.Shape[2:]...)
	}
	if len(a.Shape) != rank {
		return fmt.Errorf("npz: shape %v has rank below target %d", a.Shape, rank)
	}
	return nil
}
