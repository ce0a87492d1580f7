package npz

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"
)

// entryTime is the fixed timestamp stamped on every archive entry.
// Aggregation must be idempotent down to the container bytes, so wall
// clock time never enters the output.
var entryTime = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// Writer builds an .npz archive: a zip container with one .npy entry
// per named array.
type Writer struct {
	f  *os.File
	zw *zip.Writer
}

// Create opens path for writing, truncating any previous archive.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("npz: creating archive: %w", err)
	}
	return &Writer{f: f, zw: zip.NewWriter(f)}, nil
}

// entry opens one deflated .npy member. Callers are expected to write
// entries in sorted key order so reruns produce identical bytes.
func (w *Writer) entry(name string) (io.Writer, error) {
	hdr := &zip.FileHeader{
		Name:     name + ".npy",
		Method:   zip.Deflate,
		Modified: entryTime,
	}
	ew, err := w.zw.CreateHeader(hdr)
	if err != nil {
		return nil, fmt.Errorf("npz: creating entry %q: %w", name, err)
	}
	return ew, nil
}

// WriteFloat64 stores data under name as a <f8 array with the given
// shape.
func (w *Writer) WriteFloat64(name string, shape []int, data []float64) error {
	ew, err := w.entry(name)
	if err != nil {
		return err
	}
	if err := writeFloat64NPY(ew, shape, data); err != nil {
		return fmt.Errorf("npz: writing entry %q: %w", name, err)
	}
	return nil
}

// WriteInt64 stores data under name as a <i8 array with the given shape.
func (w *Writer) WriteInt64(name string, shape []int, data []int64) error {
	ew, err := w.entry(name)
	if err != nil {
		return err
	}
	if err := writeInt64NPY(ew, shape, data); err != nil {
		return fmt.Errorf("npz: writing entry %q: %w", name, err)
	}
	return nil
}

// Close flushes the zip directory and closes the file.
func (w *Writer) Close() error {
	if err := w.zw.Close(); err != nil {
		w.f.Close()
		return fmt.Errorf("npz: finalizing archive: %w", err)
	}
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("npz: closing archive: %w", err)
	}
	return nil
}

// Archive provides keyed read access to an .npz file.
type Archive struct {
	rc      *zip.ReadCloser
	entries map[string]*zip.File
}

// Open opens an existing archive for reading.
func Open(path string) (*Archive, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("npz: opening archive %s: %w", path, err)
	}
	entries := make(map[string]*zip.File, len(rc.File))
	for _, f := range rc.File {
		entries[strings.TrimSuffix(f.Name, ".npy")] = f
	}
	return &Archive{rc: rc, entries: entries}, nil
}

// Close releases the underlying file.
func (a *Archive) Close() error { return a.rc.Close() }

// Keys returns the archive's entry names in sorted order.
func (a *Archive) Keys() []string {
	keys := make([]string, 0, len(a.entries))
	for k := range a.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Has reports whether the archive holds an entry under name.
func (a *Archive) Has(name string) bool {
	_, ok := a.entries[name]
	return ok
}

// Float64 decodes the named entry into an Array.
func (a *Archive) Float64(name string) (*Array, error) {
	f, ok := a.entries[name]
	if !ok {
		return nil, fmt.Errorf("npz: archive has no entry %q", name)
	}
	r, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("npz: opening entry %q: %w", name, err)
	}
	defer r.Close()
	arr, err := readNPY(r)
	if err != nil {
		return nil, fmt.Errorf("npz: entry %q: %w", name, err)
	}
	return arr, nil
}

// Int64Grid decodes the named entry as a rank-2 integer grid.
func (a *Archive) Int64Grid(name string) ([][]int64, error) {
	arr, err := a.Float64(name)
	if err != nil {
		return nil, err
	}
	if len(arr.Shape) != 2 {
		return nil, fmt.Errorf("npz: entry %q has rank %d, want 2", name, len(arr.Shape))
	}
	rows, cols := arr.Shape[0], arr.Shape[1]
	grid := make([][]int64, rows)
	for r := 0; r < rows; r++ {
		grid[r] = make([]int64, cols)
		for c := 0; c < cols; c++ {
			grid[r][c] = int64(arr.Data[r*cols+c])
		}
	}
	return grid, nil
}
