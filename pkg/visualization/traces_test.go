package visualization

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"sbeminspect/internal/models"
)

// TestPlotTrace renders a small trace with one flagged section and
// checks the file lands where expected
func TestPlotTrace(t *testing.T) {
	trace := models.Trace{
		1: {Vec: [2]float64{0, 1}, Row: 0, Col: 0},
		2: {Vec: [2]float64{0.5, 1.5}, Row: 0, Col: 0},
		3: {Vec: [2]float64{10, 1}, Row: 0, Col: 0},
		4: {Vec: [2]float64{math.Inf(1), 1}, Row: 0, Col: 0}, // degenerate, left out of the line
	}
	flagged := map[int]bool{3: true}

	dir := t.TempDir()
	path, err := PlotTrace(trace, flagged, 12, models.AxisHorizontal, dir)
	if err != nil {
		t.Fatalf("PlotTrace failed: %v", err)
	}

	if filepath.Base(path) != "trace_t12_cx.png" {
		t.Errorf("Expected file trace_t12_cx.png, got %s", filepath.Base(path))
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Expected plot file to exist: %v", err)
	}
	if info.Size() == 0 {
		t.Errorf("Expected non-empty plot file")
	}
}

// TestPlotTraceEmpty rejects an empty trace
func TestPlotTraceEmpty(t *testing.T) {
	if _, err := PlotTrace(models.Trace{}, nil, 1, models.AxisVertical, t.TempDir()); err == nil {
		t.Errorf("Expected error for empty trace")
	}
}
