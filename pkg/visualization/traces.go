// Package visualization renders per-tile coarse offset traces as PNG
// plots, with flagged outlier sections highlighted, as a visual aid for
// proof-reading the detection reports.
package visualization

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"sbeminspect/internal/models"
)

// componentColors distinguishes the x and y shift components.
var componentColors = [2]color.RGBA{
	{R: 31, G: 119, B: 180, A: 255},
	{R: 255, G: 127, B: 14, A: 255},
}

// flagColor marks flagged outlier sections.
var flagColor = color.RGBA{R: 214, G: 39, B: 40, A: 255}

// axisName returns the shift field label for an axis.
func axisName(axis models.Axis) string {
	if axis == models.AxisVertical {
		return "cy"
	}
	return "cx"
}

// PlotTrace renders one tile's trace along one axis: both vector
// components as lines over section number, with flagged sections
// overlaid as scatter points. Non-finite values are left out of the
// lines (they are degenerate markers, not observations). Returns the
// path of the written PNG.
func PlotTrace(trace models.Trace, flagged map[int]bool, tileID int64, axis models.Axis, outDir string) (string, error) {
	if len(trace) == 0 {
		return "", fmt.Errorf("tile %d has an empty %s trace", tileID, axisName(axis))
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", fmt.Errorf("creating plot directory: %w", err)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Tile %d %s trace", tileID, axisName(axis))
	p.X.Label.Text = "Section"
	p.Y.Label.Text = "Shift (px)"

	nums := trace.SectionNumbers()
	for comp := 0; comp < 2; comp++ {
		pts := make(plotter.XYs, 0, len(nums))
		flaggedPts := make(plotter.XYs, 0)
		for _, num := range nums {
			v := trace[num].Vec[comp]
			if !models.IsFinite(v) {
				continue
			}
			pts = append(pts, plotter.XY{X: float64(num), Y: v})
			if flagged[num] {
				flaggedPts = append(flaggedPts, plotter.XY{X: float64(num), Y: v})
			}
		}
		if len(pts) == 0 {
			continue
		}

		line, err := plotter.NewLine(pts)
		if err != nil {
			return "", fmt.Errorf("building component %d line: %w", comp, err)
		}
		line.Color = componentColors[comp]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("component %d", comp), line)

		if len(flaggedPts) > 0 {
			scatter, err := plotter.NewScatter(flaggedPts)
			if err != nil {
				return "", fmt.Errorf("building component %d outlier markers: %w", comp, err)
			}
			scatter.GlyphStyle.Color = flagColor
			scatter.GlyphStyle.Radius = vg.Points(3)
			p.Add(scatter)
		}
	}

	path := filepath.Join(outDir, fmt.Sprintf("trace_t%d_%s.png", tileID, axisName(axis)))
	if err := p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return "", fmt.Errorf("saving trace plot: %w", err)
	}
	return path, nil
}
