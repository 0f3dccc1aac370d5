package report

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/mde-formula-finder/internal/optimizer"
)

// ErrEmptyTrace is returned when a trace has no finite fitness values.
var ErrEmptyTrace = errors.New("trace has no finite points")

// Trace plot dimensions.
const (
	TraceWidth  = 10 * vg.Inch
	TraceHeight = 4 * vg.Inch
)

// TracePlot writes a PNG of best fitness against generation. Non-finite
// points are skipped.
func TracePlot(w io.Writer, trace []optimizer.TracePoint, title string) error {
	pts := make(plotter.XYs, 0, len(trace))
	for _, tp := range trace {
		if math.IsNaN(tp.Fitness) || math.IsInf(tp.Fitness, 0) {
			continue
		}
		pts = append(pts, plotter.XY{X: float64(tp.Generation), Y: tp.Fitness})
	}
	if len(pts) == 0 {
		return ErrEmptyTrace
	}

	p := plot.New()
	p.Title.Text = title
	if p.Title.Text == "" {
		p.Title.Text = "Best Fitness"
	}
	p.X.Label.Text = "Generation"
	p.Y.Label.Text = "Mean error (%)"

	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("trace line: %w", err)
	}
	line.Color = color.RGBA{R: 0x1f, G: 0x9e, B: 0x89, A: 0xff}
	line.Width = vg.Points(1.5)
	// Each point is an improvement; mark them.
	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return fmt.Errorf("trace points: %w", err)
	}
	scatter.Color = line.Color
	scatter.Radius = vg.Points(2)
	p.Add(plotter.NewGrid(), line, scatter)

	wt, err := p.WriterTo(TraceWidth, TraceHeight, "png")
	if err != nil {
		return fmt.Errorf("trace plot: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write trace plot: %w", err)
	}
	return nil
}
