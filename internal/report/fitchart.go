// Package report renders fit results: an interactive go-echarts page that
// compares measured and modelled fuel, and a gonum/plot PNG of the fitness
// trace.
package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/mde-formula-finder/internal/dataset"
	"github.com/banshee-data/mde-formula-finder/internal/fuelmodel"
)

// Series is one chart group. Actual and Calc are aligned with
// FitSeries.X; a nil entry means the group has no sample at that x.
type Series struct {
	Label  string
	Actual []*float64
	Calc   []*float64
}

// FitSeries is the chart data for one mode.
type FitSeries struct {
	Mode   dataset.ChartMode
	X      []float64
	Series []Series
}

func mean(points []dataset.DataPoint, field func(dataset.DataPoint) float64) float64 {
	sum := 0.0
	for _, d := range points {
		sum += field(d)
	}
	return sum / float64(len(points))
}

// BuildFitSeries averages the measured fuel of each charted group at every
// x value and evaluates the model there. In cylinder mode the model is fed
// the group's mean ratio and throttle at that cylinder count; in throttle
// mode it is fed the group's ratio and mean cylinder count.
func BuildFitSeries(data []dataset.DataPoint, p fuelmodel.FitParams, m fuelmodel.CylinderModelParams, mode dataset.ChartMode) FitSeries {
	groups := dataset.Groups(data, mode)
	xs := dataset.XValues(groups, mode)
	out := FitSeries{Mode: mode, X: xs, Series: make([]Series, 0, len(groups))}

	for _, g := range groups {
		s := Series{
			Label:  g.Label(mode),
			Actual: make([]*float64, len(xs)),
			Calc:   make([]*float64, len(xs)),
		}
		for i, x := range xs {
			var matches []dataset.DataPoint
			for _, d := range g.Points {
				if (mode == dataset.ChartModeThrottle && d.Throttle == x) ||
					(mode != dataset.ChartModeThrottle && d.Cylinders == x) {
					matches = append(matches, d)
				}
			}
			if len(matches) == 0 {
				continue
			}
			actual := mean(matches, func(d dataset.DataPoint) float64 { return d.Fuel })
			var calc float64
			if mode == dataset.ChartModeThrottle {
				cyl := mean(matches, func(d dataset.DataPoint) float64 { return d.Cylinders })
				calc = fuelmodel.Evaluate(x, g.B, cyl, p, m)
			} else {
				ratio := mean(matches, func(d dataset.DataPoint) float64 { return d.Ratio })
				throttle := mean(matches, func(d dataset.DataPoint) float64 { return d.Throttle })
				calc = fuelmodel.Evaluate(throttle, ratio, x, p, m)
			}
			s.Actual[i] = &actual
			s.Calc[i] = &calc
		}
		out.Series = append(out.Series, s)
	}
	return out
}

func lineData(vals []*float64) []opts.LineData {
	data := make([]opts.LineData, len(vals))
	for i, v := range vals {
		if v == nil {
			// echarts treats "-" as a gap.
			data[i] = opts.LineData{Value: "-"}
			continue
		}
		data[i] = opts.LineData{Value: *v}
	}
	return data
}

// ChartOptions tunes FitChart output. The zero value uses the go-echarts
// CDN for assets.
type ChartOptions struct {
	AssetsHost string
	Subtitle   string
}

// FitChart renders fs as a standalone HTML page. Measured averages are
// solid lines and model values dashed.
func FitChart(w io.Writer, fs FitSeries, o ChartOptions) error {
	xName := "Cylinders"
	if fs.Mode == dataset.ChartModeThrottle {
		xName = "Throttle %"
	}
	labels := make([]string, len(fs.X))
	for i, x := range fs.X {
		labels[i] = fmt.Sprintf("%g", x)
	}

	initOpts := opts.Initialization{PageTitle: "Fuel Fit", Theme: "dark", Width: "100%", Height: "720px"}
	if o.AssetsHost != "" {
		initOpts.AssetsHost = o.AssetsHost
	}
	subtitle := o.Subtitle
	if subtitle == "" {
		subtitle = fmt.Sprintf("mode=%s series=%d", fs.Mode, len(fs.Series))
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts),
		charts.WithTitleOpts(opts.Title{Title: "Measured vs Model Fuel", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Type: "scroll", Top: "bottom"}),
		charts.WithXAxisOpts(opts.XAxis{Name: xName, NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Fuel", NameLocation: "middle", NameGap: 45}),
	)
	line.SetXAxis(labels)
	for _, s := range fs.Series {
		line.AddSeries(s.Label, lineData(s.Actual),
			charts.WithLineChartOpts(opts.LineChart{ConnectNulls: opts.Bool(true)}))
		line.AddSeries(s.Label+" (calc)", lineData(s.Calc),
			charts.WithLineChartOpts(opts.LineChart{ConnectNulls: opts.Bool(true)}),
			charts.WithLineStyleOpts(opts.LineStyle{Type: "dashed"}))
	}
	if err := line.Render(w); err != nil {
		return fmt.Errorf("render fit chart: %w", err)
	}
	return nil
}
