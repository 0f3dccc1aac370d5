package dataset

import (
	"fmt"
	"sort"
)

// ChartMode selects how samples are grouped into chart series.
type ChartMode string

const (
	// ChartModeCylinder plots fuel against cylinders, one series per
	// (ratio, throttle) group.
	ChartModeCylinder ChartMode = "cylinder"
	// ChartModeThrottle plots fuel against throttle, one series per
	// (cylinders, ratio) group.
	ChartModeThrottle ChartMode = "throttle"
)

// Minimum group sizes for a series to be charted.
const (
	MinCylinderGroupSize = 15
	MinThrottleGroupSize = 10
)

// ParseChartMode validates a mode string. Empty selects ChartModeCylinder.
func ParseChartMode(s string) (ChartMode, error) {
	switch ChartMode(s) {
	case "", ChartModeCylinder:
		return ChartModeCylinder, nil
	case ChartModeThrottle:
		return ChartModeThrottle, nil
	}
	return "", fmt.Errorf("unknown chart mode %q", s)
}

// MinGroupSize returns the series threshold for the mode.
func (m ChartMode) MinGroupSize() int {
	if m == ChartModeThrottle {
		return MinThrottleGroupSize
	}
	return MinCylinderGroupSize
}

// Group is a set of samples sharing the two fixed coordinates of a chart
// series. A and B are (ratio, throttle) in cylinder mode and
// (cylinders, ratio) in throttle mode.
type Group struct {
	A, B   float64
	Points []DataPoint
}

// Label names the series.
func (g Group) Label(mode ChartMode) string {
	if mode == ChartModeThrottle {
		return fmt.Sprintf("C%g R%g", g.A, g.B)
	}
	return fmt.Sprintf("R%g T%g", g.A, g.B)
}

// Groups partitions points by the mode's series key, keeping only groups
// at or above the mode's size threshold. Groups are returned in order of
// first appearance.
//
// The filter only shapes chart output. Fitting always runs on the full
// deduplicated dataset.
func Groups(points []DataPoint, mode ChartMode) []Group {
	type gk struct{ a, b float64 }
	index := make(map[gk]int)
	var all []Group
	for _, d := range points {
		k := gk{d.Ratio, d.Throttle}
		if mode == ChartModeThrottle {
			k = gk{d.Cylinders, d.Ratio}
		}
		i, ok := index[k]
		if !ok {
			i = len(all)
			index[k] = i
			all = append(all, Group{A: k.a, B: k.b})
		}
		all[i].Points = append(all[i].Points, d)
	}

	threshold := mode.MinGroupSize()
	kept := all[:0]
	for _, g := range all {
		if len(g.Points) >= threshold {
			kept = append(kept, g)
		}
	}
	return kept
}

// FilterForChart flattens the charted groups back into a point list.
func FilterForChart(points []DataPoint, mode ChartMode) []DataPoint {
	var out []DataPoint
	for _, g := range Groups(points, mode) {
		out = append(out, g.Points...)
	}
	return out
}

// XValues returns the sorted distinct x-axis values across groups:
// cylinders in cylinder mode, throttle in throttle mode.
func XValues(groups []Group, mode ChartMode) []float64 {
	seen := make(map[float64]struct{})
	var xs []float64
	for _, g := range groups {
		for _, d := range g.Points {
			x := d.Cylinders
			if mode == ChartModeThrottle {
				x = d.Throttle
			}
			if _, ok := seen[x]; !ok {
				seen[x] = struct{}{}
				xs = append(xs, x)
			}
		}
	}
	sort.Float64s(xs)
	return xs
}
