// Package dataset holds measured fuel samples and the ingestion rules that
// turn delimited text into a validated, deduplicated set of DataPoints.
package dataset

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidPoint is returned for a sample the fuel model cannot evaluate.
var ErrInvalidPoint = errors.New("invalid data point")

// DataPoint is one measured sample. Torque is carried from the input file
// for display but is not used by the model.
type DataPoint struct {
	Cylinders float64 `json:"cylinders"`
	Ratio     float64 `json:"ratio"`
	Throttle  float64 `json:"throttle"`
	Torque    float64 `json:"torque,omitempty"`
	Fuel      float64 `json:"fuel"`
}

// Key identifies a sample for deduplication.
type Key struct {
	Cylinders float64
	Ratio     float64
	Throttle  float64
}

// Key returns the deduplication key of the sample.
func (d DataPoint) Key() Key {
	return Key{Cylinders: d.Cylinders, Ratio: d.Ratio, Throttle: d.Throttle}
}

// Validate checks that every model input is finite and the ratio is positive.
func (d DataPoint) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"cylinders", d.Cylinders},
		{"ratio", d.Ratio},
		{"throttle", d.Throttle},
		{"fuel", d.Fuel},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("%s is not finite: %w", f.name, ErrInvalidPoint)
		}
	}
	if d.Ratio <= 0 {
		return fmt.Errorf("ratio must be positive, got %v: %w", d.Ratio, ErrInvalidPoint)
	}
	return nil
}

// Validate checks every point and rejects duplicate keys. The returned error
// names the first offending row (0-based).
func Validate(points []DataPoint) error {
	seen := make(map[Key]int, len(points))
	for i, d := range points {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		if j, dup := seen[d.Key()]; dup {
			return fmt.Errorf("row %d duplicates row %d: %w", i, j, ErrInvalidPoint)
		}
		seen[d.Key()] = i
	}
	return nil
}
