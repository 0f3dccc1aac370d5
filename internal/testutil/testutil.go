// Package testutil provides shared test fixtures: synthetic fuel datasets
// and small HTTP and channel helpers.
package testutil

import (
	"encoding/json"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/mde-formula-finder/internal/dataset"
	"github.com/banshee-data/mde-formula-finder/internal/fitness"
	"github.com/banshee-data/mde-formula-finder/internal/fuelmodel"
)

// TruthParams generate FuelGrid. They are inside the fit bounds but away
// from DefaultFitParams, so a run has something to improve.
var TruthParams = fuelmodel.FitParams{PowerA: 0.004, PowerN: 2.6, PowerM: 3.2, LinearC: 0.2, LinearM: 1.2}

// FuelGrid evaluates p with the calibrated cylinder curve on cylinders
// 2..10 (step 2), ratios 8 and 12 and throttle 40..120 (step 20), rounding
// fuel to three decimals as published data is. The 50 rows are unique.
func FuelGrid(p fuelmodel.FitParams) []dataset.DataPoint {
	m := fuelmodel.DefaultCylinderModel()
	var out []dataset.DataPoint
	for c := 2.0; c <= 10; c += 2 {
		for _, r := range []float64{8, 12} {
			for thr := 40.0; thr <= 120; thr += 20 {
				out = append(out, dataset.DataPoint{
					Cylinders: c, Ratio: r, Throttle: thr,
					Fuel: fitness.Round3(fuelmodel.Evaluate(thr, r, c, p, m)),
				})
			}
		}
	}
	return out
}

// CSV renders points in the tab-separated upload format with a header.
func CSV(points []dataset.DataPoint) string {
	var b strings.Builder
	b.WriteString("cylinders\tratio\tthrottle\ttorque\tfuel\n")
	for _, d := range points {
		for i, v := range []float64{d.Cylinders, d.Ratio, d.Throttle, d.Torque, d.Fuel} {
			if i > 0 {
				b.WriteByte('\t')
			}
			b.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// WaitClosed fails the test if ch is not closed within timeout.
func WaitClosed(t *testing.T, ch <-chan struct{}, timeout time.Duration) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		t.Fatalf("channel not closed within %s", timeout)
	}
}

// DecodeBody unmarshals a recorded JSON response into v.
func DecodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}
