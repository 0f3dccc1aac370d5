// Package fuelmodel evaluates the piecewise fuel-consumption formula.
//
// The formula has two regimes. Below a per-cylinder threshold the fuel
// estimate follows a power law in throttle and ratio. At and above the
// threshold a linear branch takes over, offset so that both branches agree
// at the transition throttle. The threshold is anchored at a fixed
// reference point (throttle 100, ratio 14).
package fuelmodel

import "math"

const (
	// ReferenceThrottle and ReferenceRatio define the calibration anchor
	// that separates the power-law and linear regimes.
	ReferenceThrottle = 100.0
	ReferenceRatio    = 14.0
)

// CylinderModelParams are the fixed constants of the per-cylinder fuel curve.
// They are calibrated offline and never optimised.
type CylinderModelParams struct {
	BaseA      float64 `json:"base_a"`
	BaseB      float64 `json:"base_b"`
	BaseC      float64 `json:"base_c"`
	WaveAmp    float64 `json:"wave_amp"`
	WaveGrow   float64 `json:"wave_grow"`
	WavePeriod float64 `json:"wave_period"`
	WavePhase  float64 `json:"wave_phase"`
}

// DefaultCylinderModel returns the calibrated cylinder curve constants.
func DefaultCylinderModel() CylinderModelParams {
	return CylinderModelParams{
		BaseA:      0.00009782660801279454,
		BaseB:      0.00978251199152855959,
		BaseC:      0.0,
		WaveAmp:    0.01956600381495192040,
		WaveGrow:   0.99999232491636780296,
		WavePeriod: 62.83181597823495678767,
		WavePhase:  3.14158481683757129233,
	}
}

// FuelPerCylinder returns the base fuel usage for a cylinder count: a
// quadratic curve plus the absolute value of a growth-scaled sine wave.
func (m CylinderModelParams) FuelPerCylinder(c float64) float64 {
	base := m.BaseA*c*c + m.BaseB*c + m.BaseC
	amp := m.WaveAmp * math.Pow(c, m.WaveGrow)
	wave := amp * math.Sin(2*math.Pi*c/m.WavePeriod+m.WavePhase)
	return base + math.Abs(wave)
}

// powerMultiplier is powerA * t^powerN / r^powerM.
func powerMultiplier(t, r float64, p FitParams) float64 {
	return p.PowerA * math.Pow(t, p.PowerN) / math.Pow(r, p.PowerM)
}

// ThresholdMultiplier is the power-law multiplier at the reference point.
func ThresholdMultiplier(p FitParams) float64 {
	return powerMultiplier(ReferenceThrottle, ReferenceRatio, p)
}

// ThresholdThrottle solves for the throttle at which the power-law branch
// reaches the threshold multiplier for ratio r.
func ThresholdThrottle(r float64, p FitParams) float64 {
	tm := ThresholdMultiplier(p)
	return math.Pow(tm*math.Pow(r, p.PowerM)/p.PowerA, 1/p.PowerN)
}

// PowerFuel evaluates the power-law branch regardless of regime.
func PowerFuel(t, r, c float64, p FitParams, m CylinderModelParams) float64 {
	return powerMultiplier(t, r, p) * m.FuelPerCylinder(c)
}

// LinearFuel evaluates the linear branch regardless of regime. The offset
// term is derived so the branch passes through the threshold fuel at
// ThresholdThrottle(r, p).
func LinearFuel(t, r, c float64, p FitParams, m CylinderModelParams) float64 {
	tm := ThresholdMultiplier(p)
	tThreshold := ThresholdThrottle(r, p)
	linearE := tm - p.LinearC*tThreshold/math.Pow(r, p.LinearM)
	return (p.LinearC*t/math.Pow(r, p.LinearM) + linearE) * m.FuelPerCylinder(c)
}

// Evaluate returns the modelled fuel usage for throttle t, ratio r and
// cylinder count c. r must be positive; callers validate inputs before
// evaluation.
func Evaluate(t, r, c float64, p FitParams, m CylinderModelParams) float64 {
	fpc := m.FuelPerCylinder(c)
	powerFuel := powerMultiplier(t, r, p) * fpc
	thresholdFuel := ThresholdMultiplier(p) * fpc

	if powerFuel < thresholdFuel {
		return powerFuel
	}
	return LinearFuel(t, r, c, p, m)
}
