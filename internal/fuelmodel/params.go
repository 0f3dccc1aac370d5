package fuelmodel

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrOutOfBounds is returned when a FitParams field lies outside its range.
var ErrOutOfBounds = errors.New("fit parameter out of bounds")

// Field identifies one evolvable coefficient of FitParams.
type Field int

const (
	PowerA Field = iota
	PowerN
	PowerM
	LinearC
	LinearM

	// NumFields is the number of evolvable coefficients.
	NumFields = 5
)

var fieldNames = [NumFields]string{"powerA", "powerN", "powerM", "linearC", "linearM"}

// Fields lists every field in declaration order.
var Fields = [NumFields]Field{PowerA, PowerN, PowerM, LinearC, LinearM}

func (f Field) String() string {
	if f < 0 || int(f) >= NumFields {
		return "Field(" + strconv.Itoa(int(f)) + ")"
	}
	return fieldNames[f]
}

// Range is a closed interval [Min, Max].
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Clamp limits v to the interval.
func (r Range) Clamp(v float64) float64 {
	return math.Max(r.Min, math.Min(r.Max, v))
}

// Contains reports whether v lies within the interval.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Bounds are the hard limits applied during mutation and injection.
var Bounds = [NumFields]Range{
	PowerA:  {Min: 0.0001, Max: 0.1},
	PowerN:  {Min: 1, Max: 5},
	PowerM:  {Min: 1, Max: 5},
	LinearC: {Min: 0.01, Max: 5},
	LinearM: {Min: 0.1, Max: 5},
}

// FitParams is the evolvable parameter vector of the fuel formula.
type FitParams struct {
	PowerA  float64 `json:"power_a"`
	PowerN  float64 `json:"power_n"`
	PowerM  float64 `json:"power_m"`
	LinearC float64 `json:"linear_c"`
	LinearM float64 `json:"linear_m"`
}

// DefaultFitParams is the hand-tuned starting point.
func DefaultFitParams() FitParams {
	return FitParams{
		PowerA:  0.002746,
		PowerN:  3.0,
		PowerM:  3.0,
		LinearC: 0.14,
		LinearM: 1.0,
	}
}

// Get returns the value of field f.
func (p FitParams) Get(f Field) float64 {
	switch f {
	case PowerA:
		return p.PowerA
	case PowerN:
		return p.PowerN
	case PowerM:
		return p.PowerM
	case LinearC:
		return p.LinearC
	case LinearM:
		return p.LinearM
	}
	panic(fmt.Sprintf("fuelmodel: unknown field %d", int(f)))
}

// Set assigns v to field f.
func (p *FitParams) Set(f Field, v float64) {
	switch f {
	case PowerA:
		p.PowerA = v
	case PowerN:
		p.PowerN = v
	case PowerM:
		p.PowerM = v
	case LinearC:
		p.LinearC = v
	case LinearM:
		p.LinearM = v
	default:
		panic(fmt.Sprintf("fuelmodel: unknown field %d", int(f)))
	}
}

// Clamped returns a copy with every field limited to Bounds.
func (p FitParams) Clamped() FitParams {
	out := p
	for _, f := range Fields {
		out.Set(f, Bounds[f].Clamp(p.Get(f)))
	}
	return out
}

// Validate returns ErrOutOfBounds (wrapped with the offending field) if any
// field is non-finite or outside Bounds.
func (p FitParams) Validate() error {
	for _, f := range Fields {
		v := p.Get(f)
		if math.IsNaN(v) || math.IsInf(v, 0) || !Bounds[f].Contains(v) {
			return fmt.Errorf("%s=%v not in [%v, %v]: %w", f, v, Bounds[f].Min, Bounds[f].Max, ErrOutOfBounds)
		}
	}
	return nil
}

// formatCoefficient renders v in exponent form with 15 digits after the
// leading digit, matching the precision of the published formula text.
func formatCoefficient(v float64) string {
	return strconv.FormatFloat(v, 'e', 15, 64)
}

// Dump renders the parameters as "name = value" lines. ParseDump reads the
// output back to within one unit in the 16th significant digit.
func (p FitParams) Dump() string {
	var b strings.Builder
	for _, f := range Fields {
		fmt.Fprintf(&b, "%s = %s\n", f, formatCoefficient(p.Get(f)))
	}
	return b.String()
}

// Dump renders the cylinder constants in the same format as FitParams.Dump.
func (m CylinderModelParams) Dump() string {
	var b strings.Builder
	for _, kv := range []struct {
		name string
		v    float64
	}{
		{"baseA", m.BaseA},
		{"baseB", m.BaseB},
		{"baseC", m.BaseC},
		{"waveAmp", m.WaveAmp},
		{"waveGrow", m.WaveGrow},
		{"wavePeriod", m.WavePeriod},
		{"wavePhase", m.WavePhase},
	} {
		fmt.Fprintf(&b, "%s = %s\n", kv.name, formatCoefficient(kv.v))
	}
	return b.String()
}

// ParseDump reads the output of FitParams.Dump. Blank lines and lines
// starting with '#' are ignored; every field must be present.
func ParseDump(s string) (FitParams, error) {
	var p FitParams
	seen := make(map[Field]bool, NumFields)
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, value, ok := strings.Cut(line, "=")
		if !ok {
			return FitParams{}, fmt.Errorf("invalid dump line %q", line)
		}
		name = strings.TrimSpace(name)
		f, ok := fieldByName(name)
		if !ok {
			return FitParams{}, fmt.Errorf("unknown field %q", name)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return FitParams{}, fmt.Errorf("invalid value for %s: %w", name, err)
		}
		p.Set(f, v)
		seen[f] = true
	}
	for _, f := range Fields {
		if !seen[f] {
			return FitParams{}, fmt.Errorf("missing field %s", f)
		}
	}
	return p, nil
}

func fieldByName(name string) (Field, bool) {
	for i, n := range fieldNames {
		if n == name {
			return Field(i), true
		}
	}
	return 0, false
}
