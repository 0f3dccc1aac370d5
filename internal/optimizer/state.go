package optimizer

import (
	"encoding/json"
	"math"
	"time"

	"github.com/banshee-data/mde-formula-finder/internal/fuelmodel"
)

// Status is the controller's lifecycle state.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
)

// Stop reasons recorded when a run ends.
const (
	ReasonStopped        = "stopped"
	ReasonMaxGenerations = "max_generations"
	ReasonCancelled      = "cancelled"
)

const (
	// MaxLogEntries is how many milestone messages the status keeps.
	MaxLogEntries = 6
	// MaxTracePoints bounds the best-fitness trace kept for plotting.
	MaxTracePoints = 1024
)

// LogEntry is one milestone message.
type LogEntry struct {
	Time       time.Time `json:"time"`
	Generation int       `json:"generation"`
	Message    string    `json:"message"`
}

func (e LogEntry) String() string {
	return e.Message
}

// TracePoint records the best fitness at a generation where it improved.
type TracePoint struct {
	Generation int     `json:"generation"`
	Fitness    float64 `json:"fitness"`
}

// State is a point-in-time copy of the controller's run state.
type State struct {
	RunID           string              `json:"run_id,omitempty"`
	Status          Status              `json:"status"`
	Generation      int                 `json:"generation"`
	InitialFitness  float64             `json:"initial_fitness"`
	BestFitness     float64             `json:"best_fitness"`
	BestParams      fuelmodel.FitParams `json:"best_params"`
	StagnationCount int                 `json:"stagnation_count"`
	StartedAt       *time.Time          `json:"started_at,omitempty"`
	FinishedAt      *time.Time          `json:"finished_at,omitempty"`
	StopReason      string              `json:"stop_reason,omitempty"`
	Request         *Request            `json:"request,omitempty"`
	Log             []LogEntry          `json:"log"`
	Trace           []TracePoint        `json:"trace"`
}

// Running reports whether the state describes an active run.
func (s State) Running() bool {
	return s.Status == StatusRunning
}

// MarshalJSON encodes non-finite fitness values as null, which
// encoding/json cannot represent otherwise.
func (s State) MarshalJSON() ([]byte, error) {
	type plain State
	trace := make([]tracePointJSON, len(s.Trace))
	for i, p := range s.Trace {
		trace[i] = tracePointJSON{Generation: p.Generation, Fitness: finiteOrNil(p.Fitness)}
	}
	return json.Marshal(struct {
		plain
		InitialFitness *float64         `json:"initial_fitness"`
		BestFitness    *float64         `json:"best_fitness"`
		Trace          []tracePointJSON `json:"trace"`
	}{
		plain:          plain(s),
		InitialFitness: finiteOrNil(s.InitialFitness),
		BestFitness:    finiteOrNil(s.BestFitness),
		Trace:          trace,
	})
}

type tracePointJSON struct {
	Generation int      `json:"generation"`
	Fitness    *float64 `json:"fitness"`
}

func finiteOrNil(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func (s State) clone() State {
	out := s
	out.Log = append([]LogEntry(nil), s.Log...)
	out.Trace = append([]TracePoint(nil), s.Trace...)
	if s.Request != nil {
		req := *s.Request
		out.Request = &req
	}
	return out
}

func (s *State) appendLog(e LogEntry) {
	s.Log = append(s.Log, e)
	if n := len(s.Log); n > MaxLogEntries {
		s.Log = append(s.Log[:0:0], s.Log[n-MaxLogEntries:]...)
	}
}

// appendTrace records p. A point for the generation already at the end
// of the trace replaces it.
func (s *State) appendTrace(p TracePoint) {
	if n := len(s.Trace); n > 0 && s.Trace[n-1].Generation == p.Generation {
		s.Trace[n-1] = p
		return
	}
	s.Trace = append(s.Trace, p)
	if n := len(s.Trace); n > MaxTracePoints {
		s.Trace = append(s.Trace[:0:0], s.Trace[n-MaxTracePoints:]...)
	}
}
