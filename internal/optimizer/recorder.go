package optimizer

import (
	"context"
	"time"

	"github.com/banshee-data/mde-formula-finder/internal/fuelmodel"
)

// RunInfo describes a run when it starts.
type RunInfo struct {
	ID             string
	StartedAt      time.Time
	Request        Request
	Seed           fuelmodel.FitParams
	DataRows       int
	InitialFitness float64
}

// RunResult describes a run when it ends.
type RunResult struct {
	FinishedAt  time.Time
	Generation  int
	BestFitness float64
	BestParams  fuelmodel.FitParams
	Reason      string
}

// Recorder archives run history. Errors are logged and never stop a run.
type Recorder interface {
	RunStarted(ctx context.Context, info RunInfo) error
	Milestone(ctx context.Context, runID string, at time.Time, ev Event) error
	RunFinished(ctx context.Context, runID string, res RunResult) error
}

type nopRecorder struct{}

func (nopRecorder) RunStarted(context.Context, RunInfo) error                 { return nil }
func (nopRecorder) Milestone(context.Context, string, time.Time, Event) error { return nil }
func (nopRecorder) RunFinished(context.Context, string, RunResult) error      { return nil }
