package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/mde-formula-finder/internal/fuelmodel"
	"github.com/banshee-data/mde-formula-finder/internal/optimizer"
)

// ErrRunNotFound is returned when a run ID is unknown.
var ErrRunNotFound = errors.New("run not found")

// Run is an archived optimization run. Fitness values that were not
// finite are nil.
type Run struct {
	RunID          string               `json:"run_id"`
	StartedAt      time.Time            `json:"started_at"`
	FinishedAt     *time.Time           `json:"finished_at,omitempty"`
	StopReason     string               `json:"stop_reason,omitempty"`
	PopulationSize int                  `json:"population_size"`
	F              float64              `json:"f"`
	CR             float64              `json:"cr"`
	MaxGenerations int                  `json:"max_generations"`
	RandomSeed     uint64               `json:"random_seed"`
	DataRows       int                  `json:"data_rows"`
	Seed           fuelmodel.FitParams  `json:"seed"`
	InitialFitness *float64             `json:"initial_fitness"`
	Generations    int                  `json:"generations"`
	BestFitness    *float64             `json:"best_fitness"`
	BestParams     *fuelmodel.FitParams `json:"best_params,omitempty"`
}

// RunEvent is an archived milestone.
type RunEvent struct {
	EventID    int64     `json:"event_id"`
	RunID      string    `json:"run_id"`
	Kind       string    `json:"kind"`
	Generation int       `json:"generation"`
	Fitness    *float64  `json:"fitness"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
}

// RunStore persists run history. It implements optimizer.Recorder.
type RunStore struct {
	db *sql.DB
}

var _ optimizer.Recorder = (*RunStore)(nil)

// NewRunStore creates a RunStore over db.
func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db.DB}
}

func nullableFitness(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func fitnessPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// RunStarted inserts a run. An empty info.ID is replaced with a new UUID.
func (s *RunStore) RunStarted(ctx context.Context, info optimizer.RunInfo) error {
	if info.ID == "" {
		info.ID = uuid.New().String()
	}
	seedJSON, err := json.Marshal(info.Seed)
	if err != nil {
		return fmt.Errorf("marshal seed: %w", err)
	}
	req := info.Request
	return retryOnBusy(func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO fit_runs (
				run_id, started_at, population_size, f, cr, max_generations,
				random_seed, data_rows, seed_json, initial_fitness
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			info.ID, info.StartedAt.UnixNano(), req.PopulationSize, req.F, req.CR, req.MaxGenerations,
			int64(req.RandomSeed), info.DataRows, string(seedJSON), nullableFitness(info.InitialFitness),
		)
		return err
	})
}

// Milestone appends an event to a run.
func (s *RunStore) Milestone(ctx context.Context, runID string, at time.Time, ev optimizer.Event) error {
	return retryOnBusy(func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO fit_events (run_id, kind, generation, fitness, message, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			runID, string(ev.Kind), ev.Generation, nullableFitness(ev.Fitness), ev.Message, at.UnixNano(),
		)
		return err
	})
}

// RunFinished records the outcome of a run.
func (s *RunStore) RunFinished(ctx context.Context, runID string, res optimizer.RunResult) error {
	paramsJSON, err := json.Marshal(res.BestParams)
	if err != nil {
		return fmt.Errorf("marshal best params: %w", err)
	}
	return retryOnBusy(func() error {
		result, err := s.db.ExecContext(ctx, `
			UPDATE fit_runs
			SET finished_at = ?, stop_reason = ?, generations = ?, best_fitness = ?, best_params_json = ?
			WHERE run_id = ?`,
			res.FinishedAt.UnixNano(), res.Reason, res.Generation, nullableFitness(res.BestFitness),
			string(paramsJSON), runID,
		)
		if err != nil {
			return err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%s: %w", runID, ErrRunNotFound)
		}
		return nil
	})
}

const runColumns = `
	run_id, started_at, finished_at, stop_reason, population_size, f, cr,
	max_generations, random_seed, data_rows, seed_json, initial_fitness,
	generations, best_fitness, best_params_json`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		r          Run
		started    int64
		finished   sql.NullInt64
		reason     sql.NullString
		seed       int64
		seedJSON   string
		initial    sql.NullFloat64
		best       sql.NullFloat64
		paramsJSON sql.NullString
	)
	err := row.Scan(
		&r.RunID, &started, &finished, &reason, &r.PopulationSize, &r.F, &r.CR,
		&r.MaxGenerations, &seed, &r.DataRows, &seedJSON, &initial,
		&r.Generations, &best, &paramsJSON,
	)
	if err != nil {
		return nil, err
	}
	r.StartedAt = time.Unix(0, started).UTC()
	if finished.Valid {
		t := time.Unix(0, finished.Int64).UTC()
		r.FinishedAt = &t
	}
	r.StopReason = reason.String
	r.RandomSeed = uint64(seed)
	r.InitialFitness = fitnessPtr(initial)
	r.BestFitness = fitnessPtr(best)
	if err := json.Unmarshal([]byte(seedJSON), &r.Seed); err != nil {
		return nil, fmt.Errorf("decode seed of run %s: %w", r.RunID, err)
	}
	if paramsJSON.Valid && paramsJSON.String != "" {
		var p fuelmodel.FitParams
		if err := json.Unmarshal([]byte(paramsJSON.String), &p); err != nil {
			return nil, fmt.Errorf("decode best params of run %s: %w", r.RunID, err)
		}
		r.BestParams = &p
	}
	return &r, nil
}

// ListRuns returns the most recent runs first. A limit of zero or less
// returns every run.
func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM fit_runs ORDER BY started_at DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns a single run by ID.
func (s *RunStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM fit_runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	return r, nil
}

// Events returns a run's milestones in insertion order.
func (s *RunStore) Events(ctx context.Context, runID string) ([]RunEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, run_id, kind, generation, fitness, message, created_at
		FROM fit_events
		WHERE run_id = ?
		ORDER BY event_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []RunEvent
	for rows.Next() {
		var (
			e       RunEvent
			fitness sql.NullFloat64
			created int64
		)
		if err := rows.Scan(&e.EventID, &e.RunID, &e.Kind, &e.Generation, &fitness, &e.Message, &created); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Fitness = fitnessPtr(fitness)
		e.CreatedAt = time.Unix(0, created).UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}

// DeleteRun removes a run and its events.
func (s *RunStore) DeleteRun(ctx context.Context, runID string) error {
	return retryOnBusy(func() error {
		result, err := s.db.ExecContext(ctx, `DELETE FROM fit_runs WHERE run_id = ?`, runID)
		if err != nil {
			return err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%s: %w", runID, ErrRunNotFound)
		}
		return nil
	})
}
