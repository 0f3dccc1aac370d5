// Package api exposes the optimizer over HTTP: dataset upload, run control,
// analysis, archived runs and charts. A gRPC health service reports whether
// a run is active.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/mde-formula-finder/internal/db"
	"github.com/banshee-data/mde-formula-finder/internal/httputil"
	"github.com/banshee-data/mde-formula-finder/internal/monitoring"
	"github.com/banshee-data/mde-formula-finder/internal/optimizer"
	"github.com/banshee-data/mde-formula-finder/internal/version"
)

// ANSI escape codes for request logging.
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

var logf = monitoring.Prefixed("api")

// RunArchive is the read side of the run history.
type RunArchive interface {
	ListRuns(ctx context.Context, limit int) ([]*db.Run, error)
	GetRun(ctx context.Context, runID string) (*db.Run, error)
	Events(ctx context.Context, runID string) ([]db.RunEvent, error)
}

// Server holds the HTTP handlers.
type Server struct {
	// runCtx bounds runs started over HTTP; request contexts end with the
	// response.
	runCtx     context.Context
	ctrl       *optimizer.Controller
	defaults   optimizer.Request
	runs       RunArchive
	assetsHost string
}

// NewServer creates a Server. defaults fills the fields a start request
// leaves out. Runs started over HTTP are cancelled when ctx is.
func NewServer(ctx context.Context, ctrl *optimizer.Controller, defaults optimizer.Request) *Server {
	return &Server{runCtx: ctx, ctrl: ctrl, defaults: defaults}
}

// SetRunArchive enables the /api/fit/runs endpoints.
func (s *Server) SetRunArchive(a RunArchive) {
	s.runs = a
}

// SetAssetsHost overrides where chart pages load echarts from.
func (s *Server) SetAssetsHost(host string) {
	s.assetsHost = host
}

// ServeMux returns the routes of the server.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)

	mux.HandleFunc("/api/dataset", s.handleDataset)

	mux.HandleFunc("/api/fit/start", s.handleStart)
	mux.HandleFunc("/api/fit/stop", s.handleStop)
	mux.HandleFunc("/api/fit/status", s.handleStatus)
	mux.HandleFunc("/api/fit/boost", s.handleBoost)
	mux.HandleFunc("/api/fit/params", s.handleParams)
	mux.HandleFunc("/api/fit/randomize", s.handleRandomize)
	mux.HandleFunc("/api/fit/analysis", s.handleAnalysis)
	mux.HandleFunc("/api/fit/runs", s.handleListRuns)
	mux.HandleFunc("/api/fit/runs/", s.handleGetRun)

	mux.HandleFunc("/charts/fit", s.handleFitChart)
	mux.HandleFunc("/charts/trace.png", s.handleTraceChart)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	st := s.ctrl.Status()
	httputil.WriteJSONOK(w, map[string]interface{}{
		"status":     "ok",
		"version":    version.String(),
		"running":    st.Running(),
		"generation": st.Generation,
		"data_rows":  len(s.ctrl.Data()),
	})
}

// writeControllerError maps controller errors to status codes: state
// conflicts are 409, everything else is a bad request.
func writeControllerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, optimizer.ErrAlreadyRunning),
		errors.Is(err, optimizer.ErrNotRunning),
		errors.Is(err, optimizer.ErrNoData):
		httputil.Conflict(w, err.Error())
	default:
		httputil.BadRequest(w, err.Error())
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, URI, status and duration of each request.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		logf("[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}
