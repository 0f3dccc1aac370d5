package api

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/banshee-data/mde-formula-finder/internal/db"
	"github.com/banshee-data/mde-formula-finder/internal/fitness"
	"github.com/banshee-data/mde-formula-finder/internal/fuelmodel"
	"github.com/banshee-data/mde-formula-finder/internal/httputil"
	"github.com/banshee-data/mde-formula-finder/internal/security"
)

// Default page sizes.
const (
	defaultWrongRows = 10
	defaultRunLimit  = 20
)

// handleStart starts a run. Fields missing from the body take the server
// defaults; an empty body starts a run with the defaults alone.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	req := s.defaults
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if err := s.ctrl.Start(s.runCtx, req); err != nil {
		writeControllerError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, s.ctrl.Status())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	s.ctrl.Stop()
	httputil.WriteJSONOK(w, s.ctrl.Status())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.ctrl.Status())
}

func (s *Server) handleBoost(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if err := s.ctrl.Boost(); err != nil {
		writeControllerError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "boost requested"})
}

type paramsResponse struct {
	Params fuelmodel.FitParams `json:"params"`
	Dump   string              `json:"dump"`
	Model  string              `json:"model"`
}

// handleParams serves the current parameters (GET) or replaces them
// (POST). GET returns the text dump unless format=json; download=true adds
// an attachment header. POST accepts a text dump when the content type is
// text/plain and a JSON FitParams otherwise.
func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.getParams(w, r)
	case http.MethodPost:
		s.setParams(w, r)
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) getParams(w http.ResponseWriter, r *http.Request) {
	p := s.ctrl.Params()
	if r.URL.Query().Get("format") == "json" {
		httputil.WriteJSONOK(w, paramsResponse{Params: p, Dump: p.Dump(), Model: s.ctrl.Model().Dump()})
		return
	}
	if r.URL.Query().Get("download") == "true" {
		name := "fuelfit-params"
		if id := s.ctrl.Status().RunID; id != "" {
			name += "-" + id
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.txt", security.SanitizeFilename(name)))
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, p.Dump())
}

func (s *Server) setParams(w http.ResponseWriter, r *http.Request) {
	var p fuelmodel.FitParams
	if strings.HasPrefix(r.Header.Get("Content-Type"), "text/plain") {
		body, err := io.ReadAll(io.LimitReader(r.Body, httputil.MaxBodyBytes))
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		if p, err = fuelmodel.ParseDump(string(body)); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
	} else if err := httputil.DecodeJSON(r, &p); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if err := s.ctrl.SetParams(p); err != nil {
		writeControllerError(w, err)
		return
	}
	logf("parameters replaced")
	httputil.WriteJSONOK(w, paramsResponse{Params: p, Dump: p.Dump(), Model: s.ctrl.Model().Dump()})
}

func (s *Server) handleRandomize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	p, err := s.ctrl.Randomize(nil)
	if err != nil {
		writeControllerError(w, err)
		return
	}
	httputil.WriteJSONOK(w, paramsResponse{Params: p, Dump: p.Dump(), Model: s.ctrl.Model().Dump()})
}

type analysisResponse struct {
	Summary         fitness.Summary     `json:"summary"`
	Fitness         *float64            `json:"fitness"`
	CorrectFraction float64             `json:"correct_fraction"`
	Wrong           []fitness.RowResult `json:"wrong"`
	Params          fuelmodel.FitParams `json:"params"`
}

// handleAnalysis compares the current parameters with every row. Only the
// ten worst rows are listed unless all=true.
func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	data := s.ctrl.Data()
	p := s.ctrl.Params()
	limit := defaultWrongRows
	if r.URL.Query().Get("all") == "true" {
		limit = 0
	}
	a := fitness.Analyze(p, s.ctrl.Model(), data)
	resp := analysisResponse{
		Summary:         a.Summary,
		CorrectFraction: a.Summary.CorrectFraction(),
		Wrong:           a.Wrong(limit),
		Params:          p,
	}
	if score := fitness.Score(p, s.ctrl.Model(), data); !math.IsInf(score, 0) && !math.IsNaN(score) {
		resp.Fitness = &score
	}
	if resp.Wrong == nil {
		resp.Wrong = []fitness.RowResult{}
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.runs == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "run archive not configured")
		return
	}
	limit := defaultRunLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			httputil.BadRequest(w, fmt.Sprintf("invalid limit %q", v))
			return
		}
		limit = n
	}
	runs, err := s.runs.ListRuns(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if runs == nil {
		runs = []*db.Run{}
	}
	httputil.WriteJSONOK(w, runs)
}

type runResponse struct {
	*db.Run
	Events []db.RunEvent `json:"events"`
}

// handleGetRun serves /api/fit/runs/{id} with its milestones.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.runs == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "run archive not configured")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/fit/runs/")
	if id == "" || strings.Contains(id, "/") {
		httputil.NotFound(w, "run not found")
		return
	}
	run, err := s.runs.GetRun(r.Context(), id)
	if errors.Is(err, db.ErrRunNotFound) {
		httputil.NotFound(w, err.Error())
		return
	}
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	events, err := s.runs.Events(r.Context(), id)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if events == nil {
		events = []db.RunEvent{}
	}
	httputil.WriteJSONOK(w, runResponse{Run: run, Events: events})
}
