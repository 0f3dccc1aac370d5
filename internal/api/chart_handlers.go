package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/banshee-data/mde-formula-finder/internal/dataset"
	"github.com/banshee-data/mde-formula-finder/internal/httputil"
	"github.com/banshee-data/mde-formula-finder/internal/report"
)

// handleFitChart renders measured against modelled fuel for the current
// parameters. mode is cylinder (default) or throttle.
func (s *Server) handleFitChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	mode, err := dataset.ParseChartMode(r.URL.Query().Get("mode"))
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	st := s.ctrl.Status()
	fs := report.BuildFitSeries(s.ctrl.Data(), s.ctrl.Params(), s.ctrl.Model(), mode)
	subtitle := fmt.Sprintf("mode=%s series=%d generation=%d", mode, len(fs.Series), st.Generation)

	var buf bytes.Buffer
	if err := report.FitChart(&buf, fs, report.ChartOptions{AssetsHost: s.assetsHost, Subtitle: subtitle}); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

// handleTraceChart renders the best-fitness trace of the current or last
// run as a PNG.
func (s *Server) handleTraceChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	st := s.ctrl.Status()
	title := "Best Fitness"
	if st.RunID != "" {
		title = fmt.Sprintf("Best Fitness (run %.8s)", st.RunID)
	}

	var buf bytes.Buffer
	err := report.TracePlot(&buf, st.Trace, title)
	if errors.Is(err, report.ErrEmptyTrace) {
		httputil.NotFound(w, "no fitness trace yet")
		return
	}
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(buf.Bytes())
}
