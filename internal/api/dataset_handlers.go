package api

import (
	"net/http"

	"github.com/banshee-data/mde-formula-finder/internal/dataset"
	"github.com/banshee-data/mde-formula-finder/internal/httputil"
)

// maxUploadBytes caps dataset uploads.
const maxUploadBytes = 32 << 20

type datasetResponse struct {
	dataset.Report
	Loaded  int                 `json:"loaded"`
	Message string              `json:"message,omitempty"`
	Points  []dataset.DataPoint `json:"points,omitempty"`
}

// handleDataset replaces the dataset with an uploaded CSV or TSV body
// (POST) or describes the loaded one (GET, points=true lists the rows).
func (s *Server) handleDataset(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		data := s.ctrl.Data()
		resp := datasetResponse{Loaded: len(data)}
		if r.URL.Query().Get("points") == "true" {
			resp.Points = data
		}
		httputil.WriteJSONOK(w, resp)
	case http.MethodPost:
		s.uploadDataset(w, r)
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) uploadDataset(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxUploadBytes)
	rep, err := dataset.Parse(body)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if rep.Accepted() == 0 {
		httputil.BadRequest(w, "no valid rows in upload")
		return
	}
	if err := s.ctrl.SetData(rep.Points); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	logf("%s (%d skipped, %d rejected)", rep, rep.Skipped, rep.Rejected)
	httputil.WriteJSONOK(w, datasetResponse{Report: rep, Loaded: rep.Accepted(), Message: rep.String()})
}
