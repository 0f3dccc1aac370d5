package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/banshee-data/mde-formula-finder/internal/monitoring"
)

func init() {
	monitoring.SetLogger(nil)
}

func TestErrorHelpers(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		write  func(http.ResponseWriter)
		status int
		msg    string
	}{
		{"method", MethodNotAllowed, http.StatusMethodNotAllowed, "method not allowed"},
		{"bad request", func(w http.ResponseWriter) { BadRequest(w, "bad") }, http.StatusBadRequest, "bad"},
		{"not found", func(w http.ResponseWriter) { NotFound(w, "gone") }, http.StatusNotFound, "gone"},
		{"conflict", func(w http.ResponseWriter) { Conflict(w, "busy") }, http.StatusConflict, "busy"},
		{"internal", func(w http.ResponseWriter) { InternalServerError(w, "boom") }, http.StatusInternalServerError, "boom"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			tc.write(rec)

			if rec.Code != tc.status {
				t.Errorf("status = %d, want %d", rec.Code, tc.status)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("content-type = %s, want application/json", ct)
			}
			var resp map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp["error"] != tc.msg {
				t.Errorf("error = %q, want %q", resp["error"], tc.msg)
			}
		})
	}
}

func TestWriteJSONOK(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteJSONOK(rec, map[string]int{"generation": 7})
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"generation":7}` {
		t.Errorf("body = %s", got)
	}
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	type body struct {
		F float64 `json:"f"`
	}
	testCases := []struct {
		name    string
		in      string
		want    float64
		wantErr bool
	}{
		{"valid", `{"f": 0.7}`, 0.7, false},
		{"empty keeps defaults", ``, 0.4, false},
		{"unknown field", `{"g": 1}`, 0, true},
		{"malformed", `{"f":`, 0, true},
		{"trailing", `{"f": 1} {"f": 2}`, 0, true},
		{"too large", `{"f": 1, "pad": "` + strings.Repeat("x", MaxBodyBytes) + `"}`, 0, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.in))
			got := body{F: 0.4}
			err := DecodeJSON(req, &got)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeJSON: %v", err)
			}
			if got.F != tc.want {
				t.Errorf("F = %v, want %v", got.F, tc.want)
			}
		})
	}
}
