package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/logbridge/internal/convert"
)

// Handler holds API route handlers.
type Handler struct {
	svc Runner
}

// NewHandler creates a new Handler.
func NewHandler(svc Runner) *Handler {
	return &Handler{svc: svc}
}

// RunResponse is the short form of a report returned after a run.
type RunResponse struct {
	RunID  string         `json:"run_id"`
	DryRun bool           `json:"dry_run"`
	Totals convert.Totals `json:"totals"`
}

// Convert handles POST /api/runs. The run is synchronous.
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Convert(r.Context())
	if err != nil {
		writeError(w, "convert", err)
		return
	}
	writeJSON(w, http.StatusOK, RunResponse{RunID: report.RunID, DryRun: report.DryRun, Totals: report.Totals})
}

// ListRuns handles GET /api/runs.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := h.svc.Runs(limit)
	if err != nil {
		writeError(w, "list runs", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// Report handles GET /api/report. format=markdown returns the rendered
// report instead of JSON.
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Latest()
	if err != nil {
		writeError(w, "report", err)
		return
	}
	if r.URL.Query().Get("format") == "markdown" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(report.Markdown()))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// LookupBlock handles GET /api/blocks/{id}.
func (h *Handler) LookupBlock(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	target, err := h.svc.LookupBlock(id)
	if err != nil {
		writeError(w, "lookup block", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":     id,
		"target": target,
		"link":   "[[" + target.Document + "#^" + target.Anchor + "]]",
	})
}

// Preview handles GET /api/preview?path=.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("path")
	if source == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	p, err := h.svc.Preview(source)
	if err != nil {
		writeError(w, "preview", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
