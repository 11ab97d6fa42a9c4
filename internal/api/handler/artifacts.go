package handler

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/trobanga/enzflow/internal/api/response"
	"github.com/trobanga/enzflow/internal/models"
)

// Artifact streams one of the job's result files: enzymes, pathways or fasta
func (h *Handlers) Artifact(w http.ResponseWriter, r *http.Request) {
	job, err := h.ownedJob(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var path, contentType string
	switch chi.URLParam(r, "kind") {
	case "enzymes":
		path, contentType = job.ResultPath, "text/csv"
	case "pathways":
		path, contentType = job.PathwayPath, "text/csv"
	case "fasta":
		path, contentType = job.FastaPath, "text/plain"
	default:
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Unknown artifact kind", nil)
		return
	}
	if job.Status != models.JobStatusCompleted || path == "" {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Artifact not available", nil)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Artifact file is missing", nil)
		return
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	http.ServeContent(w, r, filepath.Base(path), info.ModTime(), f)
}
