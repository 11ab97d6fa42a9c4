package handler

import (
	"net/http"
	"os"

	"github.com/trobanga/enzflow/internal/annotate"
	mw "github.com/trobanga/enzflow/internal/api/middleware"
	"github.com/trobanga/enzflow/internal/api/response"
	"github.com/trobanga/enzflow/internal/models"
)

// ListJobs returns the caller's jobs, newest first
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	h.reap(r.Context())

	jobs, err := h.Store.ListJobs(r.Context(), mw.GetOwner(r))
	if err != nil {
		h.logError(r, "List jobs failed", err)
		writeError(w, err)
		return
	}

	views := make([]JobView, 0, len(jobs))
	for i := range jobs {
		views = append(views, h.view(r.Context(), &jobs[i]))
	}
	response.JSON(w, views)
}

// GetJob returns one job with its source file
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	h.reap(r.Context())

	job, err := h.ownedJob(r)
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, h.view(r.Context(), job))
}

type progressView struct {
	Status          models.JobStatus `json:"status"`
	Progress        int              `json:"progress"`
	ProgressMessage string           `json:"progress_message"`
	Stage           models.StageName `json:"stage,omitempty"`
	Completed       bool             `json:"completed"`
	Failed          bool             `json:"failed"`
	ErrorMessage    string           `json:"error_message,omitempty"`
}

// Progress is the polling endpoint of a running job
func (h *Handlers) Progress(w http.ResponseWriter, r *http.Request) {
	job, err := h.ownedJob(r)
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, progressView{
		Status:          job.Status,
		Progress:        job.Progress,
		ProgressMessage: job.ProgressMessage,
		Stage:           job.Stage,
		Completed:       job.Status == models.JobStatusCompleted,
		Failed:          job.Status == models.JobStatusFailed,
		ErrorMessage:    job.ErrorMessage,
	})
}

// Reset returns a running job to the queue and admits the next one
func (h *Handlers) Reset(w http.ResponseWriter, r *http.Request) {
	job, err := h.ownedJob(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if job.Status != models.JobStatusRunning {
		response.Error(w, http.StatusConflict, "CONFLICT", "Only running jobs can be reset", map[string]string{"status": string(job.Status)})
		return
	}

	reset, err := h.Queue.ResetRunning(r.Context(), job.ID)
	if err != nil {
		h.logError(r, "Reset failed", err)
		writeError(w, err)
		return
	}
	response.JSON(w, h.view(r.Context(), reset))
}

// Pathways returns the parsed pathway score table of a completed job
func (h *Handlers) Pathways(w http.ResponseWriter, r *http.Request) {
	job, err := h.ownedJob(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if job.Status != models.JobStatusCompleted || job.PathwayPath == "" {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "No pathway scores for this job", nil)
		return
	}

	f, err := os.Open(job.PathwayPath)
	if err != nil {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Pathway table is missing", nil)
		return
	}
	defer func() { _ = f.Close() }()

	scores, err := annotate.ReadPathwayScores(f)
	if err != nil {
		h.logError(r, "Pathway table unreadable", err)
		writeError(w, err)
		return
	}
	response.JSON(w, scores)
}

// Delete removes a finished or queued job with its inputs and artifacts
func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	job, err := h.ownedJob(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if job.Status == models.JobStatusRunning {
		response.Error(w, http.StatusConflict, "CONFLICT", "Running jobs cannot be deleted", nil)
		return
	}

	if err := h.Store.DeleteJob(r.Context(), job.ID); err != nil {
		h.logError(r, "Delete failed", err)
		writeError(w, err)
		return
	}
	if err := h.Workspace.RemoveJob(job.ID, job.SourceFileID, job.ResultPath, job.PathwayPath, job.FastaPath); err != nil {
		h.Logger.Warn("Job files not fully removed", "job_id", job.ID, "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}
