// Package handler implements the HTTP endpoints of the job API
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/trobanga/enzflow/internal/api/middleware"
	"github.com/trobanga/enzflow/internal/api/response"
	"github.com/trobanga/enzflow/internal/lib"
	"github.com/trobanga/enzflow/internal/models"
	"github.com/trobanga/enzflow/internal/queue"
	"github.com/trobanga/enzflow/internal/services"
	"github.com/trobanga/enzflow/internal/store"
)

// JobStore is the persistence the handlers read and delete through
type JobStore interface {
	Ping(ctx context.Context) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
	GetSourceFile(ctx context.Context, id string) (*models.SourceFile, error)
	ListJobs(ctx context.Context, owner string) ([]models.Job, error)
	DeleteJob(ctx context.Context, id string) error
	CountByStatus(ctx context.Context) (map[models.JobStatus]int, error)
}

// Queue is the admission side of the job queue
type Queue interface {
	Kick(ctx context.Context)
	Reap(ctx context.Context) (queue.ReapResult, error)
	ResetRunning(ctx context.Context, jobID string) (*models.Job, error)
}

// Importer stores an upload and creates its pending job
type Importer interface {
	Import(ctx context.Context, up services.Upload) (*models.SourceFile, *models.Job, error)
}

// JobView is a job as the API returns it
type JobView struct {
	*models.Job
	SourceFile *models.SourceFile `json:"source_file,omitempty"`
}

// Handlers holds the dependencies shared by every endpoint
type Handlers struct {
	Store     JobStore
	Queue     Queue
	Importer  Importer
	Workspace services.Workspace
	Logger    *lib.Logger
	Ready     func() bool // Reference preparation finished
	MaxUpload int64       // Bytes
}

// writeError maps domain errors onto status codes
func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
		return
	}

	var enzErr *lib.EnzflowError
	if errors.As(err, &enzErr) {
		switch enzErr.Category {
		case lib.CategoryState:
			response.Error(w, http.StatusConflict, "CONFLICT", enzErr.Message, nil)
			return
		case lib.CategoryValidation:
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", enzErr.Message, nil)
			return
		}
	}

	response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
}

// reap resolves stuck jobs before a read so stale running rows are not served
func (h *Handlers) reap(ctx context.Context) {
	if h.Queue == nil {
		return
	}
	if _, err := h.Queue.Reap(ctx); err != nil {
		h.Logger.Warn("Reaper pass failed", "error", err)
	}
}

// ownedJob loads the job named in the URL. Jobs of other owners are reported
// as missing.
func (h *Handlers) ownedJob(r *http.Request) (*models.Job, error) {
	job, err := h.Store.GetJob(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		return nil, err
	}
	if job.OwnerID != mw.GetOwner(r) {
		return nil, store.ErrNotFound
	}
	return job, nil
}

func (h *Handlers) view(ctx context.Context, job *models.Job) JobView {
	v := JobView{Job: job}
	source, err := h.Store.GetSourceFile(ctx, job.SourceFileID)
	if err != nil {
		h.Logger.Warn("Source file missing for job", "job_id", job.ID, "error", err)
		return v
	}
	v.SourceFile = source
	return v
}

func (h *Handlers) logError(r *http.Request, msg string, err error) {
	h.Logger.Error(msg, "method", r.Method, "path", r.URL.Path, "error", err)
}
