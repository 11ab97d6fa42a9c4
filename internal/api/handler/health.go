package handler

import (
	"net/http"

	"github.com/trobanga/enzflow/internal/api/response"
	"github.com/trobanga/enzflow/internal/models"
)

type healthStatus struct {
	Status    string                   `json:"status"`
	Database  string                   `json:"database"`
	Databases string                   `json:"reference_databases"`
	Jobs      map[models.JobStatus]int `json:"jobs,omitempty"`
}

// Health reports store reachability and whether reference preparation finished
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status := healthStatus{Status: "ok", Database: "ok", Databases: "preparing"}
	if h.Ready != nil && h.Ready() {
		status.Databases = "ready"
	}

	if err := h.Store.Ping(r.Context()); err != nil {
		h.logError(r, "Health check failed", err)
		status.Status = "degraded"
		status.Database = "unreachable"
		response.Error(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Job store unreachable", status)
		return
	}

	counts, err := h.Store.CountByStatus(r.Context())
	if err != nil {
		h.logError(r, "Failed to count jobs", err)
	} else {
		status.Jobs = counts
	}
	response.JSON(w, status)
}
