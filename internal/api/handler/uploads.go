package handler

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"

	mw "github.com/trobanga/enzflow/internal/api/middleware"
	"github.com/trobanga/enzflow/internal/api/response"
	"github.com/trobanga/enzflow/internal/services"
)

const multipartMemory = 32 << 20

// Upload accepts a multipart FASTA (field "fasta") with an optional
// abundance table (field "abundance") and queues a job for it
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	if h.MaxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.MaxUpload)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(w, http.StatusRequestEntityTooLarge, "TOO_LARGE", "Upload exceeds the size limit", nil)
			return
		}
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Expected a multipart form", nil)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	fasta, header, err := r.FormFile("fasta")
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "fasta file is required", nil)
		return
	}
	defer func() { _ = fasta.Close() }()

	up := services.Upload{
		OwnerID:      mw.GetOwner(r),
		OriginalName: header.Filename,
		Description:  r.FormValue("description"),
		FASTA:        fasta,
	}

	var abundance multipart.File
	abundance, _, err = r.FormFile("abundance")
	switch {
	case err == nil:
		defer func() { _ = abundance.Close() }()
		up.Abundance = abundance
	case !errors.Is(err, http.ErrMissingFile):
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "abundance must be a file", nil)
		return
	}

	source, job, err := h.Importer.Import(r.Context(), up)
	if err != nil {
		h.logError(r, "Upload failed", err)
		writeError(w, err)
		return
	}

	if h.Queue != nil {
		h.Queue.Kick(context.WithoutCancel(r.Context()))
	}

	// Admission may have moved the job already
	if current, err := h.Store.GetJob(r.Context(), job.ID); err == nil {
		job = current
	}
	response.Accepted(w, JobView{Job: job, SourceFile: source})
}
