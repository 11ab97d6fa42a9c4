package services

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/trobanga/enzflow/internal/lib"
	"github.com/trobanga/enzflow/internal/models"
)

// DefaultOwner is used when an upload names no owner
const DefaultOwner = "anonymous"

const abundanceFileName = "abundance.csv"

// UploadStore persists a new source file together with its pending job
type UploadStore interface {
	CreateUpload(ctx context.Context, f *models.SourceFile, job *models.Job) error
}

// Upload is one submitted input
type Upload struct {
	OwnerID      string
	OriginalName string
	Description  string
	FASTA        io.Reader
	Abundance    io.Reader // Optional TPM table
}

// Importer stores uploaded inputs in the workspace and records them
type Importer struct {
	Workspace Workspace
	Store     UploadStore
	Logger    *lib.Logger
	Now       func() time.Time
}

// NewImporter returns an importer writing under ws
func NewImporter(ws Workspace, store UploadStore, logger *lib.Logger) *Importer {
	return &Importer{Workspace: ws, Store: store, Logger: logger, Now: time.Now}
}

// Import copies the upload into <data_dir>/uploads/<source_id>/ and creates
// the source file and its pending job. Content is not validated here; the
// pipeline rejects unusable input when the job runs.
func (im *Importer) Import(ctx context.Context, up Upload) (*models.SourceFile, *models.Job, error) {
	name := sanitizeName(up.OriginalName)
	if name == "" {
		return nil, nil, lib.WrapError(lib.CategoryValidation, "Upload has no usable file name", nil,
			"Provide the FASTA file name with the upload")
	}
	if up.FASTA == nil {
		return nil, nil, lib.WrapError(lib.CategoryValidation, "Upload has no FASTA content", nil)
	}
	owner := strings.TrimSpace(up.OwnerID)
	if owner == "" {
		owner = DefaultOwner
	}

	now := time.Now()
	if im.Now != nil {
		now = im.Now()
	}
	now = now.UTC()

	sourceID := uuid.New().String()
	dir := im.Workspace.UploadDir(sourceID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, nil, lib.WrapError(lib.CategoryFileSystem, "Failed to create upload directory", err)
	}

	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			im.Logger.Warn("Failed to clean up upload directory", "dir", dir, "error", err)
		}
	}

	fastaPath := filepath.Join(dir, name)
	size, err := copyTo(fastaPath, up.FASTA)
	if err != nil {
		cleanup()
		return nil, nil, lib.WrapError(lib.CategoryFileSystem, "Failed to store uploaded FASTA", err)
	}

	source := &models.SourceFile{
		ID:           sourceID,
		OwnerID:      owner,
		Path:         fastaPath,
		OriginalName: name,
		Size:         size,
		Status:       models.SourceFileUploaded,
		Description:  strings.TrimSpace(up.Description),
		CreatedAt:    now,
	}

	if up.Abundance != nil {
		abundancePath := filepath.Join(dir, abundanceFileName)
		n, err := copyTo(abundancePath, up.Abundance)
		if err != nil {
			cleanup()
			return nil, nil, lib.WrapError(lib.CategoryFileSystem, "Failed to store abundance table", err)
		}
		if n > 0 {
			source.AbundancePath = abundancePath
		} else {
			_ = os.Remove(abundancePath)
		}
	}

	job := &models.Job{
		ID:           uuid.New().String(),
		OwnerID:      owner,
		SourceFileID: sourceID,
		Status:       models.JobStatusPending,
		CreatedAt:    now,
	}

	if err := im.Store.CreateUpload(ctx, source, job); err != nil {
		cleanup()
		return nil, nil, err
	}

	lib.LogJobCreated(im.Logger, job.ID, fastaPath)
	im.Logger.Debug("Upload stored",
		"job_id", job.ID, "source_id", sourceID, "owner", owner, "file", name, "size", size,
		"abundance", source.AbundancePath != "")
	return source, job, nil
}

// ImportLocal submits files already on disk, as the CLI does
func (im *Importer) ImportLocal(ctx context.Context, owner, fastaPath, abundancePath, description string) (*models.SourceFile, *models.Job, error) {
	fastaFile, err := os.Open(fastaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, lib.ErrFileNotFound(fastaPath)
		}
		return nil, nil, fmt.Errorf("cannot open input file: %w", err)
	}
	defer func() { _ = fastaFile.Close() }()

	up := Upload{
		OwnerID:      owner,
		OriginalName: filepath.Base(fastaPath),
		Description:  description,
		FASTA:        fastaFile,
	}

	if abundancePath != "" {
		abundanceFile, err := os.Open(abundancePath)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, nil, lib.ErrFileNotFound(abundancePath)
			}
			return nil, nil, fmt.Errorf("cannot open abundance table: %w", err)
		}
		defer func() { _ = abundanceFile.Close() }()
		up.Abundance = abundanceFile
	}

	return im.Import(ctx, up)
}

// sanitizeName keeps only the base name of a client-supplied file name
func sanitizeName(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, `\`, "/"))
	name = filepath.Base(name)
	if name == "." || name == ".." || name == "/" {
		return ""
	}
	return name
}

func copyTo(path string, r io.Reader) (int64, error) {
	var n int64
	err := WriteAtomic(path, func(w io.Writer) error {
		var err error
		n, err = io.Copy(w, r)
		return err
	})
	return n, err
}
