package services

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	uploadsDirName = "uploads"
	jobsDirName    = "jobs"
	resultsDirName = "results"
)

// Workspace lays out the on-disk data directory
//
//	<data_dir>/uploads/<source_id>/<original_name>
//	<data_dir>/jobs/<job_id>/{work,logs}
//	<data_dir>/results/{enzymes,pathways}_<job_id>_<base>.{csv,fasta}
type Workspace struct {
	DataDir string
}

// NewWorkspace returns a workspace rooted at dataDir
func NewWorkspace(dataDir string) Workspace {
	return Workspace{DataDir: dataDir}
}

// UploadDir returns the directory holding one source file's inputs
func (w Workspace) UploadDir(sourceID string) string {
	return filepath.Join(w.DataDir, uploadsDirName, sourceID)
}

// JobDir returns the directory path for a specific job
func (w Workspace) JobDir(jobID string) string {
	return filepath.Join(w.DataDir, jobsDirName, jobID)
}

// WorkDir returns the scratch directory for tool outputs
func (w Workspace) WorkDir(jobID string) string {
	return filepath.Join(w.JobDir(jobID), "work")
}

// LogsDir returns the directory for captured tool stdout/stderr
func (w Workspace) LogsDir(jobID string) string {
	return filepath.Join(w.JobDir(jobID), "logs")
}

// ResultsDir returns the directory holding final artifacts
func (w Workspace) ResultsDir() string {
	return filepath.Join(w.DataDir, resultsDirName)
}

// ArtifactPaths holds the final artifact locations of one job
type ArtifactPaths struct {
	EnzymesCSV  string
	PathwaysCSV string
	FASTA       string
}

// Artifacts returns where a job's artifacts are written
func (w Workspace) Artifacts(jobID string, originalName string) ArtifactPaths {
	base := ArtifactBase(originalName)
	dir := w.ResultsDir()
	return ArtifactPaths{
		EnzymesCSV:  filepath.Join(dir, fmt.Sprintf("enzymes_%s_%s.csv", jobID, base)),
		PathwaysCSV: filepath.Join(dir, fmt.Sprintf("pathways_%s_%s.csv", jobID, base)),
		FASTA:       filepath.Join(dir, fmt.Sprintf("enzymes_%s_%s.fasta", jobID, base)),
	}
}

// ArtifactGlob matches any merged table written for the job, whatever its base name
func (w Workspace) ArtifactGlob(jobID string) string {
	return filepath.ToSlash(filepath.Join(w.ResultsDir(), fmt.Sprintf("enzymes_%s_*.csv", jobID)))
}

// ArtifactBase strips directories and the extension from an upload name
func ArtifactBase(originalName string) string {
	base := filepath.Base(originalName)
	if ext := filepath.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	if base == "" || base == "." {
		return "input"
	}
	return base
}

// EnsureJobDirs creates the standard directory structure for a job
func (w Workspace) EnsureJobDirs(jobID string) error {
	for _, dir := range []string{w.WorkDir(jobID), w.LogsDir(jobID), w.ResultsDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// RemoveJob removes a job's scratch directory, its upload directory and artifacts
// WARNING: This is destructive and cannot be undone
func (w Workspace) RemoveJob(jobID string, sourceID string, artifacts ...string) error {
	if err := os.RemoveAll(w.JobDir(jobID)); err != nil {
		return fmt.Errorf("failed to delete job directory: %w", err)
	}
	if sourceID != "" {
		if err := os.RemoveAll(w.UploadDir(sourceID)); err != nil {
			return fmt.Errorf("failed to delete upload directory: %w", err)
		}
	}
	for _, path := range artifacts {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete artifact %s: %w", path, err)
		}
	}
	return nil
}

// WriteFileAtomic writes data with temp file + rename
// (a reader never observes a half-written artifact)
func WriteFileAtomic(path string, data []byte) error {
	return WriteAtomic(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// WriteAtomic streams content through fn into a temp file and renames it into place
func WriteAtomic(path string, fn func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tempFile := filepath.Join(dir, fmt.Sprintf(".%s.tmp.%s", filepath.Base(path), uuid.New().String()))
	f, err := os.Create(tempFile)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if err := fn(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tempFile)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tempFile)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tempFile, path); err != nil {
		// Cleanup temp file on failure
		_ = os.Remove(tempFile)
		return fmt.Errorf("failed to rename into place: %w", err)
	}
	return nil
}

// FileHasData reports whether path exists and is non-empty
func FileHasData(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Size() > 0
}
