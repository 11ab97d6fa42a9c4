package models

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Validate checks if a Job has valid fields
func (j *Job) Validate() error {
	if j.ID == "" {
		return errors.New("id is required")
	}
	if _, err := uuid.Parse(j.ID); err != nil {
		return fmt.Errorf("invalid id: must be a valid UUID: %w", err)
	}

	if j.SourceFileID == "" {
		return errors.New("source_file_id is required")
	}

	if !IsValidJobStatus(j.Status) {
		return fmt.Errorf("invalid status: %s", j.Status)
	}

	if j.Progress < 0 || j.Progress > 100 {
		return fmt.Errorf("progress must be between 0 and 100, got %d", j.Progress)
	}

	if j.Status == JobStatusRunning && j.StartedAt == nil {
		return errors.New("started_at must be set when job is running")
	}

	for _, s := range j.Stages {
		if !IsValidStageName(s.Name) {
			return fmt.Errorf("invalid stage name: %s", s.Name)
		}
	}

	return nil
}

// Validate checks if a SourceFile has valid fields
func (f *SourceFile) Validate() error {
	if f.ID == "" {
		return errors.New("id is required")
	}

	if f.OriginalName == "" {
		return errors.New("original_name is required")
	}

	// Validate original name cannot escape its upload directory
	if f.OriginalName != filepath.Base(f.OriginalName) || f.OriginalName == ".." {
		return fmt.Errorf("unsafe original_name: %s", f.OriginalName)
	}

	if f.Size < 0 {
		return errors.New("size cannot be negative")
	}

	return nil
}

// Validate checks if a ProjectConfig has valid fields
func (c *ProjectConfig) Validate() error {
	if c.DataDir == "" {
		return errors.New("data_dir is required")
	}

	if c.Tools.CPUCores < 1 {
		return fmt.Errorf("tools.cpu_cores must be >= 1, got %d", c.Tools.CPUCores)
	}

	switch c.Tools.PathStyle {
	case PathStyleNative, PathStyleWSL:
	default:
		return fmt.Errorf("tools.path_style must be 'native' or 'wsl', got %q", c.Tools.PathStyle)
	}

	for name, bin := range map[string]string{
		"hmmsearch": c.Tools.HMMSearch,
		"diamond":   c.Tools.Diamond,
		"emapper":   c.Tools.Emapper,
	} {
		if strings.TrimSpace(bin) == "" {
			return fmt.Errorf("tools.%s must name an executable", name)
		}
	}

	if c.Queue.ReapAfter <= 0 || c.Queue.StuckAfter <= 0 {
		return errors.New("queue.reap_after and queue.stuck_after must be positive")
	}

	if c.Ramdisk.Enabled && c.Ramdisk.SizeMB <= 0 {
		return errors.New("ramdisk.size_mb must be positive when the ramdisk is enabled")
	}

	switch c.Scoring.Formula {
	case FormulaActivity, FormulaAbundance:
	default:
		return fmt.Errorf("scoring.formula must be 'activity' or 'abundance', got %q", c.Scoring.Formula)
	}

	if c.Progress.MinInterval < 0 {
		return errors.New("progress.min_interval cannot be negative")
	}

	return nil
}

// ValidateDataDir checks if the data directory exists and is writable
// Creates the directory automatically if it doesn't exist
func ValidateDataDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(path, 0755); err != nil {
				return fmt.Errorf("failed to create data directory: %w", err)
			}
			return nil
		}
		return fmt.Errorf("cannot access data directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("data_dir is not a directory: %s", path)
	}

	// Check write permission by attempting to create a temp file
	testFile := filepath.Join(path, ".write_test_"+uuid.New().String())
	f, err := os.Create(testFile)
	if err != nil {
		return fmt.Errorf("data directory is not writable: %w", err)
	}
	_ = f.Close()
	_ = os.Remove(testFile)

	return nil
}
