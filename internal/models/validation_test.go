package models_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trobanga/enzflow/internal/models"
)

func TestJob_Validate(t *testing.T) {
	now := time.Now()
	id := uuid.New().String()

	tests := []struct {
		name    string
		job     models.Job
		wantErr bool
		errMsg  string
	}{
		{
			name: "Valid pending job",
			job:  models.Job{ID: id, SourceFileID: "src", Status: models.JobStatusPending},
		},
		{
			name: "Valid running job",
			job:  models.Job{ID: id, SourceFileID: "src", Status: models.JobStatusRunning, StartedAt: &now, Progress: 40},
		},
		{
			name:    "Missing id",
			job:     models.Job{SourceFileID: "src", Status: models.JobStatusPending},
			wantErr: true,
			errMsg:  "id is required",
		},
		{
			name:    "Id is not a UUID",
			job:     models.Job{ID: "job-1", SourceFileID: "src", Status: models.JobStatusPending},
			wantErr: true,
			errMsg:  "valid UUID",
		},
		{
			name:    "Missing source file",
			job:     models.Job{ID: id, Status: models.JobStatusPending},
			wantErr: true,
			errMsg:  "source_file_id is required",
		},
		{
			name:    "Unknown status",
			job:     models.Job{ID: id, SourceFileID: "src", Status: "in_progress"},
			wantErr: true,
			errMsg:  "invalid status",
		},
		{
			name:    "Progress above 100",
			job:     models.Job{ID: id, SourceFileID: "src", Status: models.JobStatusPending, Progress: 101},
			wantErr: true,
			errMsg:  "between 0 and 100",
		},
		{
			name:    "Running without start time",
			job:     models.Job{ID: id, SourceFileID: "src", Status: models.JobStatusRunning},
			wantErr: true,
			errMsg:  "started_at",
		},
		{
			name: "Unknown stage",
			job: models.Job{ID: id, SourceFileID: "src", Status: models.JobStatusPending,
				Stages: []models.StageRecord{{Name: "upload", Status: models.StageStatusPending}}},
			wantErr: true,
			errMsg:  "invalid stage name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.job.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSourceFile_Validate(t *testing.T) {
	tests := []struct {
		name    string
		file    models.SourceFile
		wantErr bool
	}{
		{name: "Valid", file: models.SourceFile{ID: "s", OriginalName: "reads.faa", Size: 10}},
		{name: "Missing name", file: models.SourceFile{ID: "s"}, wantErr: true},
		{name: "Path in name", file: models.SourceFile{ID: "s", OriginalName: "../reads.faa"}, wantErr: true},
		{name: "Parent directory", file: models.SourceFile{ID: "s", OriginalName: ".."}, wantErr: true},
		{name: "Negative size", file: models.SourceFile{ID: "s", OriginalName: "a.faa", Size: -1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.file.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestProjectConfig_Validate(t *testing.T) {
	valid := models.DefaultConfig()
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(c *models.ProjectConfig)
		errMsg string
	}{
		{"Empty data dir", func(c *models.ProjectConfig) { c.DataDir = "" }, "data_dir"},
		{"No cores", func(c *models.ProjectConfig) { c.Tools.CPUCores = 0 }, "cpu_cores"},
		{"Unknown path style", func(c *models.ProjectConfig) { c.Tools.PathStyle = "cygwin" }, "path_style"},
		{"Blank diamond", func(c *models.ProjectConfig) { c.Tools.Diamond = " " }, "tools.diamond"},
		{"Zero reap window", func(c *models.ProjectConfig) { c.Queue.ReapAfter = 0 }, "reap_after"},
		{"Ramdisk without size", func(c *models.ProjectConfig) { c.Ramdisk.Enabled = true; c.Ramdisk.SizeMB = 0 }, "size_mb"},
		{"Unknown formula", func(c *models.ProjectConfig) { c.Scoring.Formula = "median" }, "scoring.formula"},
		{"Negative progress interval", func(c *models.ProjectConfig) { c.Progress.MinInterval = -time.Second }, "min_interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := models.DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestValidateDataDir(t *testing.T) {
	t.Run("Creates missing directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "data", "nested")
		require.NoError(t, models.ValidateDataDir(dir))
		assert.DirExists(t, dir)
	})

	t.Run("Rejects a file", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "data")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0644))
		err := models.ValidateDataDir(file)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not a directory")
	})

	t.Run("Leaves no probe file behind", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, models.ValidateDataDir(dir))
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}
