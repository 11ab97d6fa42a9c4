package queue

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/trobanga/enzflow/internal/models"
	"github.com/trobanga/enzflow/internal/services"
)

// stuckMessage is stored on a job the reaper fails after running for longer than d
func stuckMessage(d time.Duration) string {
	return fmt.Sprintf("Job was stuck (running for more than %s) and has been reset. Please try uploading again.", humanDuration(d))
}

func humanDuration(d time.Duration) string {
	plural := func(n int64, unit string) string {
		if n == 1 {
			return "1 " + unit
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}
	switch {
	case d > 0 && d%time.Hour == 0:
		return plural(int64(d/time.Hour), "hour")
	case d > 0 && d%time.Minute == 0:
		return plural(int64(d/time.Minute), "minute")
	default:
		return d.String()
	}
}

// ReapResult lists what one reaper pass changed
type ReapResult struct {
	Completed []string
	Failed    []string
	Skipped   []string
}

// Reap resolves jobs running for longer than ReapAfter. A job whose merged
// table exists is marked completed; any other is failed. Jobs whose lock is
// still held by their process are left alone. When a slot was freed the
// next job is admitted.
func (c *Controller) Reap(ctx context.Context) (ReapResult, error) {
	var res ReapResult
	now := c.now()

	stuck, err := c.Store.ListStuck(ctx, now.Add(-c.ReapAfter))
	if err != nil {
		return res, fmt.Errorf("list stuck jobs: %w", err)
	}

	for _, job := range stuck {
		logger := c.Logger.With("job_id", job.ID, "pid", job.PID, "process_alive", processAlive(job.PID))

		if services.IsJobLocked(c.Workspace, job.ID) {
			logger.Warn("Job is past the reap window but its process still holds the job lock, skipping")
			res.Skipped = append(res.Skipped, job.ID)
			continue
		}

		if artifacts, ok := c.findArtifacts(job); ok {
			if err := c.Store.CompleteJob(ctx, models.CompleteJob(job, artifacts, now)); err != nil {
				logger.Error("Failed to complete stuck job", "error", err)
				continue
			}
			logger.Warn("Stuck job had results, marked completed", "result", artifacts.EnzymesCSV)
			res.Completed = append(res.Completed, job.ID)
			continue
		}

		if err := c.Store.FailJob(ctx, models.FailJob(job, stuckMessage(c.ReapAfter), now)); err != nil {
			logger.Error("Failed to fail stuck job", "error", err)
			continue
		}
		logger.Warn("Stuck job failed")
		res.Failed = append(res.Failed, job.ID)
	}

	if len(res.Completed)+len(res.Failed) > 0 {
		c.Kick(ctx)
	}
	return res, nil
}

// findArtifacts looks for the merged table at the stored path, then by
// glob in the results directory
func (c *Controller) findArtifacts(job models.Job) (models.Artifacts, bool) {
	enzymes := ""
	if job.ResultPath != "" && fileExists(job.ResultPath) {
		enzymes = job.ResultPath
	} else {
		matches, err := doublestar.FilepathGlob(c.Workspace.ArtifactGlob(job.ID))
		if err != nil {
			c.Logger.Warn("Invalid artifact pattern", "job_id", job.ID, "error", err)
		}
		if len(matches) > 0 {
			enzymes = matches[0]
		}
	}
	if enzymes == "" {
		return models.Artifacts{}, false
	}

	artifacts := models.Artifacts{EnzymesCSV: enzymes}
	dir, base := filepath.Split(enzymes)
	if pathways := filepath.Join(dir, "pathways_"+strings.TrimPrefix(base, "enzymes_")); fileExists(pathways) {
		artifacts.PathwaysCSV = pathways
	}
	if fasta := strings.TrimSuffix(enzymes, ".csv") + ".fasta"; fileExists(fasta) {
		artifacts.FASTA = fasta
	}
	return artifacts, true
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
