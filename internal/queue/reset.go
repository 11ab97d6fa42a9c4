package queue

import (
	"context"

	"github.com/trobanga/enzflow/internal/lib"
	"github.com/trobanga/enzflow/internal/models"
)

const (
	managementResetMessage = "Job was manually reset via management command"
	apiResetMessage        = "Job was manually reset. Please try uploading again."
)

// Reset returns a pending, running or failed job to pending. Completed
// jobs are refused.
func (c *Controller) Reset(ctx context.Context, jobID string) (*models.Job, error) {
	job, err := c.Store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status == models.JobStatusCompleted {
		return nil, lib.ErrInvalidTransition(jobID, job.Status, models.JobStatusPending)
	}
	return c.reset(ctx, *job, managementResetMessage)
}

// ResetRunning resets a running job and admits the next one
func (c *Controller) ResetRunning(ctx context.Context, jobID string) (*models.Job, error) {
	job, err := c.Store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobStatusRunning {
		return nil, lib.ErrInvalidTransition(jobID, job.Status, models.JobStatusPending)
	}

	reset, err := c.reset(ctx, *job, apiResetMessage)
	if err != nil {
		return nil, err
	}
	c.Kick(ctx)
	return reset, nil
}

func (c *Controller) reset(ctx context.Context, job models.Job, reason string) (*models.Job, error) {
	reset := models.ResetJob(job, reason)
	if err := c.Store.ResetJob(ctx, reset); err != nil {
		return nil, err
	}
	c.Logger.Info("Job reset", "job_id", job.ID, "from", job.Status)
	return &reset, nil
}
