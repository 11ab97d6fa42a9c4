// Package queue admits jobs into the single running slot, launches them as
// detached processes and reaps jobs that got stuck.
package queue

import (
	"context"
	"time"

	"github.com/trobanga/enzflow/internal/lib"
	"github.com/trobanga/enzflow/internal/models"
	"github.com/trobanga/enzflow/internal/services"
)

// Store is the persistence the queue needs
type Store interface {
	GetJob(ctx context.Context, id string) (*models.Job, error)
	ClaimNext(ctx context.Context, now time.Time) (*models.Job, error)
	ReleaseClaim(ctx context.Context, id string) error
	SetPID(ctx context.Context, id string, pid int) error
	ListStuck(ctx context.Context, olderThan time.Time) ([]models.Job, error)
	CompleteJob(ctx context.Context, job models.Job) error
	FailJob(ctx context.Context, job models.Job) error
	ResetJob(ctx context.Context, job models.Job) error
}

// Launcher starts the execution unit for a claimed job
type Launcher interface {
	Launch(ctx context.Context, jobID string) (pid int, err error)
}

// Controller enforces one running job at a time
type Controller struct {
	Store     Store
	Launcher  Launcher
	Workspace services.Workspace
	Logger    *lib.Logger
	ReapAfter time.Duration
	Now       func() time.Time
}

// NewController wires a controller from the configuration
func NewController(cfg *models.ProjectConfig, store Store, launcher Launcher, logger *lib.Logger) *Controller {
	return &Controller{
		Store:     store,
		Launcher:  launcher,
		Workspace: services.NewWorkspace(cfg.DataDir),
		Logger:    logger,
		ReapAfter: cfg.Queue.ReapAfter,
		Now:       time.Now,
	}
}

func (c *Controller) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

// AdmitNext claims the oldest pending job and launches it, unless another
// job holds the slot. It returns the admitted job, or nil when nothing was
// admitted. A launch failure is logged, the claim is released and nil is
// returned.
func (c *Controller) AdmitNext(ctx context.Context) (*models.Job, error) {
	var admitted *models.Job
	err := services.WithQueueLock(c.Workspace, c.Logger, func() error {
		job, err := c.Store.ClaimNext(ctx, c.now())
		if err != nil || job == nil {
			return err
		}

		pid, err := c.Launcher.Launch(ctx, job.ID)
		if err != nil {
			c.Logger.Error("Failed to launch job", "job_id", job.ID, "error", err)
			if rerr := c.Store.ReleaseClaim(context.WithoutCancel(ctx), job.ID); rerr != nil {
				c.Logger.Error("Failed to release claim", "job_id", job.ID, "error", rerr)
			}
			return nil
		}

		if err := c.Store.SetPID(ctx, job.ID, pid); err != nil {
			c.Logger.Warn("Failed to record job pid", "job_id", job.ID, "pid", pid, "error", err)
		}
		job.PID = pid
		admitted = job
		c.Logger.Info("Job admitted", "job_id", job.ID, "pid", pid)
		return nil
	})
	return admitted, err
}

// Kick admits the next job and only logs failures
func (c *Controller) Kick(ctx context.Context) {
	if _, err := c.AdmitNext(ctx); err != nil {
		c.Logger.Error("Queue admission failed", "error", err)
	}
}
