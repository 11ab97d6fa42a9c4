package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/trobanga/enzflow/internal/fasta"
	"github.com/trobanga/enzflow/internal/lib"
	"github.com/trobanga/enzflow/internal/models"
	"github.com/trobanga/enzflow/internal/services"
)

const interruptedMessage = "Processing was interrupted before the job finished. Please try uploading again."

// ProcessJob runs one job to a terminal state. A pending job is claimed
// first; a job already claimed by admission is run as is. Any failure is
// recorded on the job and its source file, and the returned error is the
// one stored. The caller admits the next job afterwards.
func ProcessJob(ctx context.Context, env *Env, jobID string) (err error) {
	lock, err := services.AcquireJobLock(env.Workspace, jobID, env.Logger)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := lock.Release(); rerr != nil {
			env.Logger.Warn("Failed to release job lock", "job_id", jobID, "error", rerr)
		}
	}()

	job, err := env.Store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	switch job.Status {
	case models.JobStatusRunning:
	case models.JobStatusPending, models.JobStatusFailed:
		job, err = env.Store.ClaimJob(ctx, jobID, env.now())
		if err != nil {
			return err
		}
	default:
		return lib.ErrInvalidTransition(jobID, job.Status, models.JobStatusRunning)
	}

	source, err := env.Store.GetSourceFile(ctx, job.SourceFileID)
	if err != nil {
		return fail(env, *job, err)
	}

	r := &run{
		env:       env,
		job:       *job,
		source:    *source,
		input:     source.Path,
		workDir:   env.Workspace.WorkDir(jobID),
		logsDir:   env.Workspace.LogsDir(jobID),
		artifacts: env.Workspace.Artifacts(jobID, source.OriginalName),
		progress:  newProgressWriter(env.Store, jobID, env.Config.Progress.MinInterval, env.Logger, env.Observer),
	}
	r.job.Stages = models.InitializeStages()
	r.job.ToolVersion = ToolVersion

	defer func() {
		if p := recover(); p != nil {
			env.Logger.Error("Pipeline panicked", "job_id", jobID, "panic", p, "stack", string(debug.Stack()))
			err = fail(env, r.job, fmt.Errorf("unexpected error: %v", p))
		}
	}()

	start := env.now()
	if err := r.prepare(ctx); err != nil {
		return fail(env, r.job, err)
	}

	if err := r.execute(ctx); err != nil {
		return fail(env, r.job, err)
	}
	if err := ctx.Err(); err != nil {
		return fail(env, r.job, err)
	}

	done := models.CompleteJob(r.job, r.produced, env.now())
	if err := env.Store.CompleteJob(context.WithoutCancel(ctx), done); err != nil {
		return fmt.Errorf("failed to record completion: %w", err)
	}
	if env.Observer != nil {
		env.Observer(progressComplete, done.ProgressMessage)
	}
	lib.LogJobCompleted(env.Logger, jobID, len(r.merged.Records), env.now().Sub(start))
	return nil
}

// prepare validates the input and resolves the reference paths
func (r *run) prepare(ctx context.Context) error {
	if err := r.env.Workspace.EnsureJobDirs(r.job.ID); err != nil {
		return err
	}

	count, err := fasta.Validate(r.input)
	if err != nil {
		return err
	}
	r.inputSize = fileSize(r.input)
	r.env.Logger.Info("Processing job", "job_id", r.job.ID, "input", r.input, "sequences", count, "bytes", r.inputSize)

	paths, err := r.env.Preparer.Initialize(ctx)
	if err != nil {
		r.env.Logger.Warn("Database preparation failed, continuing without tier-1 references", "job_id", r.job.ID, "error", err)
	}
	r.paths = paths
	return nil
}

// fail records err on the job and returns it
func fail(env *Env, job models.Job, err error) error {
	msg := lib.ClassifyError(err).JobMessage()
	if errors.Is(err, context.Canceled) {
		msg = interruptedMessage
	}

	failed := models.FailJob(job, msg, env.now())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if serr := env.Store.FailJob(ctx, failed); serr != nil {
		env.Logger.Error("Failed to record job failure", "job_id", job.ID, "error", serr)
	}
	env.Logger.Error("Job failed", "job_id", job.ID, "error", msg)
	return err
}
