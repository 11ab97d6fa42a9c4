// Package pipeline runs one annotation job: HMM search, tier-1 and tier-2
// searches, result extraction, merge, scoring and the annotated FASTA.
package pipeline

import (
	"context"
	"time"

	"github.com/trobanga/enzflow/internal/lib"
	"github.com/trobanga/enzflow/internal/models"
	"github.com/trobanga/enzflow/internal/runner"
	"github.com/trobanga/enzflow/internal/services"
)

// ToolVersion is recorded on every completed job
const ToolVersion = "emapper-2.1.13 + kofamscan"

// JobStore is the persistence the pipeline needs
type JobStore interface {
	GetJob(ctx context.Context, id string) (*models.Job, error)
	GetSourceFile(ctx context.Context, id string) (*models.SourceFile, error)
	ClaimJob(ctx context.Context, id string, now time.Time) (*models.Job, error)
	UpdateProgress(ctx context.Context, id string, progress int, message string) error
	SaveStages(ctx context.Context, id string, current models.StageName, stages []models.StageRecord) error
	CompleteJob(ctx context.Context, job models.Job) error
	FailJob(ctx context.Context, job models.Job) error
}

// Preparer provides the tier-1 references and repairs the full database
type Preparer interface {
	Initialize(ctx context.Context) (models.PreparedDatabasePaths, error)
	Repair(ctx context.Context) error
}

// ProgressObserver sees every persisted checkpoint (foreground progress bar)
type ProgressObserver func(progress int, message string)

// Env carries the per-process collaborators of a job run. It is built once
// per process and passed to ProcessJob.
type Env struct {
	Config    *models.ProjectConfig
	Store     JobStore
	Preparer  Preparer
	Exec      runner.Executor
	Builder   runner.Builder
	Workspace services.Workspace
	Logger    *lib.Logger
	Observer  ProgressObserver
	Now       func() time.Time
}

// NewEnv wires an Env from the configuration
func NewEnv(cfg *models.ProjectConfig, store JobStore, prep Preparer, exec runner.Executor, logger *lib.Logger) *Env {
	return &Env{
		Config:    cfg,
		Store:     store,
		Preparer:  prep,
		Exec:      exec,
		Builder:   runner.NewBuilder(cfg.Tools),
		Workspace: services.NewWorkspace(cfg.DataDir),
		Logger:    logger,
		Now:       time.Now,
	}
}

func (e *Env) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}
