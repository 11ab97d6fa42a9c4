package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/trobanga/enzflow/internal/lib"
	"golang.org/x/time/rate"
)

// Checkpoints
const (
	progressHMM      = 10
	progressTier1    = 20
	progressFilter   = 30
	progressTier2    = 40
	progressMerge    = 50
	progressScore    = 75
	progressFasta    = 90
	progressComplete = 100
)

const (
	msgHMM    = "Running KofamScan (HMM) (Step 1/5)"
	msgTier1  = "Running GUT fast search (Tier-1) (Step 2/5)"
	msgFilter = "Filtering FASTA to remove gut hits (Step 3/5)"
	msgTier2  = "Running eggNOG annotation (Tier-2) (Step 4/5)"
	msgMerge  = "Merging results (Step 5/5)"
	msgScore  = "Calculating pathway scores"
	msgFasta  = "Creating annotated FASTA"
)

// progressWriter persists job progress. Checkpoints always persist; the
// elapsed-time messages a running tool reports are rate limited.
type progressWriter struct {
	store    JobStore
	jobID    string
	logger   *lib.Logger
	observer ProgressObserver
	limiter  *rate.Limiter

	mu      sync.Mutex
	current int
}

func newProgressWriter(store JobStore, jobID string, interval time.Duration, logger *lib.Logger, observer ProgressObserver) *progressWriter {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &progressWriter{
		store:    store,
		jobID:    jobID,
		logger:   logger,
		observer: observer,
		limiter:  rate.NewLimiter(limit, 1),
	}
}

// Checkpoint moves progress forward and records message
func (p *progressWriter) Checkpoint(ctx context.Context, progress int, message string) {
	p.mu.Lock()
	if progress > p.current {
		p.current = progress
	}
	current := p.current
	p.mu.Unlock()

	p.persist(ctx, current, message)
}

// Report implements runner.ProgressSink for in-flight tool messages
func (p *progressWriter) Report(ctx context.Context, message string) error {
	if !p.limiter.Allow() {
		return nil
	}
	p.mu.Lock()
	current := p.current
	p.mu.Unlock()

	p.persist(ctx, current, message)
	return nil
}

func (p *progressWriter) persist(ctx context.Context, progress int, message string) {
	if p.observer != nil {
		p.observer(progress, message)
	}
	if err := p.store.UpdateProgress(ctx, p.jobID, progress, message); err != nil {
		p.logger.Warn("Failed to persist progress", "job_id", p.jobID, "progress", progress, "error", err)
	}
}
