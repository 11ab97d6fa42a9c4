package services

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/trobanga/enzflow/internal/lib"
)

// ErrLocked is returned when a non-blocking acquire finds the lock held
var ErrLocked = errors.New("lock is held by another process")

// FileLock is an advisory flock on a file
// It serializes queue admission across the web process and job processes,
// and marks a job as owned by the process running it.
type FileLock struct {
	name     string
	lockFile *os.File
	lockPath string
	logger   *lib.Logger
}

// QueueLockPath returns the lock serializing admission
func (w Workspace) QueueLockPath() string {
	return filepath.Join(w.DataDir, ".queue.lock")
}

// JobLockPath returns the lock held by a job's process for its lifetime
func (w Workspace) JobLockPath(jobID string) string {
	return filepath.Join(w.JobDir(jobID), ".lock")
}

// WithQueueLock executes fn while holding the queue lock, waiting for it if needed
func WithQueueLock(ws Workspace, logger *lib.Logger, fn func() error) error {
	lock, err := AcquireLock(ws.QueueLockPath(), "queue", true, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Error("Failed to release queue lock", "error", err)
		}
	}()

	return fn()
}

// AcquireJobLock takes the per-job lock without waiting
func AcquireJobLock(ws Workspace, jobID string, logger *lib.Logger) (*FileLock, error) {
	lock, err := AcquireLock(ws.JobLockPath(jobID), jobID, false, logger)
	if errors.Is(err, ErrLocked) {
		return nil, lib.ErrJobLocked(jobID)
	}
	return lock, err
}

// IsJobLocked checks if a job is currently locked by any process
func IsJobLocked(ws Workspace, jobID string) bool {
	return isLocked(ws.JobLockPath(jobID))
}

// writeLockInfo writes debug information to the lock file
func (fl *FileLock) writeLockInfo() error {
	lockInfo := fmt.Sprintf("pid=%d\ntime=%s\n", os.Getpid(), time.Now().Format(time.RFC3339))
	_ = fl.lockFile.Truncate(0)
	_, _ = fl.lockFile.Seek(0, 0)
	_, _ = fl.lockFile.WriteString(lockInfo)
	return fl.lockFile.Sync()
}
