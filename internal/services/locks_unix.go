//go:build unix

package services

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/trobanga/enzflow/internal/lib"
)

// AcquireLock takes an exclusive flock on lockPath
// With wait=false it fails fast with ErrLocked if another process holds it.
// The lock is released when the FileLock is released or the process exits.
func AcquireLock(lockPath string, name string, wait bool, logger *lib.Logger) (*FileLock, error) {
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	how := syscall.LOCK_EX
	if !wait {
		how |= syscall.LOCK_NB
	}

	// flock() is advisory - cooperating processes must check the lock
	if err := syscall.Flock(int(lockFile.Fd()), how); err != nil {
		_ = lockFile.Close()
		if err == syscall.EWOULDBLOCK {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}

	lock := &FileLock{
		name:     name,
		lockFile: lockFile,
		lockPath: lockPath,
		logger:   logger,
	}

	if err := lock.writeLockInfo(); err != nil {
		logger.Warn("Failed to write lock info", "lock", name, "error", err)
	}

	logger.Debug("Acquired lock", "lock", name, "pid", os.Getpid())

	return lock, nil
}

// Release releases the lock
func (fl *FileLock) Release() error {
	if fl.lockFile == nil {
		return nil
	}

	if err := syscall.Flock(int(fl.lockFile.Fd()), syscall.LOCK_UN); err != nil {
		fl.logger.Warn("Failed to release flock", "lock", fl.name, "error", err)
	}

	if err := fl.lockFile.Close(); err != nil {
		fl.logger.Warn("Failed to close lock file", "lock", fl.name, "error", err)
		return err
	}

	fl.logger.Debug("Released lock", "lock", fl.name, "pid", os.Getpid())
	fl.lockFile = nil

	return nil
}

// isLocked is a non-destructive check that doesn't keep the lock
func isLocked(lockPath string) bool {
	if _, err := os.Stat(lockPath); os.IsNotExist(err) {
		return false
	}

	lockFile, err := os.Open(lockPath)
	if err != nil {
		// Can't open lock file - assume not locked
		return false
	}
	defer func() {
		_ = lockFile.Close()
	}()

	err = syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if err != nil {
		return err == syscall.EWOULDBLOCK
	}

	_ = syscall.Flock(int(lockFile.Fd()), syscall.LOCK_UN)
	return false
}
