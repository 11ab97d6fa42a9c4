package lib

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
)

// CalculateBackoff computes exponential backoff duration
// Formula: min(initialBackoff * 2^attempt, maxBackoff)
func CalculateBackoff(attempt int, initialBackoffMs int64, maxBackoffMs int64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	backoffMs := float64(initialBackoffMs) * math.Pow(2, float64(attempt))

	if backoffMs > float64(maxBackoffMs) {
		backoffMs = float64(maxBackoffMs)
	}

	return time.Duration(backoffMs) * time.Millisecond
}

// RetryConfig holds retry strategy parameters
type RetryConfig struct {
	MaxAttempts      int
	InitialBackoffMs int64
	MaxBackoffMs     int64
}

// DefaultRetryConfig is used for short SQLite busy conflicts
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:      5,
	InitialBackoffMs: 50,
	MaxBackoffMs:     1000,
}

// RetryableOperation represents an operation that can be retried
type RetryableOperation func() error

// ExecuteWithRetry executes an operation with exponential backoff retry logic
// Returns nil if operation succeeds, or the last error if all retries are exhausted
func ExecuteWithRetry(ctx context.Context, operation RetryableOperation, config RetryConfig, shouldRetry func(error) bool) error {
	var lastErr error

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}

		lastErr = err

		if !shouldRetry(err) {
			return fmt.Errorf("non-retryable error: %w", err)
		}

		if attempt == config.MaxAttempts-1 {
			break
		}

		backoff := CalculateBackoff(attempt, config.InitialBackoffMs, config.MaxBackoffMs)
		select {
		case <-ctx.Done():
			return fmt.Errorf("retry aborted: %w", ctx.Err())
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", config.MaxAttempts, lastErr)
}

// IsBusyError reports whether err is a transient SQLite lock conflict
func IsBusyError(err error) bool {
	if err == nil {
		return false
	}

	errMsg := err.Error()
	for _, pattern := range []string{"database is locked", "SQLITE_BUSY", "database table is locked"} {
		if containsIgnoreCase(errMsg, pattern) {
			return true
		}
	}
	return false
}

func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
