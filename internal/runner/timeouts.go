package runner

import (
	"fmt"
	"math"
	"time"
)

// Unbounded disables the timeout for stages where truncation would corrupt results
const Unbounded = time.Duration(math.MaxInt64)

// tier1Cap bounds the tier-1 search however large the input is
const tier1Cap = 30 * time.Minute

var sizeTiersMB = []float64{0.01, 0.1, 1, 10}

var kofamTiers = []time.Duration{
	15 * time.Minute,
	30 * time.Minute,
	time.Hour,
	2 * time.Hour,
	4 * time.Hour,
}

var searchTiers = []time.Duration{
	10 * time.Minute,
	20 * time.Minute,
	45 * time.Minute,
	2 * time.Hour,
	4 * time.Hour,
}

func tier(sizeBytes int64, tiers []time.Duration) time.Duration {
	mb := float64(sizeBytes) / (1024 * 1024)
	for i, limit := range sizeTiersMB {
		if mb < limit {
			return tiers[i]
		}
	}
	return tiers[len(tiers)-1]
}

// KofamTimeout scales the HMM search timeout with input size
func KofamTimeout(sizeBytes int64) time.Duration {
	return tier(sizeBytes, kofamTiers)
}

// SearchTimeout scales diamond and emapper timeouts with input size
func SearchTimeout(sizeBytes int64) time.Duration {
	return tier(sizeBytes, searchTiers)
}

// Tier1Timeout is the search timeout capped for the small gut database
func Tier1Timeout(sizeBytes int64) time.Duration {
	return min(SearchTimeout(sizeBytes), tier1Cap)
}

// CheckInterval is how often a running step refreshes its progress message
func CheckInterval(sizeBytes int64) time.Duration {
	switch {
	case sizeBytes < 100*1024:
		return 10 * time.Second
	case sizeBytes < 1024*1024:
		return 30 * time.Second
	default:
		return 60 * time.Second
	}
}

// FormatElapsed renders d as "2m 5s", or "45s" below a minute
func FormatElapsed(d time.Duration) string {
	secs := int(d.Seconds())
	if secs < 60 {
		return fmt.Sprintf("%ds", secs)
	}
	return fmt.Sprintf("%dm %ds", secs/60, secs%60)
}

// ProgressText is the message shown while a step is still running
func ProgressText(label string, elapsed time.Duration) string {
	return fmt.Sprintf("%s... Elapsed: %s", label, FormatElapsed(elapsed))
}
