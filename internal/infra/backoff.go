package infra

import (
	"time"
)

// Reconnect delays for broker channels. One second loses at most a
// handful of order updates (the next snapshot or status change catches
// them up); a minute is the most we let a dead vendor endpoint be
// retried.
const (
	baseDelay = 1 * time.Second
	maxDelay  = 60 * time.Second
)

// CalculateBackoff returns the delay before reconnect attempt
// retryCount: baseDelay doubled per attempt, capped at maxDelay.
// Negative counts get baseDelay.
func CalculateBackoff(retryCount int) time.Duration {
	if retryCount < 0 {
		return baseDelay
	}

	// 1<<31 seconds would overflow the multiply below.
	if retryCount > 30 {
		return maxDelay
	}

	backoff := baseDelay * time.Duration(1<<retryCount)
	if backoff > maxDelay {
		return maxDelay
	}
	return backoff
}
