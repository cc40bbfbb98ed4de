package util

import "time"

// RetryDelay returns the exponential delay for the given zero-based attempt,
// doubling from initial and capped at maxDelay.
func RetryDelay(attempt int, initial, maxDelay time.Duration) time.Duration {
	delay := initial
	for range attempt {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	return min(delay, maxDelay)
}
