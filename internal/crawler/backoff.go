package crawler

import (
	"math"
	"time"
)

// BackoffPolicy yields the wait before the next transient retry.
type BackoffPolicy interface {
	Backoff(attempt int) time.Duration
}

// ExponentialBackoff doubles a base delay per attempt, capped at Max when
// Max is set. The schedule is deterministic so tests can assert exact waits.
type ExponentialBackoff struct {
	Base time.Duration
	Max  time.Duration
}

// Backoff returns Base * 2^attempt. Negative attempts are treated as zero.
func (p ExponentialBackoff) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := float64(p.Base) * math.Pow(2, float64(attempt))
	if p.Max > 0 && delay > float64(p.Max) {
		delay = float64(p.Max)
	}
	return time.Duration(delay)
}
