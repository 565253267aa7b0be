package crawler

import (
	"sync"
	"time"
)

// RateLimitState tracks the remote quota view plus the retry counters for
// one run. It is shared by every worker of that run and never across runs.
// All methods are safe for concurrent use.
type RateLimitState struct {
	mu            sync.Mutex
	remaining     int
	resetAt       time.Time
	cooldownUntil time.Time
	cooldowns     int64
	retries       int64
}

// NewRateLimitState returns fresh state with an unknown quota.
func NewRateLimitState() *RateLimitState {
	return &RateLimitState{remaining: -1}
}

// Record stores the quota reported by the latest successful response.
func (s *RateLimitState) Record(remaining int, resetAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remaining = remaining
	if !resetAt.IsZero() {
		s.resetAt = resetAt
	}
}

// Remaining reports the last known quota, or -1 before any response.
func (s *RateLimitState) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}

// ResetAt reports the last known quota reset time.
func (s *RateLimitState) ResetAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resetAt
}

// ArmCooldown schedules a cooldown gate. A later existing deadline wins, so
// overlapping arms from concurrent workers never shorten the wait.
func (s *RateLimitState) ArmCooldown(until time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if until.After(s.cooldownUntil) {
		s.cooldownUntil = until
	}
}

// CooldownDeadline returns the current gate, which may be in the past.
func (s *RateLimitState) CooldownDeadline() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cooldownUntil
}

// AddCooldown counts one served cooldown wait.
func (s *RateLimitState) AddCooldown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cooldowns++
}

// Cooldowns reports how many cooldown waits were served.
func (s *RateLimitState) Cooldowns() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cooldowns
}

// AddRetry counts one transient retry.
func (s *RateLimitState) AddRetry() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retries++
}

// Retries reports how many transient retries were performed.
func (s *RateLimitState) Retries() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retries
}
