package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/oss-observatory/starcrawler/internal/metrics"
)

// PagedFetcher wraps a SearchClient with the resilience machinery: transient
// failures retry on an exponential schedule, rate-limit responses wait out a
// fixed cooldown, and a low remaining quota arms the same cooldown ahead of
// the next call. Rate-limit waits never consume the transient retry budget.
type PagedFetcher struct {
	client      SearchClient
	backoff     BackoffPolicy
	clock       Clock
	logger      *zap.Logger
	maxAttempts int
	threshold   int
	cooldown    time.Duration

	// sleep is swapped out by tests to avoid real waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPagedFetcher builds a fetcher from the run configuration.
func NewPagedFetcher(client SearchClient, cfg Config, clock Clock, logger *zap.Logger) *PagedFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PagedFetcher{
		client:      client,
		backoff:     ExponentialBackoff{Base: cfg.BaseDelay},
		clock:       clock,
		logger:      logger,
		maxAttempts: cfg.MaxAttempts,
		threshold:   cfg.RateLimitThreshold,
		cooldown:    cfg.RateLimitCooldown,
		sleep:       SleepContext,
	}
}

// FetchPage retrieves one page, retrying transient failures up to the
// configured attempt budget. AuthError and MalformedResponseError return
// immediately; a spent budget returns FetchExhaustedError with no trailing
// sleep.
func (f *PagedFetcher) FetchPage(ctx context.Context, state *RateLimitState, predicate SearchPredicate, cursor PageCursor) (Page, error) {
	var lastErr error
	attempt := 0
	for {
		if err := f.awaitCooldown(ctx, state); err != nil {
			return Page{}, fmt.Errorf("cooldown wait: %w", err)
		}

		start := f.clock.Now()
		page, err := f.client.Search(ctx, predicate, cursor)
		if err == nil {
			f.noteQuota(state, page)
			metrics.ObservePage(predicate.Language, f.clock.Now().Sub(start))
			return page, nil
		}

		var rl *RateLimitedError
		switch {
		case errors.As(err, &rl):
			f.logger.Warn("search rate limited",
				zap.String("query", predicate.Query),
				zap.Int("remaining", rl.Remaining),
				zap.Duration("cooldown", f.cooldown))
			state.ArmCooldown(f.clock.Now().Add(f.cooldown))
			continue
		case IsAuth(err) || IsMalformed(err):
			return Page{}, err
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return Page{}, err
		}

		lastErr = err
		attempt++
		if attempt >= f.maxAttempts {
			return Page{}, &FetchExhaustedError{Attempts: attempt, Last: lastErr}
		}
		wait := f.backoff.Backoff(attempt - 1)
		state.AddRetry()
		metrics.ObserveRetry()
		f.logger.Warn("transient search failure",
			zap.String("query", predicate.Query),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err))
		if err := f.sleep(ctx, wait); err != nil {
			return Page{}, fmt.Errorf("backoff wait: %w", err)
		}
	}
}

// awaitCooldown serves any pending cooldown gate before a network call.
func (f *PagedFetcher) awaitCooldown(ctx context.Context, state *RateLimitState) error {
	deadline := state.CooldownDeadline()
	now := f.clock.Now()
	if !deadline.After(now) {
		return nil
	}
	wait := deadline.Sub(now)
	state.AddCooldown()
	metrics.ObserveCooldown()
	f.logger.Info("rate limit cooldown",
		zap.Duration("wait", wait),
		zap.Int("remaining", state.Remaining()))
	return f.sleep(ctx, wait)
}

// noteQuota records the reported quota and arms the cooldown when the
// remaining budget dips under the threshold.
func (f *PagedFetcher) noteQuota(state *RateLimitState, page Page) {
	state.Record(page.RateLimitRemaining, page.RateLimitResetAt)
	if page.RateLimitRemaining >= 0 && page.RateLimitRemaining < f.threshold {
		state.ArmCooldown(f.clock.Now().Add(f.cooldown))
	}
}

// SleepContext waits for d or until ctx is done, whichever comes first.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
