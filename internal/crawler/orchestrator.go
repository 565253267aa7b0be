package crawler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/oss-observatory/starcrawler/internal/metrics"
	"github.com/oss-observatory/starcrawler/internal/progress"
)

// Orchestrator drains a partitioned query space with a fixed pool of
// workers. Workers pull page-sized work units from a shared queue, so
// concurrency is bounded by the pool size regardless of how many predicates
// exist, and pages of one predicate stay strictly sequential because a
// continuation unit is only enqueued after its predecessor completes.
//
// An Orchestrator serves exactly one run.
type Orchestrator struct {
	cfg     Config
	runID   string
	runUUID [16]byte
	fetcher Fetcher
	dedup   Deduplicator
	queue   Queue
	state   *RateLimitState
	emitter progress.Emitter
	clock   Clock
	logger  *zap.Logger

	stop     chan struct{}
	stopOnce sync.Once

	live     atomic.Int64
	reserved atomic.Int64

	pagesFetched        atomic.Int64
	uniqueEmitted       atomic.Int64
	duplicatesFiltered  atomic.Int64
	malformedSkipped    atomic.Int64
	partitionsAbandoned atomic.Int64
	truncationSuspected atomic.Int64

	errMu sync.Mutex
	errs  []string
	fatal error
}

// NewOrchestrator wires an orchestrator for a single run. The queue must be
// empty and sized to hold one unit per predicate. emitter may be nil.
func NewOrchestrator(cfg Config, runID string, fetcher Fetcher, dedup Deduplicator, queue Queue, state *RateLimitState, emitter progress.Emitter, clock Clock, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		cfg:     cfg,
		runID:   runID,
		fetcher: fetcher,
		dedup:   dedup,
		queue:   queue,
		state:   state,
		emitter: emitter,
		clock:   clock,
		logger:  logger,
		stop:    make(chan struct{}),
	}
	if id, err := uuid.Parse(runID); err == nil {
		o.runUUID = progress.UUIDToBytes(id)
	}
	return o
}

// RequestStop asks the pool to stop admitting new page fetches. In-flight
// fetches finish and their records are still delivered. Safe to call from
// any goroutine, any number of times, before or during Run.
func (o *Orchestrator) RequestStop() {
	o.stopOnce.Do(func() { close(o.stop) })
}

// Run seeds the queue with one unit per predicate, drives the pool until the
// space is drained or a stop is requested, and returns the final counters.
// The returned error is non-nil only for run-fatal conditions.
func (o *Orchestrator) Run(ctx context.Context, predicates []SearchPredicate, emit EmitFunc) (Stats, error) {
	// admit gates queue handoff only; fetches in flight keep using ctx so a
	// soft stop lets them finish their page.
	admit, cancelAdmit := context.WithCancel(ctx)
	defer cancelAdmit()
	go func() {
		select {
		case <-o.stop:
			cancelAdmit()
		case <-admit.Done():
		}
	}()

	if o.cfg.MaxRunDuration > 0 {
		timer := time.AfterFunc(o.cfg.MaxRunDuration, o.RequestStop)
		defer timer.Stop()
	}

	defer func() { _ = o.queue.Close() }()

	o.live.Store(int64(len(predicates)))
	if len(predicates) == 0 {
		_ = o.queue.Close()
	}
	for _, p := range predicates {
		if err := o.queue.Enqueue(admit, WorkUnit{Predicate: p}); err != nil {
			o.retire()
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < o.cfg.MaxConcurrency; i++ {
		wg.Add(1)
		logger := o.logger.Named("worker").With(zap.Int("index", i))
		go func() {
			defer wg.Done()
			o.worker(ctx, admit, logger, emit)
		}()
	}
	wg.Wait()

	stats := o.snapshot()
	o.errMu.Lock()
	fatal := o.fatal
	o.errMu.Unlock()
	if fatal == nil && ctx.Err() != nil {
		fatal = ctx.Err()
	}
	return stats, fatal
}

func (o *Orchestrator) worker(ctx, admit context.Context, logger *zap.Logger, emit EmitFunc) {
	for {
		unit, err := o.queue.Dequeue(admit)
		if err != nil {
			return
		}
		o.process(ctx, admit, logger, unit, emit)
	}
}

func (o *Orchestrator) process(ctx, admit context.Context, logger *zap.Logger, unit WorkUnit, emit EmitFunc) {
	continued := false
	defer func() {
		if !continued {
			o.retire()
		}
	}()

	// A unit handed over after the stop request is dropped, not fetched.
	select {
	case <-o.stop:
		return
	default:
	}

	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	start := o.clock.Now()
	page, err := o.fetcher.FetchPage(ctx, o.state, unit.Predicate, unit.Cursor)
	if err != nil {
		o.handleFetchError(ctx, logger, unit, err)
		return
	}
	o.pagesFetched.Add(1)

	fresh := o.dedup.MarkAndFilter(page.Records)
	duplicates := len(page.Records) - len(fresh) - countEmptyIDs(page.Records)
	o.duplicatesFiltered.Add(int64(duplicates))
	o.malformedSkipped.Add(int64(page.Malformed))
	metrics.ObserveRecords("duplicate", duplicates)
	metrics.ObserveRecords("malformed", page.Malformed)

	granted := o.reserve(len(fresh))
	fresh = fresh[:granted]
	if len(fresh) > 0 {
		if err := emit(ctx, fresh); err != nil {
			o.setFatal(fmt.Errorf("emit batch: %w", err))
			o.RequestStop()
			logger.Error("batch delivery failed", zap.Error(err))
			return
		}
		o.uniqueEmitted.Add(int64(len(fresh)))
		metrics.ObserveRecords("unique", len(fresh))
	}

	o.emitEvent(progress.Event{
		RunID:    o.runUUID,
		TS:       o.clock.Now(),
		Stage:    progress.StagePageDone,
		Query:    unit.Predicate.Query,
		Language: unit.Predicate.Language,
		Page:     unit.Page,
		Records:  int64(len(page.Records)),
		Unique:   int64(len(fresh)),
		Dur:      o.clock.Now().Sub(start),
	})

	if o.targetMet() {
		o.RequestStop()
	}

	fetched := unit.Fetched + len(page.Records)
	if page.HasNextPage {
		switch {
		case admit.Err() != nil:
			// stopping; the in-flight page was still delivered
		case o.targetMet():
		case o.cfg.PerPartitionPageLimit > 0 && unit.Page+1 >= o.cfg.PerPartitionPageLimit:
			logger.Debug("partition page limit reached", zap.String("query", unit.Predicate.Query))
		case fetched >= searchResultCap:
			o.truncationSuspected.Add(1)
			logger.Warn("partition truncated at result cap",
				zap.String("query", unit.Predicate.Query),
				zap.Int("total_matches", page.TotalMatches))
		default:
			next := WorkUnit{Predicate: unit.Predicate, Cursor: page.NextCursor, Page: unit.Page + 1, Fetched: fetched}
			if err := o.queue.Enqueue(admit, next); err == nil {
				continued = true
			}
		}
	} else if page.TotalMatches > searchResultCap {
		o.truncationSuspected.Add(1)
		logger.Warn("partition reports more matches than the cap allows",
			zap.String("query", unit.Predicate.Query),
			zap.Int("total_matches", page.TotalMatches),
			zap.Int("fetched", fetched))
	}
	if !continued {
		metrics.ObservePartition("completed")
	}
}

func (o *Orchestrator) handleFetchError(ctx context.Context, logger *zap.Logger, unit WorkUnit, err error) {
	switch {
	case IsAuth(err):
		o.setFatal(err)
		o.RequestStop()
		logger.Error("authentication rejected, stopping run", zap.Error(err))
	case ctx.Err() != nil:
		// run canceled mid-fetch; not an abandonment
	default:
		o.partitionsAbandoned.Add(1)
		metrics.ObservePartition("abandoned")
		o.addError(fmt.Sprintf("%s: %v", unit.Predicate.Query, err))
		logger.Warn("partition abandoned",
			zap.String("query", unit.Predicate.Query),
			zap.Int("page", unit.Page),
			zap.Error(err))
		o.emitEvent(progress.Event{
			RunID: o.runUUID,
			TS:    o.clock.Now(),
			Stage: progress.StageUnitAbandoned,
			Query: unit.Predicate.Query,
			Page:  unit.Page,
			Note:  err.Error(),
		})
	}
}

// retire drops one live unit; the last retirement closes the queue so every
// blocked Dequeue returns.
func (o *Orchestrator) retire() {
	if o.live.Add(-1) == 0 {
		_ = o.queue.Close()
	}
}

// reserve claims up to n slots of the remaining target and returns how many
// were granted. Without a target everything is granted.
func (o *Orchestrator) reserve(n int) int {
	if o.cfg.TargetCount <= 0 {
		return n
	}
	for {
		cur := o.reserved.Load()
		remaining := int64(o.cfg.TargetCount) - cur
		if remaining <= 0 {
			return 0
		}
		grant := int64(n)
		if grant > remaining {
			grant = remaining
		}
		if o.reserved.CompareAndSwap(cur, cur+grant) {
			return int(grant)
		}
	}
}

func (o *Orchestrator) targetMet() bool {
	return o.cfg.TargetCount > 0 && o.reserved.Load() >= int64(o.cfg.TargetCount)
}

func (o *Orchestrator) setFatal(err error) {
	o.errMu.Lock()
	defer o.errMu.Unlock()
	if o.fatal == nil {
		o.fatal = err
	}
}

func (o *Orchestrator) addError(msg string) {
	o.errMu.Lock()
	defer o.errMu.Unlock()
	o.errs = append(o.errs, msg)
}

func (o *Orchestrator) emitEvent(evt progress.Event) {
	if o.emitter == nil {
		return
	}
	o.emitter.Emit(evt)
}

func (o *Orchestrator) snapshot() Stats {
	o.errMu.Lock()
	errs := append([]string(nil), o.errs...)
	o.errMu.Unlock()
	return Stats{
		PagesFetched:        o.pagesFetched.Load(),
		UniqueEmitted:       o.uniqueEmitted.Load(),
		DuplicatesFiltered:  o.duplicatesFiltered.Load(),
		MalformedSkipped:    o.malformedSkipped.Load(),
		Retries:             o.state.Retries(),
		RateLimitCooldowns:  o.state.Cooldowns(),
		PartitionsAbandoned: o.partitionsAbandoned.Load(),
		TruncationSuspected: o.truncationSuspected.Load(),
		Errors:              errs,
	}
}

func countEmptyIDs(records []Record) int {
	n := 0
	for _, rec := range records {
		if rec.ID == "" {
			n++
		}
	}
	return n
}
