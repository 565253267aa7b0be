package crawler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/oss-observatory/starcrawler/internal/progress"
)

// heartbeatInterval paces RUN_HEARTBEAT events while a run is in flight.
const heartbeatInterval = 30 * time.Second

// CrawlService sequences a full harvest run: open the audit record, drive
// the orchestrator, deliver every unique batch to the sink, close the audit
// record with the derived status.
type CrawlService struct {
	cfg         Config
	partitioner Partitioner
	fetcher     Fetcher
	sink        Sink
	publisher   Publisher
	emitter     progress.Emitter
	newQueue    func(capacity int) Queue
	ids         IDGenerator
	clock       Clock
	logger      *zap.Logger

	mu      sync.Mutex
	current *Orchestrator
}

// NewCrawlService wires a service. publisher and emitter may be nil;
// newQueue must return an empty queue of at least the given capacity.
func NewCrawlService(cfg Config, partitioner Partitioner, fetcher Fetcher, sink Sink, publisher Publisher, emitter progress.Emitter, newQueue func(capacity int) Queue, ids IDGenerator, clock Clock, logger *zap.Logger) *CrawlService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CrawlService{
		cfg:         cfg,
		partitioner: partitioner,
		fetcher:     fetcher,
		sink:        sink,
		publisher:   publisher,
		emitter:     emitter,
		newQueue:    newQueue,
		ids:         ids,
		clock:       clock,
		logger:      logger,
	}
}

// Run executes one harvest run to completion and records its audit trail.
// The returned Result is valid even when err is non-nil.
func (s *CrawlService) Run(ctx context.Context) (Result, error) {
	runID, err := s.ids.NewID()
	if err != nil {
		return Result{}, fmt.Errorf("generate run id: %w", err)
	}
	logger := s.logger.With(zap.String("run_id", runID))
	started := s.clock.Now()

	if err := s.sink.RecordRunStart(ctx, runID, started); err != nil {
		return Result{}, fmt.Errorf("record run start: %w", err)
	}
	s.emitRunStage(runID, progress.StageRunStart, "", Stats{}, 0)

	predicates := s.partitioner.Generate()
	logger.Info("starting harvest run",
		zap.Int("predicates", len(predicates)),
		zap.Int("target", s.cfg.TargetCount),
		zap.Int("concurrency", s.cfg.MaxConcurrency))

	orch := NewOrchestrator(s.cfg, runID, s.fetcher, NewSeenSet(), s.newQueue(len(predicates)), NewRateLimitState(), s.emitter, s.clock, logger)
	s.mu.Lock()
	s.current = orch
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.current = nil
		s.mu.Unlock()
	}()

	var delivered atomic.Int64
	stopHB := s.startHeartbeat(runID, &delivered)
	stats, runErr := orch.Run(ctx, predicates, s.emitBatch(runID, &delivered))
	stopHB()

	elapsed := s.clock.Now().Sub(started)
	status := deriveStatus(runErr, stats)
	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}

	finishCtx := ctx
	if ctx.Err() != nil {
		// the run context is gone; give the audit write its own brief window
		var cancel context.CancelFunc
		finishCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	if err := s.sink.RecordRunFinish(finishCtx, runID, status, int(stats.UniqueEmitted), errMsg); err != nil {
		logger.Error("record run finish failed", zap.Error(err))
		if runErr == nil {
			runErr = fmt.Errorf("record run finish: %w", err)
			status = RunStatusFailed
		}
	}

	stage := progress.StageRunDone
	if status == RunStatusFailed {
		stage = progress.StageRunError
	}
	s.emitRunStage(runID, stage, errMsg, stats, elapsed)

	logger.Info("harvest run finished",
		zap.String("status", string(status)),
		zap.Int64("unique", stats.UniqueEmitted),
		zap.Int64("pages", stats.PagesFetched),
		zap.Int64("duplicates", stats.DuplicatesFiltered),
		zap.Int64("abandoned", stats.PartitionsAbandoned),
		zap.Duration("elapsed", elapsed))

	return Result{RunID: runID, Status: status, Stats: stats, Elapsed: elapsed}, runErr
}

// RequestStop asks the in-flight run, if any, to stop admitting work.
func (s *CrawlService) RequestStop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.current.RequestStop()
	}
}

// emitBatch forwards a unique batch to the sink and, when configured,
// publishes a summary notice. Sink failure is fatal to the run; a publish
// failure only logs.
func (s *CrawlService) emitBatch(runID string, delivered *atomic.Int64) EmitFunc {
	return func(ctx context.Context, records []Record) error {
		if err := s.sink.AcceptBatch(ctx, runID, records); err != nil {
			return fmt.Errorf("sink accept batch: %w", err)
		}
		total := delivered.Add(int64(len(records)))
		if s.publisher != nil && s.cfg.PublishTopic != "" {
			notice := BatchNotice{
				RunID:       runID,
				Records:     len(records),
				TotalUnique: total,
				EmittedAt:   s.clock.Now(),
			}
			if _, err := s.publisher.Publish(ctx, s.cfg.PublishTopic, notice); err != nil {
				s.logger.Warn("publish batch notice failed", zap.String("run_id", runID), zap.Error(err))
			}
		}
		return nil
	}
}

func (s *CrawlService) startHeartbeat(runID string, delivered *atomic.Int64) func() {
	if s.emitter == nil {
		return func() {}
	}
	done := make(chan struct{})
	var once sync.Once
	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				s.emitRunStage(runID, progress.StageRunHB, "", Stats{UniqueEmitted: delivered.Load()}, 0)
			}
		}
	}()
	return func() { once.Do(func() { close(done) }) }
}

func (s *CrawlService) emitRunStage(runID string, stage progress.Stage, note string, stats Stats, elapsed time.Duration) {
	if s.emitter == nil {
		return
	}
	id, err := uuid.Parse(runID)
	if err != nil {
		return
	}
	evt := progress.Event{
		RunID:  progress.UUIDToBytes(id),
		TS:     s.clock.Now(),
		Stage:  stage,
		Unique: stats.UniqueEmitted,
		Dur:    elapsed,
		Note:   note,
	}
	switch stage {
	case progress.StageRunDone:
		evt.Outcome = progress.OutcomeSuccess
		if stats.PartitionsAbandoned > 0 || stats.MalformedSkipped > 0 || len(stats.Errors) > 0 {
			evt.Outcome = progress.OutcomeSuccessWithErrors
		}
	case progress.StageRunError:
		evt.Outcome = progress.OutcomeFailed
	}
	s.emitter.Emit(evt)
}

// deriveStatus maps the orchestrator outcome onto the run status recorded in
// the audit trail.
func deriveStatus(err error, stats Stats) RunStatus {
	switch {
	case err != nil:
		return RunStatusFailed
	case stats.PartitionsAbandoned > 0 || stats.MalformedSkipped > 0 || len(stats.Errors) > 0:
		return RunStatusSuccessWithErrors
	default:
		return RunStatusSuccess
	}
}
