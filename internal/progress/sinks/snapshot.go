package sinks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oss-observatory/starcrawler/internal/progress"
)

// defaultSnapshotCapacity bounds how many runs the snapshot retains.
const defaultSnapshotCapacity = 16

// RunSnapshot is the live aggregate view of one run, built from progress
// events rather than storage reads so the status endpoint stays cheap.
type RunSnapshot struct {
	RunID          string    `json:"run_id"`
	StartedAt      time.Time `json:"started_at"`
	LastEventAt    time.Time `json:"last_event_at"`
	Pages          int64     `json:"pages"`
	Records        int64     `json:"records"`
	Unique         int64     `json:"unique"`
	AbandonedUnits int64     `json:"abandoned_units"`
	Finished       bool      `json:"finished"`
	Outcome        string    `json:"outcome,omitempty"`
	ElapsedSeconds float64   `json:"elapsed_seconds,omitempty"`
}

// SnapshotSink aggregates events into per-run counters held in memory. The
// status API reads from it; nothing is persisted.
type SnapshotSink struct {
	mu       sync.Mutex
	runs     map[uuid.UUID]*RunSnapshot
	order    []uuid.UUID
	capacity int
}

// NewSnapshotSink builds a sink retaining up to capacity runs; older runs
// are evicted first. capacity <= 0 selects the default.
func NewSnapshotSink(capacity int) *SnapshotSink {
	if capacity <= 0 {
		capacity = defaultSnapshotCapacity
	}
	return &SnapshotSink{
		runs:     make(map[uuid.UUID]*RunSnapshot),
		capacity: capacity,
	}
}

// Consume folds the batch into the per-run aggregates.
func (s *SnapshotSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		s.apply(evt)
	}
	return nil
}

func (s *SnapshotSink) apply(evt progress.Event) {
	id := evt.RunUUID()
	snap, ok := s.runs[id]
	if !ok {
		snap = &RunSnapshot{RunID: id.String(), StartedAt: evt.TS}
		s.runs[id] = snap
		s.order = append(s.order, id)
		s.evict()
	}
	if evt.TS.After(snap.LastEventAt) {
		snap.LastEventAt = evt.TS
	}
	switch evt.Stage {
	case progress.StageRunStart:
		snap.StartedAt = evt.TS
	case progress.StageRunHB:
		if evt.Unique > snap.Unique {
			snap.Unique = evt.Unique
		}
	case progress.StagePageDone:
		snap.Pages++
		snap.Records += evt.Records
		snap.Unique += evt.Unique
	case progress.StageUnitAbandoned:
		snap.AbandonedUnits++
	case progress.StageRunDone, progress.StageRunError:
		snap.Finished = true
		snap.Outcome = string(evt.Outcome)
		if evt.Unique > 0 {
			snap.Unique = evt.Unique
		}
		if evt.Dur > 0 {
			snap.ElapsedSeconds = evt.Dur.Seconds()
		}
	}
}

// evict drops the oldest runs once capacity is exceeded, preferring finished
// ones. Callers must hold the lock.
func (s *SnapshotSink) evict() {
	for len(s.order) > s.capacity {
		victim := -1
		for i, id := range s.order {
			if s.runs[id] != nil && s.runs[id].Finished {
				victim = i
				break
			}
		}
		if victim < 0 {
			victim = 0
		}
		id := s.order[victim]
		s.order = append(s.order[:victim], s.order[victim+1:]...)
		delete(s.runs, id)
	}
}

// Snapshot returns every retained run, newest start first.
func (s *SnapshotSink) Snapshot() []RunSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RunSnapshot, 0, len(s.runs))
	for _, snap := range s.runs {
		out = append(out, *snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

// Run returns the snapshot for one run ID if retained.
func (s *SnapshotSink) Run(runID string) (RunSnapshot, bool) {
	id, err := uuid.Parse(runID)
	if err != nil {
		return RunSnapshot{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.runs[id]
	if !ok {
		return RunSnapshot{}, false
	}
	return *snap, true
}

// Close implements the Sink interface; it performs no action.
func (s *SnapshotSink) Close(context.Context) error {
	return nil
}
