package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oss-observatory/starcrawler/internal/crawler"
	"github.com/oss-observatory/starcrawler/internal/store"
)

type starSnapshot struct {
	count      int
	recordedAt time.Time
}

// Store provides an in-memory implementation of the record sink and the run
// and star-count readers for development/testing.
type Store struct {
	mu    sync.RWMutex
	repos map[string]crawler.Record
	stars map[string][]starSnapshot
	runs  map[uuid.UUID]store.CrawlRun
}

// NewStore constructs a Store.
func NewStore() *Store {
	return &Store{
		repos: make(map[string]crawler.Record),
		stars: make(map[string][]starSnapshot),
		runs:  make(map[uuid.UUID]store.CrawlRun),
	}
}

// Accept persists a single record.
func (s *Store) Accept(ctx context.Context, runID string, record crawler.Record) error {
	return s.AcceptBatch(ctx, runID, []crawler.Record{record})
}

// AcceptBatch keeps the latest record per node ID and appends star snapshots.
func (s *Store) AcceptBatch(_ context.Context, _ string, records []crawler.Record) error {
	if len(records) == 0 {
		return nil
	}
	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		s.repos[rec.ID] = rec
		s.stars[rec.ID] = append(s.stars[rec.ID], starSnapshot{count: rec.Stars, recordedAt: now})
	}
	return nil
}

// RecordRunStart stores a new run in running status.
func (s *Store) RecordRunStart(_ context.Context, runID string, startedAt time.Time) error {
	id, err := uuid.Parse(runID)
	if err != nil {
		return fmt.Errorf("parse run id: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[id]; exists {
		return fmt.Errorf("run %s already exists", runID)
	}
	s.runs[id] = store.CrawlRun{ID: id, StartedAt: startedAt, Status: store.RunRunning}
	return nil
}

// RecordRunFinish moves a run to its terminal status.
func (s *Store) RecordRunFinish(_ context.Context, runID string, status crawler.RunStatus, totalUnique int, errorMessage string) error {
	id, err := uuid.Parse(runID)
	if err != nil {
		return fmt.Errorf("parse run id: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return fmt.Errorf("run %s not found", runID)
	}
	now := time.Now().UTC()
	run.FinishedAt = &now
	run.Status = store.RunStatus(status)
	run.ReposFetched = int64(totalUnique)
	if errorMessage != "" {
		run.ErrorMessage = &errorMessage
	}
	s.runs[id] = run
	return nil
}

// UpdateRunProgress refreshes the fetched count for a run that is still
// open. Finished runs keep the count recorded at completion.
func (s *Store) UpdateRunProgress(_ context.Context, runID uuid.UUID, reposFetched int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok || run.Status != store.RunRunning {
		return nil
	}
	run.ReposFetched = reposFetched
	s.runs[runID] = run
	return nil
}

// GetRun fetches a run by ID.
func (s *Store) GetRun(_ context.Context, runID uuid.UUID) (store.CrawlRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return store.CrawlRun{}, store.ErrNotFound
	}
	return run, nil
}

// ListRuns returns runs newest first, with optional status filtering.
func (s *Store) ListRuns(_ context.Context, status *store.RunStatus, limit, offset int) ([]store.CrawlRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]store.CrawlRun, 0, len(s.runs))
	for _, run := range s.runs {
		if status != nil && run.Status != *status {
			continue
		}
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if offset >= len(runs) {
		return nil, nil
	}
	runs = runs[offset:]
	if limit > 0 && limit < len(runs) {
		runs = runs[:limit]
	}
	out := make([]store.CrawlRun, len(runs))
	copy(out, runs)
	return out, nil
}

// LatestStarCounts returns the most recent snapshot per repository, most
// starred first. limit <= 0 returns every row.
func (s *Store) LatestStarCounts(_ context.Context, limit int) ([]store.StarCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make([]store.StarCount, 0, len(s.repos))
	for id, rec := range s.repos {
		snaps := s.stars[id]
		if len(snaps) == 0 {
			continue
		}
		latest := snaps[len(snaps)-1]
		counts = append(counts, store.StarCount{
			NodeID:        id,
			NameWithOwner: rec.NameWithOwner,
			OwnerLogin:    rec.Owner,
			Name:          rec.Name,
			StarCount:     latest.count,
			RecordedAt:    latest.recordedAt,
		})
	}
	sort.Slice(counts, func(i, j int) bool {
		return counts[i].StarCount > counts[j].StarCount
	})
	if limit > 0 && limit < len(counts) {
		counts = counts[:limit]
	}
	return counts, nil
}
