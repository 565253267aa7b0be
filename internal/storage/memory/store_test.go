package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/oss-observatory/starcrawler/internal/crawler"
	"github.com/oss-observatory/starcrawler/internal/store"
)

func TestStoreRunLifecycle(t *testing.T) {
	t.Parallel()

	s := NewStore()
	ctx := context.Background()
	runID := uuid.NewString()
	started := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

	if err := s.RecordRunStart(ctx, runID, started); err != nil {
		t.Fatalf("RecordRunStart() error = %v", err)
	}
	if err := s.RecordRunStart(ctx, runID, started); err == nil {
		t.Fatal("expected duplicate run error")
	}
	run, err := s.GetRun(ctx, uuid.MustParse(runID))
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Status != store.RunRunning || run.FinishedAt != nil {
		t.Fatalf("expected running run, got %+v", run)
	}

	err = s.RecordRunFinish(ctx, runID, crawler.RunStatusSuccessWithErrors, 4200, "2 partitions abandoned")
	if err != nil {
		t.Fatalf("RecordRunFinish() error = %v", err)
	}
	run, err = s.GetRun(ctx, uuid.MustParse(runID))
	if err != nil {
		t.Fatalf("GetRun() after finish error = %v", err)
	}
	if run.Status != store.RunSuccessWithErrors || run.FinishedAt == nil || run.ReposFetched != 4200 {
		t.Fatalf("expected finished run, got %+v", run)
	}
	if run.ErrorMessage == nil || *run.ErrorMessage != "2 partitions abandoned" {
		t.Fatalf("expected error message to persist, got %+v", run.ErrorMessage)
	}
}

func TestStoreUpdateRunProgress(t *testing.T) {
	t.Parallel()

	s := NewStore()
	ctx := context.Background()
	runID := uuid.NewString()

	if err := s.RecordRunStart(ctx, runID, time.Now().UTC()); err != nil {
		t.Fatalf("RecordRunStart() error = %v", err)
	}
	if err := s.UpdateRunProgress(ctx, uuid.MustParse(runID), 1200); err != nil {
		t.Fatalf("UpdateRunProgress() error = %v", err)
	}
	run, err := s.GetRun(ctx, uuid.MustParse(runID))
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.ReposFetched != 1200 {
		t.Fatalf("expected live progress 1200, got %d", run.ReposFetched)
	}

	if err := s.RecordRunFinish(ctx, runID, crawler.RunStatusSuccess, 2000, ""); err != nil {
		t.Fatalf("RecordRunFinish() error = %v", err)
	}
	if err := s.UpdateRunProgress(ctx, uuid.MustParse(runID), 1900); err != nil {
		t.Fatalf("UpdateRunProgress() after finish error = %v", err)
	}
	run, err = s.GetRun(ctx, uuid.MustParse(runID))
	if err != nil {
		t.Fatalf("GetRun() after finish error = %v", err)
	}
	if run.ReposFetched != 2000 {
		t.Fatalf("expected final count to stick, got %d", run.ReposFetched)
	}
}

func TestStoreGetRunNotFound(t *testing.T) {
	t.Parallel()

	s := NewStore()
	if _, err := s.GetRun(context.Background(), uuid.New()); err != store.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreListRunsFilterAndPaging(t *testing.T) {
	t.Parallel()

	s := NewStore()
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

	oldest := uuid.NewString()
	middle := uuid.NewString()
	newest := uuid.NewString()
	for i, id := range []string{oldest, middle, newest} {
		if err := s.RecordRunStart(ctx, id, base.Add(time.Duration(i)*time.Hour)); err != nil {
			t.Fatalf("RecordRunStart(%d) error = %v", i, err)
		}
	}
	if err := s.RecordRunFinish(ctx, oldest, crawler.RunStatusFailed, 0, "boom"); err != nil {
		t.Fatalf("RecordRunFinish() error = %v", err)
	}

	runs, err := s.ListRuns(ctx, nil, 10, 0)
	if err != nil || len(runs) != 3 {
		t.Fatalf("ListRuns() unexpected result: runs=%v err=%v", runs, err)
	}
	if runs[0].ID != uuid.MustParse(newest) || runs[2].ID != uuid.MustParse(oldest) {
		t.Fatalf("expected newest-first order, got %+v", runs)
	}

	failed := store.RunFailed
	runs, err = s.ListRuns(ctx, &failed, 10, 0)
	if err != nil || len(runs) != 1 || runs[0].ID != uuid.MustParse(oldest) {
		t.Fatalf("expected only the failed run, got runs=%v err=%v", runs, err)
	}

	runs, err = s.ListRuns(ctx, nil, 1, 1)
	if err != nil || len(runs) != 1 || runs[0].ID != uuid.MustParse(middle) {
		t.Fatalf("expected paged middle run, got runs=%v err=%v", runs, err)
	}

	runs, err = s.ListRuns(ctx, nil, 10, 5)
	if err != nil || len(runs) != 0 {
		t.Fatalf("expected empty page past the end, got runs=%v err=%v", runs, err)
	}
}

func TestStoreLatestStarCounts(t *testing.T) {
	t.Parallel()

	s := NewStore()
	ctx := context.Background()

	batch := []crawler.Record{
		{ID: "R_a", NameWithOwner: "torvalds/linux", Owner: "torvalds", Name: "linux", Stars: 190000},
		{ID: "R_b", NameWithOwner: "golang/go", Owner: "golang", Name: "go", Stars: 129000},
	}
	if err := s.AcceptBatch(ctx, "run-1", batch); err != nil {
		t.Fatalf("AcceptBatch() error = %v", err)
	}
	if err := s.Accept(ctx, "run-2", crawler.Record{
		ID: "R_b", NameWithOwner: "golang/go", Owner: "golang", Name: "go", Stars: 129500,
	}); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}

	counts, err := s.LatestStarCounts(ctx, 0)
	if err != nil {
		t.Fatalf("LatestStarCounts() error = %v", err)
	}
	if len(counts) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(counts))
	}
	if counts[0].NameWithOwner != "torvalds/linux" || counts[0].StarCount != 190000 {
		t.Fatalf("expected linux first, got %+v", counts[0])
	}
	if counts[1].StarCount != 129500 {
		t.Fatalf("expected latest snapshot for golang/go, got %+v", counts[1])
	}

	counts, err = s.LatestStarCounts(ctx, 1)
	if err != nil || len(counts) != 1 {
		t.Fatalf("expected limited result, got counts=%v err=%v", counts, err)
	}
}
