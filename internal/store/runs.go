package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// RunStatus mirrors the crawl_runs status column.
type RunStatus string

// Run statuses persisted in crawl_runs.status.
const (
	RunRunning           RunStatus = "running"
	RunSuccess           RunStatus = "success"
	RunSuccessWithErrors RunStatus = "success-with-errors"
	RunFailed            RunStatus = "failed"
)

// CrawlRun models the crawl_runs audit table for API responses.
type CrawlRun struct {
	// ID is the run identifier shared with progress events and logs.
	ID uuid.UUID
	// StartedAt captures when the run was opened.
	StartedAt time.Time
	// FinishedAt is nil until the run reaches a terminal status.
	FinishedAt *time.Time
	// Status is running until the run closes.
	Status RunStatus
	// ReposFetched holds the unique records delivered by the run.
	ReposFetched int64
	// ErrorMessage optionally stores the final failure reason.
	ErrorMessage *string
}

// StarCount is one row of the latest star-count view: the most recent
// snapshot recorded for a repository.
type StarCount struct {
	NodeID        string
	NameWithOwner string
	OwnerLogin    string
	Name          string
	StarCount     int
	RecordedAt    time.Time
}

// RunRepository reads the run audit trail.
type RunRepository interface {
	// GetRun loads a single run or returns ErrNotFound.
	GetRun(ctx context.Context, runID uuid.UUID) (CrawlRun, error)
	// ListRuns returns runs filtered by optional status plus limit/offset,
	// newest first.
	ListRuns(ctx context.Context, status *RunStatus, limit, offset int) ([]CrawlRun, error)
}

// StarCountReader serves the latest star count per repository, most starred
// first. limit <= 0 returns every row.
type StarCountReader interface {
	LatestStarCounts(ctx context.Context, limit int) ([]StarCount, error)
}

// RunProgressWriter pushes live progress into the run audit trail while a
// run is still open. Writers must ignore runs that already reached a
// terminal status so late heartbeats cannot clobber final counts.
type RunProgressWriter interface {
	UpdateRunProgress(ctx context.Context, runID uuid.UUID, reposFetched int64) error
}
