package crawler

import (
	"context"
	"io"
	"time"
)

// SearchClient executes one search page against the remote API and maps the
// response into domain types. Implementations perform no retries; resilience
// lives in the Fetcher wrapping them.
type SearchClient interface {
	Search(ctx context.Context, predicate SearchPredicate, cursor PageCursor) (Page, error)
}

// Fetcher retrieves one result page, absorbing transient failures and rate
// limiting on behalf of the caller. Side effects are confined to the passed
// RateLimitState.
type Fetcher interface {
	FetchPage(ctx context.Context, state *RateLimitState, predicate SearchPredicate, cursor PageCursor) (Page, error)
}

// Partitioner expands the configured dimensions into concrete predicates.
type Partitioner interface {
	Generate() []SearchPredicate
}

// Deduplicator tracks node IDs seen during a single run.
type Deduplicator interface {
	MarkAndFilter(records []Record) []Record
	Len() int
}

// Sink receives unique records and the run audit trail.
type Sink interface {
	Accept(ctx context.Context, runID string, record Record) error
	AcceptBatch(ctx context.Context, runID string, records []Record) error
	RecordRunStart(ctx context.Context, runID string, startedAt time.Time) error
	RecordRunFinish(ctx context.Context, runID string, status RunStatus, totalUnique int, errorMessage string) error
}

// Publisher pushes batch notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// BlobStore writes export artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, body io.Reader) (string, error)
}

// Hasher fingerprints rendered export artifacts so the uploaded bytes can be
// verified after the fact.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Queue provides enqueue/dequeue semantics for pending page fetches.
type Queue interface {
	Enqueue(ctx context.Context, unit WorkUnit) error
	Dequeue(ctx context.Context) (WorkUnit, error)
	Close() error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// EmitFunc delivers one batch of unique records downstream. A non-nil error
// is fatal to the run.
type EmitFunc func(ctx context.Context, records []Record) error
