// Package crawler defines core types shared across subsystems.
package crawler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RunStatus represents the terminal state of a harvest run.
type RunStatus string

// Run status values persisted in the run audit trail.
const (
	RunStatusSuccess           RunStatus = "success"
	RunStatusSuccessWithErrors RunStatus = "success-with-errors"
	RunStatusFailed            RunStatus = "failed"
)

// StarRange is one slice of the star-count dimension. Max == 0 means the
// range is open above Min, matching the "stars:>N" search qualifier.
type StarRange struct {
	Min int
	Max int
}

// ParseStarRange reads a config token such as ">10000" or "1000..9999".
func ParseStarRange(token string) (StarRange, error) {
	token = strings.TrimSpace(token)
	token = strings.TrimPrefix(token, "stars:")
	switch {
	case strings.HasPrefix(token, ">"):
		min, err := strconv.Atoi(strings.TrimPrefix(token, ">"))
		if err != nil {
			return StarRange{}, fmt.Errorf("parse star range %q: %w", token, err)
		}
		return StarRange{Min: min}, nil
	case strings.Contains(token, ".."):
		lo, hi, _ := strings.Cut(token, "..")
		min, err := strconv.Atoi(lo)
		if err != nil {
			return StarRange{}, fmt.Errorf("parse star range %q: %w", token, err)
		}
		max, err := strconv.Atoi(hi)
		if err != nil {
			return StarRange{}, fmt.Errorf("parse star range %q: %w", token, err)
		}
		if max < min {
			return StarRange{}, fmt.Errorf("parse star range %q: max below min", token)
		}
		return StarRange{Min: min, Max: max}, nil
	default:
		return StarRange{}, fmt.Errorf("parse star range %q: want \">N\" or \"N..M\"", token)
	}
}

// Qualifier renders the range as a GitHub search qualifier.
func (r StarRange) Qualifier() string {
	if r.Max == 0 {
		return fmt.Sprintf("stars:>%d", r.Min)
	}
	return fmt.Sprintf("stars:%d..%d", r.Min, r.Max)
}

// TimeWindow is one slice of the creation-date dimension. A closed window
// covers a single calendar year; an open window covers everything created
// before its year. The zero value omits the dimension entirely, which is how
// fallback predicates are expressed.
type TimeWindow struct {
	Year   int
	Before bool
}

// ParseTimeWindow reads a config token such as "2024" or "<2016".
func ParseTimeWindow(token string) (TimeWindow, error) {
	token = strings.TrimSpace(token)
	before := strings.HasPrefix(token, "<")
	year, err := strconv.Atoi(strings.TrimPrefix(token, "<"))
	if err != nil {
		return TimeWindow{}, fmt.Errorf("parse time window %q: %w", token, err)
	}
	if year < 2008 || year > 2100 {
		return TimeWindow{}, fmt.Errorf("parse time window %q: year out of range", token)
	}
	return TimeWindow{Year: year, Before: before}, nil
}

// IsZero reports whether the window omits the time dimension.
func (w TimeWindow) IsZero() bool {
	return w.Year == 0
}

// Qualifier renders the window as a GitHub search qualifier, or "" for the
// zero window.
func (w TimeWindow) Qualifier() string {
	switch {
	case w.Year == 0:
		return ""
	case w.Before:
		return fmt.Sprintf("created:<%d-01-01", w.Year)
	default:
		return fmt.Sprintf("created:%d-01-01..%d-12-31", w.Year, w.Year)
	}
}

// SearchPredicate is one independently fetchable slice of the search space.
// The rendered query is built once at construction so every consumer sees an
// identical string.
type SearchPredicate struct {
	Language string
	Stars    StarRange
	Created  TimeWindow
	Query    string
}

// NewPredicate builds a predicate and renders its query string.
func NewPredicate(language string, stars StarRange, created TimeWindow) SearchPredicate {
	q := fmt.Sprintf("language:%s %s", language, stars.Qualifier())
	if cq := created.Qualifier(); cq != "" {
		q += " " + cq
	}
	return SearchPredicate{Language: language, Stars: stars, Created: created, Query: q}
}

// Fallback reports whether the predicate omits the creation-date dimension.
func (p SearchPredicate) Fallback() bool {
	return p.Created.IsZero()
}

// PageCursor is an opaque continuation token scoped to a single predicate.
// The empty cursor requests the first page.
type PageCursor string

// Record is a normalized repository row. ID is the remote node ID and is the
// sole deduplication key.
type Record struct {
	ID            string    `json:"id"`
	NameWithOwner string    `json:"name_with_owner"`
	Name          string    `json:"name"`
	Owner         string    `json:"owner"`
	Description   string    `json:"description,omitempty"`
	Language      string    `json:"language,omitempty"`
	Private       bool      `json:"private"`
	Stars         int       `json:"stars"`
	CreatedAt     time.Time `json:"created_at,omitzero"`
	UpdatedAt     time.Time `json:"updated_at,omitzero"`
	FetchedAt     time.Time `json:"fetched_at"`
}

// Page is the outcome of one successful page fetch. Malformed counts records
// dropped while mapping the remote payload; the rest of the page is intact.
type Page struct {
	Records            []Record
	NextCursor         PageCursor
	HasNextPage        bool
	TotalMatches       int
	RateLimitRemaining int
	RateLimitResetAt   time.Time
	Malformed          int
}

// WorkUnit is one pending page fetch: a predicate plus the continuation
// cursor within it. Page and Fetched travel with the unit so continuation
// decisions need no shared per-predicate state.
type WorkUnit struct {
	Predicate SearchPredicate
	Cursor    PageCursor
	Page      int
	Fetched   int
}

// Stats aggregates the counters of one harvest run.
type Stats struct {
	PagesFetched        int64    `json:"pages_fetched"`
	UniqueEmitted       int64    `json:"unique_emitted"`
	DuplicatesFiltered  int64    `json:"duplicates_filtered"`
	MalformedSkipped    int64    `json:"malformed_skipped"`
	Retries             int64    `json:"retries"`
	RateLimitCooldowns  int64    `json:"rate_limit_cooldowns"`
	PartitionsAbandoned int64    `json:"partitions_abandoned"`
	TruncationSuspected int64    `json:"truncation_suspected"`
	Errors              []string `json:"errors,omitempty"`
}

// Result summarizes a completed run for callers and the CLI.
type Result struct {
	RunID   string        `json:"run_id"`
	Status  RunStatus     `json:"status"`
	Stats   Stats         `json:"stats"`
	Elapsed time.Duration `json:"elapsed"`
}

// BatchNotice is the payload published for each delivered batch of unique
// records.
type BatchNotice struct {
	RunID       string    `json:"run_id"`
	Records     int       `json:"records"`
	TotalUnique int64     `json:"total_unique"`
	EmittedAt   time.Time `json:"emitted_at"`
}
