// Package progress defines the event structures emitted during harvest runs.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart      Stage = "RUN_START"
	StageRunHB         Stage = "RUN_HEARTBEAT"
	StageRunDone       Stage = "RUN_DONE"
	StageRunError      Stage = "RUN_ERROR"
	StagePageDone      Stage = "PAGE_DONE"
	StageUnitAbandoned Stage = "UNIT_ABANDONED"
)

// Outcome is the coarse result grouping attached to run completion events.
type Outcome string

// Supported run outcomes.
const (
	OutcomeSuccess           Outcome = "success"
	OutcomeSuccessWithErrors Outcome = "success-with-errors"
	OutcomeFailed            Outcome = "failed"
	OutcomeOther             Outcome = "other"
)

// Event captures a single milestone of a harvest run.
type Event struct {
	// RunID uniquely identifies a run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle or page milestone occurred.
	Stage Stage
	// Query scopes page events to the predicate that produced them.
	Query string
	// Language is the bounded-cardinality label used by metric sinks.
	Language string
	// Page is the zero-based page ordinal within the predicate.
	Page int
	// Records counts rows returned by the page.
	Records int64
	// Unique counts rows that survived deduplication; on run events it
	// carries the cumulative total.
	Unique int64
	// Outcome groups run completions for counters.
	Outcome Outcome
	// Dur captures fetch latency for pages and wall time for completed runs.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunHB:
	case StageRunDone, StageRunError:
		if e.Outcome == "" {
			return errors.New("run completion requires outcome")
		}
	case StagePageDone:
		if e.Query == "" {
			return errors.New("page done requires query")
		}
	case StageUnitAbandoned:
		if e.Query == "" {
			return errors.New("unit abandoned requires query")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID for repositories.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// ClassifyOutcome maps a run status string onto an Outcome label.
func ClassifyOutcome(status string) Outcome {
	switch Outcome(status) {
	case OutcomeSuccess, OutcomeSuccessWithErrors, OutcomeFailed:
		return Outcome(status)
	default:
		return OutcomeOther
	}
}
