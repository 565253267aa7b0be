package sinks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/oss-observatory/starcrawler/internal/progress"
)

// TestStoreSinkCollapsesHeartbeats ensures one write per run carries the
// highest cumulative count seen in the batch.
func TestStoreSinkCollapsesHeartbeats(t *testing.T) {
	t.Parallel()

	writer := &fakeProgressWriter{updates: make(map[uuid.UUID]int64)}
	sink := NewStoreSink(writer, nil)
	runUUID := uuid.New()
	runID := progress.UUIDToBytes(runUUID)
	now := time.Now()

	batch := []progress.Event{
		{RunID: runID, Stage: progress.StageRunStart, TS: now},
		{RunID: runID, Stage: progress.StageRunHB, Unique: 1200, TS: now.Add(time.Second)},
		{RunID: runID, Stage: progress.StageRunHB, Unique: 2400, TS: now.Add(2 * time.Second)},
		{
			RunID:   runID,
			Stage:   progress.StagePageDone,
			Query:   "language:Go stars:>10000",
			Records: 100,
			Unique:  97,
			TS:      now.Add(3 * time.Second),
		},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))
	require.Equal(t, 1, writer.calls)
	require.Equal(t, int64(2400), writer.updates[runUUID])
}

func TestStoreSinkSkipsBatchesWithoutHeartbeats(t *testing.T) {
	t.Parallel()

	writer := &fakeProgressWriter{updates: make(map[uuid.UUID]int64)}
	sink := NewStoreSink(writer, nil)
	runID := progress.UUIDToBytes(uuid.New())

	batch := []progress.Event{
		{RunID: runID, Stage: progress.StageRunDone, Outcome: progress.OutcomeSuccess, Unique: 5000, TS: time.Now()},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))
	require.Zero(t, writer.calls)
}

func TestStoreSinkPropagatesWriterError(t *testing.T) {
	t.Parallel()

	writer := &fakeProgressWriter{err: errors.New("connection reset")}
	sink := NewStoreSink(writer, nil)
	runID := progress.UUIDToBytes(uuid.New())

	batch := []progress.Event{
		{RunID: runID, Stage: progress.StageRunHB, Unique: 10, TS: time.Now()},
	}

	err := sink.Consume(context.Background(), batch)
	require.Error(t, err)
	require.Contains(t, err.Error(), "update run progress")
}

func TestStoreSinkNilWriterIsNoop(t *testing.T) {
	t.Parallel()

	sink := NewStoreSink(nil, nil)
	runID := progress.UUIDToBytes(uuid.New())
	batch := []progress.Event{
		{RunID: runID, Stage: progress.StageRunHB, Unique: 10, TS: time.Now()},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))
}

type fakeProgressWriter struct {
	updates map[uuid.UUID]int64
	calls   int
	err     error
}

func (f *fakeProgressWriter) UpdateRunProgress(_ context.Context, runID uuid.UUID, fetched int64) error {
	if f.err != nil {
		return f.err
	}
	f.calls++
	if f.updates != nil {
		f.updates[runID] = fetched
	}
	return nil
}
