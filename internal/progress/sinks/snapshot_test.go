package sinks

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/oss-observatory/starcrawler/internal/progress"
)

func TestSnapshotSinkAggregatesRun(t *testing.T) {
	t.Parallel()

	sink := NewSnapshotSink(0)
	id := uuid.New()
	runID := progress.UUIDToBytes(id)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	batch := []progress.Event{
		{RunID: runID, TS: start, Stage: progress.StageRunStart},
		{
			RunID:    runID,
			TS:       start.Add(2 * time.Second),
			Stage:    progress.StagePageDone,
			Query:    "language:Go stars:>10000",
			Language: "Go",
			Records:  100,
			Unique:   90,
			Dur:      300 * time.Millisecond,
		},
		{
			RunID:    runID,
			TS:       start.Add(4 * time.Second),
			Stage:    progress.StagePageDone,
			Query:    "language:Go stars:1000..9999",
			Language: "Go",
			Records:  100,
			Unique:   70,
			Dur:      250 * time.Millisecond,
		},
		{
			RunID: runID,
			TS:    start.Add(5 * time.Second),
			Stage: progress.StageUnitAbandoned,
			Query: "language:Rust stars:1..9",
			Note:  "fetch failed after 5 attempts",
		},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	snap, ok := sink.Run(id.String())
	require.True(t, ok)
	require.Equal(t, id.String(), snap.RunID)
	require.Equal(t, start, snap.StartedAt)
	require.Equal(t, start.Add(5*time.Second), snap.LastEventAt)
	require.Equal(t, int64(2), snap.Pages)
	require.Equal(t, int64(200), snap.Records)
	require.Equal(t, int64(160), snap.Unique)
	require.Equal(t, int64(1), snap.AbandonedUnits)
	require.False(t, snap.Finished)

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{
			RunID:   runID,
			TS:      start.Add(time.Minute),
			Stage:   progress.StageRunDone,
			Outcome: progress.OutcomeSuccess,
			Unique:  160,
			Dur:     time.Minute,
		},
	}))

	snap, ok = sink.Run(id.String())
	require.True(t, ok)
	require.True(t, snap.Finished)
	require.Equal(t, string(progress.OutcomeSuccess), snap.Outcome)
	require.InDelta(t, 60.0, snap.ElapsedSeconds, 1e-9)
}

func TestSnapshotSinkHeartbeatTakesMaximum(t *testing.T) {
	t.Parallel()

	sink := NewSnapshotSink(0)
	id := uuid.New()
	runID := progress.UUIDToBytes(id)
	start := time.Now()

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: start, Stage: progress.StageRunStart},
		{RunID: runID, TS: start.Add(time.Second), Stage: progress.StageRunHB, Unique: 500},
		{RunID: runID, TS: start.Add(2 * time.Second), Stage: progress.StageRunHB, Unique: 450},
	}))

	snap, ok := sink.Run(id.String())
	require.True(t, ok)
	require.Equal(t, int64(500), snap.Unique)
}

func TestSnapshotSinkEvictsFinishedRunsFirst(t *testing.T) {
	t.Parallel()

	sink := NewSnapshotSink(2)
	start := time.Now()

	finished := uuid.New()
	running := uuid.New()
	newest := uuid.New()

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: progress.UUIDToBytes(finished), TS: start, Stage: progress.StageRunStart},
		{RunID: progress.UUIDToBytes(finished), TS: start.Add(time.Second), Stage: progress.StageRunDone, Outcome: progress.OutcomeSuccess, Dur: time.Second},
		{RunID: progress.UUIDToBytes(running), TS: start.Add(2 * time.Second), Stage: progress.StageRunStart},
		{RunID: progress.UUIDToBytes(newest), TS: start.Add(3 * time.Second), Stage: progress.StageRunStart},
	}))

	_, ok := sink.Run(finished.String())
	require.False(t, ok, "finished run should have been evicted")
	_, ok = sink.Run(running.String())
	require.True(t, ok)
	_, ok = sink.Run(newest.String())
	require.True(t, ok)

	snaps := sink.Snapshot()
	require.Len(t, snaps, 2)
	require.Equal(t, newest.String(), snaps[0].RunID, "newest start should sort first")
}

func TestSnapshotSinkRejectsUnknownRunID(t *testing.T) {
	t.Parallel()

	sink := NewSnapshotSink(0)
	_, ok := sink.Run("not-a-uuid")
	require.False(t, ok)
	_, ok = sink.Run(uuid.NewString())
	require.False(t, ok)
}

func TestSnapshotSinkCapacityUnderLoad(t *testing.T) {
	t.Parallel()

	sink := NewSnapshotSink(4)
	start := time.Now()
	for i := 0; i < 20; i++ {
		id := progress.UUIDToBytes(uuid.New())
		require.NoError(t, sink.Consume(context.Background(), []progress.Event{
			{RunID: id, TS: start.Add(time.Duration(i) * time.Second), Stage: progress.StageRunStart},
			{RunID: id, TS: start.Add(time.Duration(i)*time.Second + 500*time.Millisecond), Stage: progress.StageRunDone, Outcome: progress.OutcomeSuccess, Dur: 500 * time.Millisecond},
		}))
	}

	snaps := sink.Snapshot()
	require.Len(t, snaps, 4)
	for i, snap := range snaps {
		require.True(t, snap.Finished, fmt.Sprintf("snapshot %d should be finished", i))
	}
}
