package sinks

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/oss-observatory/starcrawler/internal/progress"
	"github.com/oss-observatory/starcrawler/internal/store"
)

// StoreSink pushes heartbeat progress into the run audit trail so operators
// can watch repos_fetched climb without waiting for the run to finish. It
// collapses each batch to one write per run to reduce write amplification.
type StoreSink struct {
	writer store.RunProgressWriter
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided writer.
func NewStoreSink(writer store.RunProgressWriter, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{writer: writer, logger: logger}
}

// Consume folds heartbeat events into the highest cumulative unique count
// per run and forwards one update each. Terminal events are ignored; the
// delivery path records final counts with the run status.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.writer == nil {
		return nil
	}
	progressByRun := make(map[uuid.UUID]int64)
	for _, evt := range batch {
		if evt.Stage != progress.StageRunHB {
			continue
		}
		id := evt.RunUUID()
		if evt.Unique > progressByRun[id] {
			progressByRun[id] = evt.Unique
		}
	}
	for id, fetched := range progressByRun {
		if err := s.writer.UpdateRunProgress(ctx, id, fetched); err != nil {
			return fmt.Errorf("update run progress: %w", err)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
