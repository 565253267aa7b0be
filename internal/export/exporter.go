// Package export renders star-count reports from the persisted snapshots.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/oss-observatory/starcrawler/internal/crawler"
	"github.com/oss-observatory/starcrawler/internal/store"
)

var csvHeader = []string{"node_id", "name_with_owner", "owner_login", "name", "star_count", "recorded_at"}

// Exporter writes the latest star count per repository, most starred first.
type Exporter struct {
	reader store.StarCountReader
	hasher crawler.Hasher
	logger *zap.Logger
}

// New constructs an Exporter. The hasher fingerprints uploaded artifacts.
func New(reader store.StarCountReader, hasher crawler.Hasher, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{reader: reader, hasher: hasher, logger: logger}
}

// WriteCSV streams the report to w and returns the number of data rows.
// limit <= 0 exports every repository.
func (e *Exporter) WriteCSV(ctx context.Context, w io.Writer, limit int) (int, error) {
	counts, err := e.reader.LatestStarCounts(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("load star counts: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return 0, fmt.Errorf("write csv header: %w", err)
	}
	for _, sc := range counts {
		row := []string{
			sc.NodeID,
			sc.NameWithOwner,
			sc.OwnerLogin,
			sc.Name,
			strconv.Itoa(sc.StarCount),
			sc.RecordedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return 0, fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("flush csv: %w", err)
	}

	e.logger.Info("export rendered", zap.Int("rows", len(counts)))
	return len(counts), nil
}

// ExportToBlob renders the report and uploads it, returning the artifact URI
// and the number of data rows. The SHA-256 of the rendered bytes is logged so
// the artifact can be verified after download.
func (e *Exporter) ExportToBlob(ctx context.Context, blobs crawler.BlobStore, path string, limit int) (string, int, error) {
	var buf bytes.Buffer
	rows, err := e.WriteCSV(ctx, &buf, limit)
	if err != nil {
		return "", 0, err
	}
	digest := ""
	if e.hasher != nil {
		if digest, err = e.hasher.Hash(buf.Bytes()); err != nil {
			return "", 0, fmt.Errorf("hash export: %w", err)
		}
	}
	uri, err := blobs.PutObject(ctx, path, "text/csv", &buf)
	if err != nil {
		return "", 0, fmt.Errorf("upload export: %w", err)
	}
	e.logger.Info("export uploaded",
		zap.String("uri", uri),
		zap.Int("rows", rows),
		zap.String("sha256", digest),
	)
	return uri, rows, nil
}
