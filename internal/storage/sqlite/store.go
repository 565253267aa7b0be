// Package sqlite provides a file-backed persistence layer for single-node
// deployments. It mirrors the Postgres store's surface over modernc.org/sqlite
// so the two are interchangeable behind the sink and reader interfaces.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/oss-observatory/starcrawler/internal/crawler"
	"github.com/oss-observatory/starcrawler/internal/store"
)

//go:embed schema.sql
var schemaSQL string

// Config controls the SQLite store.
type Config struct {
	Path string
}

// Store persists harvested records, star snapshots, and the run audit trail
// in a local SQLite file.
type Store struct {
	db   *sql.DB
	path string
}

// New opens the database file, creating parent directories as needed, and
// applies the schema.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite.path is required")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &Store{db: db, path: cfg.Path}
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// EnsureSchema creates the tables and view if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Accept persists a single record.
func (s *Store) Accept(ctx context.Context, runID string, record crawler.Record) error {
	return s.AcceptBatch(ctx, runID, []crawler.Record{record})
}

// AcceptBatch upserts repository rows and appends star snapshots in one
// transaction. Star history is append-only.
func (s *Store) AcceptBatch(ctx context.Context, _ string, records []crawler.Record) error {
	if len(records) == 0 {
		return nil
	}
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	upsert, err := tx.PrepareContext(ctx, `
		INSERT INTO repositories
			(node_id, name_with_owner, name, owner_login, description,
			 primary_language, is_private, created_at, updated_at, crawled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(node_id) DO UPDATE SET
			name_with_owner  = excluded.name_with_owner,
			name             = excluded.name,
			owner_login      = excluded.owner_login,
			description      = excluded.description,
			primary_language = excluded.primary_language,
			is_private       = excluded.is_private,
			updated_at       = excluded.updated_at,
			crawled_at       = excluded.crawled_at
	`)
	if err != nil {
		return fmt.Errorf("prepare repository upsert: %w", err)
	}
	defer upsert.Close()

	snapshot, err := tx.PrepareContext(ctx, `
		INSERT INTO repository_stars (node_id, star_count, recorded_at)
		VALUES (?, ?, ?)
		ON CONFLICT DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("prepare star snapshot: %w", err)
	}
	defer snapshot.Close()

	for _, rec := range records {
		if _, err := upsert.ExecContext(ctx,
			rec.ID,
			rec.NameWithOwner,
			rec.Name,
			rec.Owner,
			nullIfEmpty(rec.Description),
			nullIfEmpty(rec.Language),
			rec.Private,
			nullIfZeroTime(rec.CreatedAt),
			nullIfZeroTime(rec.UpdatedAt),
			now,
		); err != nil {
			return fmt.Errorf("store record %s: %w", rec.ID, err)
		}
		if _, err := snapshot.ExecContext(ctx, rec.ID, rec.Stars, now); err != nil {
			return fmt.Errorf("store star snapshot %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit record batch: %w", err)
	}
	return nil
}

// RecordRunStart opens the audit row for a run.
func (s *Store) RecordRunStart(ctx context.Context, runID string, startedAt time.Time) error {
	query := `INSERT INTO crawl_runs (id, started_at, status) VALUES (?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, runID, startedAt, store.RunRunning); err != nil {
		return fmt.Errorf("insert crawl run: %w", err)
	}
	return nil
}

// RecordRunFinish closes the audit row with the final status and totals.
func (s *Store) RecordRunFinish(ctx context.Context, runID string, status crawler.RunStatus, totalUnique int, errorMessage string) error {
	query := `
		UPDATE crawl_runs
		SET finished_at = ?, status = ?, repos_fetched = ?, error_message = NULLIF(?, '')
		WHERE id = ?`
	res, err := s.db.ExecContext(ctx, query, time.Now().UTC(), string(status), totalUnique, errorMessage, runID)
	if err != nil {
		return fmt.Errorf("finish crawl run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish crawl run: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("finish crawl run: run %s not found", runID)
	}
	return nil
}

// UpdateRunProgress refreshes repos_fetched for a run that is still open.
// Terminal runs are left untouched so the final count always comes from
// RecordRunFinish.
func (s *Store) UpdateRunProgress(ctx context.Context, runID uuid.UUID, reposFetched int64) error {
	query := `UPDATE crawl_runs SET repos_fetched = ? WHERE id = ? AND status = ?`
	if _, err := s.db.ExecContext(ctx, query, reposFetched, runID.String(), store.RunRunning); err != nil {
		return fmt.Errorf("update run progress: %w", err)
	}
	return nil
}

// GetRun retrieves a single run by its ID.
func (s *Store) GetRun(ctx context.Context, runID uuid.UUID) (store.CrawlRun, error) {
	query := `
		SELECT id, started_at, finished_at, status, repos_fetched, error_message
		FROM crawl_runs
		WHERE id = ?`
	var run store.CrawlRun
	err := s.db.QueryRowContext(ctx, query, runID.String()).Scan(
		&run.ID,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Status,
		&run.ReposFetched,
		&run.ErrorMessage,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.CrawlRun{}, store.ErrNotFound
		}
		return store.CrawlRun{}, fmt.Errorf("get crawl run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves runs newest first, with optional status filtering.
func (s *Store) ListRuns(ctx context.Context, status *store.RunStatus, limit, offset int) ([]store.CrawlRun, error) {
	query := `
		SELECT id, started_at, finished_at, status, repos_fetched, error_message
		FROM crawl_runs
		WHERE (? IS NULL OR status = ?)
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?`
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, query, status, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list crawl runs: %w", err)
	}
	defer rows.Close()

	var runs []store.CrawlRun
	for rows.Next() {
		var run store.CrawlRun
		if err := rows.Scan(
			&run.ID,
			&run.StartedAt,
			&run.FinishedAt,
			&run.Status,
			&run.ReposFetched,
			&run.ErrorMessage,
		); err != nil {
			return nil, fmt.Errorf("scan crawl run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// LatestStarCounts reads the most recent snapshot per repository, most
// starred first. limit <= 0 returns every row.
func (s *Store) LatestStarCounts(ctx context.Context, limit int) ([]store.StarCount, error) {
	query := `
		SELECT node_id, name_with_owner, owner_login, name, star_count, recorded_at
		FROM latest_star_counts
		ORDER BY star_count DESC
		LIMIT ?`
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query latest star counts: %w", err)
	}
	defer rows.Close()

	var counts []store.StarCount
	for rows.Next() {
		var sc store.StarCount
		if err := rows.Scan(
			&sc.NodeID,
			&sc.NameWithOwner,
			&sc.OwnerLogin,
			&sc.Name,
			&sc.StarCount,
			&sc.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("scan star count: %w", err)
		}
		counts = append(counts, sc)
	}
	return counts, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullIfZeroTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
