// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oss-observatory/starcrawler/internal/crawler"
	"github.com/oss-observatory/starcrawler/internal/store"
)

//go:embed schema.sql
var schemaSQL string

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Close()
}

// Store persists harvested records, star snapshots, and the run audit trail
// in Postgres. It implements the record sink and the read interfaces the
// status API and exporter build on.
type Store struct {
	pool pool
}

// New connects a store using the provided config and applies the schema.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &Store{pool: p}
	if err := s.EnsureSchema(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: p}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the tables and view if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

const upsertRepositorySQL = `
INSERT INTO repositories
	(node_id, name_with_owner, name, owner_login, description,
	 primary_language, is_private, created_at, updated_at, crawled_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (node_id) DO UPDATE SET
	name_with_owner  = EXCLUDED.name_with_owner,
	name             = EXCLUDED.name,
	owner_login      = EXCLUDED.owner_login,
	description      = EXCLUDED.description,
	primary_language = EXCLUDED.primary_language,
	is_private       = EXCLUDED.is_private,
	updated_at       = EXCLUDED.updated_at,
	crawled_at       = EXCLUDED.crawled_at`

const insertStarSnapshotSQL = `
INSERT INTO repository_stars (node_id, star_count, recorded_at)
VALUES ($1, $2, $3)
ON CONFLICT DO NOTHING`

// Accept persists a single record.
func (s *Store) Accept(ctx context.Context, runID string, record crawler.Record) error {
	return s.AcceptBatch(ctx, runID, []crawler.Record{record})
}

// AcceptBatch upserts repository rows and appends star snapshots in one
// round trip. Star history is append-only; existing snapshots are never
// modified.
func (s *Store) AcceptBatch(ctx context.Context, _ string, records []crawler.Record) error {
	if len(records) == 0 {
		return nil
	}
	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(upsertRepositorySQL,
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
		)
	}
	for _, rec := range records {
		batch.Queue(insertStarSnapshotSQL, rec.ID, rec.Stars, now)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("store record batch: %w", err)
		}
	}
	return nil
}

// RecordRunStart opens the audit row for a run.
func (s *Store) RecordRunStart(ctx context.Context, runID string, startedAt time.Time) error {
	query := `
		INSERT INTO crawl_runs (id, started_at, status)
		VALUES ($1, $2, $3)`
	if _, err := s.pool.Exec(ctx, query, runID, startedAt, store.RunRunning); err != nil {
		return fmt.Errorf("insert crawl run: %w", err)
	}
	return nil
}

// RecordRunFinish closes the audit row with the final status and totals.
func (s *Store) RecordRunFinish(ctx context.Context, runID string, status crawler.RunStatus, totalUnique int, errorMessage string) error {
	query := `
		UPDATE crawl_runs
		SET finished_at = $2, status = $3, repos_fetched = $4, error_message = NULLIF($5, '')
		WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, runID, time.Now().UTC(), string(status), totalUnique, errorMessage)
	if err != nil {
		return fmt.Errorf("finish crawl run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finish crawl run: run %s not found", runID)
	}
	return nil
}

// UpdateRunProgress refreshes repos_fetched for a run that is still open.
// Terminal runs are left untouched so the final count always comes from
// RecordRunFinish.
func (s *Store) UpdateRunProgress(ctx context.Context, runID uuid.UUID, reposFetched int64) error {
	query := `
		UPDATE crawl_runs
		SET repos_fetched = $2
		WHERE id = $1 AND status = $3`
	if _, err := s.pool.Exec(ctx, query, runID, reposFetched, store.RunRunning); err != nil {
		return fmt.Errorf("update run progress: %w", err)
	}
	return nil
}

// GetRun retrieves a single run by its ID.
func (s *Store) GetRun(ctx context.Context, runID uuid.UUID) (store.CrawlRun, error) {
	query := `
		SELECT id, started_at, finished_at, status, repos_fetched, error_message
		FROM crawl_runs
		WHERE id = $1`
	var run store.CrawlRun
	err := s.pool.QueryRow(ctx, query, runID).Scan(
		&run.ID,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Status,
		&run.ReposFetched,
		&run.ErrorMessage,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
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
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3`
	rows, err := s.pool.Query(ctx, query, status, limit, offset)
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
		LIMIT $1`
	var limitArg any
	if limit > 0 {
		limitArg = limit
	}
	rows, err := s.pool.Query(ctx, query, limitArg)
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
