// Package app assembles and owns the long-lived services behind every
// starcrawler command. It acts as the dependency injection container: the
// configured database backend, blob store, batch publisher, progress hub, and
// exporter are built once at startup and handed to the commands that need
// them. Construction fails fast so a misconfigured backend aborts the process
// before any crawl work starts.
package app

import (
	"context"
	"fmt"
	"time"

	gcstorage "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/oss-observatory/starcrawler/internal/api"
	"github.com/oss-observatory/starcrawler/internal/config"
	"github.com/oss-observatory/starcrawler/internal/crawler"
	"github.com/oss-observatory/starcrawler/internal/export"
	sha256hash "github.com/oss-observatory/starcrawler/internal/hash/sha256"
	"github.com/oss-observatory/starcrawler/internal/logging"
	"github.com/oss-observatory/starcrawler/internal/progress"
	"github.com/oss-observatory/starcrawler/internal/progress/sinks"
	memorypublisher "github.com/oss-observatory/starcrawler/internal/publisher/memory"
	"github.com/oss-observatory/starcrawler/internal/publisher/pubsub"
	"github.com/oss-observatory/starcrawler/internal/storage/gcs"
	"github.com/oss-observatory/starcrawler/internal/storage/local"
	memorystorage "github.com/oss-observatory/starcrawler/internal/storage/memory"
	"github.com/oss-observatory/starcrawler/internal/storage/postgres"
	"github.com/oss-observatory/starcrawler/internal/storage/sqlite"
	"github.com/oss-observatory/starcrawler/internal/store"
	"github.com/oss-observatory/starcrawler/internal/telemetry"
)

const closeTimeout = 10 * time.Second

// Store is the persistence surface shared by every database backend: the
// delivery sink for harvested batches, the run audit trail, and the star
// count snapshots behind exports.
type Store interface {
	crawler.Sink
	store.RunRepository
	store.StarCountReader
}

// App holds the shared, long-lived services for one process.
type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	store     Store
	blobs     crawler.BlobStore
	publisher crawler.Publisher
	hub       *progress.Hub
	snapshot  *sinks.SnapshotSink
	exporter  *export.Exporter

	closers []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

// New builds the application services from the resolved configuration. The
// context bounds backend handshakes (database ping, client construction).
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	return build(ctx, cfg, prometheus.DefaultRegisterer)
}

func build(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Application.ServiceName, cfg.Application.Version)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(logger)

	tp, _, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:   cfg.Application.ServiceName,
		Version:       cfg.Application.Version,
		ProjectID:     cfg.Application.ProjectID,
		ProjectNumber: cfg.Application.ProjectNumber,
		Region:        cfg.Application.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	a := &App{cfg: cfg, logger: logger}
	if tp != nil {
		// Registered first so it closes last; spans recorded while other
		// backends shut down still get flushed.
		a.addCloser("tracer provider", func() error {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			defer cancel()
			return tp.Shutdown(shutdownCtx)
		})
	}
	if err := a.initStore(ctx); err != nil {
		a.closeAll()
		return nil, err
	}
	if err := a.initBlobs(ctx); err != nil {
		a.closeAll()
		return nil, err
	}
	if err := a.initPublisher(ctx); err != nil {
		a.closeAll()
		return nil, err
	}
	if err := a.initProgress(reg); err != nil {
		a.closeAll()
		return nil, err
	}
	a.exporter = export.New(a.store, sha256hash.New(), logger.Named("export"))

	logger.Info("application services initialized",
		zap.String("database", cfg.Database.Backend),
		zap.String("storage", cfg.Storage.Backend),
		zap.Bool("pubsub", cfg.PubSub.Enabled),
	)
	return a, nil
}

func (a *App) initStore(ctx context.Context) error {
	switch a.cfg.Database.Backend {
	case config.DatabaseBackendPostgres:
		st, err := postgres.New(ctx, postgres.Config{
			DSN:             a.cfg.Database.DSN,
			MaxConns:        a.cfg.Database.MaxConns,
			MinConns:        a.cfg.Database.MinConns,
			MaxConnLifetime: a.cfg.Database.MaxConnLifetime,
		})
		if err != nil {
			return fmt.Errorf("init postgres store: %w", err)
		}
		a.store = st
		a.addCloser("postgres store", func() error { st.Close(); return nil })
	case config.DatabaseBackendSQLite:
		st, err := sqlite.New(ctx, sqlite.Config{Path: a.cfg.Database.SQLitePath})
		if err != nil {
			return fmt.Errorf("init sqlite store: %w", err)
		}
		a.store = st
		a.addCloser("sqlite store", st.Close)
	case config.DatabaseBackendMemory:
		a.store = memorystorage.NewStore()
	default:
		return fmt.Errorf("unknown database backend: %s", a.cfg.Database.Backend)
	}
	return nil
}

func (a *App) initBlobs(ctx context.Context) error {
	switch a.cfg.Storage.Backend {
	case config.StorageBackendGCS:
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("init gcs client: %w", err)
		}
		blobs, err := gcs.New(client, gcs.Config{
			Bucket: a.cfg.Storage.GCSBucket,
			Prefix: a.cfg.Storage.Prefix,
		})
		if err != nil {
			if closeErr := client.Close(); closeErr != nil {
				a.logger.Warn("close gcs client failed", zap.Error(closeErr))
			}
			return fmt.Errorf("init gcs blob store: %w", err)
		}
		a.blobs = blobs
		a.addCloser("gcs client", client.Close)
	case config.StorageBackendLocal:
		blobs, err := local.New(local.Config{BaseDir: a.cfg.Storage.BaseDir})
		if err != nil {
			return fmt.Errorf("init local blob store: %w", err)
		}
		a.blobs = blobs
	case config.StorageBackendMemory:
		a.blobs = memorystorage.NewBlobStore()
	default:
		return fmt.Errorf("unknown storage backend: %s", a.cfg.Storage.Backend)
	}
	return nil
}

func (a *App) initPublisher(ctx context.Context) error {
	if a.cfg.PubSub.Enabled {
		pub, err := pubsub.New(ctx, pubsub.Config{
			ProjectID: a.cfg.PubSub.ProjectID,
			Topic:     a.cfg.PubSub.Topic,
		})
		if err != nil {
			return fmt.Errorf("init pubsub publisher: %w", err)
		}
		a.publisher = pub
		a.addCloser("pubsub publisher", pub.Stop)
		return nil
	}
	a.publisher = memorypublisher.New()
	return nil
}

func (a *App) initProgress(reg prometheus.Registerer) error {
	promSink, err := sinks.NewPrometheusSink(reg)
	if err != nil {
		return fmt.Errorf("init prometheus sink: %w", err)
	}
	a.snapshot = sinks.NewSnapshotSink(a.cfg.Progress.SnapshotCapacity)
	sinkList := []progress.Sink{
		sinks.NewLogSink(a.logger.Named("progress")),
		promSink,
		a.snapshot,
	}
	if writer, ok := a.store.(store.RunProgressWriter); ok {
		sinkList = append(sinkList, sinks.NewStoreSink(writer, a.logger.Named("progress")))
	}
	a.hub = progress.NewHub(progress.Config{
		BufferSize:     a.cfg.Progress.BufferSize,
		MaxBatchEvents: a.cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   a.cfg.Progress.MaxBatchWait,
		SinkTimeout:    a.cfg.Progress.SinkTimeout,
		Logger:         a.logger.Named("progress"),
	}, sinkList...)
	return nil
}

func (a *App) addCloser(name string, close func() error) {
	a.closers = append(a.closers, namedCloser{name: name, close: close})
}

// GetConfig returns the resolved application configuration.
func (a *App) GetConfig() *config.Config {
	return a.cfg
}

// GetLogger returns the shared zap logger.
func (a *App) GetLogger() *zap.Logger {
	return a.logger
}

// GetStore returns the configured persistence backend.
func (a *App) GetStore() Store {
	return a.store
}

// GetBlobs returns the configured blob store for export artifacts.
func (a *App) GetBlobs() crawler.BlobStore {
	return a.blobs
}

// GetPublisher returns the batch notification publisher.
func (a *App) GetPublisher() crawler.Publisher {
	return a.publisher
}

// GetHub returns the progress hub that fans run events out to the sinks.
func (a *App) GetHub() *progress.Hub {
	return a.hub
}

// GetSnapshot returns the in-memory run snapshot sink backing /v1/status.
func (a *App) GetSnapshot() *sinks.SnapshotSink {
	return a.snapshot
}

// GetExporter returns the star count report renderer.
func (a *App) GetExporter() *export.Exporter {
	return a.exporter
}

// GetAPIServer assembles the HTTP API over the configured services.
func (a *App) GetAPIServer() *api.Server {
	return api.NewServer(a.store, a.exporter, a.snapshot, *a.cfg, a.logger.Named("api"))
}

// Close flushes progress delivery and releases every backend client. Failures
// are logged rather than returned so shutdown always completes.
func (a *App) Close() {
	if a == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
		if drops := a.hub.Drops(); drops > 0 {
			a.logger.Warn("progress events were dropped", zap.Int64("dropped", drops))
		}
	}
	a.closeAll()
	if err := a.logger.Sync(); err != nil {
		// Syncing stderr fails on some platforms; nothing useful to do.
		_ = err
	}
}

func (a *App) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			a.logger.Warn("close failed", zap.String("component", c.name), zap.Error(err))
		}
	}
	a.closers = nil
}
