package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/oss-observatory/starcrawler/internal/config"
)

func memoryConfig() *config.Config {
	return &config.Config{
		Application: config.ApplicationConfig{ServiceName: "starcrawler", Version: "test"},
		Server:      config.ServerConfig{Port: 8080, RequestTimeout: time.Minute},
		Logging:     config.LoggingConfig{Development: true},
		Database:    config.DatabaseConfig{Backend: config.DatabaseBackendMemory},
		Storage:     config.StorageConfig{Backend: config.StorageBackendMemory},
		Progress: config.ProgressConfig{
			BufferSize:       64,
			MaxBatchEvents:   16,
			MaxBatchWait:     10 * time.Millisecond,
			SinkTimeout:      time.Second,
			SnapshotCapacity: 8,
		},
	}
}

func TestNewWiresMemoryBackends(t *testing.T) {
	a, err := build(context.Background(), memoryConfig(), prometheus.NewRegistry())
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.GetLogger())
	require.NotNil(t, a.GetStore())
	require.NotNil(t, a.GetBlobs())
	require.NotNil(t, a.GetPublisher())
	require.NotNil(t, a.GetHub())
	require.NotNil(t, a.GetSnapshot())
	require.NotNil(t, a.GetExporter())
	require.Equal(t, config.DatabaseBackendMemory, a.GetConfig().Database.Backend)
}

func TestNewWiresSQLiteBackend(t *testing.T) {
	cfg := memoryConfig()
	cfg.Database.Backend = config.DatabaseBackendSQLite
	cfg.Database.SQLitePath = filepath.Join(t.TempDir(), "test.db")

	a, err := build(context.Background(), cfg, prometheus.NewRegistry())
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.GetStore())
}

func TestNewWiresLocalBlobBackend(t *testing.T) {
	cfg := memoryConfig()
	cfg.Storage.Backend = config.StorageBackendLocal
	cfg.Storage.BaseDir = t.TempDir()

	a, err := build(context.Background(), cfg, prometheus.NewRegistry())
	require.NoError(t, err)
	defer a.Close()

	uri, err := a.GetBlobs().PutObject(context.Background(), "probe.txt", "text/plain", strings.NewReader("probe"))
	require.NoError(t, err)
	require.Contains(t, uri, "file://")
}

func TestNewRejectsUnknownDatabaseBackend(t *testing.T) {
	cfg := memoryConfig()
	cfg.Database.Backend = "etcd"

	_, err := build(context.Background(), cfg, prometheus.NewRegistry())
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown database backend")
}

func TestNewRejectsUnknownStorageBackend(t *testing.T) {
	cfg := memoryConfig()
	cfg.Storage.Backend = "s3"

	_, err := build(context.Background(), cfg, prometheus.NewRegistry())
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown storage backend")
}

func TestGetAPIServerServesHealth(t *testing.T) {
	a, err := build(context.Background(), memoryConfig(), prometheus.NewRegistry())
	require.NoError(t, err)
	defer a.Close()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	a.GetAPIServer().Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCloseIsIdempotent(t *testing.T) {
	a, err := build(context.Background(), memoryConfig(), prometheus.NewRegistry())
	require.NoError(t, err)

	a.Close()
	a.Close()
}
