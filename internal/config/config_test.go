package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "starcrawler.yaml")
	configYAML := `
application:
  service_name: starcrawler-test
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
logging:
  development: false
github:
  token: ghp_test
  requests_per_second: 1.5
crawler:
  languages: ["Go", "Rust"]
  target_count: 500
  concurrency: 4
database:
  backend: sqlite
  sqlite_path: data/test.db
storage:
  backend: local
  base_dir: data/exports
pubsub:
  enabled: true
  project_id: proj
  topic: batches
export:
  limit: 100
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Application.ServiceName != "starcrawler-test" {
		t.Fatalf("expected service name override, got %q", cfg.Application.ServiceName)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Server.RequestTimeout != 60*time.Second {
		t.Fatalf("expected default request timeout, got %v", cfg.Server.RequestTimeout)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Logging.Development {
		t.Fatalf("expected logging development override to false")
	}
	if cfg.GitHub.Token != "ghp_test" || cfg.GitHub.RequestsPerSecond != 1.5 {
		t.Fatalf("expected github overrides, got %+v", cfg.GitHub)
	}
	if cfg.GitHub.Endpoint != "https://api.github.com/graphql" {
		t.Fatalf("expected default endpoint, got %q", cfg.GitHub.Endpoint)
	}
	if len(cfg.Crawler.Languages) != 2 || cfg.Crawler.Languages[0] != "Go" {
		t.Fatalf("expected crawler language override, got %v", cfg.Crawler.Languages)
	}
	if cfg.Crawler.TargetCount != 500 || cfg.Crawler.MaxConcurrency != 4 {
		t.Fatalf("expected crawler overrides to apply")
	}
	if cfg.Crawler.PageSize != 100 || cfg.Crawler.MaxAttempts != 5 {
		t.Fatalf("expected crawler defaults to survive overrides")
	}
	if cfg.Database.Backend != DatabaseBackendSQLite || cfg.Database.SQLitePath != "data/test.db" {
		t.Fatalf("expected sqlite database config, got %+v", cfg.Database)
	}
	if cfg.Storage.Backend != StorageBackendLocal || cfg.Storage.BaseDir != "data/exports" {
		t.Fatalf("expected local storage config, got %+v", cfg.Storage)
	}
	if !cfg.PubSub.Enabled || cfg.PubSub.ProjectID != "proj" || cfg.PubSub.Topic != "batches" {
		t.Fatalf("expected pubsub config, got %+v", cfg.PubSub)
	}
	if cfg.Export.Limit != 100 || cfg.Export.Path != "exports/top-repos.csv" {
		t.Fatalf("expected export config, got %+v", cfg.Export)
	}
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "starcrawler.yaml")
	if err := os.WriteFile(path, []byte("application:\n  version: test\n"), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if len(cfg.Crawler.Languages) != 20 {
		t.Fatalf("expected 20 default languages, got %d", len(cfg.Crawler.Languages))
	}
	if len(cfg.Crawler.StarRanges) != 8 || len(cfg.Crawler.CreatedWindows) != 10 {
		t.Fatalf("expected default crawl grid, got %d ranges and %d windows",
			len(cfg.Crawler.StarRanges), len(cfg.Crawler.CreatedWindows))
	}
	if cfg.Crawler.TargetCount != 100000 || cfg.Crawler.MaxConcurrency != 20 {
		t.Fatalf("expected default target and concurrency, got %+v", cfg.Crawler)
	}
	if cfg.Crawler.RateLimitCooldown != time.Minute || cfg.Crawler.BaseDelay != time.Second {
		t.Fatalf("expected default crawl delays, got %+v", cfg.Crawler)
	}
	if cfg.Database.Backend != DatabaseBackendMemory {
		t.Fatalf("expected memory database backend, got %q", cfg.Database.Backend)
	}
	if cfg.Storage.Backend != StorageBackendMemory {
		t.Fatalf("expected memory storage backend, got %q", cfg.Storage.Backend)
	}
	if cfg.PubSub.Enabled {
		t.Fatalf("expected pubsub disabled by default")
	}
	if !cfg.Logging.Development {
		t.Fatalf("expected development logging by default")
	}
	if cfg.Application.Version != "test" {
		t.Fatalf("expected file override to merge over defaults, got %q", cfg.Application.Version)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("STARCRAWLER_SERVER_PORT", "7070")
	t.Setenv("STARCRAWLER_GITHUB_TOKEN", "ghp_env")
	t.Setenv("STARCRAWLER_DATABASE_BACKEND", "sqlite")
	t.Setenv("STARCRAWLER_DATABASE_SQLITE_PATH", "env.db")

	dir := t.TempDir()
	path := filepath.Join(dir, "starcrawler.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 7070 {
		t.Fatalf("expected env to win over file, got %d", cfg.Server.Port)
	}
	if cfg.GitHub.Token != "ghp_env" {
		t.Fatalf("expected env token, got %q", cfg.GitHub.Token)
	}
	if cfg.Database.Backend != DatabaseBackendSQLite || cfg.Database.SQLitePath != "env.db" {
		t.Fatalf("expected env database config, got %+v", cfg.Database)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "read config") {
		t.Fatalf("expected read config error, got %v", err)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:   ServerConfig{Port: 8080, RequestTimeout: time.Minute},
		GitHub:   GitHubConfig{RequestTimeout: 30 * time.Second},
		Database: DatabaseConfig{Backend: DatabaseBackendMemory},
		Storage:  StorageConfig{Backend: StorageBackendMemory},
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid port",
			cfg: func() Config {
				c := base
				c.Server.Port = 0
				return c
			}(),
			want: "server.port",
		},
		{
			name: "invalid request timeout",
			cfg: func() Config {
				c := base
				c.Server.RequestTimeout = 0
				return c
			}(),
			want: "server.request_timeout",
		},
		{
			name: "auth missing api key",
			cfg: func() Config {
				c := base
				c.Auth.Enabled = true
				return c
			}(),
			want: "auth.api_key",
		},
		{
			name: "invalid github timeout",
			cfg: func() Config {
				c := base
				c.GitHub.RequestTimeout = 0
				return c
			}(),
			want: "github.request_timeout",
		},
		{
			name: "negative github rate",
			cfg: func() Config {
				c := base
				c.GitHub.RequestsPerSecond = -1
				return c
			}(),
			want: "github.requests_per_second",
		},
		{
			name: "postgres without dsn",
			cfg: func() Config {
				c := base
				c.Database.Backend = DatabaseBackendPostgres
				return c
			}(),
			want: "database.dsn",
		},
		{
			name: "sqlite without path",
			cfg: func() Config {
				c := base
				c.Database.Backend = DatabaseBackendSQLite
				return c
			}(),
			want: "database.sqlite_path",
		},
		{
			name: "unknown database backend",
			cfg: func() Config {
				c := base
				c.Database.Backend = "etcd"
				return c
			}(),
			want: "database.backend",
		},
		{
			name: "gcs without bucket",
			cfg: func() Config {
				c := base
				c.Storage.Backend = StorageBackendGCS
				return c
			}(),
			want: "storage.gcs_bucket",
		},
		{
			name: "unknown storage backend",
			cfg: func() Config {
				c := base
				c.Storage.Backend = "s3"
				return c
			}(),
			want: "storage.backend",
		},
		{
			name: "pubsub missing project",
			cfg: func() Config {
				c := base
				c.PubSub.Enabled = true
				c.PubSub.Topic = "batches"
				return c
			}(),
			want: "pubsub.project_id",
		},
		{
			name: "pubsub missing topic",
			cfg: func() Config {
				c := base
				c.PubSub.Enabled = true
				c.PubSub.ProjectID = "proj"
				return c
			}(),
			want: "pubsub.topic",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
