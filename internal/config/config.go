// Package config defines the typed application configuration and its
// validation rules. Values come from built-in defaults, an optional
// config file, and STARCRAWLER_-prefixed environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/oss-observatory/starcrawler/internal/crawler"
	pkgconfig "github.com/oss-observatory/starcrawler/pkg/config"
)

// Backend selectors understood by the composition root.
const (
	DatabaseBackendPostgres = "postgres"
	DatabaseBackendSQLite   = "sqlite"
	DatabaseBackendMemory   = "memory"

	StorageBackendGCS    = "gcs"
	StorageBackendLocal  = "local"
	StorageBackendMemory = "memory"
)

// Config is the root application configuration.
type Config struct {
	Application ApplicationConfig `mapstructure:"application"`
	Server      ServerConfig      `mapstructure:"server"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	GitHub      GitHubConfig      `mapstructure:"github"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Storage     StorageConfig     `mapstructure:"storage"`
	PubSub      PubSubConfig      `mapstructure:"pubsub"`
	Progress    ProgressConfig    `mapstructure:"progress"`
	Export      ExportConfig      `mapstructure:"export"`

	// Crawler is loaded separately so the harvest engine can be configured
	// without dragging in the rest of the application settings.
	Crawler crawler.Config `mapstructure:"-"`
}

// ApplicationConfig identifies the service to telemetry backends.
type ApplicationConfig struct {
	ServiceName   string `mapstructure:"service_name"`
	Version       string `mapstructure:"version"`
	ProjectID     string `mapstructure:"project_id"`
	ProjectNumber string `mapstructure:"project_number"`
	Region        string `mapstructure:"region"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AuthConfig controls API key authentication for the HTTP API.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig selects the zap logger profile.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// GitHubConfig holds credentials and transport settings for the GraphQL API.
type GitHubConfig struct {
	Token             string        `mapstructure:"token"`
	Endpoint          string        `mapstructure:"endpoint"`
	UserAgent         string        `mapstructure:"user_agent"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
}

// DatabaseConfig selects and configures the record store backend.
type DatabaseConfig struct {
	Backend         string        `mapstructure:"backend"`
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	SQLitePath      string        `mapstructure:"sqlite_path"`
}

// StorageConfig selects and configures the blob store used for exports.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	BaseDir   string `mapstructure:"base_dir"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig configures batch notifications. When disabled the service
// runs without a publisher.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ProgressConfig tunes the progress hub and its snapshot sink.
type ProgressConfig struct {
	BufferSize       int           `mapstructure:"buffer_size"`
	MaxBatchEvents   int           `mapstructure:"max_batch_events"`
	MaxBatchWait     time.Duration `mapstructure:"max_batch_wait"`
	SinkTimeout      time.Duration `mapstructure:"sink_timeout"`
	SnapshotCapacity int           `mapstructure:"snapshot_capacity"`
}

// ExportConfig holds defaults for CSV exports.
type ExportConfig struct {
	Limit int    `mapstructure:"limit"`
	Path  string `mapstructure:"path"`
}

// Load reads configuration from the optional file at path, the
// environment, and built-in defaults, then validates it.
func Load(path string) (*Config, error) {
	v := viper.New()
	if err := pkgconfig.Bind(v, path); err != nil {
		return nil, err
	}
	return FromViper(v)
}

// FromViper builds a Config from an already bound Viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	crawlCfg, err := crawler.LoadConfig(v)
	if err != nil {
		return nil, err
	}
	cfg.Crawler = crawlCfg
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks for obviously bad configuration combinations.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("server.request_timeout must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key is required when auth.enabled is true")
	}
	if c.GitHub.RequestTimeout <= 0 {
		return fmt.Errorf("github.request_timeout must be > 0")
	}
	if c.GitHub.RequestsPerSecond < 0 {
		return fmt.Errorf("github.requests_per_second must be >= 0")
	}
	switch c.Database.Backend {
	case DatabaseBackendPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres backend")
		}
	case DatabaseBackendSQLite:
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("database.sqlite_path is required for the sqlite backend")
		}
	case DatabaseBackendMemory:
	default:
		return fmt.Errorf("database.backend must be postgres, sqlite, or memory (got %q)", c.Database.Backend)
	}
	switch c.Storage.Backend {
	case StorageBackendGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs backend")
		}
	case StorageBackendLocal:
		if c.Storage.BaseDir == "" {
			return fmt.Errorf("storage.base_dir is required for the local backend")
		}
	case StorageBackendMemory:
	default:
		return fmt.Errorf("storage.backend must be gcs, local, or memory (got %q)", c.Storage.Backend)
	}
	if c.PubSub.Enabled {
		if c.PubSub.ProjectID == "" {
			return fmt.Errorf("pubsub.project_id is required when pubsub.enabled is true")
		}
		if c.PubSub.Topic == "" {
			return fmt.Errorf("pubsub.topic is required when pubsub.enabled is true")
		}
	}
	return nil
}
