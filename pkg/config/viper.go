// Package config bootstraps the Viper instance backing application
// configuration. It seeds defaults, binds environment variables, and
// locates the optional config file; the typed view of the settings
// lives in internal/config.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// SetDefaults seeds v with the built-in defaults. The crawl grid mirrors
// the dimensions the harvester was originally tuned with: 20 languages,
// 8 star ranges, and 10 creation windows, plus per-language fallbacks
// generated by the partitioner.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("application.service_name", "starcrawler")
	v.SetDefault("application.version", "dev")
	v.SetDefault("application.project_id", "")
	v.SetDefault("application.project_number", "")
	v.SetDefault("application.region", "")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", "60s")

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")

	v.SetDefault("logging.development", true)

	const defaultUA = "starcrawler/1.0 (+https://github.com/oss-observatory/starcrawler)"
	v.SetDefault("github.endpoint", "https://api.github.com/graphql")
	v.SetDefault("github.token", "")
	v.SetDefault("github.user_agent", defaultUA)
	v.SetDefault("github.request_timeout", "30s")
	v.SetDefault("github.requests_per_second", 2.0)
	v.SetDefault("github.burst", 2)

	v.SetDefault("crawler.languages", []string{
		"Python", "JavaScript", "TypeScript", "Java", "Go",
		"Rust", "C++", "C", "C#", "Ruby",
		"PHP", "Swift", "Kotlin", "Scala", "Shell",
		"HTML", "CSS", "Vue", "Dart", "R",
	})
	v.SetDefault("crawler.star_ranges", []string{
		">10000", "1000..9999", "500..999", "100..499",
		"50..99", "20..49", "10..19", "1..9",
	})
	v.SetDefault("crawler.created_windows", []string{
		"2024", "2023", "2022", "2021", "2020",
		"2019", "2018", "2017", "2016", "<2016",
	})
	v.SetDefault("crawler.target_count", 100000)
	v.SetDefault("crawler.concurrency", 20)
	v.SetDefault("crawler.page_size", 100)
	v.SetDefault("crawler.max_attempts", 5)
	v.SetDefault("crawler.base_delay", "1s")
	v.SetDefault("crawler.rate_limit_threshold", 10)
	v.SetDefault("crawler.rate_limit_cooldown", "60s")
	v.SetDefault("crawler.per_partition_page_limit", 10)
	v.SetDefault("crawler.max_run_duration", "0")
	v.SetDefault("crawler.publish_topic", "crawl-batches")

	v.SetDefault("database.backend", "memory")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_conns", 8)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "30m")
	v.SetDefault("database.sqlite_path", "data/starcrawler.db")

	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.base_dir", "data/exports")
	v.SetDefault("storage.prefix", "exports")

	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "crawl-batches")

	v.SetDefault("progress.buffer_size", 4096)
	v.SetDefault("progress.max_batch_events", 1000)
	v.SetDefault("progress.max_batch_wait", "500ms")
	v.SetDefault("progress.sink_timeout", "10s")
	v.SetDefault("progress.snapshot_capacity", 512)

	v.SetDefault("export.limit", 0)
	v.SetDefault("export.path", "exports/top-repos.csv")
}

// Bind attaches defaults, environment variables, and the optional config
// file to v. When cfgFile is empty the usual search paths are consulted
// and a missing file is not an error; defaults and environment variables
// still apply.
func Bind(v *viper.Viper, cfgFile string) error {
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("starcrawler")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/starcrawler/")
		v.AddConfigPath("$HOME/.starcrawler")
	}

	// STARCRAWLER_SERVER_PORT=9090 overrides server.port, and so on.
	v.SetEnvPrefix("STARCRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}
