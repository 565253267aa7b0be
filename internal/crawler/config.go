package crawler

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// searchResultCap is the hard ceiling the remote search API places on any
// single query. Partitioning exists to keep every predicate under it.
const searchResultCap = 1000

// Config captures every knob that influences a harvest run. All values
// originate from Viper so the engine can be configured via files, env vars,
// or CLI flags.
type Config struct {
	Languages             []string
	StarRanges            []StarRange
	CreatedWindows        []TimeWindow
	TargetCount           int
	MaxConcurrency        int
	PageSize              int
	MaxAttempts           int
	BaseDelay             time.Duration
	RateLimitThreshold    int
	RateLimitCooldown     time.Duration
	PerPartitionPageLimit int
	MaxRunDuration        time.Duration
	PublishTopic          string
}

// LoadConfig constructs a Config by reading from Viper.
func LoadConfig(v *viper.Viper) (Config, error) {
	stars, err := parseStarRanges(v.GetStringSlice("crawler.star_ranges"))
	if err != nil {
		return Config{}, err
	}
	windows, err := parseTimeWindows(v.GetStringSlice("crawler.created_windows"))
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Languages:             normalizeLanguages(v.GetStringSlice("crawler.languages")),
		StarRanges:            stars,
		CreatedWindows:        windows,
		TargetCount:           v.GetInt("crawler.target_count"),
		MaxConcurrency:        v.GetInt("crawler.concurrency"),
		PageSize:              v.GetInt("crawler.page_size"),
		MaxAttempts:           v.GetInt("crawler.max_attempts"),
		BaseDelay:             v.GetDuration("crawler.base_delay"),
		RateLimitThreshold:    v.GetInt("crawler.rate_limit_threshold"),
		RateLimitCooldown:     v.GetDuration("crawler.rate_limit_cooldown"),
		PerPartitionPageLimit: v.GetInt("crawler.per_partition_page_limit"),
		MaxRunDuration:        v.GetDuration("crawler.max_run_duration"),
		PublishTopic:          v.GetString("crawler.publish_topic"),
	}
	return cfg, cfg.Validate()
}

// Validate checks for obviously bad configuration combinations.
func (c Config) Validate() error {
	if len(c.Languages) == 0 {
		return fmt.Errorf("crawler.languages must include at least one language")
	}
	if len(c.StarRanges) == 0 {
		return fmt.Errorf("crawler.star_ranges must include at least one range")
	}
	if c.TargetCount <= 0 {
		return fmt.Errorf("crawler.target_count must be > 0")
	}
	if c.MaxConcurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.PageSize <= 0 || c.PageSize > 100 {
		return fmt.Errorf("crawler.page_size must be in 1..100")
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("crawler.max_attempts must be > 0")
	}
	if c.BaseDelay <= 0 {
		return fmt.Errorf("crawler.base_delay must be > 0")
	}
	if c.RateLimitThreshold < 0 {
		return fmt.Errorf("crawler.rate_limit_threshold must be >= 0")
	}
	if c.RateLimitCooldown <= 0 {
		return fmt.Errorf("crawler.rate_limit_cooldown must be > 0")
	}
	if c.PerPartitionPageLimit < 0 {
		return fmt.Errorf("crawler.per_partition_page_limit must be >= 0")
	}
	if c.MaxRunDuration < 0 {
		return fmt.Errorf("crawler.max_run_duration must be >= 0")
	}
	return nil
}

func parseStarRanges(tokens []string) ([]StarRange, error) {
	out := make([]StarRange, 0, len(tokens))
	for _, tok := range tokens {
		r, err := ParseStarRange(tok)
		if err != nil {
			return nil, fmt.Errorf("crawler.star_ranges: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}

func parseTimeWindows(tokens []string) ([]TimeWindow, error) {
	out := make([]TimeWindow, 0, len(tokens))
	for _, tok := range tokens {
		w, err := ParseTimeWindow(tok)
		if err != nil {
			return nil, fmt.Errorf("crawler.created_windows: %w", err)
		}
		out = append(out, w)
	}
	return out, nil
}

func normalizeLanguages(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{})
	for _, lang := range in {
		lang = strings.TrimSpace(lang)
		if lang == "" {
			continue
		}
		if _, ok := seen[lang]; ok {
			continue
		}
		seen[lang] = struct{}{}
		out = append(out, lang)
	}
	return out
}
