// Package config loads shelfsieve configuration from YAML, falling
// back to embedded defaults on first run.
package config

import (
	"embed"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

//go:embed default_config.yaml
var defaultConfigFS embed.FS

// Selectors are the CSS selectors that bind the engine to one site's
// listing and detail markup.
type Selectors struct {
	ListingItem        string `yaml:"listing_item"`
	ListingLink        string `yaml:"listing_link"`
	ListingRating      string `yaml:"listing_rating"`
	DetailRating       string `yaml:"detail_rating"`
	DetailReviewCount  string `yaml:"detail_review_count"`
	DetailReviewScores string `yaml:"detail_review_scores"`
	DetailTags         string `yaml:"detail_tags"`
}

// TagSeed is the first-run tag filter; runtime edits are stored in the
// cache database, not here.
type TagSeed struct {
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

type Config struct {
	ListingURL    string    `yaml:"listing_url"`
	CacheTTL      string    `yaml:"cache_ttl"`
	RateLimit     string    `yaml:"rate_limit"`
	HTTPTimeout   string    `yaml:"http_timeout"`
	ScanDebounce  string    `yaml:"scan_debounce"`
	WatchInterval string    `yaml:"watch_interval"`
	Selectors     Selectors `yaml:"selectors"`
	Tags          TagSeed   `yaml:"tags"`
}

func (c *Config) CacheTTLDuration() time.Duration {
	return durationOr(c.CacheTTL, 3*24*time.Hour)
}

func (c *Config) RateLimitDuration() time.Duration {
	return durationOr(c.RateLimit, 500*time.Millisecond)
}

func (c *Config) HTTPTimeoutDuration() time.Duration {
	return durationOr(c.HTTPTimeout, 30*time.Second)
}

func (c *Config) ScanDebounceDuration() time.Duration {
	return durationOr(c.ScanDebounce, 500*time.Millisecond)
}

func (c *Config) WatchIntervalDuration() time.Duration {
	return durationOr(c.WatchInterval, 30*time.Second)
}

func durationOr(s string, fallback time.Duration) time.Duration {
	d, err := ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// ParseDuration parses a Go duration with additional "Nd" day syntax.
func ParseDuration(s string) (time.Duration, error) {
	if len(s) > 1 && s[len(s)-1] == 'd' {
		var days int
		if _, err := fmt.Sscanf(s, "%dd", &days); err == nil {
			return time.Duration(days) * 24 * time.Hour, nil
		}
	}
	return time.ParseDuration(s)
}

func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, "shelfsieve", "config.yaml")
}

func CachePath() string {
	return filepath.Join(xdg.CacheHome, "shelfsieve", "shelfsieve.db")
}

func loadDefaults() (*Config, error) {
	data, err := defaultConfigFS.ReadFile("default_config.yaml")
	if err != nil {
		return nil, fmt.Errorf("reading embedded config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded config: %w", err)
	}
	return &cfg, nil
}

func Load(path string) (*Config, error) {
	defaults, err := loadDefaults()
	if err != nil {
		return nil, err
	}

	if path == "" {
		path = DefaultConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Write defaults to config path on first run
			if err := writeDefaults(path); err != nil {
				// Non-fatal: just use embedded defaults
				return defaults, nil
			}
			return defaults, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func writeDefaults(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, _ := defaultConfigFS.ReadFile("default_config.yaml")
	return os.WriteFile(path, data, 0o644)
}

func validate(cfg *Config) error {
	if cfg.ListingURL == "" {
		return fmt.Errorf("listing_url is required")
	}
	u, err := url.Parse(cfg.ListingURL)
	if err != nil {
		return fmt.Errorf("listing_url: invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("listing_url: scheme must be http or https, got %q", u.Scheme)
	}

	required := map[string]string{
		"selectors.listing_item":        cfg.Selectors.ListingItem,
		"selectors.listing_link":        cfg.Selectors.ListingLink,
		"selectors.detail_rating":       cfg.Selectors.DetailRating,
		"selectors.detail_review_count": cfg.Selectors.DetailReviewCount,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	// An active tag filter forces a refetch of every record that lacks
	// tag data; without a tag selector those refetches can never
	// produce any, so the whole listing would refetch on every scan.
	if (len(cfg.Tags.Include) > 0 || len(cfg.Tags.Exclude) > 0) && cfg.Selectors.DetailTags == "" {
		return fmt.Errorf("selectors.detail_tags is required when tags.include or tags.exclude is set")
	}

	durations := map[string]string{
		"cache_ttl":      cfg.CacheTTL,
		"rate_limit":     cfg.RateLimit,
		"http_timeout":   cfg.HTTPTimeout,
		"scan_debounce":  cfg.ScanDebounce,
		"watch_interval": cfg.WatchInterval,
	}
	for name, value := range durations {
		if value == "" {
			continue // defaults apply
		}
		d, err := ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%s: invalid duration %q", name, value)
		}
		if d <= 0 {
			return fmt.Errorf("%s: duration must be positive, got %q", name, value)
		}
	}

	return nil
}
