package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

const validConfig = `
listing_url: "https://example.com/tags/fantasy"
cache_ttl: 3d
rate_limit: 250ms
selectors:
  listing_item: ".list .item"
  listing_link: 'a[href*="/book/"]'
  listing_rating: ".score strong"
  detail_rating: ".score strong"
  detail_review_count: ".score small"
  detail_tags: ".tags a"
`

func TestLoadValid(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListingURL != "https://example.com/tags/fantasy" {
		t.Errorf("listing url = %q", cfg.ListingURL)
	}
	if got := cfg.CacheTTLDuration(); got != 3*24*time.Hour {
		t.Errorf("cache ttl = %v, want 72h", got)
	}
	if got := cfg.RateLimitDuration(); got != 250*time.Millisecond {
		t.Errorf("rate limit = %v, want 250ms", got)
	}
	// Unset durations fall back to defaults.
	if got := cfg.HTTPTimeoutDuration(); got != 30*time.Second {
		t.Errorf("http timeout = %v, want default 30s", got)
	}
	if got := cfg.ScanDebounceDuration(); got != 500*time.Millisecond {
		t.Errorf("scan debounce = %v, want default 500ms", got)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListingURL == "" || cfg.Selectors.ListingItem == "" {
		t.Errorf("embedded defaults incomplete: %+v", cfg)
	}
	// First run writes the defaults out.
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected defaults written to %s: %v", path, err)
	}
}

func TestLoadRejectsBadScheme(t *testing.T) {
	bad := `
listing_url: "ftp://example.com/list"
selectors:
  listing_item: ".item"
  listing_link: "a"
  detail_rating: ".r"
  detail_review_count: ".c"
`
	if _, err := Load(writeConfig(t, bad)); err == nil {
		t.Fatal("expected error for non-http scheme")
	}
}

func TestLoadRejectsMissingSelector(t *testing.T) {
	bad := `
listing_url: "https://example.com/list"
selectors:
  listing_item: ".item"
`
	if _, err := Load(writeConfig(t, bad)); err == nil {
		t.Fatal("expected error for missing required selectors")
	}
}

func TestLoadRejectsTagSeedWithoutTagSelector(t *testing.T) {
	bad := `
listing_url: "https://example.com/list"
selectors:
  listing_item: ".item"
  listing_link: "a"
  detail_rating: ".r"
  detail_review_count: ".c"
tags:
  exclude: [harem]
`
	if _, err := Load(writeConfig(t, bad)); err == nil {
		t.Fatal("expected error for tag filter without detail_tags selector")
	}

	// The same filter with a tag selector is fine.
	good := `
listing_url: "https://example.com/list"
selectors:
  listing_item: ".item"
  listing_link: "a"
  detail_rating: ".r"
  detail_review_count: ".c"
  detail_tags: ".tags a"
tags:
  exclude: [harem]
`
	if _, err := Load(writeConfig(t, good)); err != nil {
		t.Fatalf("load with tag selector: %v", err)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	bad := validConfig + "\nhttp_timeout: soon\n"
	if _, err := Load(writeConfig(t, bad)); err == nil {
		t.Fatal("expected error for unparseable duration")
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
		err   bool
	}{
		{"3d", 3 * 24 * time.Hour, false},
		{"1d", 24 * time.Hour, false},
		{"500ms", 500 * time.Millisecond, false},
		{"2h30m", 2*time.Hour + 30*time.Minute, false},
		{"invalid", 0, true},
		{"", 0, true},
		{"d", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseDuration(tt.input)
		if tt.err {
			if err == nil {
				t.Errorf("ParseDuration(%q): expected error, got %v", tt.input, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDuration(%q): unexpected error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDuration(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
