package cache

import "time"

// Facts is the raw evidence fetched from an item's detail page. A
// record is replaced wholesale on refetch; there is no partial merge.
type Facts struct {
	Rating       float64
	ReviewCount  int
	ReviewScores []float64 // nil when the site exposes only a count
	Tags         []string  // nil when the record predates tag scraping
	FetchedAt    time.Time
}

// Record is a cached Facts value. Staleness is decided at read time
// against the caller's TTL and field requirements, never stored.
type Record struct {
	Facts Facts
}

// HasScores reports whether the record carries per-review scores.
func (r Record) HasScores() bool { return r.Facts.ReviewScores != nil }

// HasTags reports whether the record carries tag data. Records written
// before tag scraping existed have none and must be refetched while tag
// filtering is active.
func (r Record) HasTags() bool { return r.Facts.Tags != nil }

// Stale reports whether the record needs a refetch: either its TTL has
// passed, or tag filtering is active and the record predates tag data.
// A stale-shape record must never silently serve a decision that a
// newer field would change.
func (r Record) Stale(now time.Time, ttl time.Duration, needTags bool) bool {
	if now.After(r.Facts.FetchedAt.Add(ttl)) {
		return true
	}
	if needTags && !r.HasTags() {
		return true
	}
	return false
}
