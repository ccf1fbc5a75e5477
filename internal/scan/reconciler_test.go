package scan

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dautsuro/shelfsieve/internal/cache"
	"github.com/dautsuro/shelfsieve/internal/fetch"
	"github.com/dautsuro/shelfsieve/internal/policy"
	"github.com/dautsuro/shelfsieve/internal/tagfilter"
)

type fakeLister struct {
	mu    sync.Mutex
	items []Item
	calls int
}

func (l *fakeLister) List(ctx context.Context) ([]Item, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	out := make([]Item, len(l.items))
	copy(out, l.items)
	return out, nil
}

func (l *fakeLister) listCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

type fakeFetcher struct {
	mu    sync.Mutex
	facts map[string]cache.Facts
	fail  map[string]bool
	calls map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		facts: make(map[string]cache.Facts),
		fail:  make(map[string]bool),
		calls: make(map[string]int),
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (cache.Facts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[url]++
	if f.fail[url] {
		return cache.Facts{}, errors.New("fetch failed")
	}
	facts := f.facts[url]
	if facts.FetchedAt.IsZero() {
		facts.FetchedAt = time.Now()
	}
	return facts, nil
}

func (f *fakeFetcher) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

type event struct {
	url     string
	pending bool
	d       policy.Decision
	tagMiss bool
}

type recordingSink struct {
	mu     sync.Mutex
	events []event
}

func (s *recordingSink) Pending(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event{url: url, pending: true})
}

func (s *recordingSink) Classified(url string, d policy.Decision, facts cache.Facts, tagMiss bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event{url: url, d: d, tagMiss: tagMiss})
}

func (s *recordingSink) classifications() []event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []event
	for _, e := range s.events {
		if !e.pending {
			out = append(out, e)
		}
	}
	return out
}

func (s *recordingSink) last() (event, bool) {
	cls := s.classifications()
	if len(cls) == 0 {
		return event{}, false
	}
	return cls[len(cls)-1], true
}

func testCache(t *testing.T) *cache.Cache {
	t.Helper()
	db, err := cache.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening cache: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestReconciler(t *testing.T, db *cache.Cache, fetcher fetch.Fetcher, lister Lister, sink *recordingSink, ttl time.Duration) (*Reconciler, *fetch.Queue) {
	t.Helper()
	q := fetch.NewQueue(fetcher, time.Millisecond)
	r, err := NewReconciler(db, q, lister, sink, Options{TTL: ttl, Debounce: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("new reconciler: %v", err)
	}
	return r, q
}

const bookURL = "https://example.com/book/1"

func TestRunOnceFetchesAndClassifies(t *testing.T) {
	db := testCache(t)
	fetcher := newFakeFetcher()
	fetcher.facts[bookURL] = cache.Facts{Rating: 4.5, ReviewCount: 100, Tags: []string{}}
	lister := &fakeLister{items: []Item{{URL: bookURL, Rating: 4.5}}}
	sink := &recordingSink{}

	r, _ := newTestReconciler(t, db, fetcher, lister, sink, time.Hour)
	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	e, ok := sink.last()
	if !ok {
		t.Fatal("no classification reported")
	}
	if !e.d.Keep || e.d.Rule != policy.RuleBayesianCount {
		t.Errorf("decision = %+v, want keep via %s", e.d, policy.RuleBayesianCount)
	}

	// Facts are now cached.
	if _, ok, _ := db.Get(bookURL); !ok {
		t.Error("facts not written to cache")
	}
}

func TestRunOnceServesFreshRecordWithoutFetch(t *testing.T) {
	db := testCache(t)
	ttl := time.Hour
	db.Put(bookURL, cache.Facts{
		Rating:      4.5,
		ReviewCount: 100,
		Tags:        []string{},
		FetchedAt:   time.Now().Add(-(ttl - time.Minute)),
	})

	fetcher := newFakeFetcher()
	lister := &fakeLister{items: []Item{{URL: bookURL}}}
	sink := &recordingSink{}

	r, _ := newTestReconciler(t, db, fetcher, lister, sink, ttl)
	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	if got := fetcher.count(bookURL); got != 0 {
		t.Errorf("fetch count = %d, want 0 (fresh record must be served from cache)", got)
	}
	if e, ok := sink.last(); !ok || !e.d.Keep {
		t.Errorf("cached record not classified: %+v", e)
	}
}

func TestRunOnceRefetchesExpiredRecord(t *testing.T) {
	db := testCache(t)
	ttl := time.Hour
	db.Put(bookURL, cache.Facts{
		Rating:      4.5,
		ReviewCount: 100,
		Tags:        []string{},
		FetchedAt:   time.Now().Add(-(ttl + time.Minute)),
	})

	fetcher := newFakeFetcher()
	fetcher.facts[bookURL] = cache.Facts{Rating: 2.0, ReviewCount: 50, Tags: []string{}}
	lister := &fakeLister{items: []Item{{URL: bookURL}}}
	sink := &recordingSink{}

	r, _ := newTestReconciler(t, db, fetcher, lister, sink, ttl)
	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	if got := fetcher.count(bookURL); got != 1 {
		t.Errorf("fetch count = %d, want 1 (expired record must refetch)", got)
	}
	if e, ok := sink.last(); !ok || e.d.Keep {
		t.Errorf("expected reject from refreshed facts, got %+v", e)
	}
}

func TestRunOnceRefetchesLegacyShapeWhenTagFilterActive(t *testing.T) {
	db := testCache(t)
	// Record is inside TTL but predates tag scraping (nil tags).
	db.Put(bookURL, cache.Facts{Rating: 4.5, ReviewCount: 100, FetchedAt: time.Now()})
	db.SaveTagSettings(tagfilter.Settings{Exclude: []string{"harem"}})

	fetcher := newFakeFetcher()
	fetcher.facts[bookURL] = cache.Facts{Rating: 4.5, ReviewCount: 100, Tags: []string{"harem"}}
	lister := &fakeLister{items: []Item{{URL: bookURL}}}
	sink := &recordingSink{}

	r, _ := newTestReconciler(t, db, fetcher, lister, sink, time.Hour)
	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	if got := fetcher.count(bookURL); got != 1 {
		t.Fatalf("fetch count = %d, want 1 (stale-shape record must refetch, not skip the filter)", got)
	}
	e, _ := sink.last()
	if e.d.Keep || e.d.Rule != policy.RuleTagExcludeHit {
		t.Errorf("decision = %+v, want reject via %s", e.d, policy.RuleTagExcludeHit)
	}
	if !e.tagMiss {
		t.Error("tag mismatch not flagged for the render sink")
	}
}

func TestRunOnceFetchErrorBecomesReject(t *testing.T) {
	db := testCache(t)
	fetcher := newFakeFetcher()
	fetcher.fail[bookURL] = true
	lister := &fakeLister{items: []Item{{URL: bookURL}}}
	sink := &recordingSink{}

	r, _ := newTestReconciler(t, db, fetcher, lister, sink, time.Hour)
	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("a failed item must not fail the pass: %v", err)
	}

	e, ok := sink.last()
	if !ok {
		t.Fatal("failed item not surfaced to the sink")
	}
	if e.d.Keep || e.d.Rule != policy.RuleFetchError {
		t.Errorf("decision = %+v, want reject via %s", e.d, policy.RuleFetchError)
	}

	// Nothing is cached for a failed fetch; the next pass retries.
	if _, ok, _ := db.Get(bookURL); ok {
		t.Error("failed fetch must not write to the cache")
	}
}

func TestRunOnceUsesListingRatingWhenDetailHasNone(t *testing.T) {
	db := testCache(t)
	fetcher := newFakeFetcher()
	fetcher.facts[bookURL] = cache.Facts{ReviewCount: 100, Tags: []string{}} // no detail rating
	lister := &fakeLister{items: []Item{{URL: bookURL, Rating: 4.5}}}
	sink := &recordingSink{}

	r, _ := newTestReconciler(t, db, fetcher, lister, sink, time.Hour)
	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	rec, ok, _ := db.Get(bookURL)
	if !ok {
		t.Fatal("facts not cached")
	}
	if rec.Facts.Rating != 4.5 {
		t.Errorf("cached rating = %v, want listing rating 4.5", rec.Facts.Rating)
	}
	if e, _ := sink.last(); !e.d.Keep {
		t.Errorf("decision = %+v, want keep from substituted rating", e.d)
	}
}

func TestProcessedSetSkipsSecondPass(t *testing.T) {
	db := testCache(t)
	fetcher := newFakeFetcher()
	fetcher.facts[bookURL] = cache.Facts{Rating: 4.5, ReviewCount: 100, Tags: []string{}}
	lister := &fakeLister{items: []Item{{URL: bookURL}}}
	sink := &recordingSink{}

	r, _ := newTestReconciler(t, db, fetcher, lister, sink, time.Hour)
	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("second pass: %v", err)
	}

	if got := len(sink.classifications()); got != 1 {
		t.Errorf("classifications = %d, want 1 (processed items are skipped)", got)
	}
	if got := fetcher.count(bookURL); got != 1 {
		t.Errorf("fetch count = %d, want 1", got)
	}
}

func TestKickDebounceCoalesces(t *testing.T) {
	db := testCache(t)
	fetcher := newFakeFetcher()
	lister := &fakeLister{}
	sink := &recordingSink{}

	q := fetch.NewQueue(fetcher, time.Millisecond)
	r, err := NewReconciler(db, q, lister, sink, Options{TTL: time.Hour, Debounce: 150 * time.Millisecond})
	if err != nil {
		t.Fatalf("new reconciler: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)
	go r.Run(ctx)

	// A burst of kicks inside the debounce window runs one scan.
	for i := 0; i < 5; i++ {
		r.Kick()
		time.Sleep(5 * time.Millisecond)
	}

	deadline := time.Now().Add(2 * time.Second)
	for lister.listCalls() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	// Allow a beat for any (incorrect) extra scans to land.
	time.Sleep(50 * time.Millisecond)

	if got := lister.listCalls(); got != 1 {
		t.Errorf("listing scanned %d times, want 1 (debounce must coalesce)", got)
	}
}

func TestUpdateSettingsReconcilesWithoutRefetch(t *testing.T) {
	db := testCache(t)
	fetcher := newFakeFetcher()
	fetcher.facts[bookURL] = cache.Facts{Rating: 4.5, ReviewCount: 100, Tags: []string{"romance"}}
	lister := &fakeLister{items: []Item{{URL: bookURL}}}
	sink := &recordingSink{}

	r, q := newTestReconciler(t, db, fetcher, lister, sink, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)
	go r.Run(ctx)

	r.Rescan()
	waitFor(t, func() bool { return len(sink.classifications()) == 1 })
	if e, _ := sink.last(); !e.d.Keep {
		t.Fatalf("expected initial keep, got %+v", e)
	}

	// Requiring a tag the item lacks flips it to reject, from cache.
	r.UpdateSettings(tagfilter.Settings{Include: []string{"fantasy"}})
	waitFor(t, func() bool { return len(sink.classifications()) == 2 })

	e, _ := sink.last()
	if e.d.Keep || e.d.Rule != policy.RuleTagIncludeMiss {
		t.Errorf("decision = %+v, want reject via %s", e.d, policy.RuleTagIncludeMiss)
	}
	if got := fetcher.count(bookURL); got != 1 {
		t.Errorf("fetch count = %d, want 1 (settings changes reuse cached facts)", got)
	}

	// The new settings are persisted.
	s, err := db.TagSettings()
	if err != nil {
		t.Fatalf("tag settings: %v", err)
	}
	if len(s.Include) != 1 || s.Include[0] != "fantasy" {
		t.Errorf("persisted settings = %+v", s)
	}
}

func TestScanPicksUpExternallySavedSettings(t *testing.T) {
	db := testCache(t)
	fetcher := newFakeFetcher()
	fetcher.facts[bookURL] = cache.Facts{Rating: 4.5, ReviewCount: 100, Tags: []string{"romance"}}
	lister := &fakeLister{items: []Item{{URL: bookURL}}}
	sink := &recordingSink{}

	r, q := newTestReconciler(t, db, fetcher, lister, sink, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)
	go r.Run(ctx)

	r.Kick()
	waitFor(t, func() bool { return len(sink.classifications()) == 1 })
	if e, _ := sink.last(); !e.d.Keep {
		t.Fatalf("expected initial keep, got %+v", e)
	}

	// Another process saves new settings behind the reconciler's back,
	// the way `tags set` does while a watch is running.
	if err := db.SaveTagSettings(tagfilter.Settings{Exclude: []string{"romance"}}); err != nil {
		t.Fatalf("saving settings: %v", err)
	}

	// The next scheduled scan picks them up and reconciles everything.
	r.Kick()
	waitFor(t, func() bool { return len(sink.classifications()) == 2 })

	e, _ := sink.last()
	if e.d.Keep || e.d.Rule != policy.RuleTagExcludeHit {
		t.Errorf("decision = %+v, want reject via %s", e.d, policy.RuleTagExcludeHit)
	}
	if got := fetcher.count(bookURL); got != 1 {
		t.Errorf("fetch count = %d, want 1 (facts come from cache)", got)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}
