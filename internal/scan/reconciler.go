package scan

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/dautsuro/shelfsieve/internal/cache"
	"github.com/dautsuro/shelfsieve/internal/fetch"
	"github.com/dautsuro/shelfsieve/internal/policy"
	"github.com/dautsuro/shelfsieve/internal/render"
	"github.com/dautsuro/shelfsieve/internal/tagfilter"
)

// Options configures a Reconciler.
type Options struct {
	TTL      time.Duration
	Debounce time.Duration
}

// Reconciler keeps item classifications consistent with the listing.
// It owns the processed set and the listing snapshot; both are touched
// only from the Run goroutine, so no locking is needed. External
// callers talk to it through Kick, Rescan, and UpdateSettings, all of
// which are non-blocking.
type Reconciler struct {
	db     *cache.Cache
	queue  *fetch.Queue
	lister Lister
	sink   render.Sink
	opts   Options

	// Owned by the Run goroutine.
	processed map[string]bool
	ratings   map[string]float64 // listing-visible ratings by url
	settings  tagfilter.Settings

	kicks      chan struct{}
	rescans    chan struct{}
	settingsCh chan tagfilter.Settings
}

func NewReconciler(db *cache.Cache, queue *fetch.Queue, lister Lister, sink render.Sink, opts Options) (*Reconciler, error) {
	settings, err := db.TagSettings()
	if err != nil {
		return nil, err
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}
	return &Reconciler{
		db:         db,
		queue:      queue,
		lister:     lister,
		sink:       sink,
		opts:       opts,
		processed:  make(map[string]bool),
		ratings:    make(map[string]float64),
		settings:   settings,
		kicks:      make(chan struct{}, 1),
		rescans:    make(chan struct{}, 1),
		settingsCh: make(chan tagfilter.Settings, 1),
	}, nil
}

// Kick requests a debounced scan. Bursts of kicks within the debounce
// window coalesce into a single scan.
func (r *Reconciler) Kick() {
	select {
	case r.kicks <- struct{}{}:
	default:
	}
}

// Rescan requests an immediate full reconciliation: the processed set
// is cleared so every listed item is re-classified (from cache where
// facts are still fresh).
func (r *Reconciler) Rescan() {
	select {
	case r.rescans <- struct{}{}:
	default:
	}
}

// UpdateSettings persists new tag settings and triggers a full
// reconciliation, since tag changes can flip decisions for items whose
// facts are still valid.
func (r *Reconciler) UpdateSettings(s tagfilter.Settings) {
	select {
	case r.settingsCh <- tagfilter.NormalizeSettings(s):
	default:
	}
}

// Run processes scan requests and fetch results until ctx is done. The
// debounce timer is a single cancellable timer: every kick resets it
// rather than scheduling another scan.
func (r *Reconciler) Run(ctx context.Context) {
	timer := time.NewTimer(r.opts.Debounce)
	stopTimer(timer)
	defer stopTimer(timer)

	for {
		select {
		case <-ctx.Done():
			return

		case <-r.kicks:
			stopTimer(timer)
			timer.Reset(r.opts.Debounce)

		case <-timer.C:
			r.scan(ctx)

		case <-r.rescans:
			stopTimer(timer)
			r.processed = make(map[string]bool)
			r.scan(ctx)

		case s := <-r.settingsCh:
			if err := r.db.SaveTagSettings(s); err != nil {
				slog.Warn("saving tag settings", "error", err)
				continue
			}
			r.settings = s
			stopTimer(timer)
			r.processed = make(map[string]bool)
			r.scan(ctx)

		case res := <-r.queue.Results():
			r.handleFetchResult(res)
		}
	}
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

// scan diffs the current listing against the processed set: processed
// items are skipped, fresh shape-complete cache records classify
// immediately, everything else is marked pending and enqueued.
func (r *Reconciler) scan(ctx context.Context) {
	r.refreshSettings()

	items, err := r.lister.List(ctx)
	if err != nil {
		slog.Warn("listing scan failed", "error", err)
		return
	}
	slog.Debug("scanning listing",
		"items", len(items), "processed", len(r.processed), "queued", r.queue.Len())

	now := time.Now()
	for _, item := range items {
		if item.URL == "" || r.processed[item.URL] {
			continue
		}
		r.ratings[item.URL] = item.Rating

		rec, ok, err := r.db.Get(item.URL)
		if err != nil {
			slog.Warn("cache read failed", "url", item.URL, "error", err)
			ok = false
		}
		if ok && !rec.Stale(now, r.opts.TTL, r.settings.Active()) {
			r.classify(item.URL, rec.Facts)
			continue
		}

		r.sink.Pending(item.URL)
		r.queue.Enqueue(item.URL)
	}
}

// refreshSettings picks up tag settings saved by another process, e.g.
// `tags set` while a watch is running. A change can flip any cached
// decision, so the processed set is cleared to force a full reconcile.
func (r *Reconciler) refreshSettings() {
	s, err := r.db.TagSettings()
	if err != nil {
		slog.Warn("reading tag settings", "error", err)
		return
	}
	if s.Equal(r.settings) {
		return
	}
	slog.Debug("tag settings changed", "include", s.Include, "exclude", s.Exclude)
	r.settings = s
	r.processed = make(map[string]bool)
}

func (r *Reconciler) handleFetchResult(res fetch.Result) {
	if res.Err != nil {
		// One bad item never stops the line: surface it as a normal
		// rejection with a diagnostic rule.
		r.processed[res.URL] = true
		d := policy.Decision{Keep: false, Rule: policy.RuleFetchError, SummaryScore: math.NaN()}
		r.sink.Classified(res.URL, d, cache.Facts{}, false)
		return
	}

	facts := res.Facts
	if facts.Rating == 0 {
		// Some sites only show the rating on the listing tile.
		facts.Rating = r.ratings[res.URL]
	}

	if err := r.db.Put(res.URL, facts); err != nil {
		slog.Warn("cache write failed", "url", res.URL, "error", err)
	}
	r.classify(res.URL, facts)
}

// classify recomputes the decision from facts and current settings,
// marks the item processed, and reports to the sink. Decisions are
// never persisted; only facts are.
func (r *Reconciler) classify(url string, facts cache.Facts) {
	r.processed[url] = true

	var ev policy.Evidence
	if len(facts.ReviewScores) > 0 {
		ev = policy.SampleEvidence(facts.ReviewScores)
	} else {
		ev = policy.CountEvidence(facts.ReviewCount)
	}

	d := policy.Decide(facts.Rating, ev)
	d = tagfilter.Apply(d, facts.Tags, r.settings)
	tagMiss := d.Rule == policy.RuleTagIncludeMiss || d.Rule == policy.RuleTagExcludeHit

	r.sink.Classified(url, d, facts, tagMiss)
}

// RunOnce performs a single synchronous pass: scan the listing, drain
// all resulting fetches, classify everything, then return. Used by the
// one-shot CLI scan.
func (r *Reconciler) RunOnce(ctx context.Context) error {
	items, err := r.lister.List(ctx)
	if err != nil {
		return err
	}

	queueCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go r.queue.Run(queueCtx)

	now := time.Now()
	outstanding := 0
	for _, item := range items {
		if item.URL == "" || r.processed[item.URL] {
			continue
		}
		r.ratings[item.URL] = item.Rating

		rec, ok, err := r.db.Get(item.URL)
		if err != nil {
			slog.Warn("cache read failed", "url", item.URL, "error", err)
			ok = false
		}
		if ok && !rec.Stale(now, r.opts.TTL, r.settings.Active()) {
			r.classify(item.URL, rec.Facts)
			continue
		}

		r.sink.Pending(item.URL)
		if r.queue.Enqueue(item.URL) {
			outstanding++
		}
	}

	for outstanding > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res := <-r.queue.Results():
			r.handleFetchResult(res)
			outstanding--
		}
	}
	return nil
}
