package fetch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dautsuro/shelfsieve/internal/cache"
)

// Result is the outcome of one fetch. Err is set on failure; the queue
// keeps draining either way.
type Result struct {
	URL   string
	Facts cache.Facts
	Err   error
}

// Queue is a deduplicating, rate-limited fetch queue. Enqueue never
// blocks; a single drain goroutine (Run) processes identities strictly
// sequentially with a fixed delay after every fetch, so the source is
// never hit in parallel.
type Queue struct {
	fetcher Fetcher
	delay   time.Duration
	out     chan Result

	mu      sync.Mutex
	fifo    []string
	pending map[string]bool
	wake    chan struct{}
}

func NewQueue(fetcher Fetcher, delay time.Duration) *Queue {
	return &Queue{
		fetcher: fetcher,
		delay:   delay,
		out:     make(chan Result, 64),
		pending: make(map[string]bool),
		wake:    make(chan struct{}, 1),
	}
}

// Enqueue schedules a fetch for url and reports whether it was
// accepted. It is idempotent: a url already queued or in flight is a
// no-op returning false.
func (q *Queue) Enqueue(url string) bool {
	q.mu.Lock()
	if q.pending[url] {
		q.mu.Unlock()
		return false
	}
	q.pending[url] = true
	q.fifo = append(q.fifo, url)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// Len returns the number of identities waiting or in flight.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Results delivers fetch outcomes in completion order.
func (q *Queue) Results() <-chan Result {
	return q.out
}

// Run drains the queue until ctx is done. It owns all fetching: one
// request at a time, q.delay of idle time after each.
func (q *Queue) Run(ctx context.Context) {
	for {
		url, ok := q.next()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-q.wake:
				continue
			}
		}

		facts, err := q.fetcher.Fetch(ctx, url)
		if err != nil {
			slog.Warn("fetch failed", "url", url, "error", err)
		} else {
			slog.Debug("fetched item", "url", url, "rating", facts.Rating, "reviews", facts.ReviewCount)
		}

		q.finish(url)

		select {
		case q.out <- Result{URL: url, Facts: facts, Err: err}:
		case <-ctx.Done():
			return
		}

		select {
		case <-time.After(q.delay):
		case <-ctx.Done():
			return
		}
	}
}

func (q *Queue) next() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.fifo) == 0 {
		return "", false
	}
	url := q.fifo[0]
	q.fifo = q.fifo[1:]
	return url, true
}

func (q *Queue) finish(url string) {
	q.mu.Lock()
	delete(q.pending, url)
	q.mu.Unlock()
}
