// Package fetch retrieves per-item facts from detail pages: a goquery
// scraper bound to configurable selectors, and a deduplicating,
// rate-limited queue that feeds results back to the scanner.
package fetch

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/dautsuro/shelfsieve/internal/cache"
	"github.com/dautsuro/shelfsieve/internal/config"
)

// Fetcher retrieves the facts for one item identity (its canonical
// detail-page URL).
type Fetcher interface {
	Fetch(ctx context.Context, url string) (cache.Facts, error)
}

// PageFetcher scrapes detail pages over HTTP.
type PageFetcher struct {
	client    *http.Client
	selectors config.Selectors
}

func NewPageFetcher(client *http.Client, selectors config.Selectors) *PageFetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &PageFetcher{client: client, selectors: selectors}
}

var digitsRe = regexp.MustCompile(`\d+`)

// Fetch retrieves and parses one detail page. Selector misses yield
// zero values, not errors; only transport and parse failures error.
func (f *PageFetcher) Fetch(ctx context.Context, url string) (cache.Facts, error) {
	doc, err := f.document(ctx, url)
	if err != nil {
		return cache.Facts{}, err
	}

	facts := cache.Facts{
		Rating:      parseFloatText(doc.Find(f.selectors.DetailRating).First().Text()),
		ReviewCount: parseCountText(doc.Find(f.selectors.DetailReviewCount).First().Text()),
		FetchedAt:   time.Now(),
	}

	if f.selectors.DetailReviewScores != "" {
		facts.ReviewScores = []float64{}
		doc.Find(f.selectors.DetailReviewScores).Each(func(_ int, s *goquery.Selection) {
			if v, err := strconv.ParseFloat(strings.TrimSpace(s.Text()), 64); err == nil {
				facts.ReviewScores = append(facts.ReviewScores, v)
			}
		})
	}

	if f.selectors.DetailTags != "" {
		facts.Tags = []string{}
		doc.Find(f.selectors.DetailTags).Each(func(_ int, s *goquery.Selection) {
			if tag := strings.TrimSpace(s.Text()); tag != "" {
				facts.Tags = append(facts.Tags, tag)
			}
		})
	}

	return facts, nil
}

func (f *PageFetcher) document(ctx context.Context, url string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", url, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: status %d", url, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", url, err)
	}
	return doc, nil
}

func parseFloatText(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

// parseCountText extracts the first run of digits from text like
// "1,024 reviews".
func parseCountText(s string) int {
	s = strings.ReplaceAll(s, ",", "")
	m := digitsRe.FindString(s)
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return n
}
