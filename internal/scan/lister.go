// Package scan discovers items on the catalog listing and reconciles
// their classifications against the cache and the fetch queue.
package scan

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/dautsuro/shelfsieve/internal/config"
)

// Item is one entry currently present on the listing. Rating is the
// listing-visible rating, used when the detail page exposes none.
type Item struct {
	URL    string
	Rating float64
}

// Lister reports the items currently present on the listing.
type Lister interface {
	List(ctx context.Context) ([]Item, error)
}

// PageLister scrapes the configured listing page.
type PageLister struct {
	client     *http.Client
	listingURL string
	selectors  config.Selectors
}

func NewPageLister(client *http.Client, listingURL string, selectors config.Selectors) *PageLister {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &PageLister{client: client, listingURL: listingURL, selectors: selectors}
}

func (l *PageLister) List(ctx context.Context) ([]Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.listingURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building listing request: %w", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching listing: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching listing: status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing listing: %w", err)
	}

	base, err := url.Parse(l.listingURL)
	if err != nil {
		return nil, fmt.Errorf("parsing listing url: %w", err)
	}

	var items []Item
	seen := make(map[string]bool)
	doc.Find(l.selectors.ListingItem).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Find(l.selectors.ListingLink).First().Attr("href")
		if !ok || href == "" {
			return
		}
		abs := resolveURL(base, href)
		if abs == "" || seen[abs] {
			return
		}
		seen[abs] = true

		item := Item{URL: abs}
		if l.selectors.ListingRating != "" {
			text := strings.TrimSpace(s.Find(l.selectors.ListingRating).First().Text())
			if v, err := strconv.ParseFloat(text, 64); err == nil {
				item.Rating = v
			}
		}
		items = append(items, item)
	})
	return items, nil
}

// resolveURL canonicalizes an item link against the listing URL so the
// same entry always yields the same identity.
func resolveURL(base *url.URL, href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(u)
	abs.Fragment = ""
	return abs.String()
}
