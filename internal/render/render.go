// Package render turns decisions into something a human can see: the
// short badge string, a streaming console sink for watch mode, and a
// row collector for one-shot scans.
package render

import (
	"fmt"
	"math"

	"github.com/dautsuro/shelfsieve/internal/cache"
	"github.com/dautsuro/shelfsieve/internal/policy"
)

// Sink consumes visual state for items as the scanner resolves them.
type Sink interface {
	// Pending marks an item as queued for fetching.
	Pending(url string)
	// Classified reports the final decision for an item. tagMiss is
	// true when the tag filter downgraded the primary decision.
	Classified(url string, d policy.Decision, facts cache.Facts, tagMiss bool)
}

// Badge builds the short human-readable badge for a decision: icon,
// rating, review count, and a marker when the tag filter fired.
func Badge(d policy.Decision, facts cache.Facts, tagMiss bool) string {
	icon := "✕"
	if d.Keep {
		icon = "★"
	}

	rating := "N/A"
	if facts.Rating > 0 {
		rating = fmt.Sprintf("%.1f", facts.Rating)
	}

	badge := icon + " " + rating
	if facts.ReviewCount > 0 {
		badge += fmt.Sprintf(" (%d)", facts.ReviewCount)
	}
	if tagMiss {
		badge += " #"
	}
	return badge
}

// Summary is a one-line textual form of a decision for logs and table
// rows.
func Summary(d policy.Decision) string {
	verdict := "reject"
	if d.Keep {
		verdict = "keep"
	}
	if math.IsNaN(d.SummaryScore) {
		return fmt.Sprintf("%s [%s]", verdict, d.Rule)
	}
	return fmt.Sprintf("%s [%s] score %.2f", verdict, d.Rule, d.SummaryScore)
}
