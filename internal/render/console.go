package render

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/dautsuro/shelfsieve/internal/cache"
	"github.com/dautsuro/shelfsieve/internal/policy"
)

var (
	colorKept     = lipgloss.AdaptiveColor{Light: "#04B575", Dark: "#2ECC71"}
	colorRejected = lipgloss.AdaptiveColor{Light: "#C0392B", Dark: "#E74C3C"}
	colorPending  = lipgloss.AdaptiveColor{Light: "#B8860B", Dark: "#E8A838"}
	colorDim      = lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#626262"}

	keptStyle     = lipgloss.NewStyle().Foreground(colorKept).Bold(true)
	rejectedStyle = lipgloss.NewStyle().Foreground(colorRejected)
	pendingStyle  = lipgloss.NewStyle().Foreground(colorPending)
	ruleStyle     = lipgloss.NewStyle().Foreground(colorDim)
)

// ConsoleSink streams one styled line per item state change, for watch
// mode. Safe for use from a single goroutine (the reconciler).
type ConsoleSink struct {
	W            io.Writer
	HideRejected bool
}

func (s *ConsoleSink) Pending(url string) {
	fmt.Fprintln(s.W, pendingStyle.Render("… fetching"), url)
}

func (s *ConsoleSink) Classified(url string, d policy.Decision, facts cache.Facts, tagMiss bool) {
	if !d.Keep && s.HideRejected {
		return
	}
	badge := Badge(d, facts, tagMiss)
	if d.Keep {
		badge = keptStyle.Render(badge)
	} else {
		badge = rejectedStyle.Render(badge)
	}
	fmt.Fprintln(s.W, badge, url, ruleStyle.Render("["+string(d.Rule)+"]"))
}

// Row is one classified item in a one-shot scan.
type Row struct {
	URL     string
	Badge   string
	Keep    bool
	Rule    policy.Rule
	Score   float64
	TagMiss bool
}

// TableSink collects classified items for printing after a one-shot
// scan completes. Safe for concurrent use.
type TableSink struct {
	mu   sync.Mutex
	rows []Row
}

func (s *TableSink) Pending(url string) {}

func (s *TableSink) Classified(url string, d policy.Decision, facts cache.Facts, tagMiss bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, Row{
		URL:     url,
		Badge:   Badge(d, facts, tagMiss),
		Keep:    d.Keep,
		Rule:    d.Rule,
		Score:   d.SummaryScore,
		TagMiss: tagMiss,
	})
}

// Rows returns collected rows, kept items first, stable by URL within
// each group.
func (s *TableSink) Rows() []Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Row, len(s.rows))
	copy(out, s.rows)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Keep != out[j].Keep {
			return out[i].Keep
		}
		return out[i].URL < out[j].URL
	})
	return out
}

// Print writes the table to w, optionally suppressing rejected rows.
func (s *TableSink) Print(w io.Writer, hideRejected bool) {
	kept := 0
	rows := s.Rows()
	for _, row := range rows {
		if row.Keep {
			kept++
		}
		if !row.Keep && hideRejected {
			continue
		}
		badge := row.Badge
		if row.Keep {
			badge = keptStyle.Render(badge)
		} else {
			badge = rejectedStyle.Render(badge)
		}
		fmt.Fprintf(w, "%s  %s %s\n", badge, row.URL, ruleStyle.Render("["+string(row.Rule)+"]"))
	}
	fmt.Fprintf(w, "\n%d kept, %d rejected\n", kept, len(rows)-kept)
}
