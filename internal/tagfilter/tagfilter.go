// Package tagfilter applies a user-editable include/exclude tag filter
// on top of the primary keep/reject decision. It only ever downgrades a
// keep; a reject stays a reject.
package tagfilter

import (
	"slices"
	"sort"
	"strings"

	"github.com/dautsuro/shelfsieve/internal/policy"
)

// Settings holds the include and exclude tag lists. Empty lists mean
// no constraint. Settings are stored normalized; use Normalize before
// persisting user input.
type Settings struct {
	Include []string `json:"include"`
	Exclude []string `json:"exclude"`
}

// Active reports whether the filter constrains anything, i.e. whether
// cached records need tag data to be decidable.
func (s Settings) Active() bool {
	return len(s.Include) > 0 || len(s.Exclude) > 0
}

// Equal reports whether two settings constrain the same tags. Both
// sides are expected to be normalized, so element order is canonical
// and nil equals empty.
func (s Settings) Equal(o Settings) bool {
	return slices.Equal(s.Include, o.Include) && slices.Equal(s.Exclude, o.Exclude)
}

// Normalize lowercases tags, strips a leading '#', drops empties, and
// deduplicates, keeping a sorted stable order.
func Normalize(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	var out []string
	for _, tag := range tags {
		tag = NormalizeTag(tag)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// NormalizeTag normalizes a single tag.
func NormalizeTag(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	return strings.TrimPrefix(tag, "#")
}

// NormalizeSettings returns a copy of s with both lists normalized.
func NormalizeSettings(s Settings) Settings {
	return Settings{
		Include: Normalize(s.Include),
		Exclude: Normalize(s.Exclude),
	}
}

// Apply filters a keep decision through the tag settings. itemTags is
// the item's raw tag list (normalized here, so callers can pass scraped
// text as-is). Rejects pass through untouched.
func Apply(d policy.Decision, itemTags []string, s Settings) policy.Decision {
	if !d.Keep || !s.Active() {
		return d
	}

	have := make(map[string]bool, len(itemTags))
	for _, tag := range itemTags {
		if tag = NormalizeTag(tag); tag != "" {
			have[tag] = true
		}
	}

	for _, want := range s.Include {
		if !have[want] {
			d.Keep = false
			d.Rule = policy.RuleTagIncludeMiss
			return d
		}
	}
	for _, bad := range s.Exclude {
		if have[bad] {
			d.Keep = false
			d.Rule = policy.RuleTagExcludeHit
			return d
		}
	}
	return d
}
