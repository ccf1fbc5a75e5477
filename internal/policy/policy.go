// Package policy decides whether a catalog item is worth keeping, given
// its reported rating and either a sample of individual review scores
// or a bare review count.
package policy

import (
	"log/slog"
	"math"

	"github.com/dautsuro/shelfsieve/internal/stats"
)

// Rule identifies which branch of the policy produced a decision. Rules
// are stable strings so they can be logged, asserted in tests, and
// shown by the render sink.
type Rule string

const (
	// Sample path, v >= minReviewsConfidence.
	RuleLowerMean95   Rule = "lowerMean95"
	RuleBayesianHighV Rule = "bayesian_high_v"
	RuleWilson        Rule = "wilson"
	RuleNoRuleMet     Rule = "no_rule_met"

	// Sample path, v < minReviewsConfidence.
	RuleBayesianLowV Rule = "bayesian_low_v"
	RuleWilsonLowV   Rule = "wilson_low_v"
	RuleLowVNoRule   Rule = "low_v_no_rule"

	// Count path.
	RuleBayesianCount Rule = "bayesian_count"
	RuleCountBelowMin Rule = "count_below_min"

	// Invalid input. Always reject, never an error.
	RuleInvalidRating Rule = "invalid-rating"
	RuleInvalidSample Rule = "invalid-sample"

	// Outcomes owned by other components but sharing this namespace so
	// the cache and render sink see a single enum.
	RuleFetchError     Rule = "fetch-error"
	RuleTagIncludeMiss Rule = "tag-include-miss"
	RuleTagExcludeHit  Rule = "tag-exclude-hit"
)

// Policy thresholds. The halved and quartered confidence minima are
// tunable heuristics inherited from field use, not derived quantities.
const (
	keepMeanThreshold  = 4.0
	minReviewsConfid   = 30
	minReviewsBayesian = 20
	priorMean          = 3.8 // global average rating
	priorWeight        = 10  // equivalent virtual review count
	positiveCutoff     = 4   // score >= this counts as positive
	wilsonConfidence   = 0.95
	positivePropThresh = 0.6

	bayesHighVMin = minReviewsConfid / 2.0
	bayesLowVMin  = minReviewsConfid / 4.0
)

// Decision is the outcome for one item. SummaryScore is the Bayesian
// shrunk mean where one is defined, NaN otherwise.
type Decision struct {
	Keep         bool
	Rule         Rule
	SummaryScore float64
}

// Evidence is the review evidence for an item: either a sample of
// individual scores or a bare count. Construct with SampleEvidence or
// CountEvidence.
type Evidence struct {
	scores []float64
	count  int
	sample bool
}

// SampleEvidence wraps individual review scores.
func SampleEvidence(scores []float64) Evidence {
	return Evidence{scores: scores, sample: true}
}

// CountEvidence wraps a total review count with no per-review detail.
func CountEvidence(n int) Evidence {
	return Evidence{count: n}
}

// IsSample reports whether the evidence carries individual scores.
func (e Evidence) IsSample() bool { return e.sample }

// Decide classifies an item. It never returns an error: invalid input
// resolves to a reject with a diagnostic rule.
func Decide(rating float64, ev Evidence) Decision {
	if math.IsNaN(rating) || math.IsInf(rating, 0) {
		slog.Debug("decide: invalid rating", "rating", rating)
		return Decision{Rule: RuleInvalidRating, SummaryScore: math.NaN()}
	}
	if ev.sample {
		return decideSample(ev.scores)
	}
	return decideCount(rating, ev.count)
}

func decideSample(scores []float64) Decision {
	numeric := make([]float64, 0, len(scores))
	for _, x := range scores {
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			numeric = append(numeric, x)
		}
	}
	if len(numeric) == 0 {
		slog.Debug("decide: no numeric reviews")
		return Decision{Rule: RuleInvalidSample, SummaryScore: math.NaN()}
	}

	v := len(numeric)
	fv := float64(v)
	mean := stats.Mean(numeric)
	sd := stats.SampleStdDev(numeric)
	bayes := (fv*mean + priorWeight*priorMean) / (fv + priorWeight)

	lowerMean := math.NaN()
	if v >= 2 && !math.IsNaN(sd) {
		lowerMean = mean - stats.TQuantile975(fv-1)*sd/math.Sqrt(fv)
	}

	positives := 0
	for _, x := range numeric {
		if x >= positiveCutoff {
			positives++
		}
	}
	wilson := math.NaN()
	if v >= 2 {
		wilson = stats.WilsonLowerBound(positives, v, wilsonConfidence)
	}

	var d Decision
	d.SummaryScore = bayes

	if v >= minReviewsConfid {
		switch {
		case !math.IsNaN(lowerMean) && lowerMean >= keepMeanThreshold:
			d.Keep, d.Rule = true, RuleLowerMean95
		case bayes >= keepMeanThreshold && fv >= bayesHighVMin:
			d.Keep, d.Rule = true, RuleBayesianHighV
		case !math.IsNaN(wilson) && wilson >= positivePropThresh:
			d.Keep, d.Rule = true, RuleWilson
		default:
			d.Rule = RuleNoRuleMet
		}
	} else {
		switch {
		case bayes >= keepMeanThreshold && fv >= bayesLowVMin:
			d.Keep, d.Rule = true, RuleBayesianLowV
		case !math.IsNaN(wilson) && wilson >= positivePropThresh:
			d.Keep, d.Rule = true, RuleWilsonLowV
		default:
			d.Rule = RuleLowVNoRule
		}
	}

	slog.Debug("decide: sample",
		"v", v,
		"mean", mean,
		"stddev", sd,
		"bayes", bayes,
		"lowerMean95", lowerMean,
		"wilson", wilson,
		"keep", d.Keep,
		"rule", d.Rule,
	)
	return d
}

func decideCount(rating float64, count int) Decision {
	if count <= 0 {
		slog.Debug("decide: invalid count", "count", count)
		return Decision{Rule: RuleInvalidSample, SummaryScore: math.NaN()}
	}

	fv := float64(count)
	bayes := (fv*rating + priorWeight*priorMean) / (fv + priorWeight)

	d := Decision{SummaryScore: bayes}
	if bayes >= keepMeanThreshold && count >= minReviewsBayesian {
		d.Keep, d.Rule = true, RuleBayesianCount
	} else {
		d.Rule = RuleCountBelowMin
	}

	slog.Debug("decide: count",
		"v", count,
		"rating", rating,
		"bayes", bayes,
		"keep", d.Keep,
		"rule", d.Rule,
	)
	return d
}

// Invalid reports whether a rule is one of the invalid-input rejects.
func (r Rule) Invalid() bool {
	return r == RuleInvalidRating || r == RuleInvalidSample
}
