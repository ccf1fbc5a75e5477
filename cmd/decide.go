package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dautsuro/shelfsieve/internal/policy"
	"github.com/dautsuro/shelfsieve/internal/render"
)

var (
	flagDecideRating float64
	flagDecideCount  int
	flagDecideScores string
)

var decideCmd = &cobra.Command{
	Use:   "decide",
	Short: "Classify a single item from the command line",
	Long: `Run the decision policy on hand-supplied evidence, without fetching
anything. Pass individual review scores with --scores when available;
otherwise --count falls back to the count-only rules.

Examples:
  shelfsieve decide --rating 4.3 --scores 5,5,4,4,4,3
  shelfsieve decide --rating 4.1 --count 20`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ev, err := parseEvidence(flagDecideScores, flagDecideCount)
		if err != nil {
			return err
		}

		d := policy.Decide(flagDecideRating, ev)
		fmt.Println(render.Summary(d))
		return nil
	},
}

func parseEvidence(scoresCSV string, count int) (policy.Evidence, error) {
	if scoresCSV == "" {
		return policy.CountEvidence(count), nil
	}
	parts := strings.Split(scoresCSV, ",")
	scores := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return policy.Evidence{}, fmt.Errorf("invalid score %q: %w", p, err)
		}
		scores = append(scores, v)
	}
	return policy.SampleEvidence(scores), nil
}

func init() {
	decideCmd.Flags().Float64Var(&flagDecideRating, "rating", 0, "reported average rating")
	decideCmd.Flags().IntVar(&flagDecideCount, "count", 0, "total review count (used when --scores is empty)")
	decideCmd.Flags().StringVar(&flagDecideScores, "scores", "", "comma-separated individual review scores")
}
