package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dautsuro/shelfsieve/internal/cache"
	"github.com/dautsuro/shelfsieve/internal/config"
	"github.com/dautsuro/shelfsieve/internal/tagfilter"
)

var (
	flagTagsInclude []string
	flagTagsExclude []string
)

var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "Show the active tag filter",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := cache.Open(config.CachePath())
		if err != nil {
			return fmt.Errorf("opening cache: %w", err)
		}
		defer db.Close()

		s, err := db.TagSettings()
		if err != nil {
			return fmt.Errorf("reading tag settings: %w", err)
		}

		if !s.Active() {
			fmt.Println("No tag filter configured.")
			return nil
		}
		fmt.Printf("Include: %s\n", joinOrNone(s.Include))
		fmt.Printf("Exclude: %s\n", joinOrNone(s.Exclude))
		return nil
	},
}

var tagsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Replace the tag filter",
	Long: `Replace both tag lists at once. Tags are normalized (lowercased,
leading # stripped) before saving. An empty list clears that side of
the filter.

The new filter takes effect on the next scan; items cached before tag
data was collected are refetched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := cache.Open(config.CachePath())
		if err != nil {
			return fmt.Errorf("opening cache: %w", err)
		}
		defer db.Close()

		s := tagfilter.Settings{Include: flagTagsInclude, Exclude: flagTagsExclude}
		if err := db.SaveTagSettings(s); err != nil {
			return fmt.Errorf("saving tag settings: %w", err)
		}

		s = tagfilter.NormalizeSettings(s)
		fmt.Printf("Include: %s\n", joinOrNone(s.Include))
		fmt.Printf("Exclude: %s\n", joinOrNone(s.Exclude))
		return nil
	},
}

var hideRejectedCmd = &cobra.Command{
	Use:   "hide-rejected [on|off]",
	Short: "Toggle whether rejected items are shown",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := cache.Open(config.CachePath())
		if err != nil {
			return fmt.Errorf("opening cache: %w", err)
		}
		defer db.Close()

		if len(args) == 0 {
			hide, err := db.HideRejected()
			if err != nil {
				return fmt.Errorf("reading display preference: %w", err)
			}
			if hide {
				fmt.Println("Rejected items are hidden.")
			} else {
				fmt.Println("Rejected items are shown.")
			}
			return nil
		}

		var hide bool
		switch args[0] {
		case "on":
			hide = true
		case "off":
			hide = false
		default:
			return fmt.Errorf("expected on or off, got %q", args[0])
		}

		if err := db.SetHideRejected(hide); err != nil {
			return fmt.Errorf("saving display preference: %w", err)
		}
		return nil
	},
}

func joinOrNone(tags []string) string {
	if len(tags) == 0 {
		return "(none)"
	}
	return strings.Join(tags, ", ")
}

func init() {
	tagsSetCmd.Flags().StringSliceVar(&flagTagsInclude, "include", nil, "tags an item must carry to be kept")
	tagsSetCmd.Flags().StringSliceVar(&flagTagsExclude, "exclude", nil, "tags that force a reject")
	tagsCmd.AddCommand(tagsSetCmd)
}
