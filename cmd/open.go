package cmd

import (
	"github.com/spf13/cobra"

	"github.com/dautsuro/shelfsieve/internal/browser"
	"github.com/dautsuro/shelfsieve/internal/config"
)

var openCmd = &cobra.Command{
	Use:   "open [url]",
	Short: "Open an item page in the browser",
	Long:  "Open the given item URL in the default browser, or the configured listing page when no URL is given.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			return browser.Open(args[0])
		}
		cfg, err := config.Load(flagConfig)
		if err != nil {
			return err
		}
		return browser.Open(cfg.ListingURL)
	},
}
