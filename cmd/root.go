package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	flagConfig       string
	flagDebug        bool
	flagRefresh      bool
	flagHideRejected bool
)

var rootCmd = &cobra.Command{
	Use:   "shelfsieve",
	Short: "Statistical quality filter for catalog listings",
	Long: "shelfsieve scans a catalog listing (novels, games), fetches rating evidence\n" +
		"for each item, and classifies it keep or reject using confidence bounds and\n" +
		"Bayesian shrinkage. Classifications are cached and reconciled as the listing\n" +
		"changes.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if flagDebug {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
	RunE: runScan,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config file")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging (decision audit trail)")
	rootCmd.Flags().BoolVar(&flagRefresh, "refresh", false, "ignore cached facts and refetch everything")
	rootCmd.Flags().BoolVar(&flagHideRejected, "hide-rejected", false, "omit rejected items from output")

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(decideCmd)
	rootCmd.AddCommand(tagsCmd)
	rootCmd.AddCommand(hideRejectedCmd)
	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("shelfsieve %s (commit: %s, built: %s)\n", version, commit, date)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}
