package cli

import (
	"github.com/spf13/cobra"

	"onchain-intel/internal/app"
)

var warmOpts app.WarmOptions

var warmCmd = &cobra.Command{
	Use:   "warm [slug...]",
	Short: "Precompute cached aggregates for entities",
	RunE: func(cmd *cobra.Command, args []string) error {
		warmOpts.Slugs = args
		return getApp().Warm(cmd.Context(), warmOpts)
	},
}

func init() {
	warmCmd.Flags().IntVar(&warmOpts.WindowDays, "window", 0, "Flow window in days (defaults to config)")
	warmCmd.Flags().IntVar(&warmOpts.Workers, "workers", 2, "Number of entities warmed concurrently")
	warmCmd.Flags().BoolVar(&warmOpts.DryRun, "dry-run", false, "List entities without computing")
}
