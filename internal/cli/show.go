package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"onchain-intel/internal/app"
)

var showOpts app.ShowOptions

var rankingsCmd = &cobra.Command{
	Use:   "rankings",
	Short: "Display persisted token rankings",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showOpts.Limit < 0 {
			return fmt.Errorf("--limit must not be negative")
		}
		return getApp().Show(cmd.Context(), showOpts)
	},
}

func init() {
	rankingsCmd.Flags().StringVar(&showOpts.Bucket, "bucket", "", "Only show one bucket (BUY, WATCH, SELL)")
	rankingsCmd.Flags().StringVar(&showOpts.Symbol, "symbol", "", "Show the ranking of one symbol")
	rankingsCmd.Flags().BoolVar(&showOpts.Movers, "movers", false, "Order by momentum score")
	rankingsCmd.Flags().IntVar(&showOpts.Limit, "limit", 0, "Maximum rows (defaults to ranking.max_per_bucket)")
	rankingsCmd.Flags().BoolVar(&showOpts.JSON, "json", false, "Print JSON instead of a table")
}
