package cli

import (
	"github.com/spf13/cobra"
)

var simulateJSON bool

var simulateCmd = &cobra.Command{
	Use:   "simulate-ranking <tokens.json|->",
	Short: "Rank a JSON token list without touching storage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SimulateRanking(args[0], simulateJSON)
	},
}

func init() {
	simulateCmd.Flags().BoolVar(&simulateJSON, "json", false, "Print JSON records instead of a table")
}
