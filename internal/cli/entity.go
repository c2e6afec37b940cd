package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"onchain-intel/internal/app"
)

var entityOpts app.EntityOptions

var entityCmd = &cobra.Command{
	Use:   "entity <slug>",
	Short: "Print aggregates of an entity as JSON",
	Long: "Print holdings, flows, bridges, transactions or patterns of an entity.\n" +
		"Without --op the full profile is computed.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entityOpts.Slug = strings.TrimSpace(args[0])
		return getApp().Entity(cmd.Context(), entityOpts)
	},
}

func init() {
	entityCmd.Flags().StringVar(&entityOpts.Operation, "op", "", "holdings | flows | bridges | transactions | patterns")
	entityCmd.Flags().IntVar(&entityOpts.WindowDays, "window", 0, "Flow window in days (defaults to config)")
	entityCmd.Flags().IntVar(&entityOpts.Limit, "limit", 0, "Transaction limit (defaults to config)")
}
