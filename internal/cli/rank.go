package cli

import (
	"github.com/spf13/cobra"
)

var rankSync bool

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Compute rankings once and persist them",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Rank(cmd.Context(), rankSync)
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Refresh the token universe from CoinGecko",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Sync(cmd.Context())
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Migrate(cmd.Context())
	},
}

func init() {
	rankCmd.Flags().BoolVar(&rankSync, "sync", false, "Refresh the token universe before ranking")
}
