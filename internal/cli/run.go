package cli

import (
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scheduled collection and alerting loop",
	Long: "Polls the quote API for the configured watchlist on the collection " +
		"interval, records price history, and emits drop alerts until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Run(cmd.Context())
	},
}
