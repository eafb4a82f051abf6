package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"nasdaq-drop-alerts/internal/app"
)

var (
	showAlertLimit int
	showCycleLimit int
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent alerts and collection cycles",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showAlertLimit <= 0 {
			return fmt.Errorf("--alerts must be greater than zero")
		}

		opts := app.ShowOptions{
			AlertLimit: showAlertLimit,
			CycleLimit: showCycleLimit,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().IntVar(&showAlertLimit, "alerts", 20, "Number of alerts to display")
	showCmd.Flags().IntVar(&showCycleLimit, "cycles", 10, "Number of cycle audits to display (0 to skip)")
}
