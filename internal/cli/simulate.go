package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"nasdaq-drop-alerts/internal/app"
)

var (
	simulateSymbol    string
	simulatePrice     float64
	simulateClose     float64
	simulateBenchmark float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一次异常下跌并触发告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateSymbol == "" {
			return errors.New("--symbol 必须提供")
		}
		if simulatePrice <= 0 || simulateClose <= 0 {
			return errors.New("--price 与 --previous-close 必须大于 0")
		}

		opts := app.SimulateOptions{
			Symbol:          simulateSymbol,
			Price:           simulatePrice,
			PreviousClose:   simulateClose,
			BenchmarkChange: simulateBenchmark,
		}
		return getApp().SimulateAlert(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateSymbol, "symbol", "", "Symbol to simulate")
	simulateCmd.Flags().Float64Var(&simulatePrice, "price", 0, "当前价格")
	simulateCmd.Flags().Float64Var(&simulateClose, "previous-close", 0, "昨日收盘价")
	simulateCmd.Flags().Float64Var(&simulateBenchmark, "benchmark-change", 0, "基准指数涨跌幅（百分比）")
}
