package commands

import (
	"fmt"
	"os"

	"cocos-collector/lib/serviceutil"
	"cocos-collector/services/analyzer"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var analyzeWindow *int

func init() {
	analyzeWindow = analyzeCmd.Flags().Int("window", analyzer.DefaultWindowDays, "Analysis window in days.")
	rootCmd.AddCommand(analyzeCmd)
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [--window <days>]",
	Short: "Prints risk, performance and concentration metrics from the collected history.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := readConfig()
		repo, _ := openRepository(cfg)
		service := analyzer.NewService(repo)
		ctx := cmd.Context()

		risk, err := service.RiskMetrics(ctx, *analyzeWindow)
		if err != nil {
			serviceutil.Fatal("failed to compute risk metrics", err)
		}
		perf, err := service.Performance(ctx, *analyzeWindow)
		if err != nil {
			serviceutil.Fatal("failed to compute performance", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Metric", "Value"})
		t.AppendRow(table.Row{"Data points", risk.DataPoints})
		t.AppendRow(table.Row{"Annualized volatility", fmt.Sprintf("%.2f%%", risk.Volatility)})
		t.AppendRow(table.Row{"Max drawdown", fmt.Sprintf("%.2f%%", risk.MaxDrawdown)})
		t.AppendRow(table.Row{"Sharpe ratio", fmt.Sprintf("%.2f", risk.SharpeRatio)})
		t.AppendRow(table.Row{"VaR 95%", fmt.Sprintf("%.2f%%", risk.VaR95)})
		t.AppendRow(table.Row{"Window return", fmt.Sprintf("%.2f%%", perf.WindowReturn)})
		t.SetStyle(table.StyleRounded)
		t.Render()

		holdings, err := service.TopHoldings(ctx, 5)
		if err != nil {
			serviceutil.Fatal("failed to compute top holdings", err)
		}

		h := table.NewWriter()
		h.SetOutputMirror(os.Stdout)
		h.AppendHeader(table.Row{"Ticker", "Name", "Value", "Weight"})
		for _, holding := range holdings {
			h.AppendRow(table.Row{
				holding.Ticker, holding.Name,
				fmt.Sprintf("%.2f", holding.Value),
				fmt.Sprintf("%.1f%%", holding.Weight),
			})
		}
		h.SetStyle(table.StyleRounded)
		h.Render()

		health, err := service.HealthScore(ctx)
		if err != nil {
			serviceutil.Fatal("failed to compute health score", err)
		}
		fmt.Printf("Health: %.0f/100 (%s)\n", health.Score, health.Classification)
	},
}
