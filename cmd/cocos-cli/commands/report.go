package commands

import (
	"fmt"
	"log/slog"

	"cocos-collector/lib/serviceutil"
	"cocos-collector/services/analyzer"
	"cocos-collector/services/reporter"

	"github.com/spf13/cobra"
)

var reportSend *bool

func init() {
	reportSend = reportCmd.Flags().Bool("send", false, "Also deliver the report over the configured SMTP.")
	rootCmd.AddCommand(reportCmd)
}

var reportCmd = &cobra.Command{
	Use:   "report [--send]",
	Short: "Generates the weekly report and writes the JSON and text exports.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := readConfig()
		repo, _ := openRepository(cfg)
		service := reporter.NewService(analyzer.NewService(repo), repo, cfg.Reporter)
		ctx := cmd.Context()

		report, err := service.Generate(ctx)
		if err != nil {
			serviceutil.Fatal("failed to generate report", err)
		}

		jsonPath, textPath, err := service.Export(ctx, report)
		if err != nil {
			serviceutil.Fatal("failed to export report", err)
		}
		fmt.Println(reporter.Render(report))
		slog.Info("report written", "json", jsonPath, "text", textPath)

		if *reportSend {
			err = service.SendEmail(ctx, report)
			if err != nil {
				serviceutil.Fatal("failed to email report", err)
			}
			slog.Info("report emailed")
		}
	},
}
