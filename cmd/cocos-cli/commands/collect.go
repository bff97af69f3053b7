package commands

import (
	"log/slog"

	"cocos-collector/lib/browser"
	"cocos-collector/lib/rawstore"
	"cocos-collector/lib/relay"
	"cocos-collector/lib/scrapers/cocos"
	"cocos-collector/lib/serviceutil"
	"cocos-collector/services/collector"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(collectCmd)
}

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Runs one collection: login, extract, persist raw and normalized snapshots.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := readConfig()
		repo, _ := openRepository(cfg)

		store, err := rawstore.NewStore(cfg.RawDir)
		if err != nil {
			serviceutil.Fatal("failed to open raw snapshot store", err)
		}

		var r relay.Relay
		if cfg.Telegram != nil {
			r = relay.NewTelegram(*cfg.Telegram)
		}

		newScraper := func() (collector.Scraper, error) {
			driver, err := browser.NewRod(cfg.Browser)
			if err != nil {
				return nil, err
			}
			opts := cocos.DefaultOptions()
			if cfg.DiagnosticsDir != "" {
				opts.DiagnosticsDir = cfg.DiagnosticsDir
			}
			return cocos.NewClient(driver, r, opts), nil
		}

		service := collector.NewService(newScraper, store, repo, r, cfg.Collector)
		err = service.CollectSnapshot(cmd.Context())
		if err != nil {
			serviceutil.Fatal("collection failed", err)
		}
		slog.Info("collection complete")
	},
}
