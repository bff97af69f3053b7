package commands

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"cocos-collector/lib/browser"
	"cocos-collector/lib/configutil"
	"cocos-collector/lib/relay"
	"cocos-collector/lib/serviceutil"
	"cocos-collector/lib/sqliteutil"
	"cocos-collector/services/collector"
	collectordb "cocos-collector/services/collector/db"
	"cocos-collector/services/reporter"

	"github.com/spf13/cobra"
)

type Config struct {
	Database       sqliteutil.Config      `json:"database"`
	RawDir         string                 `json:"raw_dir"`
	DiagnosticsDir string                 `json:"diagnostics_dir"`
	Browser        browser.Options        `json:"browser"`
	Telegram       *relay.TelegramOptions `json:"telegram"`
	Collector      collector.Config       `json:"collector"`
	Reporter       reporter.Config        `json:"reporter"`
}

var rootCmd = &cobra.Command{
	Use:   "cocos-cli",
	Short: "cocos-cli collects, analyzes and reports on brokerage portfolio snapshots.",
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func readConfig() Config {
	cfg, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}
	return cfg
}

func openRepository(cfg Config) (collector.Repository, *sql.DB) {
	database, err := cfg.Database.OpenDB(collectordb.Schema)
	if err != nil {
		serviceutil.Fatal("failed to open database", err)
	}
	return collector.NewRepository(database), database
}
