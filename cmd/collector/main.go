package main

import (
	"context"
	"log/slog"
	"time"

	"cocos-collector/lib/browser"
	"cocos-collector/lib/configutil"
	"cocos-collector/lib/rawstore"
	"cocos-collector/lib/relay"
	"cocos-collector/lib/scrapers/cocos"
	"cocos-collector/lib/serviceutil"
	"cocos-collector/lib/sqliteutil"
	"cocos-collector/lib/telemetry"
	"cocos-collector/lib/timezone"
	"cocos-collector/services/collector"
	collectordb "cocos-collector/services/collector/db"
)

type Config struct {
	Database sqliteutil.Config `json:"database"`
	// RawDir is where raw snapshot envelopes accumulate.
	RawDir         string                 `json:"raw_dir"`
	DiagnosticsDir string                 `json:"diagnostics_dir"`
	Browser        browser.Options        `json:"browser"`
	Telegram       *relay.TelegramOptions `json:"telegram"`
	Collector      collector.Config       `json:"collector"`
	// CollectHour is the local hour (Buenos Aires) at which the daily
	// collection runs.
	CollectHour int `json:"collect_hour"`
}

func newScraperFactory(cfg Config, r relay.Relay) func() (collector.Scraper, error) {
	return func() (collector.Scraper, error) {
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
}

// collectWorker fires one collection per day in the configured hour.
// The day dedup matters: each run can interrupt the operator with an
// MFA request, so ticking through the hour must not repeat it.
func collectWorker(ctx context.Context, service collector.Service, hour int) {
	ticker := time.NewTicker(time.Minute * 10)
	defer ticker.Stop()

	lastDay := ""
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := timezone.Now()
			if now.Hour() != hour {
				continue
			}
			day := now.Format("2006-01-02")
			if day == lastDay {
				continue
			}
			lastDay = day

			err := service.CollectSnapshot(ctx)
			if err != nil {
				slog.ErrorContext(ctx, "scheduled collection failed", "err", err)
				continue
			}
			slog.InfoContext(ctx, "scheduled collection succeeded", "day", day)
		}
	}
}

func main() {
	ctx := serviceutil.SignalContext()
	telemetry.InitSlog(false)

	config, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}

	database, err := config.Database.OpenDB(collectordb.Schema)
	if err != nil {
		serviceutil.Fatal("failed to open database", err)
	}

	t, err := telemetry.SetupFromEnv(ctx, "collector")
	if err != nil {
		serviceutil.Fatal("failed to setup telemetry", err)
	}
	defer t.Shutdown(context.Background())
	telemetry.InstrumentPerfStats(ctx)

	store, err := rawstore.NewStore(config.RawDir)
	if err != nil {
		serviceutil.Fatal("failed to open raw snapshot store", err)
	}

	var r relay.Relay
	if config.Telegram != nil {
		r = relay.NewTelegram(*config.Telegram)
	}

	service := collector.NewService(
		newScraperFactory(config, r),
		store,
		collector.NewRepository(database),
		r,
		config.Collector,
	)
	go collectWorker(ctx, service, config.CollectHour)

	<-ctx.Done()
}
