package reporter

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"cocos-collector/lib/scrapers/cocos"
	"cocos-collector/lib/testutil"
	"cocos-collector/lib/timezone"
	"cocos-collector/services/analyzer"
	"cocos-collector/services/collector"
	"cocos-collector/services/collector/db"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func setupReporter(t *testing.T, cfg Config) (Service, collector.Repository, func()) {
	setup, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "services/reporter",
		DbSchema: db.Schema,
	})
	repo := collector.NewRepository(setup.DB)
	service := NewService(analyzer.NewService(repo), repo, cfg)
	return service, repo, cleanup
}

func seedGrowth(t *testing.T, repo collector.Repository, days int) {
	ctx := context.Background()
	now := timezone.Now()
	for i := 0; i < days; i++ {
		portfolio := cocos.Portfolio{
			Timestamp:  now.AddDate(0, 0, i-days+1),
			TotalValue: decimal.NewFromInt(int64(100000 + i*50)),
			Currency:   "ARS",
		}
		if i == days-1 {
			portfolio.Positions = []cocos.Position{
				{
					Ticker: "AAPL", Name: "Apple Inc.", Quantity: 2,
					UnitPrice: decimal.RequireFromString("190"), Valuation: decimal.RequireFromString("380"),
					PnlPercent: decimal.RequireFromString("2.1"), Currency: "USD",
				},
				{
					Ticker: "NVDA", Name: "NVIDIA Corporation", Quantity: 1,
					UnitPrice: decimal.RequireFromString("120"), Valuation: decimal.RequireFromString("120"),
					PnlPercent: decimal.RequireFromString("-0.4"), Currency: "USD",
				},
			}
		}
		_, err := repo.SaveSnapshot(ctx, portfolio, "test", "ref")
		require.NoError(t, err)
	}
}

func TestGenerateFullReport(t *testing.T) {
	service, repo, cleanup := setupReporter(t, Config{OutputDir: t.TempDir()})
	defer cleanup()
	seedGrowth(t, repo, 40)

	report, err := service.Generate(context.Background())
	require.NoError(t, err)

	require.Equal(t, "semanal", report.Period)
	require.Len(t, report.Summary, 3)
	require.Greater(t, report.WeeklyChangePercent, 0.0)
	require.Len(t, report.Wealth.Positions, 2)
	require.Greater(t, report.Risk.DataPoints, 0)
	require.Len(t, report.Projections.Horizons, 2)
	require.Len(t, report.TopHoldings, 2)
	require.Equal(t, "AAPL", report.TopHoldings[0].Ticker)

	// steadily growing portfolio with a regular health score: the only
	// alert candidate is health, 60 + 2*2 = 64 >= 50 default
	require.Empty(t, report.Alerts)
	require.Empty(t, report.Recommendations)
}

func TestGenerateYoungPortfolio(t *testing.T) {
	service, repo, cleanup := setupReporter(t, Config{OutputDir: t.TempDir()})
	defer cleanup()
	seedGrowth(t, repo, 3)

	report, err := service.Generate(context.Background())
	require.NoError(t, err)

	// not enough history for risk or projections, sections come back
	// zeroed but the report still exists
	require.Equal(t, 0, report.Risk.DataPoints)
	require.Empty(t, report.Projections.Horizons)
	require.Len(t, report.Summary, 3)
}

func TestGenerateWithoutSnapshotsFails(t *testing.T) {
	service, _, cleanup := setupReporter(t, Config{OutputDir: t.TempDir()})
	defer cleanup()

	_, err := service.Generate(context.Background())
	require.Error(t, err)
}

func TestHealthAlertFires(t *testing.T) {
	service, repo, cleanup := setupReporter(t, Config{
		OutputDir:   t.TempDir(),
		HealthAlert: 70,
	})
	defer cleanup()
	seedGrowth(t, repo, 40)

	report, err := service.Generate(context.Background())
	require.NoError(t, err)

	// two positions score 64, below the configured floor
	require.Len(t, report.Alerts, 1)
	require.Equal(t, "salud", report.Alerts[0].Kind)
}

func TestExport(t *testing.T) {
	out := t.TempDir()
	service, repo, cleanup := setupReporter(t, Config{OutputDir: out})
	defer cleanup()
	seedGrowth(t, repo, 40)

	ctx := context.Background()
	report, err := service.Generate(ctx)
	require.NoError(t, err)

	jsonPath, textPath, err := service.Export(ctx, report)
	require.NoError(t, err)

	encoded, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	var back Report
	require.NoError(t, json.Unmarshal(encoded, &back))
	require.Equal(t, report.Period, back.Period)

	text, err := os.ReadFile(textPath)
	require.NoError(t, err)
	require.Contains(t, string(text), "REPORTE SEMANAL")
	require.Contains(t, string(text), "AAPL")
}

func TestRenderSections(t *testing.T) {
	service, repo, cleanup := setupReporter(t, Config{OutputDir: t.TempDir()})
	defer cleanup()
	seedGrowth(t, repo, 40)

	report, err := service.Generate(context.Background())
	require.NoError(t, err)

	text := Render(report)
	require.Contains(t, text, "RESUMEN EJECUTIVO")
	require.Contains(t, text, "ESTADO DEL PATRIMONIO")
	require.Contains(t, text, "MÉTRICAS DE RIESGO")
	require.Contains(t, text, "PROYECCIONES")
	require.Contains(t, text, "mejor_caso")
	for _, line := range strings.Split(text, "\n") {
		require.NotContains(t, line, "%!")
	}
}

func TestSendEmailWithoutSmtpIsNoop(t *testing.T) {
	service, repo, cleanup := setupReporter(t, Config{OutputDir: t.TempDir()})
	defer cleanup()
	seedGrowth(t, repo, 3)

	report, err := service.Generate(context.Background())
	require.NoError(t, err)
	require.NoError(t, service.SendEmail(context.Background(), report))
}
