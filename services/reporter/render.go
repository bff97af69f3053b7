package reporter

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Render formats the report as plain text with bordered tables, the
// same shape that goes into the emailed body and the .txt export.
func Render(report Report) string {
	var b strings.Builder

	rule := strings.Repeat("=", 60)
	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, "REPORTE SEMANAL DEL PORTFOLIO")
	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "Fecha: %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04"))

	fmt.Fprintln(&b, "RESUMEN EJECUTIVO")
	for _, point := range report.Summary {
		fmt.Fprintf(&b, "  - %s\n    %s\n", point.Title, point.Detail)
	}
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, "ESTADO DEL PATRIMONIO")
	wealth := newTable()
	wealth.AppendHeader(table.Row{"Ticker", "Nombre", "Cantidad", "Valuación", "PnL %"})
	for _, p := range report.Wealth.Positions {
		wealth.AppendRow(table.Row{
			p.Ticker, p.Name, p.Quantity,
			p.Valuation.StringFixed(2), p.PnlPercent.StringFixed(2),
		})
	}
	wealth.AppendFooter(table.Row{"", "", "Total", report.Wealth.TotalValue.StringFixed(2), ""})
	fmt.Fprintln(&b, wealth.Render())
	fmt.Fprintln(&b)

	if report.Risk.DataPoints > 0 {
		fmt.Fprintln(&b, "MÉTRICAS DE RIESGO")
		risk := newTable()
		risk.AppendHeader(table.Row{"Métrica", "Valor"})
		risk.AppendRow(table.Row{"Volatilidad anual", fmt.Sprintf("%.2f%%", report.Risk.Volatility)})
		risk.AppendRow(table.Row{"Max drawdown", fmt.Sprintf("%.2f%%", report.Risk.MaxDrawdown)})
		risk.AppendRow(table.Row{"Sharpe", fmt.Sprintf("%.2f", report.Risk.SharpeRatio)})
		risk.AppendRow(table.Row{"VaR 95%", fmt.Sprintf("%.2f%%", report.Risk.VaR95)})
		fmt.Fprintln(&b, risk.Render())
		fmt.Fprintln(&b)
	}

	if len(report.Projections.Horizons) > 0 {
		fmt.Fprintln(&b, "PROYECCIONES")
		for _, horizon := range report.Projections.Horizons {
			fmt.Fprintf(&b, "%d semanas:\n", horizon.Weeks)
			projections := newTable()
			projections.AppendHeader(table.Row{"Escenario", "Valor", "Cambio", "Probabilidad"})
			for _, scenario := range horizon.Scenarios {
				projections.AppendRow(table.Row{
					scenario.Name,
					fmt.Sprintf("$ %.2f", scenario.Value),
					fmt.Sprintf("%+.2f%%", scenario.ChangePercent),
					scenario.Probability,
				})
			}
			fmt.Fprintln(&b, projections.Render())
		}
		fmt.Fprintln(&b)
	}

	if len(report.Alerts) > 0 {
		fmt.Fprintln(&b, "ALERTAS")
		for _, alert := range report.Alerts {
			fmt.Fprintf(&b, "  [%s] %s\n", alert.Kind, alert.Message)
		}
		fmt.Fprintln(&b)
	}

	if len(report.Recommendations) > 0 {
		fmt.Fprintln(&b, "RECOMENDACIONES")
		for _, rec := range report.Recommendations {
			fmt.Fprintf(&b, "  - %s\n", rec.Detail)
		}
		fmt.Fprintln(&b)
	}

	fmt.Fprintln(&b, rule)
	return b.String()
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	return t
}
