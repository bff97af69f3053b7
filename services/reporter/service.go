// Package reporter assembles the weekly report from the analyzer's
// outputs and delivers it: text and JSON exports on disk, optionally
// email.
package reporter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/smtp"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cocos-collector/lib/scrapers/cocos"
	"cocos-collector/lib/telemetry"
	"cocos-collector/lib/timezone"
	"cocos-collector/services/analyzer"
	"cocos-collector/services/collector"

	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel/codes"
)

var tracer = telemetry.Tracer("services/reporter")

type SmtpConfig struct {
	Server       string   `json:"server"`
	Port         int      `json:"port"`
	EmailAddress string   `json:"email_address"`
	Password     string   `json:"password"`
	To           []string `json:"to"`
}

type Config struct {
	OutputDir string `json:"output_dir"`
	// DrawdownAlert is the drawdown percentage (negative) below which
	// an alert fires. Zero means the -15 default.
	DrawdownAlert float64 `json:"drawdown_alert"`
	// HealthAlert is the health score below which an alert fires. Zero
	// means the 50 default.
	HealthAlert float64     `json:"health_alert"`
	Smtp        *SmtpConfig `json:"smtp"`
}

func (c Config) drawdownAlert() float64 {
	if c.DrawdownAlert == 0 {
		return -15
	}
	return c.DrawdownAlert
}

func (c Config) healthAlert() float64 {
	if c.HealthAlert == 0 {
		return 50
	}
	return c.HealthAlert
}

type Service struct {
	analyzer analyzer.Service
	repo     collector.Repository
	cfg      Config
}

func NewService(a analyzer.Service, repo collector.Repository, cfg Config) Service {
	return Service{analyzer: a, repo: repo, cfg: cfg}
}

type KeyPoint struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Kind   string `json:"kind"`
}

type Alert struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type Recommendation struct {
	Action string `json:"action"`
	Detail string `json:"detail"`
}

type Report struct {
	GeneratedAt time.Time `json:"generated_at"`
	Period      string    `json:"period"`
	Version     string    `json:"version"`

	Summary             []KeyPoint `json:"summary"`
	WeeklyChangePercent float64    `json:"weekly_change_percent"`

	Wealth      cocos.Portfolio      `json:"wealth"`
	Risk        analyzer.RiskMetrics `json:"risk"`
	Performance analyzer.Performance `json:"performance"`
	TopHoldings []analyzer.Holding   `json:"top_holdings"`
	Projections analyzer.Projections `json:"projections"`
	Health      analyzer.HealthScore `json:"health"`

	Alerts          []Alert          `json:"alerts"`
	Recommendations []Recommendation `json:"recommendations"`
}

// Generate builds the full weekly report. Sections that need more
// history than exists come back zeroed rather than failing the report:
// a young portfolio still gets its wealth state and summary.
func (s Service) Generate(ctx context.Context) (Report, error) {
	ctx, span := tracer.Start(ctx, "Generate")
	defer span.End()

	latest, _, err := s.repo.Latest(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "no snapshot to report on")
		return Report{}, fmt.Errorf("load latest snapshot: %w", err)
	}

	report := Report{
		GeneratedAt: timezone.Now(),
		Period:      "semanal",
		Version:     collector.ScraperVersion,
		Wealth:      latest,
	}

	weekly, err := s.analyzer.Performance(ctx, 7)
	if err != nil && !errors.Is(err, analyzer.ErrInsufficientData) {
		return Report{}, err
	}
	report.WeeklyChangePercent = weekly.WindowReturn

	report.Risk, err = s.analyzer.RiskMetrics(ctx, analyzer.DefaultWindowDays)
	if errors.Is(err, analyzer.ErrInsufficientData) {
		report.Risk = analyzer.RiskMetrics{}
	} else if err != nil {
		return Report{}, err
	}

	report.Performance, err = s.analyzer.Performance(ctx, analyzer.DefaultWindowDays)
	if err != nil && !errors.Is(err, analyzer.ErrInsufficientData) {
		return Report{}, err
	}

	report.TopHoldings, err = s.analyzer.TopHoldings(ctx, 5)
	if err != nil {
		return Report{}, err
	}

	report.Projections, err = s.analyzer.Projections(ctx, analyzer.DefaultHorizons, analyzer.DefaultWindowDays)
	if err != nil && !errors.Is(err, analyzer.ErrInsufficientData) {
		return Report{}, err
	}

	report.Health, err = s.analyzer.HealthScore(ctx)
	if err != nil {
		return Report{}, err
	}

	report.Summary = s.summarize(report)
	report.Alerts = s.alerts(report)
	report.Recommendations = s.recommendations(report)

	slog.InfoContext(ctx, "weekly report generated",
		"total", report.Wealth.TotalValue.String(),
		"alerts", len(report.Alerts),
	)
	return report, nil
}

func (s Service) summarize(report Report) []KeyPoint {
	points := []KeyPoint{{
		Title:  fmt.Sprintf("Portfolio en estado %s", report.Health.Classification),
		Detail: fmt.Sprintf("Score de salud: %.0f/100", report.Health.Score),
		Kind:   "info",
	}}

	if report.WeeklyChangePercent >= 0 {
		points = append(points, KeyPoint{
			Title:  fmt.Sprintf("Ganancia semanal: +%.2f%%", report.WeeklyChangePercent),
			Detail: fmt.Sprintf("Valor actual: $ %s", report.Wealth.TotalValue.StringFixed(2)),
			Kind:   "positivo",
		})
	} else {
		points = append(points, KeyPoint{
			Title:  fmt.Sprintf("Pérdida semanal: %.2f%%", report.WeeklyChangePercent),
			Detail: fmt.Sprintf("Valor actual: $ %s", report.Wealth.TotalValue.StringFixed(2)),
			Kind:   "negativo",
		})
	}

	if report.Risk.MaxDrawdown < s.cfg.drawdownAlert() {
		points = append(points, KeyPoint{
			Title:  fmt.Sprintf("Drawdown significativo: %.2f%%", report.Risk.MaxDrawdown),
			Detail: "Considerar reducir riesgo",
			Kind:   "warning",
		})
	} else {
		points = append(points, KeyPoint{
			Title:  "Riesgo controlado",
			Detail: fmt.Sprintf("Volatilidad: %.2f%% anual", report.Risk.Volatility),
			Kind:   "positivo",
		})
	}
	return points
}

func (s Service) alerts(report Report) []Alert {
	var alerts []Alert
	if report.Risk.MaxDrawdown < s.cfg.drawdownAlert() {
		alerts = append(alerts, Alert{
			Kind:    "riesgo",
			Message: fmt.Sprintf("Drawdown alto: %.2f%%", report.Risk.MaxDrawdown),
		})
	}
	if report.Health.Score < s.cfg.healthAlert() {
		alerts = append(alerts, Alert{
			Kind:    "salud",
			Message: fmt.Sprintf("Score de salud bajo: %.0f/100", report.Health.Score),
		})
	}
	return alerts
}

func (s Service) recommendations(report Report) []Recommendation {
	var recs []Recommendation
	if report.Performance.WindowReturn < 0 {
		recs = append(recs, Recommendation{
			Action: "review_alloc",
			Detail: "Revisar asignación por bajo rendimiento",
		})
	}
	for _, alert := range report.Alerts {
		if alert.Kind == "riesgo" {
			recs = append(recs, Recommendation{
				Action: "reduce_risk",
				Detail: "Considerar reducir exposición en activos volátiles",
			})
		}
	}
	return recs
}

// Export writes the report to OutputDir as JSON and rendered text,
// returning both paths.
func (s Service) Export(ctx context.Context, report Report) (jsonPath, textPath string, err error) {
	err = os.MkdirAll(s.cfg.OutputDir, 0o755)
	if err != nil {
		return "", "", err
	}

	stamp := report.GeneratedAt.Format("20060102_150405")

	encoded, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", "", err
	}
	jsonPath = filepath.Join(s.cfg.OutputDir, fmt.Sprintf("reporte_%s.json", stamp))
	err = os.WriteFile(jsonPath, encoded, 0o644)
	if err != nil {
		return "", "", err
	}

	textPath = filepath.Join(s.cfg.OutputDir, fmt.Sprintf("reporte_%s.txt", stamp))
	err = os.WriteFile(textPath, []byte(Render(report)), 0o644)
	if err != nil {
		return "", "", err
	}

	slog.InfoContext(ctx, "report exported", "json", jsonPath, "text", textPath)
	return jsonPath, textPath, nil
}

// SendEmail delivers the rendered report over SMTP. No-op when SMTP is
// not configured.
func (s Service) SendEmail(ctx context.Context, report Report) error {
	ctx, span := tracer.Start(ctx, "SendEmail")
	defer span.End()

	if s.cfg.Smtp == nil {
		slog.InfoContext(ctx, "smtp not configured, skipping email delivery")
		return nil
	}
	cfg := s.cfg.Smtp

	mail := email.NewEmail()
	mail.From = fmt.Sprintf("Cocos Collector <%s>", cfg.EmailAddress)
	mail.To = cfg.To
	mail.Subject = fmt.Sprintf("Reporte semanal %s", report.GeneratedAt.Format("2006-01-02"))
	mail.Text = []byte(Render(report))

	addr := fmt.Sprintf("%s:%d", cfg.Server, cfg.Port)
	err := mail.Send(addr, smtp.PlainAuth("", cfg.EmailAddress, cfg.Password, cfg.Server))
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(addr, nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send report email")
		return err
	}
	return nil
}
