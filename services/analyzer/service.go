// Package analyzer derives risk, performance, concentration and
// projection figures from the collected snapshot history. All math
// happens on float64: these are statistical estimates, not ledger
// amounts.
package analyzer

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sort"

	"cocos-collector/lib/telemetry"
	"cocos-collector/lib/timezone"
	"cocos-collector/services/collector"
)

var tracer = telemetry.Tracer("services/analyzer")

// ErrInsufficientData means the history is too short for the requested
// figure to be statistically meaningful.
var ErrInsufficientData = errors.New("not enough snapshots for this analysis")

const (
	// minRiskPoints is the floor below which risk metrics are noise.
	minRiskPoints = 10
	// minProjectionPoints is the floor for calibrating projections.
	minProjectionPoints = 30
)

type Service struct {
	repo collector.Repository
}

func NewService(repo collector.Repository) Service {
	return Service{repo: repo}
}

func (s Service) history(ctx context.Context, windowDays int) ([]collector.HistoryPoint, error) {
	after := timezone.Now().AddDate(0, 0, -windowDays)
	return s.repo.History(ctx, after)
}

func values(points []collector.HistoryPoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.TotalValue.InexactFloat64()
	}
	return out
}

type RiskMetrics struct {
	WindowDays int     `json:"window_days"`
	DataPoints int     `json:"data_points"`
	Volatility float64 `json:"volatility"`
	// MaxDrawdown is the deepest peak-to-trough decline, in percent,
	// zero or negative.
	MaxDrawdown float64 `json:"max_drawdown"`
	SharpeRatio float64 `json:"sharpe_ratio"`
	// VaR95 is the 5th percentile of daily returns, in percent.
	VaR95 float64 `json:"var_95"`
}

// RiskMetrics computes annualized volatility, max drawdown, Sharpe
// ratio (rf = 0) and historical VaR over the given window.
func (s Service) RiskMetrics(ctx context.Context, windowDays int) (RiskMetrics, error) {
	ctx, span := tracer.Start(ctx, "RiskMetrics")
	defer span.End()

	points, err := s.history(ctx, windowDays)
	if err != nil {
		span.RecordError(err)
		return RiskMetrics{}, err
	}
	if len(points) < minRiskPoints {
		return RiskMetrics{DataPoints: len(points)}, ErrInsufficientData
	}

	series := values(points)
	returns := dailyReturns(series)
	sigma := stddev(returns)
	mu := mean(returns)

	sharpe := 0.0
	if sigma != 0 {
		sharpe = mu / sigma * math.Sqrt(tradingDaysPerYear)
	}

	metrics := RiskMetrics{
		WindowDays:  windowDays,
		DataPoints:  len(points),
		Volatility:  sigma * math.Sqrt(tradingDaysPerYear) * 100,
		MaxDrawdown: maxDrawdown(series),
		SharpeRatio: sharpe,
		VaR95:       percentile(returns, 5) * 100,
	}

	slog.InfoContext(ctx, "risk metrics calculated",
		"volatility", metrics.Volatility,
		"max_drawdown", metrics.MaxDrawdown,
		"data_points", metrics.DataPoints,
	)
	return metrics, nil
}

type Performance struct {
	WindowDays int `json:"window_days"`
	// WindowReturn is the start-to-end change over the window, in
	// percent.
	WindowReturn float64 `json:"window_return"`
}

func (s Service) Performance(ctx context.Context, windowDays int) (Performance, error) {
	points, err := s.history(ctx, windowDays)
	if err != nil {
		return Performance{}, err
	}
	if len(points) < 2 {
		return Performance{}, ErrInsufficientData
	}

	start := points[0].TotalValue.InexactFloat64()
	end := points[len(points)-1].TotalValue.InexactFloat64()
	if start == 0 {
		return Performance{WindowDays: windowDays}, nil
	}
	return Performance{
		WindowDays:   windowDays,
		WindowReturn: (end/start - 1) * 100,
	}, nil
}

// Scenario is one projected outcome at a horizon. Probability is the
// nominal tail probability of the band under a normal assumption.
type Scenario struct {
	Name           string  `json:"name"`
	Value          float64 `json:"value"`
	ChangePercent  float64 `json:"change_percent"`
	ChangeAbsolute float64 `json:"change_absolute"`
	Probability    string  `json:"probability"`
}

type Horizon struct {
	Weeks     int        `json:"weeks"`
	Scenarios []Scenario `json:"scenarios"`
}

type Projections struct {
	CurrentValue       float64   `json:"current_value"`
	AnalysisPeriodDays int       `json:"analysis_period_days"`
	TrendSlopeDaily    float64   `json:"trend_slope_daily"`
	TrendConfidence    float64   `json:"trend_confidence"`
	MeanDailyReturn    float64   `json:"mean_daily_return"`
	StdDailyReturn     float64   `json:"std_daily_return"`
	Horizons           []Horizon `json:"horizons"`
}

// Projections generates five scenarios per horizon: compounded mean
// return shifted by ±1σ and ±2σ, plus the linear trend as the base
// case. Ranges, not point estimates.
func (s Service) Projections(ctx context.Context, weeksAhead []int, windowDays int) (Projections, error) {
	ctx, span := tracer.Start(ctx, "Projections")
	defer span.End()

	points, err := s.history(ctx, windowDays)
	if err != nil {
		span.RecordError(err)
		return Projections{}, err
	}
	if len(points) < minProjectionPoints {
		return Projections{}, ErrInsufficientData
	}

	series := values(points)
	returns := dailyReturns(series)
	mu := mean(returns)
	sigma := stddev(returns)
	current := series[len(series)-1]

	origin := points[0].Time
	xs := make([]float64, len(points))
	for i, p := range points {
		xs[i] = math.Floor(p.Time.Sub(origin).Hours() / 24)
	}
	slope, intercept, r2 := linearRegression(xs, series)
	lastDay := xs[len(xs)-1]

	projections := Projections{
		CurrentValue:       current,
		AnalysisPeriodDays: len(points),
		TrendSlopeDaily:    slope,
		TrendConfidence:    r2,
		MeanDailyReturn:    mu,
		StdDailyReturn:     sigma,
	}

	for _, weeks := range weeksAhead {
		daysAhead := float64(weeks * 7)
		compound := func(shift float64) float64 {
			return current * math.Pow(1+mu+shift*sigma, daysAhead)
		}
		base := intercept + slope*(lastDay+daysAhead)

		scenario := func(name string, value float64, probability string) Scenario {
			return Scenario{
				Name:           name,
				Value:          value,
				ChangePercent:  (value - current) / current * 100,
				ChangeAbsolute: value - current,
				Probability:    probability,
			}
		}
		projections.Horizons = append(projections.Horizons, Horizon{
			Weeks: weeks,
			Scenarios: []Scenario{
				scenario("mejor_caso", compound(2), "2.5%"),
				scenario("optimista", compound(1), "16%"),
				scenario("base", base, "50%"),
				scenario("pesimista", compound(-1), "16%"),
				scenario("estres", compound(-2), "2.5%"),
			},
		})
	}

	slog.InfoContext(ctx, "projections generated",
		"horizons", len(projections.Horizons),
		"trend_confidence", r2,
	)
	return projections, nil
}

type Holding struct {
	Ticker string  `json:"ticker"`
	Name   string  `json:"name"`
	Value  float64 `json:"value"`
	// Weight is the share of the summed position valuations, in
	// percent.
	Weight float64 `json:"weight"`
}

// TopHoldings returns the n largest positions of the latest snapshot by
// valuation, with their weight in the invested total.
func (s Service) TopHoldings(ctx context.Context, n int) ([]Holding, error) {
	latest, _, err := s.repo.Latest(ctx)
	if err != nil {
		return nil, err
	}

	invested := 0.0
	holdings := make([]Holding, 0, len(latest.Positions))
	for _, p := range latest.Positions {
		value := p.Valuation.InexactFloat64()
		invested += value
		holdings = append(holdings, Holding{
			Ticker: p.Ticker,
			Name:   p.Name,
			Value:  value,
		})
	}
	sort.Slice(holdings, func(i, j int) bool {
		return holdings[i].Value > holdings[j].Value
	})
	if len(holdings) > n {
		holdings = holdings[:n]
	}
	if invested > 0 {
		for i := range holdings {
			holdings[i].Weight = holdings[i].Value / invested * 100
		}
	}
	return holdings, nil
}

type HealthScore struct {
	Score          float64 `json:"score"`
	Classification string  `json:"classification"`
}

// HealthScore grades diversification: more positions score higher,
// clamped to [0, 100].
func (s Service) HealthScore(ctx context.Context) (HealthScore, error) {
	latest, _, err := s.repo.Latest(ctx)
	if err != nil {
		return HealthScore{Classification: "desconocido"}, err
	}
	if len(latest.Positions) == 0 {
		return HealthScore{Classification: "desconocido"}, nil
	}

	score := math.Max(0, math.Min(100, 60+float64(len(latest.Positions))*2))
	classification := "malo"
	switch {
	case score >= 75:
		classification = "bueno"
	case score >= 50:
		classification = "regular"
	}
	return HealthScore{Score: score, Classification: classification}, nil
}

// DefaultWindowDays is the analysis window used by the reporter and
// the CLI.
const DefaultWindowDays = 90

// DefaultHorizons are the projection horizons, in weeks.
var DefaultHorizons = []int{4, 12}
