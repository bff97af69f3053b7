package cocos

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"cocos-collector/lib/browser"
	"cocos-collector/lib/moneyfmt"
	"cocos-collector/lib/timezone"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/codes"
)

// Position is one holding as rendered by the app, before any
// normalization.
type Position struct {
	Ticker     string          `json:"ticker"`
	Name       string          `json:"name"`
	Quantity   int64           `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Valuation  decimal.Decimal `json:"valuation"`
	PnlPercent decimal.Decimal `json:"pnl_percent"`
	Currency   string          `json:"currency"`
}

// Portfolio is the result of one extraction run. TotalValue may be a
// backfilled sum of valuations when the header total could not be read.
type Portfolio struct {
	Timestamp  time.Time       `json:"timestamp"`
	TotalValue decimal.Decimal `json:"total_value"`
	Currency   string          `json:"currency"`
	Positions  []Position      `json:"positions"`
}

// headerWindow caps how much leading text is treated as the header when
// the section marker is missing from the page.
const headerWindow = 500

// Extract navigates to the portfolio view and recovers holdings from
// the rendered body text. The page text is read exactly once so the
// total and the positions always describe the same render.
func (c *Client) Extract(ctx context.Context) (Portfolio, error) {
	ctx, span := tracer.Start(ctx, "client:Extract")
	defer span.End()

	if !c.loggedIn {
		return Portfolio{}, ErrNotLoggedIn
	}

	err := c.driver.Navigate(c.opts.PortfolioUrl)
	if err != nil {
		span.RecordError(err)
		return Portfolio{}, err
	}

	// the SPA keeps painting after the load event; waiting for the
	// section marker doubles as a settle delay. A timeout here is not
	// fatal, extraction decides below whether anything usable rendered.
	err = c.driver.WaitText(c.opts.SectionMarker, c.opts.SettleTimeout)
	if err != nil && !errors.Is(err, browser.ErrWaitTimeout) {
		span.RecordError(err)
		return Portfolio{}, err
	}

	text, err := c.driver.Text()
	if err != nil {
		span.RecordError(err)
		return Portfolio{}, err
	}

	portfolio := parsePortfolio(text, c.opts)
	portfolio.Timestamp = timezone.Now()

	if portfolio.TotalValue.IsZero() && len(portfolio.Positions) == 0 {
		c.dumpDiagnostics(ctx, "empty_extraction")
		span.SetStatus(codes.Error, "empty extraction")
		return Portfolio{}, ErrNoData
	}

	slog.InfoContext(ctx, "portfolio extracted",
		"total", moneyfmt.Format(portfolio.TotalValue),
		"positions", len(portfolio.Positions),
	)
	return portfolio, nil
}

func parsePortfolio(text string, opts Options) Portfolio {
	portfolio := Portfolio{Currency: opts.TotalCurrency}

	portfolio.TotalValue = extractTotal(text, opts.SectionMarker)
	portfolio.Positions = extractPositions(text, opts)

	// the header total is the first thing to disappear when the app
	// partially renders; the position valuations are a usable substitute
	if portfolio.TotalValue.IsZero() && len(portfolio.Positions) > 0 {
		sum := decimal.Zero
		for _, p := range portfolio.Positions {
			sum = sum.Add(p.Valuation)
		}
		portfolio.TotalValue = sum
	}

	return portfolio
}

// extractTotal picks the largest amount in the header region. Smaller
// figures there are daily-variation numbers, never the total.
func extractTotal(text, sectionMarker string) decimal.Decimal {
	header := text
	if idx := strings.Index(text, sectionMarker); idx >= 0 {
		header = text[:idx]
	} else if len(header) > headerWindow {
		header = header[:headerWindow]
	}

	total := decimal.Zero
	for _, amount := range moneyfmt.FindAmounts(header) {
		if amount.GreaterThan(total) {
			total = amount
		}
	}
	return total
}

func extractPositions(text string, opts Options) []Position {
	positions := positionsByPattern(text, opts)
	if len(positions) == 0 {
		positions = positionsByTickerScan(text, opts)
	}
	return positions
}

// positionsByPattern matches the exact five-line block the holdings
// table renders per instrument:
//
//	TICKER
//	name
//	quantity
//	$ unit price
//	$ valuation
//	pnl %
func positionsByPattern(text string, opts Options) []Position {
	quoted := make([]string, len(opts.Tickers))
	for i, t := range opts.Tickers {
		quoted[i] = regexp.QuoteMeta(t)
	}
	pattern := regexp.MustCompile(
		`(?m)^(` + strings.Join(quoted, "|") + `)\n` +
			`([^\n]+)\n` +
			`(\d+)\n` +
			`\$\s*([0-9.,]+)\n` +
			`\$\s*([0-9.,]+)\n` +
			`([+-]?[0-9]+,[0-9]+)\s*%`,
	)

	var positions []Position
	for _, m := range pattern.FindAllStringSubmatch(text, -1) {
		position, err := buildPosition(m[1], m[2], m[3], m[4], m[5], m[6], opts.PositionCurrency)
		if err != nil {
			slog.Warn("skipping malformed position block", "ticker", m[1], "err", err)
			continue
		}
		positions = append(positions, position)
	}
	return positions
}

// positionsByTickerScan is the looser fallback when the strict pattern
// finds nothing: locate each ticker as its own line, take the four
// following lines positionally, and look a few lines further for the
// percent figure.
func positionsByTickerScan(text string, opts Options) []Position {
	lines := strings.Split(text, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}

	known := make(map[string]bool, len(opts.Tickers))
	for _, t := range opts.Tickers {
		known[t] = true
	}

	var positions []Position
	for i, line := range lines {
		if !known[line] || i+4 >= len(lines) {
			continue
		}

		percent := ""
		for j := i + 5; j < i+15 && j < len(lines); j++ {
			if _, ok := moneyfmt.FindPercent(lines[j]); ok {
				percent = lines[j]
				break
			}
		}

		position, err := buildPosition(line, lines[i+1], lines[i+2], lines[i+3], lines[i+4], percent, opts.PositionCurrency)
		if err != nil {
			continue
		}
		// positional guessing hits stray zeros near a ticker mention;
		// only rows with real money in them are credible here
		if !position.Valuation.IsPositive() {
			continue
		}
		positions = append(positions, position)
	}
	return positions
}

func buildPosition(ticker, name, quantity, unitPrice, valuation, percent, currency string) (Position, error) {
	qty, err := strconv.ParseInt(strings.TrimSpace(quantity), 10, 64)
	if err != nil {
		return Position{}, fmt.Errorf("quantity: %w", err)
	}
	price, err := moneyfmt.Parse(unitPrice)
	if err != nil {
		return Position{}, fmt.Errorf("unit price: %w", err)
	}
	value, err := moneyfmt.Parse(valuation)
	if err != nil {
		return Position{}, fmt.Errorf("valuation: %w", err)
	}

	pnl := decimal.Zero
	if p, err := moneyfmt.ParsePercent(percent); err == nil {
		pnl = p
	} else if p, ok := moneyfmt.FindPercent(percent); ok {
		pnl = p
	}

	return Position{
		Ticker:     ticker,
		Name:       strings.TrimSpace(name),
		Quantity:   qty,
		UnitPrice:  price,
		Valuation:  value,
		PnlPercent: pnl,
		Currency:   currency,
	}, nil
}
