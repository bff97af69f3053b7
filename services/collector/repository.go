package collector

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"cocos-collector/lib/scrapers/cocos"
	"cocos-collector/lib/timezone"
	"cocos-collector/services/collector/db"

	"github.com/shopspring/decimal"
)

// Repository is the normalized snapshot history. Monetary columns hold
// decimal strings, never floats: the analyzer converts at read time and
// the stored values stay exact.
type Repository struct {
	db  *sql.DB
	qry *db.Queries
}

func NewRepository(database *sql.DB) Repository {
	return Repository{
		db:  database,
		qry: db.New(database),
	}
}

// SaveSnapshot inserts the snapshot and all its positions in one
// transaction. rawRef ties every row back to the audit envelope it was
// normalized from.
func (r Repository) SaveSnapshot(ctx context.Context, portfolio cocos.Portfolio, source, rawRef string) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	txqry := r.qry.WithTx(tx)

	snapshotID, err := txqry.CreateSnapshot(ctx, db.CreateSnapshotParams{
		Time:       portfolio.Timestamp.Unix(),
		TotalValue: portfolio.TotalValue.String(),
		Currency:   portfolio.Currency,
		Source:     source,
		RawRef:     rawRef,
	})
	if err != nil {
		return 0, fmt.Errorf("insert snapshot: %w", err)
	}

	for _, position := range portfolio.Positions {
		err := txqry.CreatePosition(ctx, db.CreatePositionParams{
			SnapshotID: snapshotID,
			Ticker:     position.Ticker,
			Name:       position.Name,
			Quantity:   position.Quantity,
			UnitPrice:  position.UnitPrice.String(),
			Valuation:  position.Valuation.String(),
			PnlPercent: position.PnlPercent.String(),
			Currency:   position.Currency,
		})
		if err != nil {
			return 0, fmt.Errorf("insert position %s: %w", position.Ticker, err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return 0, err
	}
	return snapshotID, nil
}

// HistoryPoint is one (time, total value) observation.
type HistoryPoint struct {
	Time       time.Time
	TotalValue decimal.Decimal
}

// History returns total-value observations at or after the given time,
// oldest first.
func (r Repository) History(ctx context.Context, after time.Time) ([]HistoryPoint, error) {
	rows, err := r.qry.GetSnapshotHistory(ctx, after.Unix())
	if err != nil {
		return nil, err
	}

	points := make([]HistoryPoint, 0, len(rows))
	for _, row := range rows {
		value, err := decimal.NewFromString(row.TotalValue)
		if err != nil {
			return nil, fmt.Errorf("snapshot %d has malformed total %q: %w", row.ID, row.TotalValue, err)
		}
		points = append(points, HistoryPoint{
			Time:       time.Unix(row.Time, 0).In(timezone.Location),
			TotalValue: value,
		})
	}
	return points, nil
}

// Latest returns the newest snapshot with its positions.
func (r Repository) Latest(ctx context.Context) (cocos.Portfolio, string, error) {
	row, err := r.qry.GetLatestSnapshot(ctx)
	if err != nil {
		return cocos.Portfolio{}, "", err
	}

	total, err := decimal.NewFromString(row.TotalValue)
	if err != nil {
		return cocos.Portfolio{}, "", fmt.Errorf("snapshot %d has malformed total %q: %w", row.ID, row.TotalValue, err)
	}

	positionRows, err := r.qry.GetPositionsBySnapshot(ctx, row.ID)
	if err != nil {
		return cocos.Portfolio{}, "", err
	}

	portfolio := cocos.Portfolio{
		Timestamp:  time.Unix(row.Time, 0).In(timezone.Location),
		TotalValue: total,
		Currency:   row.Currency,
	}
	for _, p := range positionRows {
		price, err := decimal.NewFromString(p.UnitPrice)
		if err != nil {
			return cocos.Portfolio{}, "", fmt.Errorf("position %s has malformed price %q: %w", p.Ticker, p.UnitPrice, err)
		}
		valuation, err := decimal.NewFromString(p.Valuation)
		if err != nil {
			return cocos.Portfolio{}, "", fmt.Errorf("position %s has malformed valuation %q: %w", p.Ticker, p.Valuation, err)
		}
		pnl, err := decimal.NewFromString(p.PnlPercent)
		if err != nil {
			return cocos.Portfolio{}, "", fmt.Errorf("position %s has malformed pnl %q: %w", p.Ticker, p.PnlPercent, err)
		}
		portfolio.Positions = append(portfolio.Positions, cocos.Position{
			Ticker:     p.Ticker,
			Name:       p.Name,
			Quantity:   p.Quantity,
			UnitPrice:  price,
			Valuation:  valuation,
			PnlPercent: pnl,
			Currency:   p.Currency,
		})
	}
	return portfolio, row.RawRef, nil
}

// Count reports how many snapshots the repository holds.
func (r Repository) Count(ctx context.Context) (int64, error) {
	return r.qry.CountSnapshots(ctx)
}
