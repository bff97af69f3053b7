package db

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type Snapshot struct {
	ID         int64
	Time       int64
	TotalValue string
	Currency   string
	Source     string
	RawRef     string
}

type Position struct {
	ID         int64
	SnapshotID int64
	Ticker     string
	Name       string
	Quantity   int64
	UnitPrice  string
	Valuation  string
	PnlPercent string
	Currency   string
}

const createSnapshot = `
INSERT INTO snapshot (time, total_value, currency, source, raw_ref)
VALUES (?, ?, ?, ?, ?)
`

type CreateSnapshotParams struct {
	Time       int64
	TotalValue string
	Currency   string
	Source     string
	RawRef     string
}

func (q *Queries) CreateSnapshot(ctx context.Context, arg CreateSnapshotParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, createSnapshot,
		arg.Time, arg.TotalValue, arg.Currency, arg.Source, arg.RawRef)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const createPosition = `
INSERT INTO position (snapshot_id, ticker, name, quantity, unit_price, valuation, pnl_percent, currency)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`

type CreatePositionParams struct {
	SnapshotID int64
	Ticker     string
	Name       string
	Quantity   int64
	UnitPrice  string
	Valuation  string
	PnlPercent string
	Currency   string
}

func (q *Queries) CreatePosition(ctx context.Context, arg CreatePositionParams) error {
	_, err := q.db.ExecContext(ctx, createPosition,
		arg.SnapshotID, arg.Ticker, arg.Name, arg.Quantity,
		arg.UnitPrice, arg.Valuation, arg.PnlPercent, arg.Currency)
	return err
}

const getLatestSnapshot = `
SELECT id, time, total_value, currency, source, raw_ref
FROM snapshot
ORDER BY time DESC
LIMIT 1
`

func (q *Queries) GetLatestSnapshot(ctx context.Context) (Snapshot, error) {
	row := q.db.QueryRowContext(ctx, getLatestSnapshot)
	var s Snapshot
	err := row.Scan(&s.ID, &s.Time, &s.TotalValue, &s.Currency, &s.Source, &s.RawRef)
	return s, err
}

const getSnapshotHistory = `
SELECT id, time, total_value, currency, source, raw_ref
FROM snapshot
WHERE time >= ?
ORDER BY time ASC
`

func (q *Queries) GetSnapshotHistory(ctx context.Context, after int64) ([]Snapshot, error) {
	rows, err := q.db.QueryContext(ctx, getSnapshotHistory, after)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var s Snapshot
		err := rows.Scan(&s.ID, &s.Time, &s.TotalValue, &s.Currency, &s.Source, &s.RawRef)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

const getPositionsBySnapshot = `
SELECT id, snapshot_id, ticker, name, quantity, unit_price, valuation, pnl_percent, currency
FROM position
WHERE snapshot_id = ?
ORDER BY ticker ASC
`

func (q *Queries) GetPositionsBySnapshot(ctx context.Context, snapshotID int64) ([]Position, error) {
	rows, err := q.db.QueryContext(ctx, getPositionsBySnapshot, snapshotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Position
	for rows.Next() {
		var p Position
		err := rows.Scan(&p.ID, &p.SnapshotID, &p.Ticker, &p.Name, &p.Quantity,
			&p.UnitPrice, &p.Valuation, &p.PnlPercent, &p.Currency)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const countSnapshots = `
SELECT COUNT(*) FROM snapshot
`

func (q *Queries) CountSnapshots(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, countSnapshots)
	var n int64
	err := row.Scan(&n)
	return n, err
}
