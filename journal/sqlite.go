package journal

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteJournal struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteJournal{db: db}, nil
}

func (j *SQLiteJournal) RecordFill(f FillRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO fills
		(order_id, symbol, side, type, role, quantity, price, fee, maker, realized, time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.OrderID, f.Symbol, f.Side, f.Type, f.Role, f.Quantity,
		f.Price, f.Fee, f.Maker, f.Realized, f.Time.UTC(),
	)
	return err
}

func (j *SQLiteJournal) RecordPosition(p PositionRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO positions
		(symbol, side, quantity, entry_price, close_price, leverage, realized_profit, fees, adjustments, liquidated, opened_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Symbol, p.Side, p.Quantity, p.EntryPrice, p.ClosePrice, p.Leverage,
		p.RealizedProfit, p.Fees, p.Adjustments, p.Liquidated, p.OpenedAt.UTC(), p.ClosedAt.UTC(),
	)
	return err
}

func (j *SQLiteJournal) RecordBalance(b BalanceSnapshot) error {
	_, err := j.db.Exec(`
		INSERT INTO balances
		(time, asset, total, available)
		VALUES (?, ?, ?, ?)`,
		b.Time.UTC(), b.Asset, b.Total, b.Available,
	)
	return err
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
