package journal

import (
	"database/sql"
	"fmt"
	"time"
)

// Summary aggregates closed positions.
type Summary struct {
	Trades       int
	Wins         int
	Losses       int
	Liquidations int
	Fees         float64
	Net          float64
}

// WinRate is wins over trades, 0 when there are none.
func (s Summary) WinRate() float64 {
	if s.Trades == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Trades)
}

const positionColumns = `symbol, side, quantity, entry_price, close_price, leverage, realized_profit, fees, adjustments, liquidated, opened_at, closed_at`

// ListPositions returns closed positions in closing order. An empty symbol
// means all symbols.
func (j *SQLiteJournal) ListPositions(symbol string) ([]PositionRecord, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if symbol == "" {
		rows, err = j.db.Query(`SELECT ` + positionColumns + ` FROM positions ORDER BY id ASC`)
	} else {
		rows, err = j.db.Query(`SELECT `+positionColumns+` FROM positions WHERE symbol = ? ORDER BY id ASC`, symbol)
	}
	if err != nil {
		return nil, err
	}
	return scanPositions(rows)
}

// ListPositionsClosedBetween returns positions whose closed_at is within
// [start, end).
func (j *SQLiteJournal) ListPositionsClosedBetween(start, end time.Time) ([]PositionRecord, error) {
	rows, err := j.db.Query(`
		SELECT `+positionColumns+`
		FROM positions
		WHERE closed_at >= ? AND closed_at < ?
		ORDER BY closed_at ASC, id ASC`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	return scanPositions(rows)
}

func scanPositions(rows *sql.Rows) ([]PositionRecord, error) {
	defer rows.Close()

	var out []PositionRecord
	for rows.Next() {
		var rec PositionRecord
		if err := rows.Scan(
			&rec.Symbol,
			&rec.Side,
			&rec.Quantity,
			&rec.EntryPrice,
			&rec.ClosePrice,
			&rec.Leverage,
			&rec.RealizedProfit,
			&rec.Fees,
			&rec.Adjustments,
			&rec.Liquidated,
			&rec.OpenedAt,
			&rec.ClosedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListFills returns the fills of symbol in time order.
func (j *SQLiteJournal) ListFills(symbol string) ([]FillRecord, error) {
	rows, err := j.db.Query(`
		SELECT order_id, symbol, side, type, role, quantity, price, fee, maker, realized, time
		FROM fills
		WHERE symbol = ?
		ORDER BY time ASC, rowid ASC`, symbol)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FillRecord
	for rows.Next() {
		var rec FillRecord
		if err := rows.Scan(
			&rec.OrderID,
			&rec.Symbol,
			&rec.Side,
			&rec.Type,
			&rec.Role,
			&rec.Quantity,
			&rec.Price,
			&rec.Fee,
			&rec.Maker,
			&rec.Realized,
			&rec.Time,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListBalances returns the balance history of asset.
func (j *SQLiteJournal) ListBalances(asset string) ([]BalanceSnapshot, error) {
	rows, err := j.db.Query(`
		SELECT time, asset, total, available
		FROM balances
		WHERE asset = ?
		ORDER BY rowid ASC`, asset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BalanceSnapshot
	for rows.Next() {
		var rec BalanceSnapshot
		if err := rows.Scan(&rec.Time, &rec.Asset, &rec.Total, &rec.Available); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Summary aggregates every recorded position.
func (j *SQLiteJournal) Summary() (Summary, error) {
	var s Summary
	row := j.db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN realized_profit > 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN realized_profit <= 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(liquidated), 0),
			COALESCE(SUM(fees), 0),
			COALESCE(SUM(realized_profit), 0)
		FROM positions`)
	if err := row.Scan(&s.Trades, &s.Wins, &s.Losses, &s.Liquidations, &s.Fees, &s.Net); err != nil {
		return Summary{}, fmt.Errorf("journal summary: %w", err)
	}
	return s, nil
}

// Summarize computes the same aggregate as SQLiteJournal.Summary from
// records already in memory.
func Summarize(positions []PositionRecord) Summary {
	var s Summary
	for _, p := range positions {
		s.Trades++
		if p.RealizedProfit > 0 {
			s.Wins++
		} else {
			s.Losses++
		}
		if p.Liquidated {
			s.Liquidations++
		}
		s.Fees += p.Fees
		s.Net += p.RealizedProfit
	}
	return s
}
