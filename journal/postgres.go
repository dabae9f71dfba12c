package journal

import (
	"context"
	"fmt"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresJournal stores the journal in Postgres. Amounts are written as
// NUMERIC through shopspring decimals so nothing is lost to REAL rounding.
type PostgresJournal struct {
	pool *pgxpool.Pool
}

// NewPostgres connects, verifies connectivity and creates the tables.
func NewPostgres(ctx context.Context, dsn string) (*PostgresJournal, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, PostgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &PostgresJournal{pool: pool}, nil
}

func (j *PostgresJournal) RecordFill(f FillRecord) error {
	_, err := j.pool.Exec(context.Background(), `
		INSERT INTO fills
		(order_id, symbol, side, type, role, quantity, price, fee, maker, realized, time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		f.OrderID, f.Symbol, f.Side, f.Type, f.Role, dec(f.Quantity), dec(f.Price),
		dec(f.Fee), f.Maker, dec(f.Realized), f.Time,
	)
	return err
}

func (j *PostgresJournal) RecordPosition(p PositionRecord) error {
	_, err := j.pool.Exec(context.Background(), `
		INSERT INTO positions
		(symbol, side, quantity, entry_price, close_price, leverage, realized_profit, fees, adjustments, liquidated, opened_at, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		p.Symbol, p.Side, dec(p.Quantity), dec(p.EntryPrice), dec(p.ClosePrice), p.Leverage,
		dec(p.RealizedProfit), dec(p.Fees), p.Adjustments, p.Liquidated, p.OpenedAt, p.ClosedAt,
	)
	return err
}

func (j *PostgresJournal) RecordBalance(b BalanceSnapshot) error {
	_, err := j.pool.Exec(context.Background(), `
		INSERT INTO balances (time, asset, total, available)
		VALUES ($1, $2, $3, $4)`,
		b.Time, b.Asset, dec(b.Total), dec(b.Available),
	)
	return err
}

// ListPositions returns closed positions in closing order. An empty symbol
// means all symbols.
func (j *PostgresJournal) ListPositions(ctx context.Context, symbol string) ([]PositionRecord, error) {
	rows, err := j.pool.Query(ctx, `
		SELECT `+positionColumns+`
		FROM positions
		WHERE $1 = '' OR symbol = $1
		ORDER BY id ASC`, symbol)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PositionRecord
	for rows.Next() {
		var (
			rec                              PositionRecord
			qty, entry, exit, realized, fees decimal.Decimal
		)
		if err := rows.Scan(
			&rec.Symbol, &rec.Side, &qty, &entry, &exit, &rec.Leverage,
			&realized, &fees, &rec.Adjustments, &rec.Liquidated, &rec.OpenedAt, &rec.ClosedAt,
		); err != nil {
			return nil, err
		}
		rec.Quantity = qty.InexactFloat64()
		rec.EntryPrice = entry.InexactFloat64()
		rec.ClosePrice = exit.InexactFloat64()
		rec.RealizedProfit = realized.InexactFloat64()
		rec.Fees = fees.InexactFloat64()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Summary aggregates every recorded position.
func (j *PostgresJournal) Summary(ctx context.Context) (Summary, error) {
	positions, err := j.ListPositions(ctx, "")
	if err != nil {
		return Summary{}, fmt.Errorf("journal summary: %w", err)
	}
	return Summarize(positions), nil
}

func (j *PostgresJournal) Close() error {
	j.pool.Close()
	return nil
}

func dec(x float64) decimal.Decimal {
	return decimal.NewFromFloat(x)
}
