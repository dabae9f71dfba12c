package journal

import "time"

// FillRecord is one executed order.
type FillRecord struct {
	OrderID  string
	Symbol   string
	Side     string
	Type     string
	Role     string
	Quantity float64
	Price    float64
	Fee      float64
	Maker    bool
	Realized float64
	Time     time.Time
}

// PositionRecord is a closed position.
type PositionRecord struct {
	Symbol         string
	Side           string
	Quantity       float64
	EntryPrice     float64
	ClosePrice     float64
	Leverage       int
	RealizedProfit float64 // net of fees
	Fees           float64
	Adjustments    int
	Liquidated     bool
	OpenedAt       time.Time
	ClosedAt       time.Time
}

// BalanceSnapshot is the cash state of one asset after a mutation.
type BalanceSnapshot struct {
	Time      time.Time
	Asset     string
	Total     float64
	Available float64
}

type Journal interface {
	RecordFill(FillRecord) error
	RecordPosition(PositionRecord) error
	RecordBalance(BalanceSnapshot) error
	Close() error
}

// Discard is a Journal that drops everything.
type Discard struct{}

func (Discard) RecordFill(FillRecord) error { return nil }
func (Discard) RecordPosition(PositionRecord) error { return nil }
func (Discard) RecordBalance(BalanceSnapshot) error { return nil }
func (Discard) Close() error { return nil }
