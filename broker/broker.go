package broker

import (
	"context"
	"time"
)

// Broker is what a strategy trades through. The simulated exchange in
// package sim implements it; a live adapter would too.
type Broker interface {
	EnterPosition(ctx context.Context, req EntryRequest) ([]Order, error)
	ClosePosition(ctx context.Context, symbol string, price float64) (Order, error)
	CancelOrders(ctx context.Context, symbol string) ([]Order, error)
	SubmitOrder(ctx context.Context, req OrderRequest) (Order, error)

	GetBalance(ctx context.Context, asset string) (Balance, error)
	GetOpenOrders(ctx context.Context, symbol string) ([]Order, error)
	GetPosition(ctx context.Context, symbol string) (*Position, error)
	SetLeverage(ctx context.Context, symbol string, leverage int) error
}

// EntryRequest opens a position with an optional bracket.
// Exactly one of Quantity or Percent sizes the entry; Percent is a fraction
// of the available balance (0.1 = 10%).
type EntryRequest struct {
	Symbol     string
	Side       Side
	Quantity   float64
	Percent    float64
	EntryPrice float64 // 0 = market
	TakeProfit float64 // 0 = none
	StopLoss   float64 // 0 = none
}

// OrderRequest submits a single order of any type.
type OrderRequest struct {
	Symbol        string
	Type          OrderType
	Side          Side
	Role          OrderRole
	Quantity      float64
	Price         float64
	StopPrice     float64
	CallbackRate  float64
	TimeInForce   TimeInForce
	ReduceOnly    bool
	ClosePosition bool
}

type PositionState string

const (
	PositionEntry    PositionState = "entry"
	PositionAdjusted PositionState = "adjusted"
	PositionClosed   PositionState = "closed"
)

type Position struct {
	Symbol         string
	Side           Side
	Quantity       float64
	EntryPrice     float64
	Leverage       int
	RealizedProfit float64 // net of fees
	Fees           float64
	Margin         float64
	State          PositionState
	Adjustments    int

	OpenedAt   time.Time
	ClosedAt   time.Time
	ClosePrice float64
	Liquidated bool
}

func (p Position) IsOpen() bool { return p.State != PositionClosed && p.Quantity > 0 }

// Notional is quantity times entry price.
func (p Position) Notional() float64 { return p.Quantity * p.EntryPrice }

type Balance struct {
	Asset     string
	Total     float64
	Available float64
	Time      time.Time
}

// Reserved is the margin held by open orders and the open position.
func (b Balance) Reserved() float64 { return b.Total - b.Available }

type Fill struct {
	OrderID  string
	Symbol   string
	Side     Side
	Type     OrderType
	Role     OrderRole
	Quantity float64
	Price    float64
	Fee      float64
	Maker    bool
	Realized float64 // market P&L realized by this fill, before fee
	Time     time.Time
}
