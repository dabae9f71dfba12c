package sim

import (
	"github.com/rustyeddy/perptrader/broker"
	"github.com/rustyeddy/perptrader/market"
)

// Listener receives engine events. Callbacks run synchronously inside the
// engine and must not call Step.
type Listener interface {
	OnOrdersCreate(orders []broker.Order)
	OnOrdersFill(fills []broker.Fill)
	OnOrdersCancel(orders []broker.Order)

	OnPositionOpen(p broker.Position)
	OnPositionAdjust(p broker.Position)
	OnPositionClose(p broker.Position)
	OnPositionCloseInProfit(p broker.Position)
	OnPositionCloseInLoss(p broker.Position)
	OnLiquidation(err *broker.LiquidationError)

	OnBalanceChange(b broker.Balance)
	OnLeverageChange(symbol string, leverage int)

	OnInPosition(p broker.Position)
	OnNotInPosition(symbol string)
	OnCandleClose(symbol string, c market.Candle)
}

// NopListener ignores every event. Embed it to implement only what you need.
type NopListener struct{}

func (NopListener) OnOrdersCreate([]broker.Order) {}
func (NopListener) OnOrdersFill([]broker.Fill) {}
func (NopListener) OnOrdersCancel([]broker.Order) {}
func (NopListener) OnPositionOpen(broker.Position) {}
func (NopListener) OnPositionAdjust(broker.Position) {}
func (NopListener) OnPositionClose(broker.Position) {}
func (NopListener) OnPositionCloseInProfit(broker.Position) {}
func (NopListener) OnPositionCloseInLoss(broker.Position) {}
func (NopListener) OnLiquidation(*broker.LiquidationError) {}
func (NopListener) OnBalanceChange(broker.Balance) {}
func (NopListener) OnLeverageChange(string, int) {}
func (NopListener) OnInPosition(broker.Position) {}
func (NopListener) OnNotInPosition(string) {}
func (NopListener) OnCandleClose(string, market.Candle) {}

// Listeners fans every event out to each listener in order.
type Listeners []Listener

func (ls Listeners) OnOrdersCreate(o []broker.Order) {
	for _, l := range ls {
		l.OnOrdersCreate(o)
	}
}

func (ls Listeners) OnOrdersFill(f []broker.Fill) {
	for _, l := range ls {
		l.OnOrdersFill(f)
	}
}

func (ls Listeners) OnOrdersCancel(o []broker.Order) {
	for _, l := range ls {
		l.OnOrdersCancel(o)
	}
}

func (ls Listeners) OnPositionOpen(p broker.Position) {
	for _, l := range ls {
		l.OnPositionOpen(p)
	}
}

func (ls Listeners) OnPositionAdjust(p broker.Position) {
	for _, l := range ls {
		l.OnPositionAdjust(p)
	}
}

func (ls Listeners) OnPositionClose(p broker.Position) {
	for _, l := range ls {
		l.OnPositionClose(p)
	}
}

func (ls Listeners) OnPositionCloseInProfit(p broker.Position) {
	for _, l := range ls {
		l.OnPositionCloseInProfit(p)
	}
}

func (ls Listeners) OnPositionCloseInLoss(p broker.Position) {
	for _, l := range ls {
		l.OnPositionCloseInLoss(p)
	}
}

func (ls Listeners) OnLiquidation(err *broker.LiquidationError) {
	for _, l := range ls {
		l.OnLiquidation(err)
	}
}

func (ls Listeners) OnBalanceChange(b broker.Balance) {
	for _, l := range ls {
		l.OnBalanceChange(b)
	}
}

func (ls Listeners) OnLeverageChange(symbol string, leverage int) {
	for _, l := range ls {
		l.OnLeverageChange(symbol, leverage)
	}
}

func (ls Listeners) OnInPosition(p broker.Position) {
	for _, l := range ls {
		l.OnInPosition(p)
	}
}

func (ls Listeners) OnNotInPosition(symbol string) {
	for _, l := range ls {
		l.OnNotInPosition(symbol)
	}
}

func (ls Listeners) OnCandleClose(symbol string, c market.Candle) {
	for _, l := range ls {
		l.OnCandleClose(symbol, c)
	}
}
