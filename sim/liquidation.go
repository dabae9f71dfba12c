package sim

import (
	"github.com/rustyeddy/perptrader/broker"
	"github.com/rustyeddy/perptrader/market"
)

// worstPrice is the candle extreme against the position.
func worstPrice(p broker.Position, c market.Candle) float64 {
	if p.Side == broker.Short {
		return c.High
	}
	return c.Low
}

// CheckLiquidation returns a *broker.LiquidationError when the loss at the
// worst price of the candle would use up the available balance. It must run
// before the candle's fills are applied.
func CheckLiquidation(p broker.Position, available float64, c market.Candle) error {
	if !p.IsOpen() {
		return nil
	}
	worst := worstPrice(p, c)
	pl := UnrealizedProfit(p, worst)
	if pl >= 0 || -pl < available {
		return nil
	}
	return &broker.LiquidationError{
		Time:       c.Time,
		Symbol:     p.Symbol,
		Side:       p.Side,
		Quantity:   p.Quantity,
		EntryPrice: p.EntryPrice,
		Leverage:   p.Leverage,
		Price:      worst,
		Loss:       -pl,
		Available:  available,
	}
}
