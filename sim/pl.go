package sim

import "github.com/rustyeddy/perptrader/broker"

// UnrealizedProfit is (mark - entry) * quantity * leverage for a long and
// the negation for a short. Liquidation checks use the same formula.
func UnrealizedProfit(p broker.Position, mark float64) float64 {
	return profit(p.Side, p.EntryPrice, mark, p.Quantity, p.Leverage)
}

func profit(side broker.Side, entry, exit, qty float64, leverage int) float64 {
	return side.Sign() * (exit - entry) * qty * float64(leverage)
}
