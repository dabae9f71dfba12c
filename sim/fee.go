package sim

import "github.com/rustyeddy/perptrader/broker"

// Fee is notional * rate * leverage.
func Fee(notional, rate float64, leverage int) float64 {
	return abs(notional) * rate * float64(leverage)
}

// feeRate picks the taker rate for orders that execute immediately once
// triggered and the maker rate for resting limit orders.
func (c Config) feeRate(o broker.Order) float64 {
	if o.IsTaker() {
		return c.TakerFee
	}
	return c.MakerFee
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
