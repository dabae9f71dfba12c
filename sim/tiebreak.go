package sim

import (
	"math"

	"github.com/rustyeddy/perptrader/broker"
)

// PickFirst decides which of two orders, both triggerable within the same
// candle, was reached first.
//
// For each candidate the distance the market travelled in the candidate's
// direction (high-open or open-low) is divided by the candidate's own
// distance from the open. The larger ratio wins. This is a heuristic, not a
// model of the intra-candle path; backtest results depend on the exact
// arithmetic, so keep it as is.
//
// An explicit market exit always wins. The result does not depend on
// argument order.
func PickFirst(high, low, open float64, a, b broker.Order) broker.Order {
	am, bm := isMarketExit(a), isMarketExit(b)
	switch {
	case am && !bm:
		return a
	case bm && !am:
		return b
	case am && bm:
		return lowerID(a, b)
	}

	ra := reachRatio(high, low, open, a)
	rb := reachRatio(high, low, open, b)
	switch {
	case ra > rb:
		return a
	case rb > ra:
		return b
	}

	// Equal ratios: assume the worse outcome, then fall back to the ID so
	// the choice is stable.
	if a.Role == broker.RoleStopLoss && b.Role != broker.RoleStopLoss {
		return a
	}
	if b.Role == broker.RoleStopLoss && a.Role != broker.RoleStopLoss {
		return b
	}
	return lowerID(a, b)
}

func reachRatio(high, low, open float64, o broker.Order) float64 {
	trigger := o.TriggerPrice(open)
	d := math.Abs(trigger - open)
	if d == 0 {
		return math.Inf(1)
	}
	travelled := open - low
	if trigger >= open {
		travelled = high - open
	}
	return travelled / d
}

func isMarketExit(o broker.Order) bool {
	return o.IsMarket() && (o.IsExit() || o.Role == broker.RoleExit)
}

func lowerID(a, b broker.Order) broker.Order {
	if b.ID < a.ID {
		return b
	}
	return a
}
