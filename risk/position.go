package risk

import "math"

// QuantityForPercent sizes an order so that its margin (quantity * price)
// uses pct of the available balance. pct is a fraction, 0.1 = 10%.
func QuantityForPercent(available, pct, price float64) float64 {
	if available <= 0 || pct <= 0 || price <= 0 {
		return 0
	}
	return available * pct / price
}

type Inputs struct {
	Available float64
	RiskPct   float64 // fraction of available to lose at the stop, 0.01 = 1%
	Entry     float64
	Stop      float64
	Leverage  int
}

type Result struct {
	Quantity   float64
	RiskAmount float64
	StopDist   float64
}

// Calculate sizes a position so that hitting the stop loses RiskPct of the
// available balance.
func Calculate(in Inputs) Result {
	lev := in.Leverage
	if lev < 1 {
		lev = 1
	}
	dist := abs(in.Entry - in.Stop)
	riskAmt := in.Available * in.RiskPct
	if dist == 0 || riskAmt <= 0 {
		return Result{RiskAmount: riskAmt, StopDist: dist}
	}
	qty := riskAmt / (dist * float64(lev))
	if math.IsInf(qty, 0) || math.IsNaN(qty) {
		return Result{RiskAmount: riskAmt, StopDist: dist}
	}
	return Result{Quantity: qty, RiskAmount: PlannedLoss(qty, in.Entry, in.Stop, lev), StopDist: dist}
}
