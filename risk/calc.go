package risk

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// PlannedLoss is what the position loses if the stop is hit, using the
// leveraged P/L convention of the exchange: |entry - stop| * qty * leverage.
func PlannedLoss(qty, entry, stop float64, leverage int) float64 {
	return abs(entry-stop) * qty * float64(leverage)
}

// RR is reward over risk for a bracket.
func RR(entry, stop, takeProfit float64) float64 {
	risk := abs(entry - stop)
	reward := abs(takeProfit - entry)
	if risk == 0 {
		return 0
	}
	return reward / risk
}
