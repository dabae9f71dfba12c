// Package indicators holds streaming indicators fed one closed candle at a
// time.
package indicators

import "github.com/rustyeddy/perptrader/market"

type Indicator interface {
	// Name is a stable label such as "EMA(20)".
	Name() string
	// Warmup is the number of candles needed before Ready.
	Warmup() int
	Update(c market.Candle)
	Ready() bool
	// Value is 0 until Ready.
	Value() float64
}

// Warmup is the longest warm-up of ins.
func Warmup(ins ...Indicator) int {
	n := 0
	for _, in := range ins {
		if in != nil {
			n = max(n, in.Warmup())
		}
	}
	return n
}

// Ready reports whether every non-nil indicator in ins is warm.
func Ready(ins ...Indicator) bool {
	for _, in := range ins {
		if in != nil && !in.Ready() {
			return false
		}
	}
	return true
}
