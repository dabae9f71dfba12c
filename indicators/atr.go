package indicators

import (
	"fmt"
	"math"

	"github.com/rustyeddy/perptrader/market"
)

// ATR is Wilder's average true range. The first candle only provides a
// previous close, so it needs period+1 candles.
type ATR struct {
	period int
	prev   float64
	seen   int
	sum    float64
	value  float64
}

func NewATR(period int) *ATR {
	return &ATR{period: max(period, 1)}
}

func (a *ATR) Name() string { return fmt.Sprintf("ATR(%d)", a.period) }
func (a *ATR) Warmup() int  { return a.period + 1 }
func (a *ATR) Ready() bool  { return a.seen > a.period }

func (a *ATR) Update(c market.Candle) {
	a.seen++
	defer func() { a.prev = c.Close }()
	if a.seen == 1 {
		return
	}

	tr := TrueRange(c, a.prev)
	switch {
	case a.seen <= a.period:
		a.sum += tr
	case a.seen == a.period+1:
		a.value = (a.sum + tr) / float64(a.period)
	default:
		a.value += (tr - a.value) / float64(a.period)
	}
}

func (a *ATR) Value() float64 {
	if !a.Ready() {
		return 0
	}
	return a.value
}

// TrueRange is the candle range widened to include a gap from prevClose.
func TrueRange(c market.Candle, prevClose float64) float64 {
	return math.Max(c.High, prevClose) - math.Min(c.Low, prevClose)
}
