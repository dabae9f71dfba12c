package indicators

import (
	"fmt"

	"github.com/rustyeddy/perptrader/market"
)

// EMA is seeded with the SMA of its first period closes, then smoothed with
// alpha = 2/(period+1).
type EMA struct {
	seed  *SMA
	alpha float64
	value float64
}

func NewEMA(period int) *EMA {
	period = max(period, 1)
	return &EMA{seed: NewSMA(period), alpha: 2 / float64(period+1)}
}

func (e *EMA) Name() string { return fmt.Sprintf("EMA(%d)", e.seed.Warmup()) }
func (e *EMA) Warmup() int  { return e.seed.Warmup() }
func (e *EMA) Ready() bool  { return e.seed.Ready() }

func (e *EMA) Update(c market.Candle) {
	if !e.seed.Ready() {
		e.seed.Update(c)
		if e.seed.Ready() {
			e.value = e.seed.Value()
		}
		return
	}
	e.value += e.alpha * (c.Close - e.value)
}

func (e *EMA) Value() float64 {
	if !e.Ready() {
		return 0
	}
	return e.value
}
