package market

import (
	"fmt"
	"time"
)

// Candle represents OHLCV data for one interval. Time is the open time.
type Candle struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Range is high minus low.
func (c Candle) Range() float64 { return c.High - c.Low }

// Contains reports whether price was traded within the candle.
func (c Candle) Contains(price float64) bool {
	return c.Low <= price && price <= c.High
}

func (c Candle) Validate() error {
	if !(c.Open > 0 && c.High > 0 && c.Low > 0 && c.Close > 0) {
		return fmt.Errorf("candle %s: prices must be positive", c.Time.Format(time.RFC3339))
	}
	if c.High < c.Low {
		return fmt.Errorf("candle %s: high %g below low %g", c.Time.Format(time.RFC3339), c.High, c.Low)
	}
	if !c.Contains(c.Open) || !c.Contains(c.Close) {
		return fmt.Errorf("candle %s: open/close outside [%g, %g]", c.Time.Format(time.RFC3339), c.Low, c.High)
	}
	if c.Volume < 0 {
		return fmt.Errorf("candle %s: negative volume", c.Time.Format(time.RFC3339))
	}
	return nil
}
