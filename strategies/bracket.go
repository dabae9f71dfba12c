package strategies

import (
	"context"
	"fmt"

	"github.com/rustyeddy/perptrader/broker"
	"github.com/rustyeddy/perptrader/market"
)

// Bracket enters at market whenever it is flat, with a take-profit and
// stop-loss a fixed percentage away from the last close. With Once set it
// trades a single time.
type Bracket struct {
	Params
	Once bool

	entered bool
}

func (s *Bracket) Name() string { return "bracket" }

func (s *Bracket) OnCandle(ctx context.Context, b broker.Broker, symbol string, c market.Candle) error {
	if s.Once && s.entered {
		return nil
	}
	if !s.Side.Valid() {
		return fmt.Errorf("bracket: side must be long or short")
	}
	if s.Quantity <= 0 && s.Percent <= 0 && s.RiskPct <= 0 {
		return fmt.Errorf("bracket: quantity or percent is required")
	}

	isBusy, err := busy(ctx, b, symbol)
	if err != nil || isBusy {
		return err
	}

	tp, sl := bracketPrices(s.Side, c.Close, c.Close*s.StopLossPct, c.Close*s.TakeProfitPct)
	if err := enter(ctx, b, symbol, s.Side, s.Params, c.Close, tp, sl); err != nil {
		return err
	}
	s.entered = true
	return nil
}
