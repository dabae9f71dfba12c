package strategies

import (
	"context"
	"fmt"

	"github.com/rustyeddy/perptrader/broker"
	"github.com/rustyeddy/perptrader/indicators"
	"github.com/rustyeddy/perptrader/market"
)

// EMACross trades a fast/slow EMA crossover.
//   - Enters only on a cross
//   - On the opposite cross it cancels the bracket and closes at market,
//     then enters the new direction once flat
//   - Stops sit ATRMultiple ATRs away when the ATR is warm, else
//     StopLossPct of the close; the take-profit is RR times that distance
//   - With TrendPeriod set, longs need the close above the SMA of that
//     period and shorts below it
type EMACross struct {
	Params

	fast  indicators.Indicator
	slow  indicators.Indicator
	atr   indicators.Indicator
	trend indicators.Indicator // nil without TrendPeriod

	lastDiff     float64
	haveLastDiff bool

	// pending is the side to enter once the old position is gone.
	pending broker.Side
}

func NewEMACross(p Params) (*EMACross, error) {
	if p.FastPeriod <= 0 || p.SlowPeriod <= p.FastPeriod {
		return nil, fmt.Errorf("ema-cross: need 0 < fast (%d) < slow (%d)", p.FastPeriod, p.SlowPeriod)
	}
	if p.Quantity <= 0 && p.Percent <= 0 && p.RiskPct <= 0 {
		return nil, fmt.Errorf("ema-cross: quantity or percent is required")
	}
	if p.RR <= 0 {
		p.RR = 2.0
	}
	if p.ATRPeriod <= 0 {
		p.ATRPeriod = 14
	}
	if p.ATRMultiple <= 0 {
		p.ATRMultiple = 1.5
	}
	s := &EMACross{
		Params: p,
		fast:   indicators.NewEMA(p.FastPeriod),
		slow:   indicators.NewEMA(p.SlowPeriod),
		atr:    indicators.NewATR(p.ATRPeriod),
	}
	if p.TrendPeriod > 0 {
		s.trend = indicators.NewSMA(p.TrendPeriod)
	}
	return s, nil
}

// Warmup is the number of candles before the strategy can signal.
func (s *EMACross) Warmup() int {
	return indicators.Warmup(s.fast, s.slow, s.trend)
}

func (s *EMACross) Name() string {
	name := fmt.Sprintf("ema-cross(%d,%d)", s.FastPeriod, s.SlowPeriod)
	if s.trend != nil {
		name += " above/below " + s.trend.Name()
	}
	return name
}

func (s *EMACross) OnCandle(ctx context.Context, b broker.Broker, symbol string, c market.Candle) error {
	for _, in := range []indicators.Indicator{s.fast, s.slow, s.atr, s.trend} {
		if in != nil {
			in.Update(c)
		}
	}

	if s.pending != 0 {
		isBusy, err := busy(ctx, b, symbol)
		if err != nil {
			return err
		}
		if !isBusy {
			side := s.pending
			s.pending = 0
			if err := s.open(ctx, b, symbol, side, c); err != nil {
				return err
			}
		}
	}

	if !indicators.Ready(s.fast, s.slow, s.trend) {
		return nil
	}
	diff := s.fast.Value() - s.slow.Value()
	if !s.haveLastDiff {
		s.lastDiff = diff
		s.haveLastDiff = true
		return nil
	}

	// Bull cross: diff goes from <=0 to >0
	// Bear cross: diff goes from >=0 to <0
	bullCross := diff > 0 && s.lastDiff <= 0
	bearCross := diff < 0 && s.lastDiff >= 0
	s.lastDiff = diff

	switch {
	case bullCross:
		return s.onSignal(ctx, b, symbol, broker.Long, c)
	case bearCross:
		return s.onSignal(ctx, b, symbol, broker.Short, c)
	}
	return nil
}

func (s *EMACross) onSignal(ctx context.Context, b broker.Broker, symbol string, side broker.Side, c market.Candle) error {
	pos, err := b.GetPosition(ctx, symbol)
	if err != nil {
		return err
	}
	if pos != nil && pos.Side == side {
		return nil
	}

	if _, err := b.CancelOrders(ctx, symbol); err != nil {
		return err
	}
	s.pending = 0
	if pos != nil {
		if _, err := b.ClosePosition(ctx, symbol, 0); err != nil {
			return err
		}
		if s.withTrend(side, c.Close) {
			s.pending = side
		}
		return nil
	}
	if !s.withTrend(side, c.Close) {
		return nil
	}
	return s.open(ctx, b, symbol, side, c)
}

// withTrend reports whether side agrees with the trend filter, if any.
func (s *EMACross) withTrend(side broker.Side, price float64) bool {
	if s.trend == nil {
		return true
	}
	return side.Sign()*(price-s.trend.Value()) > 0
}

func (s *EMACross) open(ctx context.Context, b broker.Broker, symbol string, side broker.Side, c market.Candle) error {
	dist := c.Close * s.StopLossPct
	if s.atr.Ready() {
		dist = s.atr.Value() * s.ATRMultiple
	}
	tp, sl := bracketPrices(side, c.Close, dist, dist*s.RR)
	tp, sl = max(tp, 0), max(sl, 0)
	return enter(ctx, b, symbol, side, s.Params, c.Close, tp, sl)
}
