package strategies

import (
	"context"

	"github.com/rustyeddy/perptrader/broker"
	"github.com/rustyeddy/perptrader/market"
)

// Noop does nothing. Useful to replay data through the exchange.
type Noop struct{}

func (Noop) Name() string { return "noop" }

func (Noop) OnCandle(ctx context.Context, b broker.Broker, symbol string, c market.Candle) error {
	return nil
}
