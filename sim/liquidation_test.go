package sim

import (
	"errors"
	"testing"

	"github.com/rustyeddy/perptrader/broker"
	"github.com/rustyeddy/perptrader/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckLiquidationLong(t *testing.T) {
	t.Parallel()

	p := broker.Position{Symbol: "BTCUSDT", Side: broker.Long, Quantity: 1, EntryPrice: 100, Leverage: 2, State: broker.PositionEntry}
	c := func(low float64) market.Candle {
		return market.Candle{Time: t0, Open: 100, High: 101, Low: low, Close: 100}
	}

	assert.NoError(t, CheckLiquidation(p, 100, c(50.01)))

	err := CheckLiquidation(p, 100, c(50))
	require.Error(t, err)
	assert.True(t, errors.Is(err, broker.ErrLiquidation))

	err = CheckLiquidation(p, 100, c(49.99))
	var lerr *broker.LiquidationError
	require.True(t, errors.As(err, &lerr))
	assert.Equal(t, "BTCUSDT", lerr.Symbol)
	assert.Equal(t, broker.Long, lerr.Side)
	assert.Equal(t, 49.99, lerr.Price)
	assert.InDelta(t, 100.02, lerr.Loss, 1e-9)
	assert.Equal(t, 100.0, lerr.Available)
	assert.True(t, lerr.Time.Equal(t0))
}

func TestCheckLiquidationShort(t *testing.T) {
	t.Parallel()

	p := broker.Position{Symbol: "ETHUSDT", Side: broker.Short, Quantity: 2, EntryPrice: 100, Leverage: 1, State: broker.PositionEntry}
	c := func(high float64) market.Candle {
		return market.Candle{Time: t0, Open: 100, High: high, Low: 99, Close: 100}
	}

	assert.NoError(t, CheckLiquidation(p, 20, c(109.99)))

	err := CheckLiquidation(p, 20, c(110))
	var lerr *broker.LiquidationError
	require.True(t, errors.As(err, &lerr))
	assert.Equal(t, 110.0, lerr.Price)
}

func TestCheckLiquidationIgnoresProfitAndFlat(t *testing.T) {
	t.Parallel()

	p := broker.Position{Symbol: "BTCUSDT", Side: broker.Long, Quantity: 1, EntryPrice: 100, Leverage: 1, State: broker.PositionEntry}
	up := market.Candle{Time: t0, Open: 101, High: 120, Low: 100, Close: 110}
	assert.NoError(t, CheckLiquidation(p, 0, up))

	p.State = broker.PositionClosed
	crash := market.Candle{Time: t0, Open: 100, High: 100, Low: 1, Close: 1}
	assert.NoError(t, CheckLiquidation(p, 0, crash))
}
