package sim

import (
	"errors"
	"testing"
	"time"

	"github.com/rustyeddy/perptrader/broker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func fillOrder(side broker.Side, qty, margin float64) broker.Order {
	return broker.Order{Symbol: "BTCUSDT", Side: side, Quantity: qty, Margin: margin}
}

func TestPositionOpenAddReduce(t *testing.T) {
	t.Parallel()

	l := NewPositionLedger()
	ch, err := l.Open(fillOrder(broker.Long, 1, 100), 100, 2, 0.08, t0)
	require.NoError(t, err)
	assert.Equal(t, broker.PositionEntry, ch.Position.State)
	assert.InDelta(t, -0.08, ch.Position.RealizedProfit, 1e-12)

	ch, err = l.Add(fillOrder(broker.Long, 1, 110), 110, 0.088)
	require.NoError(t, err)
	assert.InDelta(t, 105.0, ch.Position.EntryPrice, 1e-12)
	assert.InDelta(t, 2.0, ch.Position.Quantity, 1e-12)
	assert.InDelta(t, 210.0, ch.Position.Margin, 1e-12)
	assert.Equal(t, broker.PositionAdjusted, ch.Position.State)
	assert.Equal(t, 1, ch.Position.Adjustments)

	p, ok := l.Get("BTCUSDT")
	require.True(t, ok)
	assert.InDelta(t, 40.0, UnrealizedProfit(p, 115), 1e-9)

	ch, err = l.Reduce(fillOrder(broker.Short, 0.5, 0), 115, 0, t0)
	require.NoError(t, err)
	assert.False(t, ch.Closed)
	assert.InDelta(t, 10.0, ch.Realized, 1e-9)
	assert.InDelta(t, 52.5, ch.Released, 1e-9)
	assert.InDelta(t, 1.5, ch.Position.Quantity, 1e-12)
	assert.InDelta(t, 105.0, ch.Position.EntryPrice, 1e-12)
	assert.Equal(t, 2, ch.Position.Adjustments)
}

func TestPositionRoundTripCostsOnlyFees(t *testing.T) {
	t.Parallel()

	for _, side := range []broker.Side{broker.Long, broker.Short} {
		l := NewPositionLedger()
		_, err := l.Open(fillOrder(side, 3, 300), 100, 5, 0.6, t0)
		require.NoError(t, err)

		ch, err := l.Close("BTCUSDT", 100, 0.6, t0.Add(time.Hour))
		require.NoError(t, err)
		assert.True(t, ch.Closed)
		assert.InDelta(t, -1.2, ch.Position.RealizedProfit, 1e-12, side.String())
		assert.InDelta(t, 1.2, ch.Position.Fees, 1e-12)
		assert.InDelta(t, 300.0, ch.Released, 1e-12)
	}
}

func TestPositionAveragePrice(t *testing.T) {
	t.Parallel()

	fills := []struct{ qty, price float64 }{
		{0.5, 42000}, {0.25, 41000}, {1, 43500.5}, {0.125, 39999.9},
	}

	l := NewPositionLedger()
	var qty, cost float64
	for i, f := range fills {
		o := fillOrder(broker.Short, f.qty, 0)
		var err error
		if i == 0 {
			_, err = l.Open(o, f.price, 1, 0, t0)
		} else {
			_, err = l.Add(o, f.price, 0)
		}
		require.NoError(t, err)
		qty += f.qty
		cost += f.qty * f.price

		p, _ := l.Get("BTCUSDT")
		assert.InDelta(t, cost, p.EntryPrice*p.Quantity, 1e-6)
		assert.InDelta(t, qty, p.Quantity, 1e-12)
	}
}

func TestPositionReduceBeyondQuantityCloses(t *testing.T) {
	t.Parallel()

	l := NewPositionLedger()
	_, err := l.Open(fillOrder(broker.Long, 1, 100), 100, 1, 0, t0)
	require.NoError(t, err)

	ch, err := l.Reduce(fillOrder(broker.Short, 5, 0), 90, 0, t0)
	require.NoError(t, err)
	assert.True(t, ch.Closed)
	assert.InDelta(t, 1.0, ch.Quantity, 1e-12)
	assert.InDelta(t, -10.0, ch.Realized, 1e-12)
	assert.Equal(t, broker.PositionClosed, ch.Position.State)
	assert.Equal(t, 90.0, ch.Position.ClosePrice)

	_, ok := l.Get("BTCUSDT")
	assert.False(t, ok)
	require.Len(t, l.History(), 1)
	assert.InDelta(t, 1.0, l.History()[0].Quantity, 1e-12)
}

func TestPositionErrors(t *testing.T) {
	t.Parallel()

	l := NewPositionLedger()

	_, err := l.Close("BTCUSDT", 100, 0, t0)
	assert.True(t, errors.Is(err, broker.ErrPosition))

	_, err = l.Add(fillOrder(broker.Long, 1, 0), 100, 0)
	assert.True(t, errors.Is(err, broker.ErrPosition))

	_, err = l.Open(fillOrder(broker.Long, 1, 0), 100, 0, 0, t0)
	assert.True(t, errors.Is(err, broker.ErrLeverage))

	_, err = l.Open(fillOrder(broker.Long, 1, 0), 100, 1, 0, t0)
	require.NoError(t, err)
	_, err = l.Open(fillOrder(broker.Long, 1, 0), 100, 1, 0, t0)
	assert.True(t, errors.Is(err, broker.ErrPosition))

	_, err = l.Add(fillOrder(broker.Short, 1, 0), 100, 0)
	assert.True(t, errors.Is(err, broker.ErrPosition))

	_, err = l.Close("BTCUSDT", 100, 0, t0)
	require.NoError(t, err)
	_, err = l.Close("BTCUSDT", 100, 0, t0)
	assert.True(t, errors.Is(err, broker.ErrPosition))
}

func TestPositionOpenPositionsSorted(t *testing.T) {
	t.Parallel()

	l := NewPositionLedger()
	for _, s := range []string{"XRPUSDT", "BTCUSDT", "ETHUSDT"} {
		_, err := l.Open(broker.Order{Symbol: s, Side: broker.Long, Quantity: 1}, 1, 1, 0, t0)
		require.NoError(t, err)
	}
	open := l.OpenPositions()
	require.Len(t, open, 3)
	assert.Equal(t, "BTCUSDT", open[0].Symbol)
	assert.Equal(t, "XRPUSDT", open[2].Symbol)
}
