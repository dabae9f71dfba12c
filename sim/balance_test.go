package sim

import (
	"errors"
	"testing"
	"time"

	"github.com/rustyeddy/perptrader/broker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBalanceReserveRelease(t *testing.T) {
	t.Parallel()

	l := NewBalanceLedger()
	_, err := l.Init("USDT", 1000, t0)
	require.NoError(t, err)

	b, err := l.Reserve("USDT", 300, t0)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, b.Total)
	assert.Equal(t, 700.0, b.Available)
	assert.Equal(t, 300.0, b.Reserved())

	_, err = l.Reserve("USDT", 800, t0)
	assert.True(t, errors.Is(err, broker.ErrBalance))

	b, err = l.Release("USDT", 300, t0)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, b.Available)

	// Releasing more than was reserved never lifts available above total.
	b, err = l.Release("USDT", 50, t0)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, b.Available)
}

func TestBalanceSettle(t *testing.T) {
	t.Parallel()

	l := NewBalanceLedger()
	_, err := l.Init("USDT", 1000, t0)
	require.NoError(t, err)
	_, err = l.Reserve("USDT", 200, t0)
	require.NoError(t, err)

	b, err := l.Settle("USDT", 0, 0.5, 0, t0)
	require.NoError(t, err)
	assert.InDelta(t, 999.5, b.Total, 1e-12)
	assert.InDelta(t, 799.5, b.Available, 1e-12)

	b, err = l.Settle("USDT", 50, 0.5, 200, t0)
	require.NoError(t, err)
	assert.InDelta(t, 1049.0, b.Total, 1e-12)
	assert.InDelta(t, 1049.0, b.Available, 1e-12)
}

func TestBalanceUnknownAsset(t *testing.T) {
	t.Parallel()

	l := NewBalanceLedger()
	_, err := l.Get("BTC")
	assert.True(t, errors.Is(err, broker.ErrBalance))
	_, err = l.Reserve("BTC", 1, t0)
	assert.True(t, errors.Is(err, broker.ErrBalance))
	_, err = l.Settle("BTC", 1, 0, 0, t0)
	assert.True(t, errors.Is(err, broker.ErrBalance))
	_, err = l.Init("", 1, t0)
	assert.True(t, errors.Is(err, broker.ErrBalance))
}

func TestBalanceConservation(t *testing.T) {
	t.Parallel()

	l := NewBalanceLedger()
	_, err := l.Init("USDT", 500, t0)
	require.NoError(t, err)

	steps := []struct {
		reserve, realized, fee, released float64
	}{
		{100, 0, 0.04, 0},
		{50, 12.5, 0.05, 100},
		{0, -30, 0.02, 50},
		{200, 0, 0.08, 0},
		{0, 7.25, 0.09, 200},
	}

	var sumRealized, sumFees float64
	at := t0
	for _, s := range steps {
		at = at.Add(time.Minute)
		if s.reserve > 0 {
			_, err := l.Reserve("USDT", s.reserve, at)
			require.NoError(t, err)
		}
		_, err := l.Settle("USDT", s.realized, s.fee, s.released, at)
		require.NoError(t, err)
		sumRealized += s.realized
		sumFees += s.fee
	}

	b, err := l.Get("USDT")
	require.NoError(t, err)
	assert.InDelta(t, 500+sumRealized-sumFees, b.Total, 1e-9)
	assert.InDelta(t, b.Total, b.Available, 1e-9)

	for _, snap := range l.History() {
		assert.LessOrEqual(t, snap.Available, snap.Total+1e-9)
	}
}

func TestBalanceHistoryIsAppendOnly(t *testing.T) {
	t.Parallel()

	l := NewBalanceLedger()
	_, err := l.Init("USDT", 100, t0)
	require.NoError(t, err)
	_, err = l.Reserve("USDT", 10, t0.Add(time.Minute))
	require.NoError(t, err)

	h := l.History()
	require.Len(t, h, 2)
	h[0].Total = -1

	again := l.History()
	assert.Equal(t, 100.0, again[0].Total)
	assert.Equal(t, 90.0, again[1].Available)
	assert.True(t, again[1].Time.Equal(t0.Add(time.Minute)))
}
