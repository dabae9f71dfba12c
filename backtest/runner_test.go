package backtest

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/perptrader/broker"
	"github.com/rustyeddy/perptrader/market"
	"github.com/rustyeddy/perptrader/sim"
	"github.com/rustyeddy/perptrader/strategies"
)

const sym = "BTCUSDT"

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func candle(i int, o, h, l, c float64) market.Candle {
	return market.Candle{Time: t0.Add(time.Duration(i) * time.Hour), Open: o, High: h, Low: l, Close: c, Volume: 1}
}

func newEngine(t *testing.T) *sim.Engine {
	t.Helper()
	cfg := sim.DefaultConfig()
	cfg.MakerFee = 0
	cfg.TakerFee = 0
	eng, err := sim.NewEngine(cfg, nil)
	require.NoError(t, err)
	return eng
}

// errorFeed returns an error on Next()
type errorFeed struct{ closed bool }

func (e *errorFeed) Next() (market.Candle, bool, error) {
	return market.Candle{}, false, errors.New("mock error")
}

func (e *errorFeed) Close() error {
	e.closed = true
	return nil
}

// mockStrategy counts OnCandle calls
type mockStrategy struct {
	calls     int
	shouldErr bool
}

func (m *mockStrategy) Name() string { return "mock" }

func (m *mockStrategy) OnCandle(ctx context.Context, b broker.Broker, symbol string, c market.Candle) error {
	m.calls++
	if m.shouldErr {
		return errors.New("strategy error")
	}
	return nil
}

func TestRunner_Run_Validation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	eng := newEngine(t)

	tests := []struct {
		name   string
		runner *Runner
		errMsg string
	}{
		{"missing engine", &Runner{Feed: NewSliceFeed(nil), Strategy: &mockStrategy{}, Symbol: sym}, "Engine is required"},
		{"missing feed", &Runner{Engine: eng, Strategy: &mockStrategy{}, Symbol: sym}, "Feed is required"},
		{"missing strategy", &Runner{Engine: eng, Feed: NewSliceFeed(nil), Symbol: sym}, "Strategy is required"},
		{"missing symbol", &Runner{Engine: eng, Feed: NewSliceFeed(nil), Strategy: &mockStrategy{}}, "Symbol is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.runner.Run(ctx)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestRunner_Run_Noop(t *testing.T) {
	t.Parallel()

	candles := []market.Candle{
		candle(0, 100, 101, 99, 100),
		candle(1, 100, 102, 99, 101),
		candle(2, 101, 103, 100, 102),
	}
	feed := NewSliceFeed(candles)
	strat := &mockStrategy{}
	var progress []int

	r := &Runner{
		Engine:   newEngine(t),
		Feed:     feed,
		Strategy: strat,
		Symbol:   sym,
		Options:  RunnerOptions{Progress: func(n int, c market.Candle) { progress = append(progress, n) }},
	}
	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, strat.calls)
	assert.Equal(t, []int{1, 2, 3}, progress)
	assert.True(t, feed.closed)
	assert.Equal(t, 3, res.Candles)
	assert.Equal(t, t0, res.Start)
	assert.Equal(t, t0.Add(2*time.Hour), res.End)
	assert.Equal(t, 1000.0, res.StartBalance)
	assert.Equal(t, 1000.0, res.EndBalance)
	assert.Equal(t, 0, res.Trades)
	assert.Equal(t, 0.0, res.WinRate())
	assert.Equal(t, "mock", res.Strategy)
}

func TestRunner_Run_BracketTakeProfit(t *testing.T) {
	t.Parallel()

	candles := []market.Candle{
		candle(0, 100, 100, 100, 100),
		candle(1, 100, 101, 99, 99),   // entry fills at 100, closes 1 under water
		candle(2, 101, 106, 100, 105), // take-profit at 105
		candle(3, 105, 105, 105, 105),
	}
	eng := newEngine(t)
	r := &Runner{
		Engine: eng,
		Feed:   NewSliceFeed(candles),
		Strategy: &strategies.Bracket{
			Params: strategies.Params{Side: broker.Long, Quantity: 1, TakeProfitPct: 0.05, StopLossPct: 0.02},
			Once:   true,
		},
		Symbol: sym,
	}
	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Trades)
	assert.Equal(t, 1, res.Wins)
	assert.Equal(t, 0, res.Losses)
	assert.InDelta(t, 1005.0, res.EndBalance, 1e-9)
	assert.InDelta(t, 5.0, res.NetPL, 1e-9)
	assert.InDelta(t, 0.5, res.ReturnPct, 1e-9)
	assert.InDelta(t, 0.1, res.MaxDDPct, 1e-9)
	assert.Equal(t, 1.0, res.WinRate())

	open, err := eng.GetOpenOrders(context.Background(), sym)
	require.NoError(t, err)
	assert.Empty(t, open, "stop-loss is canceled with the position")

	run := res.Run("run-1", "btc.csv", t0)
	assert.Equal(t, "run-1", run.RunID)
	assert.Equal(t, "bracket", run.Strategy)
	assert.Equal(t, 1.0, run.WinRate)

	var buf bytes.Buffer
	PrintBacktestRun(&buf, run)
	assert.Contains(t, buf.String(), "Net P/L:       5.00")
	assert.Contains(t, buf.String(), "Win Rate:      100.00%")
}

func TestRunner_Run_CloseAtEnd(t *testing.T) {
	t.Parallel()

	candles := []market.Candle{
		candle(0, 100, 100, 100, 100),
		candle(1, 100, 100, 100, 100),
		candle(2, 110, 110, 110, 110),
	}

	for _, closeAtEnd := range []bool{false, true} {
		eng := newEngine(t)
		r := &Runner{
			Engine:   eng,
			Feed:     NewSliceFeed(candles),
			Strategy: &strategies.Bracket{Params: strategies.Params{Side: broker.Long, Quantity: 1}, Once: true},
			Symbol:   sym,
			Options:  RunnerOptions{CloseAtEnd: closeAtEnd},
		}
		res, err := r.Run(context.Background())
		require.NoError(t, err)

		pos, err := eng.GetPosition(context.Background(), sym)
		require.NoError(t, err)
		if closeAtEnd {
			assert.Nil(t, pos)
			assert.Equal(t, 1, res.Trades)
			assert.InDelta(t, 10.0, res.NetPL, 1e-9)
		} else {
			require.NotNil(t, pos)
			assert.Equal(t, 0, res.Trades)
			assert.Equal(t, 0.0, res.NetPL)
		}
	}
}

func TestRunner_Run_Errors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("feed error", func(t *testing.T) {
		feed := &errorFeed{}
		r := &Runner{Engine: newEngine(t), Feed: feed, Strategy: &mockStrategy{}, Symbol: sym}
		_, err := r.Run(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mock error")
		assert.True(t, feed.closed)
	})

	t.Run("strategy error", func(t *testing.T) {
		r := &Runner{
			Engine:   newEngine(t),
			Feed:     NewSliceFeed([]market.Candle{candle(0, 100, 101, 99, 100)}),
			Strategy: &mockStrategy{shouldErr: true},
			Symbol:   sym,
		}
		_, err := r.Run(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "strategy error")
	})

	t.Run("out of order candles", func(t *testing.T) {
		r := &Runner{
			Engine:   newEngine(t),
			Feed:     NewSliceFeed([]market.Candle{candle(1, 100, 101, 99, 100), candle(0, 100, 101, 99, 100)}),
			Strategy: strategies.Noop{},
			Symbol:   sym,
		}
		_, err := r.Run(ctx)
		assert.ErrorIs(t, err, broker.ErrLookAhead)
	})

	t.Run("canceled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		r := &Runner{
			Engine:   newEngine(t),
			Feed:     NewSliceFeed([]market.Candle{candle(0, 100, 101, 99, 100)}),
			Strategy: &mockStrategy{},
			Symbol:   sym,
		}
		_, err := r.Run(cctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestRunner_Run_ShortWarmup(t *testing.T) {
	t.Parallel()

	strat, err := strategies.NewEMACross(strategies.Params{Quantity: 1, FastPeriod: 3, SlowPeriod: 5})
	require.NoError(t, err)

	r := &Runner{
		Engine:   newEngine(t),
		Feed:     NewSliceFeed([]market.Candle{candle(0, 100, 101, 99, 100), candle(1, 100, 101, 99, 100)}),
		Strategy: strat,
		Symbol:   sym,
	}
	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, res.Warmup)

	run := res.Run("run", "data.csv", t0)
	assert.Equal(t, []string{"2 candles, strategy needs 5 to warm up"}, run.Notes)
}
