package strategies

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/perptrader/broker"
	"github.com/rustyeddy/perptrader/market"
	"github.com/rustyeddy/perptrader/sim"
)

// mockBroker records what a strategy asks for.
type mockBroker struct {
	pos      *broker.Position
	open     []broker.Order
	entries  []broker.EntryRequest
	leverage map[string]int
	closed   int
	canceled int
	enterErr error
}

func (m *mockBroker) EnterPosition(ctx context.Context, req broker.EntryRequest) ([]broker.Order, error) {
	if m.enterErr != nil {
		return nil, m.enterErr
	}
	m.entries = append(m.entries, req)
	return []broker.Order{{ID: "entry", Symbol: req.Symbol}}, nil
}

func (m *mockBroker) ClosePosition(ctx context.Context, symbol string, price float64) (broker.Order, error) {
	m.closed++
	return broker.Order{}, nil
}

func (m *mockBroker) CancelOrders(ctx context.Context, symbol string) ([]broker.Order, error) {
	m.canceled++
	return nil, nil
}

func (m *mockBroker) SubmitOrder(ctx context.Context, req broker.OrderRequest) (broker.Order, error) {
	return broker.Order{}, errors.New("not implemented")
}

func (m *mockBroker) GetBalance(ctx context.Context, asset string) (broker.Balance, error) {
	return broker.Balance{Asset: asset, Total: 1000, Available: 1000}, nil
}

func (m *mockBroker) GetOpenOrders(ctx context.Context, symbol string) ([]broker.Order, error) {
	return m.open, nil
}

func (m *mockBroker) GetPosition(ctx context.Context, symbol string) (*broker.Position, error) {
	return m.pos, nil
}

func (m *mockBroker) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	if m.leverage == nil {
		m.leverage = map[string]int{}
	}
	m.leverage[symbol] = leverage
	return nil
}

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// flat builds a zero range candle i hours after t0.
func flat(i int, price float64) market.Candle {
	return market.Candle{
		Time: t0.Add(time.Duration(i) * time.Hour),
		Open: price, High: price, Low: price, Close: price,
		Volume: 1,
	}
}

func TestByName(t *testing.T) {
	t.Parallel()

	s, err := ByName("noop", Params{})
	require.NoError(t, err)
	assert.Equal(t, "noop", s.Name())

	s, err = ByName(" Bracket ", Params{Side: broker.Long, Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, "bracket", s.Name())

	s, err = ByName("ema-cross", Params{Quantity: 1, FastPeriod: 9, SlowPeriod: 21})
	require.NoError(t, err)
	assert.Equal(t, "ema-cross(9,21)", s.Name())

	_, err = ByName("ema-cross", Params{Quantity: 1, FastPeriod: 21, SlowPeriod: 9})
	assert.Error(t, err)

	_, err = ByName("martingale", Params{})
	assert.Error(t, err)
}

func TestNoop(t *testing.T) {
	t.Parallel()

	err := Noop{}.OnCandle(context.Background(), nil, "BTCUSDT", flat(0, 100))
	assert.NoError(t, err)
}

func TestBracket(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		side   broker.Side
		wantTP float64
		wantSL float64
	}{
		{"long", broker.Long, 102, 99},
		{"short", broker.Short, 98, 101},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			mock := &mockBroker{}
			s := &Bracket{
				Params: Params{Side: tt.side, Percent: 0.1, TakeProfitPct: 0.02, StopLossPct: 0.01, Leverage: 3},
				Once:   true,
			}

			require.NoError(t, s.OnCandle(ctx, mock, "BTCUSDT", flat(0, 100)))
			require.Len(t, mock.entries, 1)
			req := mock.entries[0]
			assert.Equal(t, tt.side, req.Side)
			assert.Equal(t, 0.0, req.Quantity)
			assert.Equal(t, 0.1, req.Percent)
			assert.Equal(t, 0.0, req.EntryPrice)
			assert.InDelta(t, tt.wantTP, req.TakeProfit, 1e-9)
			assert.InDelta(t, tt.wantSL, req.StopLoss, 1e-9)
			assert.Equal(t, 3, mock.leverage["BTCUSDT"])

			// Once: a flat book later does not re-enter.
			require.NoError(t, s.OnCandle(ctx, mock, "BTCUSDT", flat(1, 100)))
			assert.Len(t, mock.entries, 1)
		})
	}
}

func TestBracketWaitsWhileBusy(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mock := &mockBroker{pos: &broker.Position{Symbol: "BTCUSDT", Side: broker.Long, Quantity: 1}}
	s := &Bracket{Params: Params{Side: broker.Long, Quantity: 1}}

	require.NoError(t, s.OnCandle(ctx, mock, "BTCUSDT", flat(0, 100)))
	assert.Empty(t, mock.entries)

	mock.pos = nil
	mock.open = []broker.Order{{ID: "resting"}}
	require.NoError(t, s.OnCandle(ctx, mock, "BTCUSDT", flat(1, 100)))
	assert.Empty(t, mock.entries)

	mock.open = nil
	require.NoError(t, s.OnCandle(ctx, mock, "BTCUSDT", flat(2, 100)))
	require.Len(t, mock.entries, 1)
	assert.Equal(t, 1.0, mock.entries[0].Quantity)
	assert.Equal(t, 0.0, mock.entries[0].StopLoss)
	assert.Nil(t, mock.leverage)
}

func TestBracketRiskSizing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mock := &mockBroker{}
	s := &Bracket{Params: Params{
		Side: broker.Long, Asset: "USDT", RiskPct: 0.01, Percent: 0.5,
		TakeProfitPct: 0.02, StopLossPct: 0.01, Leverage: 2,
	}}

	// 1% of 1000 lost over a 1 point stop at 2x.
	require.NoError(t, s.OnCandle(ctx, mock, "BTCUSDT", flat(0, 100)))
	require.Len(t, mock.entries, 1)
	assert.InDelta(t, 5.0, mock.entries[0].Quantity, 1e-9)
	assert.Zero(t, mock.entries[0].Percent)
}

func TestBracketErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	s := &Bracket{Params: Params{Quantity: 1}}
	assert.Error(t, s.OnCandle(ctx, &mockBroker{}, "BTCUSDT", flat(0, 100)))

	s = &Bracket{Params: Params{Side: broker.Long}}
	assert.Error(t, s.OnCandle(ctx, &mockBroker{}, "BTCUSDT", flat(0, 100)))

	mock := &mockBroker{enterErr: broker.ErrBalance}
	s = &Bracket{Params: Params{Side: broker.Long, Quantity: 1}, Once: true}
	assert.ErrorIs(t, s.OnCandle(ctx, mock, "BTCUSDT", flat(0, 100)), broker.ErrBalance)
	assert.False(t, s.entered)
}

func TestEMACrossEntersAndReverses(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := sim.DefaultConfig()
	cfg.MakerFee = 0
	cfg.TakerFee = 0
	eng, err := sim.NewEngine(cfg, nil)
	require.NoError(t, err)

	s, err := NewEMACross(Params{Quantity: 1, FastPeriod: 2, SlowPeriod: 3, StopLossPct: 0.02})
	require.NoError(t, err)

	step := func(i int, price float64) {
		t.Helper()
		c := flat(i, price)
		require.NoError(t, eng.Step(ctx, "BTCUSDT", c))
		require.NoError(t, s.OnCandle(ctx, eng, "BTCUSDT", c))
	}

	// Falling closes warm the averages up with fast below slow; the close
	// at 100 crosses fast above slow.
	for i, price := range []float64{100, 99, 98, 97, 100} {
		step(i, price)
	}
	open, err := eng.GetOpenOrders(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.Len(t, open, 3)
	assert.Equal(t, broker.Market, open[0].Type)
	assert.InDelta(t, 98.0, open[2].StopPrice, 1e-9)
	assert.InDelta(t, 104.0, open[1].StopPrice, 1e-9)

	step(5, 104)
	pos, err := eng.GetPosition(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, broker.Long, pos.Side)
	assert.Equal(t, 104.0, pos.EntryPrice)

	// 99.5 crosses fast back below slow: cancel the bracket and close.
	step(6, 100)
	step(7, 99.5)
	open, err = eng.GetOpenOrders(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, broker.RoleExit, open[0].Role)

	// The close fills, then the short goes in once flat.
	step(8, 99)
	pos, err = eng.GetPosition(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Nil(t, pos)

	step(9, 98.5)
	pos, err = eng.GetPosition(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, broker.Short, pos.Side)
	assert.Equal(t, 98.5, pos.EntryPrice)

	history := eng.PositionHistory()
	require.Len(t, history, 1)
	assert.InDelta(t, -5.0, history[0].RealizedProfit, 1e-9)
}

func TestEMACrossTrendFilter(t *testing.T) {
	t.Parallel()

	// A steady fall from 120 to 102 and a bounce to 107: the fast EMA
	// crosses above the slow one while the close is still under SMA(8).
	var prices []float64
	for p := 120.0; p >= 102; p -= 2 {
		prices = append(prices, p)
	}
	prices = append(prices, 107)

	run := func(trend int) *mockBroker {
		s, err := NewEMACross(Params{Quantity: 1, FastPeriod: 2, SlowPeriod: 3, TrendPeriod: trend, StopLossPct: 0.02})
		require.NoError(t, err)
		mock := &mockBroker{}
		for i, p := range prices {
			require.NoError(t, s.OnCandle(context.Background(), mock, "BTCUSDT", flat(i, p)))
		}
		return mock
	}

	withFilter, err := NewEMACross(Params{Quantity: 1, FastPeriod: 2, SlowPeriod: 3, TrendPeriod: 8})
	require.NoError(t, err)
	assert.Equal(t, 8, withFilter.Warmup())
	assert.Equal(t, "ema-cross(2,3) above/below SMA(8)", withFilter.Name())

	assert.Empty(t, run(8).entries, "long against the trend")

	mock := run(0)
	require.Len(t, mock.entries, 1)
	assert.Equal(t, broker.Long, mock.entries[0].Side)
}
