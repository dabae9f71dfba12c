package sim

import (
	"testing"

	"github.com/rustyeddy/perptrader/broker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOrder(id string, typ broker.OrderType, side broker.Side, price, stop float64) broker.Order {
	return broker.Order{
		ID:        id,
		Symbol:    "BTCUSDT",
		Type:      typ,
		Side:      side,
		Quantity:  1,
		Price:     price,
		StopPrice: stop,
		Status:    broker.StatusNew,
	}
}

func ids(trs []Trigger) []string {
	out := make([]string, len(trs))
	for i, tr := range trs {
		out[i] = tr.Order.ID
	}
	return out
}

func TestDetectFillsOrdering(t *testing.T) {
	t.Parallel()

	orders := []broker.Order{
		testOrder("A", broker.Limit, broker.Buy, 95, 0),
		testOrder("B", broker.StopMarket, broker.Sell, 0, 92),
		testOrder("C", broker.TakeProfitMarket, broker.Sell, 0, 102),
		testOrder("D", broker.Market, broker.Buy, 0, 0),
		testOrder("E", broker.Limit, broker.Sell, 120, 0),
	}

	d := DetectFills(100, 110, 90, orders)
	require.Len(t, d.Triggered, 4)
	assert.Equal(t, []string{"D", "C", "A", "B"}, ids(d.Triggered))
	assert.Empty(t, d.Converted)

	prices := map[string]float64{}
	for _, tr := range d.Triggered {
		prices[tr.Order.ID] = tr.Price
	}
	assert.Equal(t, 100.0, prices["D"])
	assert.Equal(t, 102.0, prices["C"])
	assert.Equal(t, 95.0, prices["A"])
	assert.Equal(t, 92.0, prices["B"])

	for i := 1; i < len(d.Triggered); i++ {
		if d.Triggered[i-1].Order.IsMarket() {
			continue
		}
		assert.LessOrEqual(t, d.Triggered[i-1].Distance, d.Triggered[i].Distance)
	}
}

func TestDetectFillsMarketAlwaysFills(t *testing.T) {
	t.Parallel()

	// An untradeable looking candle still fills market orders at the open.
	d := DetectFills(100, 100, 100, []broker.Order{testOrder("M", broker.Market, broker.Sell, 0, 0)})
	require.Len(t, d.Triggered, 1)
	assert.Equal(t, 100.0, d.Triggered[0].Price)
}

func TestDetectFillsZeroRange(t *testing.T) {
	t.Parallel()

	orders := []broker.Order{
		testOrder("at", broker.Limit, broker.Buy, 100, 0),
		testOrder("stop", broker.StopMarket, broker.Buy, 0, 100),
		testOrder("off", broker.StopMarket, broker.Buy, 0, 100.5),
	}
	d := DetectFills(100, 100, 100, orders)
	assert.ElementsMatch(t, []string{"at", "stop"}, ids(d.Triggered))
}

func TestDetectFillsSkipsClosedOrders(t *testing.T) {
	t.Parallel()

	o := testOrder("X", broker.Market, broker.Buy, 0, 0)
	o.Status = broker.StatusCanceled
	d := DetectFills(100, 110, 90, []broker.Order{o})
	assert.Empty(t, d.Triggered)
}

func TestDetectFillsStopLimitSameCandle(t *testing.T) {
	t.Parallel()

	o := testOrder("SL", broker.StopLimit, broker.Buy, 106, 105)
	d := DetectFills(100, 107, 99, []broker.Order{o})

	require.Len(t, d.Triggered, 1)
	tr := d.Triggered[0]
	assert.Equal(t, broker.Limit, tr.Order.Type)
	assert.Zero(t, tr.Order.StopPrice)
	assert.Equal(t, 106.0, tr.Price)
	// A buy limit at 106 is executable as soon as the stop at 105 trades.
	assert.Equal(t, 105.0, tr.Level)
	assert.InDelta(t, 5.0, tr.Distance, 1e-12)
	assert.False(t, tr.Order.IsTaker())
}

func TestDetectFillsStopLimitConverted(t *testing.T) {
	t.Parallel()

	o := testOrder("TP", broker.TakeProfitLimit, broker.Buy, 104, 105)
	d := DetectFills(100, 106, 104.5, []broker.Order{o})

	assert.Empty(t, d.Triggered)
	require.Len(t, d.Converted, 1)
	assert.Equal(t, broker.Limit, d.Converted[0].Type)
	assert.Equal(t, 104.0, d.Converted[0].Price)
	assert.Zero(t, d.Converted[0].StopPrice)
}

func TestDetectFillsStopNotReached(t *testing.T) {
	t.Parallel()

	o := testOrder("S", broker.StopLimit, broker.Sell, 80, 85)
	d := DetectFills(100, 110, 90, []broker.Order{o})
	assert.Empty(t, d.Triggered)
	assert.Empty(t, d.Converted)
}

func TestDetectFillsStopLimitOrderedByStop(t *testing.T) {
	t.Parallel()

	add := testOrder("ADD", broker.StopLimit, broker.Buy, 101, 110)
	tp := testOrder("TP", broker.TakeProfitMarket, broker.Sell, 0, 105)
	tp.ReduceOnly = true

	d := DetectFills(100, 115, 99, []broker.Order{add, tp})
	require.Len(t, d.Triggered, 2)
	assert.Equal(t, []string{"TP", "ADD"}, ids(d.Triggered))
	assert.Equal(t, 110.0, d.Triggered[1].Level)
	assert.InDelta(t, 10.0, d.Triggered[1].Distance, 1e-12)
	assert.Equal(t, 101.0, d.Triggered[1].Price)
}

func TestDetectFillsStopLimitFartherLimit(t *testing.T) {
	t.Parallel()

	// Stop at 105, then the market has to fall back to 92.
	o := testOrder("SL", broker.StopLimit, broker.Buy, 92, 105)
	d := DetectFills(100, 106, 90, []broker.Order{o})
	require.Len(t, d.Triggered, 1)
	assert.Equal(t, 92.0, d.Triggered[0].Level)
	assert.InDelta(t, 8.0, d.Triggered[0].Distance, 1e-12)
}

func TestDetectFillsTrailingStopNeedsActivation(t *testing.T) {
	t.Parallel()

	o := testOrder("TR", broker.TrailingStopMarket, broker.Sell, 0, 100)
	assert.Empty(t, DetectFills(101, 102, 99, []broker.Order{o}).Triggered)

	o.Activated = true
	d := DetectFills(101, 102, 99, []broker.Order{o})
	require.Len(t, d.Triggered, 1)
	assert.Equal(t, 100.0, d.Triggered[0].Price)
}
