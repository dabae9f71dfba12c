package sim

import (
	"math"
	"sort"

	"github.com/rustyeddy/perptrader/broker"
)

// Trigger is an order that became executable within a candle together with
// the price it fills at.
type Trigger struct {
	Order broker.Order
	Price float64
	// Level is the price whose reach made the order executable. For a
	// converted stop-limit it is the stop, or the limit when the limit is
	// only reached after the stop and lies farther from the open.
	Level    float64
	Distance float64 // |Level - open|
}

// Detection is the result of scanning a candle against open orders.
type Detection struct {
	// Triggered orders in the sequence they are assumed to have been reached.
	Triggered []Trigger
	// Converted holds stop-limit and take-profit-limit orders whose stop was
	// hit but whose limit price was not reached. They are now plain limit
	// orders and stay open.
	Converted []broker.Order
}

// DetectFills decides which orders trade within a candle described by its
// open, high and low, and in which order.
//
// Price is assumed to move away from the open before it reverses, so the
// trigger nearest the open is reached first. Market orders fill at the open
// and always come first.
func DetectFills(open, high, low float64, orders []broker.Order) Detection {
	var d Detection

	for _, o := range orders {
		if !o.IsOpen() {
			continue
		}
		if o.IsMarket() {
			d.Triggered = append(d.Triggered, Trigger{Order: o, Price: open, Level: open})
			continue
		}

		if o.Type == broker.TrailingStopMarket && !o.Activated {
			continue
		}
		trigger := o.TriggerPrice(open)
		if !(low <= trigger && trigger <= high) {
			continue
		}

		switch o.Type {
		case broker.StopLimit, broker.TakeProfitLimit:
			lo := toLimit(o)
			if low <= lo.Price && lo.Price <= high {
				level := trigger
				if !marketable(lo, trigger) && math.Abs(lo.Price-open) > math.Abs(trigger-open) {
					level = lo.Price
				}
				d.Triggered = append(d.Triggered, Trigger{Order: lo, Price: fillPrice(lo, open), Level: level})
			} else {
				d.Converted = append(d.Converted, lo)
			}
		default:
			d.Triggered = append(d.Triggered, Trigger{Order: o, Price: fillPrice(o, open), Level: trigger})
		}
	}

	for i := range d.Triggered {
		d.Triggered[i].Distance = math.Abs(d.Triggered[i].Level - open)
	}
	sort.SliceStable(d.Triggered, func(i, j int) bool {
		a, b := d.Triggered[i], d.Triggered[j]
		if a.Order.IsMarket() != b.Order.IsMarket() {
			return a.Order.IsMarket()
		}
		return a.Distance < b.Distance
	})
	return d
}

// toLimit turns a triggered stop-limit or take-profit-limit into a plain
// limit order at its limit price.
func toLimit(o broker.Order) broker.Order {
	o.Type = broker.Limit
	o.StopPrice = 0
	return o
}

// fillPrice is where a triggered order executes.
func fillPrice(o broker.Order, open float64) float64 {
	switch o.Type {
	case broker.Market:
		return open
	case broker.Limit, broker.StopLimit, broker.TakeProfitLimit:
		return o.Price
	}
	return o.StopPrice
}

// atLevel is the order as PickFirst should see it: triggering at Level.
func (tr Trigger) atLevel() broker.Order {
	o := tr.Order
	o.StopPrice = tr.Level
	return o
}
