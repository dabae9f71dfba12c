package sim

import (
	"fmt"
	"sort"
	"time"

	"github.com/rustyeddy/perptrader/broker"
)

// dust is the relative quantity left after a reduce that still counts as a
// full close.
const dust = 1e-9

// PositionChange is the outcome of a ledger operation.
type PositionChange struct {
	Position broker.Position // state after the operation
	Quantity float64         // quantity that traded
	Realized float64         // market P&L realized, before fees
	Released float64         // margin given back to the balance
	Closed   bool
}

// PositionLedger owns the open position of every symbol and the archive of
// closed ones.
type PositionLedger struct {
	open    map[string]*broker.Position
	history []broker.Position
}

func NewPositionLedger() *PositionLedger {
	return &PositionLedger{open: make(map[string]*broker.Position)}
}

// Get returns a copy of the open position for symbol.
func (l *PositionLedger) Get(symbol string) (broker.Position, bool) {
	p, ok := l.open[symbol]
	if !ok {
		return broker.Position{}, false
	}
	return *p, true
}

// OpenPositions returns copies of every open position sorted by symbol.
func (l *PositionLedger) OpenPositions() []broker.Position {
	out := make([]broker.Position, 0, len(l.open))
	for _, p := range l.open {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// History returns closed positions in closing order.
func (l *PositionLedger) History() []broker.Position {
	return append([]broker.Position(nil), l.history...)
}

// Open starts a position from an entry fill.
func (l *PositionLedger) Open(o broker.Order, price float64, leverage int, fee float64, at time.Time) (PositionChange, error) {
	if _, ok := l.open[o.Symbol]; ok {
		return PositionChange{}, fmt.Errorf("%w: %s: position already open", broker.ErrPosition, o.Symbol)
	}
	if leverage < 1 {
		return PositionChange{}, fmt.Errorf("%w: %s: leverage %d", broker.ErrLeverage, o.Symbol, leverage)
	}
	if !(o.Quantity > 0) {
		return PositionChange{}, fmt.Errorf("%w: %s: cannot open with quantity %g", broker.ErrPosition, o.Symbol, o.Quantity)
	}

	p := &broker.Position{
		Symbol:         o.Symbol,
		Side:           o.Side,
		Quantity:       o.Quantity,
		EntryPrice:     price,
		Leverage:       leverage,
		RealizedProfit: -fee,
		Fees:           fee,
		Margin:         o.Margin,
		State:          broker.PositionEntry,
		OpenedAt:       at,
	}
	l.open[o.Symbol] = p
	return PositionChange{Position: *p, Quantity: o.Quantity}, nil
}

// Add increases the position on the same side. The entry price becomes the
// quantity weighted mean of all entries.
func (l *PositionLedger) Add(o broker.Order, price, fee float64) (PositionChange, error) {
	p, ok := l.open[o.Symbol]
	if !ok {
		return PositionChange{}, fmt.Errorf("%w: %s: no open position to add to", broker.ErrPosition, o.Symbol)
	}
	if o.Side != p.Side {
		return PositionChange{}, fmt.Errorf("%w: %s: add on %s side of a %s position", broker.ErrPosition, o.Symbol, o.Side, p.Side)
	}
	if !(o.Quantity > 0) {
		return PositionChange{}, fmt.Errorf("%w: %s: cannot add quantity %g", broker.ErrPosition, o.Symbol, o.Quantity)
	}

	qty := p.Quantity + o.Quantity
	p.EntryPrice = (p.Quantity*p.EntryPrice + o.Quantity*price) / qty
	p.Quantity = qty
	p.Margin += o.Margin
	p.Fees += fee
	p.RealizedProfit -= fee
	p.State = broker.PositionAdjusted
	p.Adjustments++
	return PositionChange{Position: *p, Quantity: o.Quantity}, nil
}

// Reduce shrinks the position and realizes the matching slice of profit.
// Reducing by the whole quantity or more closes the position.
func (l *PositionLedger) Reduce(o broker.Order, price, fee float64, at time.Time) (PositionChange, error) {
	p, ok := l.open[o.Symbol]
	if !ok {
		return PositionChange{}, fmt.Errorf("%w: %s: no open position to reduce", broker.ErrPosition, o.Symbol)
	}
	if o.ClosePosition || o.Quantity >= p.Quantity*(1-dust) {
		return l.Close(o.Symbol, price, fee, at)
	}
	if !(o.Quantity > 0) {
		return PositionChange{}, fmt.Errorf("%w: %s: cannot reduce by %g", broker.ErrPosition, o.Symbol, o.Quantity)
	}

	realized := profit(p.Side, p.EntryPrice, price, o.Quantity, p.Leverage)
	released := p.Margin * o.Quantity / p.Quantity

	p.Quantity -= o.Quantity
	p.Margin -= released
	p.Fees += fee
	p.RealizedProfit += realized - fee
	p.State = broker.PositionAdjusted
	p.Adjustments++
	return PositionChange{Position: *p, Quantity: o.Quantity, Realized: realized, Released: released}, nil
}

// Close realizes everything that is left and archives the position.
func (l *PositionLedger) Close(symbol string, price, fee float64, at time.Time) (PositionChange, error) {
	p, ok := l.open[symbol]
	if !ok {
		return PositionChange{}, fmt.Errorf("%w: %s: no open position to close", broker.ErrPosition, symbol)
	}

	qty := p.Quantity
	realized := profit(p.Side, p.EntryPrice, price, qty, p.Leverage)
	released := p.Margin

	p.Fees += fee
	p.RealizedProfit += realized - fee
	p.Margin = 0
	p.Quantity = 0
	p.State = broker.PositionClosed
	p.ClosedAt = at
	p.ClosePrice = price

	// Keep the closed quantity in the archive so reports can show size.
	closed := *p
	closed.Quantity = qty
	delete(l.open, symbol)
	l.history = append(l.history, closed)

	return PositionChange{Position: closed, Quantity: qty, Realized: realized, Released: released, Closed: true}, nil
}

// markLiquidated flags the last archived position of symbol.
func (l *PositionLedger) markLiquidated(symbol string) broker.Position {
	for i := len(l.history) - 1; i >= 0; i-- {
		if l.history[i].Symbol == symbol {
			l.history[i].Liquidated = true
			return l.history[i]
		}
	}
	return broker.Position{}
}
