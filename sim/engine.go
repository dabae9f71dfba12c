package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"slices"
	"time"

	"github.com/rustyeddy/perptrader/broker"
	"github.com/rustyeddy/perptrader/internal/id"
	"github.com/rustyeddy/perptrader/journal"
	"github.com/rustyeddy/perptrader/market"
)

// Engine is the simulated futures exchange. It is not safe for concurrent
// use: a single runner owns it and feeds it candles through Step.
type Engine struct {
	cfg      Config
	log      *slog.Logger
	ids      *id.Generator
	journal  journal.Journal
	listener Listener

	balances  *BalanceLedger
	positions *PositionLedger

	open     map[string][]broker.Order // resting orders per symbol, oldest first
	orders   []broker.Order            // filled, canceled and expired orders
	fills    []broker.Fill
	leverage map[string]int
	last     map[string]market.Candle
	now      time.Time

	liquidations []*broker.LiquidationError
}

var _ broker.Broker = (*Engine)(nil)

// NewEngine creates an engine funded with cfg.StartingBalance. A nil
// journal records nothing.
func NewEngine(cfg Config, j journal.Journal) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if j == nil {
		j = journal.Discard{}
	}

	e := &Engine{
		cfg:       cfg,
		log:       cfg.logger(),
		ids:       id.NewGenerator(cfg.IDSeed),
		journal:   j,
		listener:  NopListener{},
		balances:  NewBalanceLedger(),
		positions: NewPositionLedger(),
		open:      make(map[string][]broker.Order),
		leverage:  make(map[string]int),
		last:      make(map[string]market.Candle),
		now:       cfg.StartTime,
	}

	bal, err := e.balances.Init(cfg.Asset, cfg.StartingBalance, cfg.StartTime)
	if err != nil {
		return nil, err
	}
	if err := e.journal.RecordBalance(balanceRecord(bal)); err != nil {
		return nil, err
	}
	return e, nil
}

// SetListener replaces the event listener. Use Listeners to attach several.
func (e *Engine) SetListener(l Listener) {
	if l == nil {
		l = NopListener{}
	}
	e.listener = l
}

func (e *Engine) Config() Config { return e.cfg }

// Now is the open time of the latest candle processed.
func (e *Engine) Now() time.Time { return e.now }

// LastCandle returns the latest candle processed for symbol.
func (e *Engine) LastCandle(symbol string) (market.Candle, bool) {
	c, ok := e.last[symbol]
	return c, ok
}

// Leverage is the leverage new positions on symbol open with.
func (e *Engine) Leverage(symbol string) int {
	if l, ok := e.leverage[symbol]; ok {
		return l
	}
	return e.cfg.DefaultLeverage
}

func (e *Engine) Fills() []broker.Fill {
	return append([]broker.Fill(nil), e.fills...)
}

// OrderHistory returns orders that are no longer open, in the order they
// left the book.
func (e *Engine) OrderHistory() []broker.Order {
	return append([]broker.Order(nil), e.orders...)
}

func (e *Engine) PositionHistory() []broker.Position { return e.positions.History() }

func (e *Engine) BalanceHistory() []broker.Balance { return e.balances.History() }

func (e *Engine) Liquidations() []*broker.LiquidationError {
	return append([]*broker.LiquidationError(nil), e.liquidations...)
}

// Step advances symbol by one candle:
//
//  1. liquidation check against the position carried in from the previous
//     candle; a liquidation ends the step
//  2. fill detection, stop-limit conversion and exit tie-breaking
//  3. fills applied in the order they were reached
//  4. IOC/FOK expiry and trailing stop updates
//  5. end of candle events
//
// Liquidation is handled here and reported through the listener and
// Liquidations; every other error is returned.
func (e *Engine) Step(ctx context.Context, symbol string, c market.Candle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	inst, err := e.instrument(symbol)
	if err != nil {
		return err
	}
	symbol = inst.Symbol

	if err := c.Validate(); err != nil {
		return fmt.Errorf("%w: %s: %v", broker.ErrInvalidPrice, symbol, err)
	}
	if last, ok := e.last[symbol]; ok && !c.Time.After(last.Time) {
		return fmt.Errorf("%w: %s: candle %s is not after %s", broker.ErrLookAhead, symbol,
			c.Time.Format(time.RFC3339), last.Time.Format(time.RFC3339))
	}
	if c.Time.After(e.now) {
		e.now = c.Time
	}

	liquidated, err := e.checkLiquidation(symbol, c)
	if err != nil {
		return err
	}
	if !liquidated {
		if err := e.matchOrders(symbol, c); err != nil {
			return err
		}
	}

	e.last[symbol] = c
	if p, ok := e.positions.Get(symbol); ok {
		e.listener.OnInPosition(p)
	} else {
		e.listener.OnNotInPosition(symbol)
	}
	e.listener.OnCandleClose(symbol, c)
	return nil
}

// CloseAll cancels every open order and closes every position at market
// using the last close of its symbol.
func (e *Engine) CloseAll(ctx context.Context) error {
	for _, symbol := range slices.Sorted(maps.Keys(e.open)) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := e.CancelOrders(ctx, symbol); err != nil {
			return err
		}
	}
	for _, p := range e.positions.OpenPositions() {
		if err := ctx.Err(); err != nil {
			return err
		}
		last, ok := e.last[p.Symbol]
		if !ok {
			return fmt.Errorf("%w: %s: no price to close at", broker.ErrInvalidPrice, p.Symbol)
		}
		if _, err := e.forceClose(p, last.Close, broker.RoleExit); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) instrument(symbol string) (market.Instrument, error) {
	inst, err := e.cfg.Instruments.Lookup(symbol)
	if err != nil {
		return market.Instrument{}, fmt.Errorf("%w: %q", broker.ErrSymbol, symbol)
	}
	return inst, nil
}

func (e *Engine) checkLiquidation(symbol string, c market.Candle) (bool, error) {
	p, ok := e.positions.Get(symbol)
	if !ok {
		return false, nil
	}
	bal, err := e.balances.Get(e.cfg.Asset)
	if err != nil {
		return false, err
	}

	var lerr *broker.LiquidationError
	if !errors.As(CheckLiquidation(p, bal.Available, c), &lerr) {
		return false, nil
	}

	e.log.Warn("position liquidated",
		"symbol", symbol,
		"side", p.Side,
		"quantity", p.Quantity,
		"entry", p.EntryPrice,
		"price", lerr.Price,
		"loss", lerr.Loss,
		"available", lerr.Available,
	)

	if _, err := e.CancelOrders(context.Background(), symbol); err != nil {
		return true, err
	}
	e.liquidations = append(e.liquidations, lerr)
	e.listener.OnLiquidation(lerr)
	if _, err := e.forceClose(p, lerr.Price, broker.RoleLiquidation); err != nil {
		return true, err
	}
	return true, nil
}

// forceClose closes p at price with the taker fee, outside the order book.
func (e *Engine) forceClose(p broker.Position, price float64, role broker.OrderRole) (broker.Position, error) {
	fee := Fee(p.Quantity*price, e.cfg.TakerFee, p.Leverage)
	change, err := e.positions.Close(p.Symbol, price, fee, e.now)
	if err != nil {
		return broker.Position{}, err
	}
	closed := change.Position
	if role == broker.RoleLiquidation {
		closed = e.positions.markLiquidated(p.Symbol)
	}

	bal, err := e.balances.Settle(e.cfg.Asset, change.Realized, fee, change.Released, e.now)
	if err != nil {
		return closed, err
	}

	fill := broker.Fill{
		OrderID:  e.ids.New(e.now),
		Symbol:   p.Symbol,
		Side:     p.Side.Opposite(),
		Type:     broker.Market,
		Role:     role,
		Quantity: change.Quantity,
		Price:    price,
		Fee:      fee,
		Realized: change.Realized,
		Time:     e.now,
	}
	if err := e.recordFill(fill); err != nil {
		return closed, err
	}
	if err := e.recordClose(closed); err != nil {
		return closed, err
	}
	return closed, e.recordBalance(bal)
}

// matchable is the open orders of symbol that may trade this candle.
// Bracket orders wait until their entry has filled.
func (e *Engine) matchable(symbol string) []broker.Order {
	var out []broker.Order
	for _, o := range e.open[symbol] {
		if e.pending(symbol, o.ParentID) {
			continue
		}
		out = append(out, o)
	}
	return out
}

// pending reports whether parentID names an order that is still open.
func (e *Engine) pending(symbol, parentID string) bool {
	if parentID == "" {
		return false
	}
	_, ok := e.openOrder(symbol, parentID)
	return ok
}

func (e *Engine) matchOrders(symbol string, c market.Candle) error {
	candidates := e.matchable(symbol)
	if len(candidates) == 0 {
		return nil
	}

	det := DetectFills(c.Open, c.High, c.Low, candidates)

	// Time in force starts counting once a conditional order is reached.
	reached := make(map[string]bool, len(det.Triggered)+len(det.Converted))
	for _, tr := range det.Triggered {
		reached[tr.Order.ID] = true
	}
	for _, o := range det.Converted {
		reached[o.ID] = true
	}
	var immediate []string
	for _, o := range candidates {
		if o.TimeInForce != broker.IOC && o.TimeInForce != broker.FOK {
			continue
		}
		if !o.IsConditional() || reached[o.ID] {
			immediate = append(immediate, o.ID)
		}
	}
	for _, o := range det.Converted {
		o.UpdatedAt = e.now
		e.storeOrder(o)
		e.log.Debug("stop reached, resting as limit",
			"symbol", symbol, "order", o.ID, "price", o.Price)
	}

	for _, tr := range e.resolveExits(symbol, c, det.Triggered) {
		if _, ok := e.openOrder(symbol, tr.Order.ID); !ok {
			continue
		}
		if err := e.execute(symbol, tr); err != nil {
			return err
		}
	}

	if len(immediate) > 0 {
		if _, err := e.retire(symbol, immediate, broker.StatusExpired); err != nil {
			return err
		}
	}
	e.trail(symbol, c)
	return nil
}

// resolveExits handles exit orders reached on both sides of the open. Only
// one side can have come first; the nearest exit on each side is compared
// with PickFirst and the exits on the losing side sit out this candle.
func (e *Engine) resolveExits(symbol string, c market.Candle, triggered []Trigger) []Trigger {
	if _, ok := e.positions.Get(symbol); !ok {
		return triggered
	}

	var above, below *Trigger
	for i := range triggered {
		tr := &triggered[i]
		if !tr.Order.IsExit() || tr.Order.IsMarket() {
			continue
		}
		if tr.Level >= c.Open {
			if above == nil {
				above = tr
			}
		} else if below == nil {
			below = tr
		}
	}
	if above == nil || below == nil {
		return triggered
	}

	first := PickFirst(c.High, c.Low, c.Open, above.atLevel(), below.atLevel())
	dropAbove := first.ID != above.Order.ID
	e.log.Debug("exits on both sides of the open",
		"symbol", symbol, "first", first.ID, "above", above.Order.ID, "below", below.Order.ID)

	out := make([]Trigger, 0, len(triggered))
	for _, tr := range triggered {
		if tr.Order.IsExit() && !tr.Order.IsMarket() {
			if (tr.Level >= c.Open) == dropAbove {
				continue
			}
		}
		out = append(out, tr)
	}
	return out
}

// execute applies one fill. Orders the ledgers refuse are canceled; only
// bookkeeping failures are returned.
func (e *Engine) execute(symbol string, tr Trigger) error {
	o := tr.Order
	pos, hasPos := e.positions.Get(symbol)

	if o.IsExit() && (!hasPos || pos.Side == o.Side) {
		e.log.Debug("exit order without a position to reduce, canceling",
			"symbol", symbol, "order", o.ID)
		_, err := e.retire(symbol, []string{o.ID}, broker.StatusCanceled)
		return err
	}

	var (
		change   PositionChange
		fee      float64
		released float64
		err      error
	)
	rate := e.cfg.feeRate(o)

	switch {
	case hasPos && pos.Side != o.Side:
		reduce := o
		if reduce.ClosePosition || reduce.Quantity > pos.Quantity {
			reduce.Quantity = pos.Quantity
		}
		fee = Fee(reduce.Quantity*tr.Price, rate, pos.Leverage)
		change, err = e.positions.Reduce(reduce, tr.Price, fee, e.now)
		// A plain order on the other side reserved margin for an entry it
		// never becomes.
		released = o.Margin
	case hasPos:
		fee = Fee(o.Quantity*tr.Price, rate, pos.Leverage)
		change, err = e.positions.Add(o, tr.Price, fee)
	default:
		lev := e.Leverage(symbol)
		fee = Fee(o.Quantity*tr.Price, rate, lev)
		change, err = e.positions.Open(o, tr.Price, lev, fee, e.now)
	}
	if err != nil {
		e.log.Warn("order refused at fill, canceling",
			"symbol", symbol, "order", o.ID, "type", o.Type, "error", err)
		_, rerr := e.retire(symbol, []string{o.ID}, broker.StatusCanceled)
		return rerr
	}

	bal, err := e.balances.Settle(e.cfg.Asset, change.Realized, fee, change.Released+released, e.now)
	if err != nil {
		return err
	}

	o.FillPrice = tr.Price
	e.closeOrder(o, broker.StatusFilled)

	fill := broker.Fill{
		OrderID:  o.ID,
		Symbol:   symbol,
		Side:     o.Side,
		Type:     o.Type,
		Role:     o.Role,
		Quantity: change.Quantity,
		Price:    tr.Price,
		Fee:      fee,
		Maker:    !o.IsTaker(),
		Realized: change.Realized,
		Time:     e.now,
	}
	if err := e.recordFill(fill); err != nil {
		return err
	}

	switch {
	case change.Closed:
		if err := e.recordClose(change.Position); err != nil {
			return err
		}
	case hasPos:
		e.listener.OnPositionAdjust(change.Position)
	default:
		e.listener.OnPositionOpen(change.Position)
	}
	if err := e.recordBalance(bal); err != nil {
		return err
	}

	if change.Closed {
		return e.cancelExits(symbol)
	}
	return nil
}

// cancelExits cancels the exit orders left behind by a closed position.
// Bracket orders of entries that are still open are kept.
func (e *Engine) cancelExits(symbol string) error {
	var ids []string
	for _, o := range e.open[symbol] {
		if o.IsExit() && !e.pending(symbol, o.ParentID) {
			ids = append(ids, o.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	_, err := e.retire(symbol, ids, broker.StatusCanceled)
	return err
}

// trail activates trailing stops whose activation price the candle touched
// and moves active ones toward the candle extreme. A sell stop only ever
// rises and a buy stop only ever falls. An order activated by this candle
// can fill from the next one.
func (e *Engine) trail(symbol string, c market.Candle) {
	orders := e.open[symbol]
	for i := range orders {
		o := &orders[i]
		if o.Type != broker.TrailingStopMarket || e.pending(symbol, o.ParentID) {
			continue
		}
		if !o.Activated {
			touched := (o.Side == broker.Sell && c.High >= o.StopPrice) ||
				(o.Side == broker.Buy && c.Low <= o.StopPrice)
			if !touched {
				continue
			}
			o.Activated = true
			e.log.Debug("trailing stop activated",
				"symbol", symbol, "order", o.ID, "activation", o.StopPrice)
			if o.Side == broker.Sell {
				o.StopPrice = c.High * (1 - o.CallbackRate)
			} else {
				o.StopPrice = c.Low * (1 + o.CallbackRate)
			}
			o.UpdatedAt = e.now
			continue
		}
		stop := o.StopPrice
		if o.Side == broker.Sell {
			stop = math.Max(stop, c.High*(1-o.CallbackRate))
		} else {
			stop = math.Min(stop, c.Low*(1+o.CallbackRate))
		}
		if stop != o.StopPrice {
			e.log.Debug("trailing stop moved",
				"symbol", symbol, "order", o.ID, "from", o.StopPrice, "to", stop)
			o.StopPrice = stop
			o.UpdatedAt = e.now
		}
	}
}

// retire takes orders off the book as canceled or expired, gives their
// margin back and cancels the bracket orders hanging off them.
func (e *Engine) retire(symbol string, ids []string, status broker.OrderStatus) ([]broker.Order, error) {
	var (
		out      []broker.Order
		released float64
	)
	queue := append([]string(nil), ids...)
	for len(queue) > 0 {
		oid := queue[0]
		queue = queue[1:]

		o, ok := e.openOrder(symbol, oid)
		if !ok {
			continue
		}
		released += o.Margin
		out = append(out, e.closeOrder(o, status))

		for _, child := range e.open[symbol] {
			if child.ParentID == oid {
				queue = append(queue, child.ID)
			}
		}
	}
	if len(out) == 0 {
		return nil, nil
	}

	e.listener.OnOrdersCancel(out)
	if released > 0 {
		bal, err := e.balances.Release(e.cfg.Asset, released, e.now)
		if err != nil {
			return out, err
		}
		if err := e.recordBalance(bal); err != nil {
			return out, err
		}
	}
	return out, nil
}

func (e *Engine) openOrder(symbol, orderID string) (broker.Order, bool) {
	for _, o := range e.open[symbol] {
		if o.ID == orderID {
			return o, true
		}
	}
	return broker.Order{}, false
}

// storeOrder replaces the resting copy of o.
func (e *Engine) storeOrder(o broker.Order) {
	orders := e.open[o.Symbol]
	for i := range orders {
		if orders[i].ID == o.ID {
			orders[i] = o
			return
		}
	}
}

// closeOrder removes o from the book with the given final status and
// archives it.
func (e *Engine) closeOrder(o broker.Order, status broker.OrderStatus) broker.Order {
	o.Status = status
	o.UpdatedAt = e.now

	orders := e.open[o.Symbol]
	for i := range orders {
		if orders[i].ID == o.ID {
			e.open[o.Symbol] = slices.Delete(orders, i, i+1)
			break
		}
	}
	if len(e.open[o.Symbol]) == 0 {
		delete(e.open, o.Symbol)
	}
	e.orders = append(e.orders, o)
	return o
}

func (e *Engine) recordFill(f broker.Fill) error {
	e.fills = append(e.fills, f)
	e.listener.OnOrdersFill([]broker.Fill{f})
	return e.journal.RecordFill(fillRecord(f))
}

func (e *Engine) recordClose(p broker.Position) error {
	e.listener.OnPositionClose(p)
	if p.RealizedProfit > 0 {
		e.listener.OnPositionCloseInProfit(p)
	} else {
		e.listener.OnPositionCloseInLoss(p)
	}
	return e.journal.RecordPosition(positionRecord(p))
}

func (e *Engine) recordBalance(b broker.Balance) error {
	e.log.Debug("balance",
		"asset", b.Asset, "total", b.Total, "available", b.Available, "reserved", b.Reserved())
	e.listener.OnBalanceChange(b)
	return e.journal.RecordBalance(balanceRecord(b))
}
