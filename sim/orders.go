package sim

import (
	"context"
	"fmt"

	"github.com/rustyeddy/perptrader/broker"
	"github.com/rustyeddy/perptrader/risk"
)

// EnterPosition places an entry order and its take-profit and stop-loss.
//
// The entry type follows from the last close: no price is a market order, a
// price on the favourable side (at or below the close for a long, at or
// above for a short) is a limit order and anything else is a stop-market
// order. The bracket orders close the whole position and stay dormant until
// the entry fills. Orders are returned entry first.
func (e *Engine) EnterPosition(ctx context.Context, req broker.EntryRequest) ([]broker.Order, error) {
	inst, err := e.instrument(req.Symbol)
	if err != nil {
		return nil, err
	}
	if !req.Side.Valid() {
		return nil, fmt.Errorf("%w: %s: side must be long or short", broker.ErrInvalidOrder, inst.Symbol)
	}
	if req.EntryPrice < 0 {
		return nil, fmt.Errorf("%w: %s: entry price %g", broker.ErrInvalidPrice, inst.Symbol, req.EntryPrice)
	}

	last, hasLast := e.last[inst.Symbol]
	if !hasLast {
		return nil, fmt.Errorf("%w: %s: no candle seen yet", broker.ErrInvalidPrice, inst.Symbol)
	}
	ref := req.EntryPrice
	if ref == 0 {
		ref = last.Close
	}
	if err := risk.ValidateBracket(req.Side, ref, req.TakeProfit, req.StopLoss); err != nil {
		return nil, err
	}

	qty := req.Quantity
	if qty == 0 && req.Percent > 0 {
		bal, err := e.balances.Get(e.cfg.Asset)
		if err != nil {
			return nil, err
		}
		qty = inst.FloorQuantity(risk.QuantityForPercent(bal.Available, req.Percent, ref))
		if qty <= 0 {
			return nil, fmt.Errorf("%w: %s: %g%% of %g %s buys nothing at %g",
				broker.ErrInvalidOrder, inst.Symbol, req.Percent*100, bal.Available, e.cfg.Asset, ref)
		}
	}

	entry := broker.OrderRequest{
		Symbol:   inst.Symbol,
		Side:     req.Side,
		Role:     broker.RoleEntry,
		Quantity: qty,
	}
	switch {
	case req.EntryPrice == 0:
		entry.Type = broker.Market
	case favourable(req.Side, req.EntryPrice, last.Close):
		entry.Type = broker.Limit
		entry.Price = req.EntryPrice
	default:
		entry.Type = broker.StopMarket
		entry.StopPrice = req.EntryPrice
	}

	parent, err := e.SubmitOrder(ctx, entry)
	if err != nil {
		return nil, err
	}
	orders := []broker.Order{parent}

	legs := []struct {
		typ   broker.OrderType
		role  broker.OrderRole
		price float64
	}{
		{broker.TakeProfitMarket, broker.RoleTakeProfit, req.TakeProfit},
		{broker.StopMarket, broker.RoleStopLoss, req.StopLoss},
	}
	for _, leg := range legs {
		if leg.price == 0 {
			continue
		}
		child, err := e.submit(broker.Order{
			Symbol:        inst.Symbol,
			Type:          leg.typ,
			Side:          req.Side.Opposite(),
			Role:          leg.role,
			StopPrice:     leg.price,
			ClosePosition: true,
			ParentID:      parent.ID,
		})
		if err != nil {
			if _, cerr := e.retire(inst.Symbol, []string{parent.ID}, broker.StatusCanceled); cerr != nil {
				return nil, cerr
			}
			return nil, err
		}
		orders = append(orders, child)
	}
	return orders, nil
}

// favourable reports whether a resting limit at price would wait for the
// market rather than chase it.
func favourable(side broker.Side, price, last float64) bool {
	if side == broker.Long {
		return price <= last
	}
	return price >= last
}

// ClosePosition places an order that closes the whole position of symbol.
// Price 0 closes at market. Otherwise a price on the profitable side of the
// last close rests as a limit and one on the losing side as a stop-market.
func (e *Engine) ClosePosition(ctx context.Context, symbol string, price float64) (broker.Order, error) {
	inst, err := e.instrument(symbol)
	if err != nil {
		return broker.Order{}, err
	}
	pos, ok := e.positions.Get(inst.Symbol)
	if !ok {
		return broker.Order{}, fmt.Errorf("%w: %s: no open position", broker.ErrPosition, inst.Symbol)
	}

	o := broker.Order{
		Symbol:        inst.Symbol,
		Side:          pos.Side.Opposite(),
		Role:          broker.RoleExit,
		ClosePosition: true,
	}
	switch {
	case price < 0:
		return broker.Order{}, fmt.Errorf("%w: %s: close price %g", broker.ErrInvalidPrice, inst.Symbol, price)
	case price == 0:
		o.Type = broker.Market
	default:
		last, ok := e.last[inst.Symbol]
		if !ok {
			return broker.Order{}, fmt.Errorf("%w: %s: no candle seen yet", broker.ErrInvalidPrice, inst.Symbol)
		}
		inProfit := (pos.Side == broker.Long && price >= last.Close) ||
			(pos.Side == broker.Short && price <= last.Close)
		if inProfit {
			o.Type = broker.Limit
			o.Price = price
		} else {
			o.Type = broker.StopMarket
			o.StopPrice = price
		}
	}
	return e.submit(o)
}

// CancelOrders cancels every open order of symbol and returns them.
func (e *Engine) CancelOrders(ctx context.Context, symbol string) ([]broker.Order, error) {
	inst, err := e.instrument(symbol)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, o := range e.open[inst.Symbol] {
		ids = append(ids, o.ID)
	}
	return e.retire(inst.Symbol, ids, broker.StatusCanceled)
}

func (e *Engine) SubmitOrder(ctx context.Context, req broker.OrderRequest) (broker.Order, error) {
	return e.submit(broker.Order{
		Symbol:        req.Symbol,
		Type:          req.Type,
		Side:          req.Side,
		Role:          req.Role,
		Quantity:      req.Quantity,
		Price:         req.Price,
		StopPrice:     req.StopPrice,
		CallbackRate:  req.CallbackRate,
		TimeInForce:   req.TimeInForce,
		ReduceOnly:    req.ReduceOnly,
		ClosePosition: req.ClosePosition,
	})
}

// submit validates o, reserves margin for entries and puts it on the book.
func (e *Engine) submit(o broker.Order) (broker.Order, error) {
	inst, err := e.instrument(o.Symbol)
	if err != nil {
		return broker.Order{}, err
	}
	o.Symbol = inst.Symbol
	if o.TimeInForce == "" {
		o.TimeInForce = broker.GTC
	}
	if o.Role == "" {
		o.Role = broker.RoleEntry
		if o.IsExit() {
			o.Role = broker.RoleExit
		}
	}
	if err := o.Validate(); err != nil {
		return broker.Order{}, err
	}
	if !o.ClosePosition && o.Quantity < inst.MinQuantity {
		return broker.Order{}, fmt.Errorf("%w: %s: quantity %g below minimum %g",
			broker.ErrInvalidOrder, o.Symbol, o.Quantity, inst.MinQuantity)
	}

	last, hasLast := e.last[o.Symbol]
	if o.TimeInForce == broker.GTX && hasLast && marketable(o, last.Close) {
		return broker.Order{}, fmt.Errorf("%w: %s: post-only %s limit at %g would take liquidity at %g",
			broker.ErrInvalidOrder, o.Symbol, o.Side, o.Price, last.Close)
	}

	if o.IsExit() && o.ParentID == "" {
		pos, ok := e.positions.Get(o.Symbol)
		if !ok || pos.Side == o.Side {
			return broker.Order{}, fmt.Errorf("%w: %s: no position for a %s exit to reduce",
				broker.ErrPosition, o.Symbol, o.Side)
		}
	}

	var (
		bal      broker.Balance
		reserved bool
	)
	if !o.IsExit() {
		if o.IsMarket() && !hasLast {
			return broker.Order{}, fmt.Errorf("%w: %s: no candle seen yet", broker.ErrInvalidPrice, o.Symbol)
		}
		margin := o.Notional(last.Close)
		bal, err = e.balances.Reserve(e.cfg.Asset, margin, e.now)
		if err != nil {
			return broker.Order{}, fmt.Errorf("%s %s: %w", o.Symbol, o.Type, err)
		}
		o.Margin = margin
		reserved = true
	}

	o.ID = e.ids.New(e.now)
	o.Status = broker.StatusNew
	o.CreatedAt = e.now
	o.UpdatedAt = e.now
	e.open[o.Symbol] = append(e.open[o.Symbol], o)

	e.listener.OnOrdersCreate([]broker.Order{o})
	if reserved {
		if err := e.recordBalance(bal); err != nil {
			return o, err
		}
	}
	return o, nil
}

// marketable reports whether a limit order would trade against last at once.
func marketable(o broker.Order, last float64) bool {
	if o.Side == broker.Buy {
		return o.Price >= last
	}
	return o.Price <= last
}

func (e *Engine) GetBalance(ctx context.Context, asset string) (broker.Balance, error) {
	return e.balances.Get(asset)
}

func (e *Engine) GetOpenOrders(ctx context.Context, symbol string) ([]broker.Order, error) {
	inst, err := e.instrument(symbol)
	if err != nil {
		return nil, err
	}
	return append([]broker.Order(nil), e.open[inst.Symbol]...), nil
}

// GetPosition returns the open position of symbol, or nil when flat.
func (e *Engine) GetPosition(ctx context.Context, symbol string) (*broker.Position, error) {
	inst, err := e.instrument(symbol)
	if err != nil {
		return nil, err
	}
	p, ok := e.positions.Get(inst.Symbol)
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// SetLeverage sets the leverage for the next position on symbol. It cannot
// change while a position is open.
func (e *Engine) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	inst, err := e.instrument(symbol)
	if err != nil {
		return err
	}
	maxLev := e.cfg.MaxLeverage
	if inst.MaxLeverage > 0 && inst.MaxLeverage < maxLev {
		maxLev = inst.MaxLeverage
	}
	if leverage < 1 || leverage > maxLev {
		return fmt.Errorf("%w: %s: %d outside [1, %d]", broker.ErrLeverage, inst.Symbol, leverage, maxLev)
	}
	if _, ok := e.positions.Get(inst.Symbol); ok {
		return fmt.Errorf("%w: %s: cannot change leverage with an open position", broker.ErrLeverage, inst.Symbol)
	}
	e.leverage[inst.Symbol] = leverage
	e.listener.OnLeverageChange(inst.Symbol, leverage)
	return nil
}
