package broker

import (
	"fmt"
	"strings"
	"time"
)

type Side int8

const (
	Buy  Side = +1
	Sell Side = -1

	Long  = Buy
	Short = Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "long"
	case Sell:
		return "short"
	}
	return "unknown"
}

// Opposite returns the side that reduces a position held on s.
func (s Side) Opposite() Side { return -s }

// Sign is +1 for longs and -1 for shorts.
func (s Side) Sign() float64 { return float64(s) }

func (s Side) Valid() bool { return s == Buy || s == Sell }

// ParseSide accepts long/short and buy/sell in any case.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "long", "buy":
		return Long, nil
	case "short", "sell":
		return Short, nil
	}
	return 0, fmt.Errorf("%w: unknown side %q", ErrInvalidOrder, s)
}

type OrderType string

const (
	Market             OrderType = "MARKET"
	Limit              OrderType = "LIMIT"
	StopMarket         OrderType = "STOP_MARKET"
	StopLimit          OrderType = "STOP"
	TakeProfitMarket   OrderType = "TAKE_PROFIT_MARKET"
	TakeProfitLimit    OrderType = "TAKE_PROFIT"
	TrailingStopMarket OrderType = "TRAILING_STOP_MARKET"
)

type TimeInForce string

const (
	GTC TimeInForce = "GTC"
	IOC TimeInForce = "IOC"
	FOK TimeInForce = "FOK"
	GTX TimeInForce = "GTX" // post only
)

type OrderStatus string

const (
	StatusNew      OrderStatus = "NEW"
	StatusFilled   OrderStatus = "FILLED"
	StatusCanceled OrderStatus = "CANCELED"
	StatusExpired  OrderStatus = "EXPIRED"
)

// OrderRole tags what an order is for. It does not change matching, except
// that the tie-breaker favours an explicit Exit placed at market.
type OrderRole string

const (
	RoleEntry      OrderRole = "entry"
	RoleTakeProfit OrderRole = "take-profit"
	RoleStopLoss   OrderRole = "stop-loss"
	RoleExit       OrderRole = "exit"

	// RoleLiquidation marks the synthetic fill of a forced close.
	RoleLiquidation OrderRole = "liquidation"
)

// Order is a value. The engine replaces the stored value whenever the
// status or type changes; callers only ever hold copies.
type Order struct {
	ID            string
	Symbol        string
	Type          OrderType
	Side          Side
	Role          OrderRole
	Quantity      float64
	Price         float64 // limit price
	StopPrice     float64 // trigger price
	CallbackRate  float64 // trailing distance as a fraction, e.g. 0.01
	// Activated is set once a trailing stop's market has touched StopPrice.
	// Until then StopPrice is the activation price and the order cannot
	// fill; afterwards it is the trailing stop.
	Activated bool
	TimeInForce   TimeInForce
	ReduceOnly    bool
	ClosePosition bool

	// ParentID links a bracket order to its entry. It is not matched until
	// the parent has filled and is canceled with it.
	ParentID string

	Status    OrderStatus
	Margin    float64 // reserved by the balance ledger
	FillPrice float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (o Order) IsMarket() bool { return o.Type == Market }

func (o Order) IsLimit() bool {
	return o.Type == Limit || o.Type == StopLimit || o.Type == TakeProfitLimit
}

// IsConditional reports whether the order waits for a stop price.
func (o Order) IsConditional() bool {
	switch o.Type {
	case StopMarket, StopLimit, TakeProfitMarket, TakeProfitLimit, TrailingStopMarket:
		return true
	}
	return false
}

// IsTaker reports whether a fill of this order pays the taker fee.
func (o Order) IsTaker() bool {
	switch o.Type {
	case Market, StopMarket, TakeProfitMarket, TrailingStopMarket:
		return true
	}
	return false
}

// IsExit reports whether the order can only shrink a position.
func (o Order) IsExit() bool { return o.ReduceOnly || o.ClosePosition }

// IsOpen reports whether the order is still waiting to fill.
func (o Order) IsOpen() bool { return o.Status == StatusNew }

// TriggerPrice is the price at which the order becomes executable: the stop
// price when set, else the limit price, else open.
func (o Order) TriggerPrice(open float64) float64 {
	if o.StopPrice > 0 {
		return o.StopPrice
	}
	if o.Price > 0 {
		return o.Price
	}
	return open
}

// Notional is quantity times the order's own price, or ref for market orders.
func (o Order) Notional(ref float64) float64 {
	return o.Quantity * o.TriggerPrice(ref)
}

func (o Order) String() string {
	return fmt.Sprintf("%s %s %s %s qty=%g price=%g stop=%g", o.ID, o.Symbol, o.Type, o.Side, o.Quantity, o.Price, o.StopPrice)
}

// Validate checks the static shape of the order.
func (o Order) Validate() error {
	if o.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidOrder)
	}
	if !o.Side.Valid() {
		return fmt.Errorf("%w: %s: side must be buy or sell", ErrInvalidOrder, o.Symbol)
	}
	if o.ClosePosition {
		if o.Quantity != 0 {
			return fmt.Errorf("%w: %s: close-position order must not carry a quantity", ErrInvalidOrder, o.Symbol)
		}
	} else if !(o.Quantity > 0) {
		return fmt.Errorf("%w: %s: quantity must be positive, got %g", ErrInvalidOrder, o.Symbol, o.Quantity)
	}

	switch o.Type {
	case Market:
	case Limit:
		if !(o.Price > 0) {
			return fmt.Errorf("%w: %s: limit order needs a price", ErrInvalidOrder, o.Symbol)
		}
	case StopMarket, TakeProfitMarket:
		if !(o.StopPrice > 0) {
			return fmt.Errorf("%w: %s: %s order needs a stop price", ErrInvalidOrder, o.Symbol, o.Type)
		}
	case StopLimit, TakeProfitLimit:
		if !(o.StopPrice > 0) || !(o.Price > 0) {
			return fmt.Errorf("%w: %s: %s order needs a stop price and a price", ErrInvalidOrder, o.Symbol, o.Type)
		}
	case TrailingStopMarket:
		if !(o.StopPrice > 0) {
			return fmt.Errorf("%w: %s: trailing stop needs an activation price", ErrInvalidOrder, o.Symbol)
		}
		if !(o.CallbackRate > 0) || o.CallbackRate >= 1 {
			return fmt.Errorf("%w: %s: trailing callback rate must be in (0,1), got %g", ErrInvalidOrder, o.Symbol, o.CallbackRate)
		}
	default:
		return fmt.Errorf("%w: %s: unknown order type %q", ErrInvalidOrder, o.Symbol, o.Type)
	}

	switch o.TimeInForce {
	case "", GTC, IOC, FOK:
	case GTX:
		if o.Type != Limit {
			return fmt.Errorf("%w: %s: GTX only applies to limit orders", ErrInvalidOrder, o.Symbol)
		}
	default:
		return fmt.Errorf("%w: %s: unknown time in force %q", ErrInvalidOrder, o.Symbol, o.TimeInForce)
	}
	return nil
}
