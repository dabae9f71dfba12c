package broker

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrPosition     = errors.New("position error")
	ErrBalance      = errors.New("balance error")
	ErrLiquidation  = errors.New("liquidation")
	ErrSymbol       = errors.New("invalid symbol")
	ErrLeverage     = errors.New("invalid leverage")
	ErrInvalidOrder = errors.New("invalid order")
	ErrInvalidPrice = errors.New("invalid price")

	// ErrLookAhead is returned when a candle is not newer than the last one
	// processed for the same symbol.
	ErrLookAhead = errors.New("candle out of order")
)

// LiquidationError describes a forced closure. It matches ErrLiquidation
// with errors.Is.
type LiquidationError struct {
	Time       time.Time
	Symbol     string
	Side       Side
	Quantity   float64
	EntryPrice float64
	Leverage   int
	Price      float64 // worst price within the candle
	Loss       float64 // absolute unrealized loss at Price
	Available  float64
}

func (e *LiquidationError) Error() string {
	return fmt.Sprintf("liquidation: %s %s qty=%g entry=%g lev=%dx at %g (loss %.4f >= available %.4f) time=%s",
		e.Symbol, e.Side, e.Quantity, e.EntryPrice, e.Leverage, e.Price, e.Loss, e.Available,
		e.Time.UTC().Format(time.RFC3339))
}

func (e *LiquidationError) Is(target error) bool {
	return target == ErrLiquidation
}
