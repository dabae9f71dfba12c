package risk

import (
	"fmt"

	"github.com/rustyeddy/perptrader/broker"
)

// ValidateBracket checks that take-profit and stop-loss sit on the right
// side of the entry. Zero means "not set".
func ValidateBracket(side broker.Side, entry, takeProfit, stopLoss float64) error {
	if entry <= 0 {
		return fmt.Errorf("%w: entry price %g", broker.ErrInvalidPrice, entry)
	}
	if takeProfit < 0 || stopLoss < 0 {
		return fmt.Errorf("%w: negative take-profit or stop-loss", broker.ErrInvalidPrice)
	}

	switch side {
	case broker.Long:
		if takeProfit != 0 && takeProfit <= entry {
			return fmt.Errorf("%w: long take-profit %g must be above entry %g", broker.ErrInvalidPrice, takeProfit, entry)
		}
		if stopLoss != 0 && stopLoss >= entry {
			return fmt.Errorf("%w: long stop-loss %g must be below entry %g", broker.ErrInvalidPrice, stopLoss, entry)
		}
	case broker.Short:
		if takeProfit != 0 && takeProfit >= entry {
			return fmt.Errorf("%w: short take-profit %g must be below entry %g", broker.ErrInvalidPrice, takeProfit, entry)
		}
		if stopLoss != 0 && stopLoss <= entry {
			return fmt.Errorf("%w: short stop-loss %g must be above entry %g", broker.ErrInvalidPrice, stopLoss, entry)
		}
	default:
		return fmt.Errorf("%w: unknown side %d", broker.ErrInvalidOrder, side)
	}
	return nil
}
