// Package risk implements pre-trade checks applied before an instruction
// reaches the ledger: a cap on single-order notional value and a cap on the
// resulting held quantity per symbol.
package risk

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/tradedesk/broker-engine/internal/model"
)

var (
	// ErrNotionalLimitExceeded is returned when a single order's total value
	// exceeds the per-order maximum.
	ErrNotionalLimitExceeded = errors.New("risk: order notional exceeds limit")

	// ErrPositionLimitExceeded is returned when a buy would push the held
	// quantity in one symbol beyond the per-symbol maximum.
	ErrPositionLimitExceeded = errors.New("risk: position size exceeds limit")
)

// OrderLimiter enforces pre-trade limits. A zero limit disables that check.
type OrderLimiter struct {
	// MaxOrderNotional is the maximum total value of a single order.
	MaxOrderNotional decimal.Decimal

	// MaxPositionQty is the maximum held quantity in any single symbol.
	MaxPositionQty int64
}

// NewOrderLimiter creates a limiter with the given caps.
func NewOrderLimiter(maxNotional decimal.Decimal, maxPositionQty int64) *OrderLimiter {
	return &OrderLimiter{
		MaxOrderNotional: maxNotional,
		MaxPositionQty:   maxPositionQty,
	}
}

// Check validates an instruction against the limits given the account's
// current holdings and the resolved execution price. Returns nil if the
// order is within limits.
func (l *OrderLimiter) Check(account *model.Account, side, symbol string, quantity int64, price decimal.Decimal) error {
	if l == nil {
		return nil
	}

	if l.MaxOrderNotional.IsPositive() {
		notional := price.Mul(decimal.NewFromInt(quantity))
		if notional.GreaterThan(l.MaxOrderNotional) {
			return ErrNotionalLimitExceeded
		}
	}

	// Position size only grows on buys; sells always reduce exposure.
	if l.MaxPositionQty > 0 && side == model.SideBuy {
		held := account.Holdings[symbol].Quantity
		if held+quantity > l.MaxPositionQty {
			return ErrPositionLimitExceeded
		}
	}

	return nil
}
