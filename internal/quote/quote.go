// Package quote provides current prices for symbols. The ledger treats the
// source as synchronous and authoritative at call time; if a price cannot be
// resolved the source returns ErrUnavailable and the caller must reject the
// instruction rather than fabricate a price.
package quote

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrUnavailable is returned when no price can be resolved for a symbol.
var ErrUnavailable = errors.New("quote: price unavailable")

// Source supplies the current price for a symbol.
type Source interface {
	Price(ctx context.Context, symbol string) (decimal.Decimal, error)
}
