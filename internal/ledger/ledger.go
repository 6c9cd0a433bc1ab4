// Package ledger implements the portfolio ledger: given an account's current
// cash balance and holdings and a buy/sell instruction, it computes the new
// balance, new holdings with a recalculated volume-weighted average cost, and
// an immutable order record.
//
// Execute is a pure computation over already-loaded state — no I/O, no
// retries. It either returns a fully consistent (account, order) pair or an
// error with the input left untouched. Callers are responsible for
// serializing operations on the same account and for persisting the result.
//
// All monetary values use shopspring/decimal — never float64 for money.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tradedesk/broker-engine/internal/instrument"
	"github.com/tradedesk/broker-engine/internal/model"
)

var (
	// ErrInvalidAmount is returned for a non-positive quantity or amount.
	ErrInvalidAmount = errors.New("ledger: quantity must be a positive integer")

	// ErrInvalidSide is returned when the side is neither buy nor sell.
	ErrInvalidSide = errors.New("ledger: side must be buy or sell")

	// ErrInvalidKind is returned when the order kind is neither market nor limit.
	ErrInvalidKind = errors.New("ledger: order kind must be market or limit")

	// ErrInvalidLimitPrice is returned when a limit order is missing a
	// positive limit price.
	ErrInvalidLimitPrice = errors.New("ledger: limit orders require a positive limit price")

	// ErrInsufficientFunds is returned when a buy costs more than the
	// account's available cash.
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")

	// ErrInsufficientShares is returned when a sell exceeds the held quantity.
	ErrInsufficientShares = errors.New("ledger: insufficient shares")

	// ErrNoPosition is returned when selling a symbol with no holding.
	ErrNoPosition = errors.New("ledger: no position for symbol")
)

// DefaultFeeRate is the fraction of the total amount recorded as fees on
// each order. Fees are informational: they appear on the order record but
// are never deducted from the cash balance.
var DefaultFeeRate = decimal.NewFromFloat(0.001)

// Instruction is a proposed buy or sell.
type Instruction struct {
	Symbol     string          `json:"symbol"`
	Side       string          `json:"side"`
	Quantity   int64           `json:"quantity"`
	Kind       string          `json:"order_kind"`
	LimitPrice decimal.Decimal `json:"limit_price"`
}

// Validate checks the instruction's shape before price resolution.
// The symbol is validated and case-normalized via the instrument package.
func (in *Instruction) Validate() error {
	sym, err := instrument.NormalizeSymbol(in.Symbol)
	if err != nil {
		return err
	}
	in.Symbol = sym

	if in.Quantity <= 0 {
		return ErrInvalidAmount
	}
	switch in.Side {
	case model.SideBuy, model.SideSell:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidSide, in.Side)
	}
	switch in.Kind {
	case model.KindMarket, "":
		in.Kind = model.KindMarket
	case model.KindLimit:
		if in.LimitPrice.LessThanOrEqual(decimal.Zero) {
			return ErrInvalidLimitPrice
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidKind, in.Kind)
	}
	return nil
}

// Result is the outcome of a committed instruction.
type Result struct {
	Account     *model.Account     // new account state; input is untouched
	Order       *model.OrderRecord // immutable, to be appended to the order log
	RealizedPnL decimal.Decimal    // (price - avgCost) * qty for sells, zero for buys
}

// Ledger executes instructions against account state. It is stateless apart
// from the fee rate — account state is passed as an argument, not stored.
type Ledger struct {
	feeRate decimal.Decimal
}

// New creates a ledger with the given fee rate. A negative rate falls back
// to DefaultFeeRate.
func New(feeRate decimal.Decimal) *Ledger {
	if feeRate.IsNegative() {
		feeRate = DefaultFeeRate
	}
	return &Ledger{feeRate: feeRate}
}

// FeeRate returns the fee rate applied to order totals.
func (l *Ledger) FeeRate() decimal.Decimal {
	return l.feeRate
}

// Execute applies the instruction to a copy of the account at the given
// execution price. The price must already be resolved by the caller:
// the current quote for market orders, the limit price for limit orders.
//
// On success the returned Result carries the new account state and an order
// record; on failure the input account is unmodified and the error is one of
// the Err* sentinels in this package.
func (l *Ledger) Execute(account *model.Account, instr Instruction, price decimal.Decimal) (*Result, error) {
	if err := instr.Validate(); err != nil {
		return nil, err
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidLimitPrice
	}

	qty := decimal.NewFromInt(instr.Quantity)
	total := price.Mul(qty)

	next := account.Clone()
	realized := decimal.Zero

	switch instr.Side {
	case model.SideBuy:
		if total.GreaterThan(next.CashBalance) {
			return nil, ErrInsufficientFunds
		}
		pos, ok := next.Holdings[instr.Symbol]
		if ok {
			newQty := pos.Quantity + instr.Quantity
			held := decimal.NewFromInt(pos.Quantity)
			pos.AverageCost = pos.AverageCost.Mul(held).Add(total).Div(decimal.NewFromInt(newQty))
			pos.Quantity = newQty
		} else {
			pos = model.Position{
				Symbol:      instr.Symbol,
				Quantity:    instr.Quantity,
				AverageCost: price,
			}
		}
		next.Holdings[instr.Symbol] = pos
		next.CashBalance = next.CashBalance.Sub(total)

	case model.SideSell:
		pos, ok := next.Holdings[instr.Symbol]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNoPosition, instr.Symbol)
		}
		if instr.Quantity > pos.Quantity {
			return nil, fmt.Errorf("%w: have %d, sell %d", ErrInsufficientShares, pos.Quantity, instr.Quantity)
		}
		realized = price.Sub(pos.AverageCost).Mul(qty)
		pos.Quantity -= instr.Quantity
		if pos.Quantity == 0 {
			delete(next.Holdings, instr.Symbol)
		} else {
			// Average cost of the remaining shares is unchanged.
			next.Holdings[instr.Symbol] = pos
		}
		next.CashBalance = next.CashBalance.Add(total)
	}

	order := &model.OrderRecord{
		ID:             uuid.New().String(),
		AccountID:      account.ID,
		Symbol:         instr.Symbol,
		Side:           instr.Side,
		Quantity:       instr.Quantity,
		ExecutionPrice: price,
		TotalAmount:    total,
		Fees:           total.Mul(l.feeRate),
		RealizedPnL:    realized,
		Status:         model.StatusCompleted,
		CreatedAt:      time.Now().UTC(),
	}

	return &Result{Account: next, Order: order, RealizedPnL: realized}, nil
}
