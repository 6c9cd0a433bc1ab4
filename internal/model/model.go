// Package model defines the core domain types shared across the broker engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order sides.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Order kinds. A limit order executes immediately at the caller-supplied
// price; there is no resting order book.
const (
	KindMarket = "market"
	KindLimit  = "limit"
)

// Order statuses.
const (
	StatusCompleted = "completed"
	StatusPending   = "pending"
	StatusCancelled = "cancelled"
)

// Account holds a user's identity, cash balance, and stock holdings.
// CashBalance is mutated only by the ledger and balance operations, and is
// never negative after a committed operation.
type Account struct {
	ID           string              `json:"id" db:"id"`
	Name         string              `json:"name" db:"name"`
	Email        string              `json:"email" db:"email"`
	PasswordHash string              `json:"-" db:"password_hash"`
	CashBalance  decimal.Decimal     `json:"cash_balance" db:"cash_balance"`
	Holdings     map[string]Position `json:"holdings"`
	CreatedAt    time.Time           `json:"created_at" db:"created_at"`
}

// Clone returns a deep copy of the account. The ledger operates on copies so
// a rejected instruction never leaves partial mutation behind.
func (a *Account) Clone() *Account {
	c := *a
	c.Holdings = make(map[string]Position, len(a.Holdings))
	for sym, pos := range a.Holdings {
		c.Holdings[sym] = pos
	}
	return &c
}

// Position is a user's current holding in one symbol. A position with zero
// quantity is removed, never stored. AverageCost is the volume-weighted
// average purchase price of the currently held shares; sells never change it.
type Position struct {
	Symbol      string          `json:"symbol" db:"symbol"`
	Quantity    int64           `json:"quantity" db:"quantity"`
	AverageCost decimal.Decimal `json:"average_cost" db:"average_cost"`
}

// OrderRecord is an immutable record of an executed instruction.
// Once created, these are never modified, deleted, or reordered.
type OrderRecord struct {
	ID             string          `json:"id" db:"id"`
	AccountID      string          `json:"account_id" db:"account_id"`
	Symbol         string          `json:"symbol" db:"symbol"`
	Side           string          `json:"side" db:"side"`
	Quantity       int64           `json:"quantity" db:"quantity"`
	ExecutionPrice decimal.Decimal `json:"execution_price" db:"execution_price"`
	TotalAmount    decimal.Decimal `json:"total_amount" db:"total_amount"`
	Fees           decimal.Decimal `json:"fees" db:"fees"` // informational, not deducted from cash
	RealizedPnL    decimal.Decimal `json:"realized_pnl" db:"realized_pnl"`
	Status         string          `json:"status" db:"status"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// Quote is a point-in-time price for a symbol.
type Quote struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

// Instrument is a tradable listing in the catalog.
type Instrument struct {
	Symbol    string          `json:"symbol" db:"symbol"`
	Name      string          `json:"name" db:"name"`
	Exchange  string          `json:"exchange,omitempty" db:"exchange"`
	Type      string          `json:"type,omitempty" db:"type"`
	LastPrice decimal.Decimal `json:"last_price" db:"last_price"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// PortfolioPosition is a position enriched with live market data for the
// portfolio view.
type PortfolioPosition struct {
	Position
	MarketPrice   decimal.Decimal `json:"market_price"`
	MarketValue   decimal.Decimal `json:"market_value"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
}

// Portfolio aggregates an account's holdings with valuation totals.
type Portfolio struct {
	AccountID     string              `json:"account_id"`
	CashBalance   decimal.Decimal     `json:"cash_balance"`
	Positions     []PortfolioPosition `json:"positions"`
	MarketValue   decimal.Decimal     `json:"market_value"`
	UnrealizedPnL decimal.Decimal     `json:"unrealized_pnl"`
	TotalEquity   decimal.Decimal     `json:"total_equity"` // cash + market value
}
