// Package store defines the persistence interface for the broker engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for demo mode and testing).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/tradedesk/broker-engine/internal/model"
)

var (
	// ErrDuplicateAccount is returned when registering an email that exists.
	ErrDuplicateAccount = errors.New("store: account already exists")

	// ErrAccountNotFound is returned when no account matches the lookup.
	ErrAccountNotFound = errors.New("store: account not found")
)

// OrderFilter narrows ListOrders results. Zero values match everything.
type OrderFilter struct {
	Symbol string
	Side   string
	Status string
	Since  time.Time
}

// Store is the persistence interface. The order log is append-only: records
// are inserted exactly once and never updated or deleted.
type Store interface {
	// --- Accounts ---

	// CreateAccount persists a new account. Fails with ErrDuplicateAccount
	// if the email is taken.
	CreateAccount(ctx context.Context, account *model.Account) error

	// GetAccount retrieves an account with its holdings by ID.
	GetAccount(ctx context.Context, id string) (*model.Account, error)

	// GetAccountByEmail retrieves an account with its holdings by email.
	GetAccountByEmail(ctx context.Context, email string) (*model.Account, error)

	// SaveAccount overwrites an account's balance and holdings.
	SaveAccount(ctx context.Context, account *model.Account) error

	// --- Append-only order log ---

	// AppendOrder inserts an immutable order record.
	AppendOrder(ctx context.Context, order *model.OrderRecord) error

	// ListOrders returns an account's orders matching the filter, newest first.
	ListOrders(ctx context.Context, accountID string, filter OrderFilter) ([]model.OrderRecord, error)

	// --- Instrument catalog ---

	// UpsertInstrument inserts or replaces a catalog entry.
	UpsertInstrument(ctx context.Context, inst *model.Instrument) error

	// SearchInstruments returns catalog entries whose symbol or name
	// contains the query, up to limit.
	SearchInstruments(ctx context.Context, query string, limit int) ([]model.Instrument, error)
}

// Matches reports whether an order passes the filter.
func (f OrderFilter) Matches(o *model.OrderRecord) bool {
	if f.Symbol != "" && o.Symbol != f.Symbol {
		return false
	}
	if f.Side != "" && o.Side != f.Side {
		return false
	}
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	if !f.Since.IsZero() && o.CreatedAt.Before(f.Since) {
		return false
	}
	return true
}
