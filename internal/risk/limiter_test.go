package risk

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/tradedesk/broker-engine/internal/model"
)

func account(holdings map[string]model.Position) *model.Account {
	if holdings == nil {
		holdings = make(map[string]model.Position)
	}
	return &model.Account{ID: "acct-1", Holdings: holdings}
}

func TestCheck_NotionalLimit(t *testing.T) {
	l := NewOrderLimiter(decimal.NewFromInt(1000), 0)
	acct := account(nil)

	if err := l.Check(acct, model.SideBuy, "AAPL", 10, decimal.NewFromInt(100)); err != nil {
		t.Errorf("notional at the limit should pass, got %v", err)
	}

	err := l.Check(acct, model.SideBuy, "AAPL", 11, decimal.NewFromInt(100))
	if !errors.Is(err, ErrNotionalLimitExceeded) {
		t.Errorf("expected ErrNotionalLimitExceeded, got %v", err)
	}

	// Sells are notional-capped too.
	err = l.Check(acct, model.SideSell, "AAPL", 11, decimal.NewFromInt(100))
	if !errors.Is(err, ErrNotionalLimitExceeded) {
		t.Errorf("expected ErrNotionalLimitExceeded on sell, got %v", err)
	}
}

func TestCheck_PositionLimit(t *testing.T) {
	l := NewOrderLimiter(decimal.Zero, 100)
	acct := account(map[string]model.Position{
		"AAPL": {Symbol: "AAPL", Quantity: 95},
	})

	if err := l.Check(acct, model.SideBuy, "AAPL", 5, decimal.NewFromInt(10)); err != nil {
		t.Errorf("buy up to the cap should pass, got %v", err)
	}

	err := l.Check(acct, model.SideBuy, "AAPL", 6, decimal.NewFromInt(10))
	if !errors.Is(err, ErrPositionLimitExceeded) {
		t.Errorf("expected ErrPositionLimitExceeded, got %v", err)
	}

	// Sells reduce exposure and are never position-capped.
	if err := l.Check(acct, model.SideSell, "AAPL", 95, decimal.NewFromInt(10)); err != nil {
		t.Errorf("sell should never hit the position cap, got %v", err)
	}

	// Other symbols are independent.
	if err := l.Check(acct, model.SideBuy, "MSFT", 100, decimal.NewFromInt(10)); err != nil {
		t.Errorf("unrelated symbol should pass, got %v", err)
	}
}

func TestCheck_ZeroLimitsDisabled(t *testing.T) {
	l := NewOrderLimiter(decimal.Zero, 0)
	acct := account(nil)

	if err := l.Check(acct, model.SideBuy, "AAPL", 1000000, decimal.NewFromInt(1000)); err != nil {
		t.Errorf("zero limits must disable checks, got %v", err)
	}
}

func TestCheck_NilLimiter(t *testing.T) {
	var l *OrderLimiter
	if err := l.Check(account(nil), model.SideBuy, "AAPL", 10, decimal.NewFromInt(100)); err != nil {
		t.Errorf("nil limiter must allow everything, got %v", err)
	}
}
