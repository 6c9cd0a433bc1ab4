package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradedesk/broker-engine/internal/model"
)

func testAccount(id, email string) *model.Account {
	return &model.Account{
		ID:           id,
		Name:         "Test User",
		Email:        email,
		PasswordHash: "$2a$10$fakehash",
		CashBalance:  decimal.NewFromInt(10000),
		Holdings:     make(map[string]model.Position),
		CreatedAt:    time.Now().UTC(),
	}
}

func TestMemoryStore_CreateAndGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.CreateAccount(ctx, testAccount("a1", "alice@example.com")); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.GetAccount(ctx, "a1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Email != "alice@example.com" || got.PasswordHash == "" {
		t.Errorf("unexpected account: %+v", got)
	}

	byEmail, err := s.GetAccountByEmail(ctx, "ALICE@example.com")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if byEmail.ID != "a1" {
		t.Errorf("expected a1, got %s", byEmail.ID)
	}
}

func TestMemoryStore_DuplicateEmail(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.CreateAccount(ctx, testAccount("a1", "alice@example.com"))
	err := s.CreateAccount(ctx, testAccount("a2", "Alice@Example.com"))
	if !errors.Is(err, ErrDuplicateAccount) {
		t.Fatalf("expected ErrDuplicateAccount, got %v", err)
	}
}

func TestMemoryStore_NotFound(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.GetAccount(ctx, "missing"); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
	if _, err := s.GetAccountByEmail(ctx, "nobody@example.com"); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
	if err := s.SaveAccount(ctx, testAccount("missing", "x@example.com")); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("save: expected ErrAccountNotFound, got %v", err)
	}
}

func TestMemoryStore_CloneIsolation(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	acct := testAccount("a1", "alice@example.com")
	s.CreateAccount(ctx, acct)

	// Mutating the caller's copy must not leak into the store.
	acct.CashBalance = decimal.Zero
	acct.Holdings["AAPL"] = model.Position{Symbol: "AAPL", Quantity: 99}

	stored, _ := s.GetAccount(ctx, "a1")
	if !stored.CashBalance.Equal(decimal.NewFromInt(10000)) {
		t.Errorf("stored balance mutated: %s", stored.CashBalance)
	}
	if len(stored.Holdings) != 0 {
		t.Errorf("stored holdings mutated: %v", stored.Holdings)
	}

	// And the reverse: mutating a read result must not change the store.
	stored.CashBalance = decimal.NewFromInt(1)
	again, _ := s.GetAccount(ctx, "a1")
	if !again.CashBalance.Equal(decimal.NewFromInt(10000)) {
		t.Errorf("read result aliased store state: %s", again.CashBalance)
	}
}

func TestMemoryStore_ListOrders(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Now().UTC()

	orders := []model.OrderRecord{
		{ID: "o1", AccountID: "a1", Symbol: "AAPL", Side: model.SideBuy, Status: model.StatusCompleted, CreatedAt: base},
		{ID: "o2", AccountID: "a1", Symbol: "MSFT", Side: model.SideBuy, Status: model.StatusCompleted, CreatedAt: base.Add(time.Second)},
		{ID: "o3", AccountID: "a1", Symbol: "AAPL", Side: model.SideSell, Status: model.StatusCompleted, CreatedAt: base.Add(2 * time.Second)},
		{ID: "o4", AccountID: "a2", Symbol: "AAPL", Side: model.SideBuy, Status: model.StatusCompleted, CreatedAt: base.Add(3 * time.Second)},
	}
	for i := range orders {
		s.AppendOrder(ctx, &orders[i])
	}

	all, err := s.ListOrders(ctx, "a1", OrderFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 orders for a1, got %d", len(all))
	}
	if all[0].ID != "o3" || all[2].ID != "o1" {
		t.Errorf("expected newest first, got %s..%s", all[0].ID, all[2].ID)
	}

	filtered, _ := s.ListOrders(ctx, "a1", OrderFilter{Symbol: "AAPL", Side: model.SideSell})
	if len(filtered) != 1 || filtered[0].ID != "o3" {
		t.Errorf("unexpected filtered result: %+v", filtered)
	}

	since, _ := s.ListOrders(ctx, "a1", OrderFilter{Since: base.Add(time.Second)})
	if len(since) != 2 {
		t.Errorf("expected 2 orders since t+1s, got %d", len(since))
	}
}

func TestMemoryStore_SearchInstruments(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.UpsertInstrument(ctx, &model.Instrument{Symbol: "AAPL", Name: "Apple Inc."})
	s.UpsertInstrument(ctx, &model.Instrument{Symbol: "AMZN", Name: "Amazon.com Inc."})
	s.UpsertInstrument(ctx, &model.Instrument{Symbol: "MSFT", Name: "Microsoft Corporation"})

	results, err := s.SearchInstruments(ctx, "inc", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(results))
	}
	if results[0].Symbol != "AAPL" || results[1].Symbol != "AMZN" {
		t.Errorf("expected symbol-sorted results, got %+v", results)
	}

	limited, _ := s.SearchInstruments(ctx, "inc", 1)
	if len(limited) != 1 {
		t.Errorf("expected limit 1 respected, got %d", len(limited))
	}

	// Upsert replaces in place.
	s.UpsertInstrument(ctx, &model.Instrument{Symbol: "AAPL", Name: "Apple Inc. (updated)"})
	updated, _ := s.SearchInstruments(ctx, "updated", 10)
	if len(updated) != 1 {
		t.Errorf("expected upsert to replace, got %d matches", len(updated))
	}
}
