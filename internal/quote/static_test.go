package quote

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestStaticSource_Price(t *testing.T) {
	s := NewStaticSource(map[string]decimal.Decimal{
		"AAPL": decimal.NewFromFloat(190.50),
	})

	p, err := s.Price(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if !p.Equal(decimal.NewFromFloat(190.50)) {
		t.Errorf("expected 190.50, got %s", p)
	}

	_, err = s.Price(context.Background(), "ZZZZ")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestStaticSource_SetPrice(t *testing.T) {
	s := NewStaticSource(nil)
	s.SetPrice("AAPL", decimal.NewFromInt(200))

	p, err := s.Price(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("price after set: %v", err)
	}
	if !p.Equal(decimal.NewFromInt(200)) {
		t.Errorf("expected 200, got %s", p)
	}
}

func TestStaticSource_Tick(t *testing.T) {
	s := NewStaticSource(DefaultSeed())

	for i := 0; i < 100; i++ {
		for sym, p := range s.Tick() {
			if !p.IsPositive() {
				t.Fatalf("tick %d: %s went non-positive: %s", i, sym, p)
			}
			if p.Exponent() < -2 {
				t.Fatalf("tick %d: %s not rounded to cents: %s", i, sym, p)
			}
		}
	}

	// Ticked prices must be what Price serves.
	updated := s.Tick()
	for sym, want := range updated {
		got, err := s.Price(context.Background(), sym)
		if err != nil {
			t.Fatalf("price %s: %v", sym, err)
		}
		if !got.Equal(want) {
			t.Errorf("%s: Price %s != ticked %s", sym, got, want)
		}
	}
}
