package quote

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// StaticSource serves prices from an in-memory table, with an optional
// bounded random walk for demo-mode display streams. Used when no live
// market data provider is configured.
type StaticSource struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
	rng    *rand.Rand
}

// NewStaticSource creates a source seeded with the given prices.
func NewStaticSource(seed map[string]decimal.Decimal) *StaticSource {
	prices := make(map[string]decimal.Decimal, len(seed))
	for sym, p := range seed {
		prices[sym] = p
	}
	return &StaticSource{
		prices: prices,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// DefaultSeed returns a small universe of demo symbols.
func DefaultSeed() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"AAPL": decimal.NewFromFloat(190.50),
		"MSFT": decimal.NewFromFloat(425.20),
		"GOOG": decimal.NewFromFloat(176.80),
		"AMZN": decimal.NewFromFloat(185.30),
		"TSLA": decimal.NewFromFloat(248.90),
		"NVDA": decimal.NewFromFloat(131.40),
	}
}

// Price returns the current price for a symbol, or ErrUnavailable if the
// symbol is not in the table.
func (s *StaticSource) Price(_ context.Context, symbol string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.prices[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnavailable, symbol)
	}
	return p, nil
}

// SetPrice inserts or replaces the price for a symbol.
func (s *StaticSource) SetPrice(symbol string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[symbol] = price
}

// Tick applies a small random walk (±0.5%) to every symbol and returns the
// updated prices. Drives the demo quote stream; the walk is bounded below so
// prices stay positive.
func (s *StaticSource) Tick() map[string]decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()

	floor := decimal.NewFromFloat(0.01)
	updated := make(map[string]decimal.Decimal, len(s.prices))
	for sym, p := range s.prices {
		drift := decimal.NewFromFloat((s.rng.Float64() - 0.5) / 100)
		next := p.Add(p.Mul(drift)).Round(2)
		if next.LessThan(floor) {
			next = floor
		}
		s.prices[sym] = next
		updated[sym] = next
	}
	return updated
}
