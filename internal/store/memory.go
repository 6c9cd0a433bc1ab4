package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tradedesk/broker-engine/internal/instrument"
	"github.com/tradedesk/broker-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Backs demo mode and
// tests. Not suitable for production (no persistence).
type MemoryStore struct {
	mu          sync.RWMutex
	accounts    map[string]*model.Account // keyed by ID
	emails      map[string]string         // email → account ID
	orders      []model.OrderRecord
	instruments map[string]model.Instrument
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:    make(map[string]*model.Account),
		emails:      make(map[string]string),
		instruments: make(map[string]model.Instrument),
	}
}

func (s *MemoryStore) CreateAccount(_ context.Context, a *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(a.Email)
	if _, exists := s.emails[email]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateAccount, a.Email)
	}

	// Store a copy to avoid external mutation.
	s.accounts[a.ID] = a.Clone()
	s.emails[email] = a.ID
	return nil
}

func (s *MemoryStore) GetAccount(_ context.Context, id string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}
	return a.Clone(), nil
}

func (s *MemoryStore) GetAccountByEmail(_ context.Context, email string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.emails[strings.ToLower(email)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, email)
	}
	return s.accounts[id].Clone(), nil
}

func (s *MemoryStore) SaveAccount(_ context.Context, a *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[a.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, a.ID)
	}
	s.accounts[a.ID] = a.Clone()
	return nil
}

func (s *MemoryStore) AppendOrder(_ context.Context, order *model.OrderRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.orders = append(s.orders, *order)
	return nil
}

func (s *MemoryStore) ListOrders(_ context.Context, accountID string, filter OrderFilter) ([]model.OrderRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []model.OrderRecord{}
	for i := range s.orders {
		o := s.orders[i]
		if o.AccountID != accountID || !filter.Matches(&o) {
			continue
		}
		result = append(result, o)
	}

	// Newest first; the log itself is append-ordered.
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (s *MemoryStore) UpsertInstrument(_ context.Context, inst *model.Instrument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.instruments[inst.Symbol] = *inst
	return nil
}

func (s *MemoryStore) SearchInstruments(_ context.Context, query string, limit int) ([]model.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []model.Instrument{}
	for _, inst := range s.instruments {
		if instrument.MatchesQuery(inst.Symbol, inst.Name, query) {
			result = append(result, inst)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Symbol < result[j].Symbol
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
