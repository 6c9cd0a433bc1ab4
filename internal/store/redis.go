package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tradedesk/broker-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for account reads. Writes go to the primary store and invalidate the
// cache; reads check Redis first then fall back to the primary. The order
// log and catalog pass straight through.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateAccount(ctx context.Context, a *model.Account) error {
	if err := s.primary.CreateAccount(ctx, a); err != nil {
		return err
	}
	s.cacheAccount(ctx, a)
	return nil
}

func (s *CachedStore) SaveAccount(ctx context.Context, a *model.Account) error {
	if err := s.primary.SaveAccount(ctx, a); err != nil {
		return err
	}
	// Invalidate; next read will re-populate.
	s.rdb.Del(ctx, accountKey(a.ID))
	return nil
}

func (s *CachedStore) AppendOrder(ctx context.Context, order *model.OrderRecord) error {
	return s.primary.AppendOrder(ctx, order)
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	data, err := s.rdb.Get(ctx, accountKey(id)).Bytes()
	if err == nil {
		var c cachedAccount
		if json.Unmarshal(data, &c) == nil && c.Account.ID != "" {
			c.Account.PasswordHash = c.Hash
			return &c.Account, nil
		}
	}

	a, err := s.primary.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheAccount(ctx, a)
	return a, nil
}

func (s *CachedStore) GetAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	// Try cache via email→ID mapping.
	id, err := s.rdb.Get(ctx, emailKey(email)).Result()
	if err == nil {
		return s.GetAccount(ctx, id)
	}

	a, err := s.primary.GetAccountByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	// Cache both the account and the email→ID mapping.
	s.cacheAccount(ctx, a)
	s.rdb.Set(ctx, emailKey(email), a.ID, s.ttl)
	return a, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListOrders(ctx context.Context, accountID string, filter OrderFilter) ([]model.OrderRecord, error) {
	return s.primary.ListOrders(ctx, accountID, filter)
}

func (s *CachedStore) UpsertInstrument(ctx context.Context, inst *model.Instrument) error {
	return s.primary.UpsertInstrument(ctx, inst)
}

func (s *CachedStore) SearchInstruments(ctx context.Context, query string, limit int) ([]model.Instrument, error) {
	return s.primary.SearchInstruments(ctx, query, limit)
}

// --- Cache helpers ---

// cachedAccount carries the password hash alongside the account, since the
// model excludes it from JSON responses.
type cachedAccount struct {
	Account model.Account `json:"account"`
	Hash    string        `json:"password_hash"`
}

func (s *CachedStore) cacheAccount(ctx context.Context, a *model.Account) {
	c := cachedAccount{Account: *a, Hash: a.PasswordHash}
	if data, err := json.Marshal(c); err == nil {
		s.rdb.Set(ctx, accountKey(a.ID), data, s.ttl)
	}
}

func accountKey(id string) string  { return fmt.Sprintf("account:%s", id) }
func emailKey(email string) string { return fmt.Sprintf("email:%s", strings.ToLower(email)) }
