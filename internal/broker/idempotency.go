package broker

import (
	"sync"
	"time"
)

// idemResponse is a stored order response for Idempotency-Key replays.
type idemResponse struct {
	status    int
	body      []byte
	expiresAt time.Time
}

// idemCache is a time-bounded idempotency store. A retried POST /orders with
// the same Idempotency-Key gets the original response back instead of a
// second execution.
type idemCache struct {
	mu    sync.Mutex
	items map[string]idemResponse
	ttl   time.Duration
}

func newIdemCache(ttl time.Duration) *idemCache {
	return &idemCache{
		items: make(map[string]idemResponse),
		ttl:   ttl,
	}
}

func (c *idemCache) get(key string) (idemResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.items[key]
	if !ok {
		return idemResponse{}, false
	}
	if time.Now().After(item.expiresAt) {
		delete(c.items, key)
		return idemResponse{}, false
	}
	return item, true
}

func (c *idemCache) set(key string, status int, body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = idemResponse{
		status:    status,
		body:      body,
		expiresAt: time.Now().Add(c.ttl),
	}
}
