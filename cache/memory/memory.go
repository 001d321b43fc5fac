// Package memory provides an in-process cache.Client. Tokens live in the
// same process, so CAS only coordinates goroutines, not replicas. Intended
// for tests and single-process deployments.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/unkn0wn-root/rowsync/cache"
)

type entry struct {
	value []byte
	exp   time.Time // zero => no TTL
}

type Client struct {
	mu      sync.Mutex
	entries map[string]entry
	tokens  map[string]cache.Token // survives Delete; monotonic per key
}

var _ cache.Client = (*Client)(nil)

func New() *Client {
	return &Client{
		entries: make(map[string]entry),
		tokens:  make(map[string]cache.Token),
	}
}

// live returns the entry if present and unexpired, pruning it otherwise.
// Caller holds mu.
func (c *Client) live(key string) (entry, bool) {
	e, ok := c.entries[key]
	if !ok {
		return entry{}, false
	}
	if !e.exp.IsZero() && time.Now().After(e.exp) {
		delete(c.entries, key)
		return entry{}, false
	}
	return e, true
}

func (c *Client) store(key string, value []byte, ttl time.Duration) {
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	c.entries[key] = entry{value: append([]byte(nil), value...), exp: exp}
	c.tokens[key]++
}

func (c *Client) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.live(key)
	if !ok {
		return nil, false, nil
	}
	return e.value, true, nil
}

func (c *Client) GetWithToken(_ context.Context, key string) ([]byte, cache.Token, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.live(key)
	if !ok {
		return nil, 0, false, nil
	}
	return e.value, c.tokens[key], true, nil
}

func (c *Client) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store(key, value, ttl)
	return nil
}

func (c *Client) Add(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.live(key); ok {
		return false, nil
	}
	c.store(key, value, ttl)
	return true, nil
}

func (c *Client) CompareAndSwap(_ context.Context, key string, value []byte, token cache.Token, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.live(key); !ok {
		return false, nil
	}
	if c.tokens[key] != token {
		return false, nil
	}
	c.store(key, value, ttl)
	return true, nil
}

func (c *Client) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		delete(c.entries, key)
		c.tokens[key]++ // keep the sequence monotonic across incarnations
	}
	return nil
}

func (c *Client) Flush(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		delete(c.entries, key)
		c.tokens[key]++
	}
	return nil
}

func (c *Client) Close(context.Context) error { return nil }
