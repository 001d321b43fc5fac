// Package bigcache implements cache.Client over allegro/bigcache. Value
// bytes live in bigcache; CAS tokens are in-process counters, so like
// cache/memory this only coordinates goroutines within one process.
//
// BigCache has no per-entry TTL: entries age out with the global LifeWindow.
// Per-entry TTLs shorter than the window are enforced at read time via a
// small expiry sidecar.
package bigcache

import (
	"context"
	"sync"
	"time"

	bc "github.com/allegro/bigcache/v3"

	"github.com/unkn0wn-root/rowsync/cache"
)

type Config struct {
	LifeWindow         time.Duration
	CleanWindow        time.Duration
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int // ~ memory limit; 0 = unlimited
}

type Client struct {
	c *bc.BigCache

	mu     sync.Mutex
	tokens map[string]cache.Token
	exp    map[string]time.Time
}

var _ cache.Client = (*Client)(nil)

func New(cfg Config) (*Client, error) {
	conf := bc.DefaultConfig(cfg.LifeWindow)
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.NewBigCache(conf)
	if err != nil {
		return nil, err
	}
	return &Client{
		c:      c,
		tokens: make(map[string]cache.Token),
		exp:    make(map[string]time.Time),
	}, nil
}

// get returns the live value for key. Caller holds mu.
func (p *Client) get(key string) ([]byte, bool) {
	if exp, ok := p.exp[key]; ok && time.Now().After(exp) {
		_ = p.c.Delete(key)
		delete(p.exp, key)
		return nil, false
	}
	b, err := p.c.Get(key)
	if err != nil {
		return nil, false
	}
	return b, true
}

func (p *Client) set(key string, value []byte, ttl time.Duration) error {
	if err := p.c.Set(key, value); err != nil {
		return err
	}
	if ttl > 0 {
		p.exp[key] = time.Now().Add(ttl)
	} else {
		delete(p.exp, key)
	}
	p.tokens[key]++
	return nil
}

func (p *Client) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.get(key)
	return b, ok, nil
}

func (p *Client) GetWithToken(_ context.Context, key string) ([]byte, cache.Token, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.get(key)
	if !ok {
		return nil, 0, false, nil
	}
	return b, p.tokens[key], true, nil
}

func (p *Client) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.set(key, value, ttl)
}

func (p *Client) Add(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.get(key); ok {
		return false, nil
	}
	return true, p.set(key, value, ttl)
}

func (p *Client) CompareAndSwap(_ context.Context, key string, value []byte, token cache.Token, ttl time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.get(key); !ok {
		return false, nil
	}
	if p.tokens[key] != token {
		return false, nil
	}
	return true, p.set(key, value, ttl)
}

func (p *Client) Delete(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.c.Delete(key)
	if err == bc.ErrEntryNotFound {
		err = nil
	}
	delete(p.exp, key)
	p.tokens[key]++
	return err
}

func (p *Client) Flush(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exp = make(map[string]time.Time)
	for key := range p.tokens {
		p.tokens[key]++
	}
	return p.c.Reset()
}

func (p *Client) Close(_ context.Context) error {
	return p.c.Close()
}
