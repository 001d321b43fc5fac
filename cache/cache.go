// Package cache defines the key/value store abstraction used by rowsync.
//
// Implementations must be byte-for-byte transparent: Get returns exactly the
// []byte previously passed to Set/Add/CompareAndSwap for a key. Tokens are
// per-key monotonic counters issued alongside reads; a token is valid only
// against the exact value it was read with, and every successful write
// invalidates prior tokens. Tokens must stay monotonic across Delete so a
// token issued before a delete can never match a later incarnation.
package cache

import (
	"context"
	"time"
)

// Token is an opaque CAS token.
type Token uint64

// Client is a byte store with TTLs and per-key CAS tokens. Must be safe for
// concurrent use.
type Client interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// GetWithToken is Get plus the entry's current CAS token.
	GetWithToken(ctx context.Context, key string) ([]byte, Token, bool, error)

	// Set stores value unconditionally. ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Add stores value only if the key is absent. Returns false when another
	// writer got there first.
	Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// CompareAndSwap stores value only if the entry's token still equals
	// token. Returns false on token mismatch or missing entry.
	CompareAndSwap(ctx context.Context, key string, value []byte, token Token, ttl time.Duration) (bool, error)

	// Delete removes a key. The key's token sequence keeps advancing.
	Delete(ctx context.Context, key string) error

	// Flush drops every entry. Test/maintenance surface only.
	Flush(ctx context.Context) error

	// Close releases resources.
	Close(ctx context.Context) error
}
