// Package redis implements cache.Client on go-redis. Each entry is a value
// key plus a companion token key ("<key>:cas") holding a monotonic counter.
// All multi-key mutations run as Lua scripts so token bumps are atomic with
// the value write, which is what makes the tokens trustworthy CAS material
// across processes.
package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/rowsync/cache"
)

var ErrNilClient = errors.New("redis cache: nil client")

const tokenSuffix = ":cas"

// setScript writes the value and bumps the token.
// KEYS[1]=value key, KEYS[2]=token key, ARGV[1]=value, ARGV[2]=ttl ms, ARGV[3]=token ttl ms
var setScript = goredis.NewScript(`
if tonumber(ARGV[2]) > 0 then
  redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
else
  redis.call('SET', KEYS[1], ARGV[1])
end
local t = redis.call('INCR', KEYS[2])
if tonumber(ARGV[3]) > 0 then
  redis.call('PEXPIRE', KEYS[2], ARGV[3])
end
return t
`)

// addScript is setScript gated on the value key being absent.
var addScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
if tonumber(ARGV[2]) > 0 then
  redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
else
  redis.call('SET', KEYS[1], ARGV[1])
end
redis.call('INCR', KEYS[2])
if tonumber(ARGV[3]) > 0 then
  redis.call('PEXPIRE', KEYS[2], ARGV[3])
end
return 1
`)

// casScript writes only if the token still matches and the entry exists.
// ARGV[4] is the expected token.
var casScript = goredis.NewScript(`
local cur = redis.call('GET', KEYS[2]) or '0'
if cur ~= ARGV[4] then
  return 0
end
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
if tonumber(ARGV[2]) > 0 then
  redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
else
  redis.call('SET', KEYS[1], ARGV[1])
end
redis.call('INCR', KEYS[2])
if tonumber(ARGV[3]) > 0 then
  redis.call('PEXPIRE', KEYS[2], ARGV[3])
end
return 1
`)

// delScript removes the value but advances the token, so tokens issued
// before the delete can never match a later incarnation.
var delScript = goredis.NewScript(`
redis.call('DEL', KEYS[1])
redis.call('INCR', KEYS[2])
if tonumber(ARGV[1]) > 0 then
  redis.call('PEXPIRE', KEYS[2], ARGV[1])
end
return 1
`)

type Config struct {
	Client goredis.UniversalClient

	// TokenTTL bounds token-key lifetime to prevent unbounded growth. When a
	// token key expires, readers simply observe a fresh sequence. 0 disables
	// expiry.
	TokenTTL time.Duration

	// CloseClient releases the client on Close. Set only when this cache
	// exclusively owns it.
	CloseClient bool
}

type Redis struct {
	rdb         goredis.UniversalClient
	tokenTTL    time.Duration
	closeClient bool
}

var _ cache.Client = (*Redis)(nil)

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	return &Redis{rdb: cfg.Client, tokenTTL: cfg.TokenTTL, closeClient: cfg.CloseClient}, nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := r.rdb.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (r *Redis) GetWithToken(ctx context.Context, key string) ([]byte, cache.Token, bool, error) {
	// MGET is a single atomic command, so value and token are consistent.
	vals, err := r.rdb.MGet(ctx, key, key+tokenSuffix).Result()
	if err != nil {
		return nil, 0, false, err
	}
	raw, ok := asBytes(vals[0])
	if !ok {
		return nil, 0, false, nil
	}
	tok, err := asToken(vals[1])
	if err != nil {
		return nil, 0, false, err
	}
	return raw, tok, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return setScript.Run(ctx, r.rdb, r.keys(key), value, ms(ttl), ms(r.tokenTTL)).Err()
}

func (r *Redis) Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	n, err := addScript.Run(ctx, r.rdb, r.keys(key), value, ms(ttl), ms(r.tokenTTL)).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *Redis) CompareAndSwap(ctx context.Context, key string, value []byte, token cache.Token, ttl time.Duration) (bool, error) {
	n, err := casScript.Run(ctx, r.rdb, r.keys(key),
		value, ms(ttl), ms(r.tokenTTL), strconv.FormatUint(uint64(token), 10)).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return delScript.Run(ctx, r.rdb, r.keys(key), ms(r.tokenTTL)).Err()
}

// Flush drops the whole logical database. Test/maintenance surface only.
func (r *Redis) Flush(ctx context.Context) error {
	return r.rdb.FlushDB(ctx).Err()
}

// Close releases the underlying client only when this cache owns it.
func (r *Redis) Close(context.Context) error {
	if r.closeClient {
		if err := r.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}

func (r *Redis) keys(key string) []string {
	return []string{key, key + tokenSuffix}
}

func ms(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return d.Milliseconds()
}

func asBytes(v any) ([]byte, bool) {
	switch t := v.(type) {
	case nil:
		return nil, false
	case string:
		return []byte(t), true
	case []byte:
		return t, true
	default:
		return nil, false
	}
}

func asToken(v any) (cache.Token, error) {
	s, ok := asBytes(v)
	if !ok {
		// Value without a token key: treat as first generation.
		return 0, nil
	}
	u, err := strconv.ParseUint(string(s), 10, 64)
	if err != nil {
		return 0, err
	}
	return cache.Token(u), nil
}
