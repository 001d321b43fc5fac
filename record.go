package rowsync

import (
	"context"
	"time"

	"github.com/unkn0wn-root/rowsync/cache"
)

// LoadOptions tune a single Load call.
type LoadOptions struct {
	// ForceRead bypasses the cache read and unconditionally overwrites the
	// cached copy with the database row.
	ForceRead bool
}

// Record is the engine for one logical record: a primary-table row, an
// optional extra-table row sharing its identity, and the cached copy of
// both. A Record is owned by one goroutine; operations on it are strictly
// sequential. Cross-process coordination runs through CAS tokens only.
type Record struct {
	store *Store
	typ   *Type
	keys  KeyValues

	payload  Payload
	token    cache.Token
	hasToken bool
	inCache  bool
	loaded   bool

	// key clause, params and cache key are built once per record
	clause string
	params []any
	key    string
}

// WasInCache reports whether the original Load was satisfied by the cache
// (not by this record's own writeback).
func (r *Record) WasInCache() bool { return r.inCache }

// Loaded reports whether the record holds a payload.
func (r *Record) Loaded() bool { return r.loaded }

// Payload returns the live payload map. Nil until loaded. Mutate through
// Update, not directly, or the cached copy diverges.
func (r *Record) Payload() Payload { return r.payload }

// Get returns one payload field.
func (r *Record) Get(field string) (any, bool) {
	v, ok := r.payload[field]
	return v, ok
}

// CacheKey returns the shared cache key for this record's identity.
func (r *Record) CacheKey() string {
	if err := r.ensureKey(); err != nil {
		return ""
	}
	return r.key
}

func (r *Record) ensureKey() error {
	if r.clause != "" {
		return nil
	}
	clause, params, err := buildKeyClause(r.typ.Table, r.keys)
	if err != nil {
		return err
	}
	r.clause = clause
	r.params = params
	r.key = cacheKey(r.typ.Database, r.typ.Table, r.keys)
	return nil
}

func (r *Record) ttl() time.Duration {
	if r.typ.CacheTTL > 0 {
		return time.Duration(r.typ.CacheTTL) * time.Second
	}
	return r.store.defaultTTL
}

// Load hydrates the record: cache first unless forced, database on miss.
// Cache adapter failures degrade to a database read; database failures
// propagate. A missing row invokes the type's OnMissing hook and nothing is
// cached.
func (r *Record) Load(ctx context.Context, opts LoadOptions) error {
	if err := r.ensureKey(); err != nil {
		return err
	}
	s := r.store

	if !opts.ForceRead && s.cacheOn {
		raw, tok, ok, err := s.cache.GetWithToken(ctx, r.key)
		switch {
		case err != nil:
			s.log.Warn("cache read failed; falling back to database", Fields{"key": r.key, "err": err})
		case ok && isDeletionSentinel(raw):
			// recently deleted; not a valid value
			s.log.Debug("deletion sentinel observed", Fields{"key": r.key})
		case ok:
			if p, derr := s.codec.Decode(raw); derr == nil {
				r.payload = p
				r.token = tok
				r.hasToken = true
				r.inCache = true
			} else {
				s.log.Debug("undecodable cache entry ignored", Fields{"key": r.key, "err": derr})
			}
		}
	}

	// Metadata is needed whether or not the cache hit: updates and extra
	// reads depend on it.
	if _, err := s.meta.Resolve(ctx, r.typ); err != nil {
		return err
	}

	if r.payload == nil || opts.ForceRead {
		if err := r.loadFromDB(ctx, opts.ForceRead); err != nil {
			return err
		}
	}
	r.loaded = r.payload != nil
	return nil
}

func (r *Record) loadFromDB(ctx context.Context, force bool) error {
	s := r.store
	hooks := r.typ.hooks()

	query := buildSelect(r.typ.Table, hooks.ComputedColumns(), r.clause)
	row, err := s.db.FetchOne(ctx, query, r.params...)
	if err != nil {
		return err
	}
	if row == nil {
		r.payload = hooks.OnMissing(r.keys)
		return nil
	}

	p := Payload(row)
	p.stamp(time.Now(), r.ttl())
	if r.typ.ExtraTable != "" {
		p[FieldExtraRead] = false
	}
	hooks.OnFound(p)
	r.payload = p
	r.writeThrough(ctx, force)
	return nil
}

// writeThrough populates the cache after a database load. A forced read
// overwrites unconditionally; a normal miss uses Add so a payload another
// process cached meanwhile is never clobbered. Either way the entry is
// re-read so a fresh CAS token is held regardless of which writer won.
func (r *Record) writeThrough(ctx context.Context, force bool) {
	s := r.store
	if !s.cacheOn {
		return
	}
	raw, err := s.codec.Encode(r.payload)
	if err != nil {
		s.log.Warn("payload encode failed; not cached", Fields{"key": r.key, "err": err})
		return
	}
	if force {
		err = s.cache.Set(ctx, r.key, raw, r.ttl())
	} else {
		_, err = s.cache.Add(ctx, r.key, raw, r.ttl())
	}
	if err != nil {
		s.log.Warn("cache write failed", Fields{"key": r.key, "err": err})
		return
	}

	fresh, tok, ok, err := s.cache.GetWithToken(ctx, r.key)
	if err != nil || !ok {
		return
	}
	if !isDeletionSentinel(fresh) {
		if p, derr := s.codec.Decode(fresh); derr == nil {
			// adopt whichever payload won the Add race; it mirrors the
			// database just like ours
			r.payload = p
		}
	}
	r.token = tok
	r.hasToken = true
}

// ensureLoaded lazy-loads for operations invoked on a fresh record.
func (r *Record) ensureLoaded(ctx context.Context) error {
	if r.loaded {
		return nil
	}
	if err := r.Load(ctx, LoadOptions{}); err != nil {
		return err
	}
	if !r.loaded {
		return ErrNotLoaded
	}
	return nil
}

// extraKeyClause renders the identity against the extra table's key columns.
func (r *Record) extraKeyClause() (string, []any, error) {
	kv := make(KeyValues, len(r.keys))
	for i, k := range r.keys {
		kv[i] = KeyValue{Column: r.typ.extraKeyColumn(i), Value: k.Value}
	}
	return buildKeyClause(r.typ.ExtraTable, kv)
}

// LoadExtra lazily merges the extra-table row into the payload. Idempotent:
// a second call is a no-op. An absent row falls back to the introspected
// column defaults. The merged payload is written back to the cache with a
// single best-effort CAS.
func (r *Record) LoadExtra(ctx context.Context) error {
	if r.typ.ExtraTable == "" {
		return nil
	}
	if err := r.ensureLoaded(ctx); err != nil {
		return err
	}
	if r.payload.ExtraRead() {
		return nil
	}
	s := r.store

	meta, err := s.meta.Resolve(ctx, r.typ)
	if err != nil {
		return err
	}
	clause, params, err := r.extraKeyClause()
	if err != nil {
		return err
	}
	row, err := s.db.FetchOne(ctx, buildSelect(r.typ.ExtraTable, nil, clause), params...)
	if err != nil {
		return err
	}

	merged := r.payload.Clone()
	if row == nil {
		for col, def := range meta.ExtraFields {
			if _, ok := merged[col]; !ok {
				merged[col] = def
			}
		}
	} else {
		for col, v := range row {
			merged[col] = v
		}
	}
	merged[FieldExtraRead] = true
	r.payload = merged

	if s.cacheOn && r.hasToken {
		raw, eerr := s.codec.Encode(merged)
		if eerr != nil {
			return nil
		}
		ok, cerr := s.cache.CompareAndSwap(ctx, r.key, raw, r.token, r.ttl())
		switch {
		case cerr != nil:
			s.log.Warn("cache write of extra data failed", Fields{"key": r.key, "err": cerr})
		case !ok:
			// a concurrent writer moved the entry; their copy stands
			s.log.Debug("extra data cache write skipped", Fields{"key": r.key})
		default:
			if _, tok, ok2, rerr := s.cache.GetWithToken(ctx, r.key); rerr == nil && ok2 {
				r.token = tok
			}
		}
	}
	return nil
}
