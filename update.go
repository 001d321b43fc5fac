package rowsync

import (
	"context"

	"github.com/unkn0wn-root/rowsync/event"
)

// Update persists changed fields to the correct table(s) and merges them
// into the cached copy under a CAS retry loop.
//
// Sanitization first: bookkeeping fields and fields already holding the
// proposed value are dropped, and if nothing remains the call is a complete
// no-op (no SQL, no cache touch, no events). A nil value deletes the field
// from the payload and writes SQL NULL. An Expr value executes verbatim and
// evicts the field from the cached copy.
//
// Cache semantics are deliberately weaker than database semantics: when
// caching is off, no CAS token is held, or the retry loop exhausts its
// attempts, the database still gets the write and only the cached copy is
// left to converge on a later read.
func (r *Record) Update(ctx context.Context, changes map[string]any) error {
	if err := r.ensureLoaded(ctx); err != nil {
		return err
	}
	s := r.store

	meta, err := s.meta.Resolve(ctx, r.typ)
	if err != nil {
		return err
	}

	fields := sanitizeChanges(r.payload, changes)
	if len(fields) == 0 {
		return nil
	}

	if !s.cacheOn || !r.hasToken {
		// no cache copy to maintain; keep the in-memory view coherent
		r.payload = mergeChanges(r.payload, fields, meta.Dependencies)
	} else {
		r.casUpdate(ctx, fields, meta.Dependencies)
	}

	if err := r.persist(ctx, fields, meta); err != nil {
		return err
	}

	s.emit(event.Update, r.typ.Table, r.keys, fields)
	for _, field := range sortedFields(fields) {
		if kind, ok := r.typ.FieldEvents[field]; ok {
			s.emit(kind, r.typ.Table, r.keys, map[string]any{field: fields[field]})
		}
	}
	return nil
}

// casUpdate runs the CAS retry protocol: merge changes onto the latest
// observed payload, attempt a conditional swap, rebase and retry on
// contention. Bounded at the store's attempt budget; exhaustion and
// tombstoned entries abort with a log line, never an error - the database
// write that follows is the source of truth.
func (r *Record) casUpdate(ctx context.Context, changes map[string]any, deps map[string][]string) {
	s := r.store
	base := r.payload
	token := r.token

	for attempt := 1; attempt <= s.casAttempts; attempt++ {
		candidate := mergeChanges(base, changes, deps)
		raw, err := s.codec.Encode(candidate)
		if err != nil {
			s.log.Warn("payload encode failed; cache copy left stale", Fields{"key": r.key, "err": err})
			r.payload = candidate
			return
		}

		ok, err := s.cache.CompareAndSwap(ctx, r.key, raw, token, r.ttl())
		if err != nil {
			s.log.Warn("cache cas failed; cache copy left stale", Fields{"key": r.key, "err": err})
			r.payload = candidate
			r.hasToken = false
			return
		}
		if ok {
			// capture the definitive token; another writer may have raced
			// in harmlessly after our swap
			fresh, tok, ok2, rerr := s.cache.GetWithToken(ctx, r.key)
			if rerr == nil && ok2 && !isDeletionSentinel(fresh) {
				if p, derr := s.codec.Decode(fresh); derr == nil {
					r.payload = p
					r.token = tok
					r.hasToken = true
					return
				}
			}
			r.payload = candidate
			return
		}

		// lost the race: rebase onto the winner's value
		fresh, tok, ok2, rerr := s.cache.GetWithToken(ctx, r.key)
		if rerr != nil {
			s.log.Warn("cache re-read failed; cache copy left stale", Fields{"key": r.key, "err": rerr})
			r.payload = mergeChanges(base, changes, deps)
			r.hasToken = false
			return
		}
		if !ok2 || isDeletionSentinel(fresh) {
			// another process deleted the record; nothing to merge against
			s.log.Warn("cache entry deleted mid-update; cache write dropped",
				Fields{"key": r.key, "attempt": attempt})
			r.hasToken = false
			return
		}
		p, derr := s.codec.Decode(fresh)
		if derr != nil {
			s.log.Warn("corrupt cache entry mid-update; cache write dropped",
				Fields{"key": r.key, "err": derr})
			r.hasToken = false
			return
		}
		base = p
		token = tok
		r.payload = p
		r.token = tok
	}

	s.log.Warn("cache update abandoned after max attempts",
		Fields{"key": r.key, "attempts": s.casAttempts})
}

// persist partitions the sanitized fields by owning table and executes the
// UPDATEs, base table first. An extra-table UPDATE touching zero rows means
// the extra row does not exist yet; it is created on first write.
func (r *Record) persist(ctx context.Context, fields map[string]any, meta *Metadata) error {
	s := r.store
	base, extra := partitionFields(fields, meta.ExtraFields)

	if len(base) > 0 {
		query, args := buildUpdate(r.typ.Table, base, r.clause, r.params)
		if _, err := s.db.Execute(ctx, query, args...); err != nil {
			return err
		}
	}
	if len(extra) > 0 && r.typ.ExtraTable != "" {
		clause, params, err := r.extraKeyClause()
		if err != nil {
			return err
		}
		query, args := buildUpdate(r.typ.ExtraTable, extra, clause, params)
		res, err := s.db.Execute(ctx, query, args...)
		if err != nil {
			return err
		}
		if res.Affected == 0 {
			insert := make(map[string]any, len(extra)+len(r.keys))
			for k, v := range extra {
				insert[k] = v
			}
			for i, kv := range r.keys {
				insert[r.typ.extraKeyColumn(i)] = kv.Value
			}
			query, args := buildInsert(r.typ.ExtraTable, insert)
			if _, err := s.db.Execute(ctx, query, args...); err != nil {
				return err
			}
		}
	}
	return nil
}

// partitionFields splits fields into base-table and extra-table sets by
// extra-column membership.
func partitionFields(fields map[string]any, extraFields map[string]any) (base, extra map[string]any) {
	base = make(map[string]any, len(fields))
	extra = make(map[string]any)
	for k, v := range fields {
		if _, ok := extraFields[k]; ok {
			extra[k] = v
		} else {
			base[k] = v
		}
	}
	return base, extra
}
