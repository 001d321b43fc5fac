package rowsync

import (
	"context"
	"time"

	"github.com/unkn0wn-root/rowsync/event"
)

// Delete removes the base row and, when configured, the extra row. The two
// statements are independent; a failure between them leaves a partial
// delete. The cache entry is dropped unconditionally; with
// tombstoneSeconds > 0 a short-lived deletion sentinel is written under the
// same key to suppress a stale re-population racing in from a reader whose
// database load began before the delete committed.
func (r *Record) Delete(ctx context.Context, tombstoneSeconds int) error {
	if err := r.ensureLoaded(ctx); err != nil {
		return err
	}
	s := r.store

	if _, err := s.db.Execute(ctx, buildDelete(r.typ.Table, r.clause), r.params...); err != nil {
		return err
	}
	if r.typ.ExtraTable != "" {
		clause, params, err := r.extraKeyClause()
		if err != nil {
			return err
		}
		if _, err := s.db.Execute(ctx, buildDelete(r.typ.ExtraTable, clause), params...); err != nil {
			return err
		}
	}

	s.emit(event.Delete, r.typ.Table, r.keys, nil)

	if s.cacheOn {
		if err := s.cache.Delete(ctx, r.key); err != nil {
			s.log.Warn("cache delete failed", Fields{"key": r.key, "err": err})
		}
		if tombstoneSeconds > 0 {
			ttl := time.Duration(tombstoneSeconds) * time.Second
			if err := s.cache.Set(ctx, r.key, deletionSentinel, ttl); err != nil {
				s.log.Warn("tombstone write failed", Fields{"key": r.key, "err": err})
			}
		}
	}

	r.payload = nil
	r.loaded = false
	r.hasToken = false
	r.inCache = false
	return nil
}
