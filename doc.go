// Package rowsync keeps a logical database record consistent between a
// relational store and a distributed cache using optimistic concurrency.
// A record maps to one primary-table row plus at most one "extra" table row
// sharing the same identity.
//
// Components:
//   - db.Executor: parameterized SQL execution (Query/FetchOne/Execute).
//   - cache.Client: byte store with per-key CAS tokens.
//   - codec.Codec: (de)serializes payloads (msgpack by default).
//   - event.Bus: lifecycle and field-change notifications.
//
// Lifecycle:
//
//	st, _ := rowsync.Open(rowsync.Options{DB: exec, Cache: cc})
//	rec, _ := st.Record(userType, rowsync.Keys("id", 1))
//	_ = rec.Load(ctx, rowsync.LoadOptions{})
//	_ = rec.Update(ctx, map[string]any{"name": "Beta"})
//
// Load consults the cache first and falls back to a SELECT, writing the row
// back through Add so a copy cached concurrently by another process is never
// clobbered. Update merges changes into the cached copy under a CAS retry
// loop, then persists deltas to the owning table(s). Fields declared as
// derived from a changed field are dropped from the cached copy so the next
// read recomputes them instead of serving a stale value.
//
// The CAS loop is bounded (five attempts). On exhaustion the cache write is
// logged and dropped rather than surfaced: the database write already
// completed and is the source of truth, so the cached copy converges on the
// next natural read. Cache transport failures degrade the same way; only
// database errors propagate to callers.
//
// Cache keys:
//
//	V4<db>.<table>.<field>.<value>[...]    - record entries (fields/values lowercased)
//	V4<db>.<table>.metadata                - introspected table metadata
package rowsync
