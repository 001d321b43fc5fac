package rowsync

import (
	"context"
	"testing"
	"time"

	"github.com/unkn0wn-root/rowsync/db"
)

// TestRecordLifecycle walks one record through the full engine surface:
// load, base update, lazy extra read, tombstoned delete.
func TestRecordLifecycle(t *testing.T) {
	ctx := context.Background()
	st, fdb, cc := newMemStore(t)
	scriptQueries(fdb, recordRow(), db.Row{"record_id": int64(1), "note": "First"})

	rec := mustRecord(t, st, recordType(), Keys("id", 1))
	mustLoad(t, rec, LoadOptions{})
	if rec.WasInCache() {
		t.Fatal("first load must come from the database")
	}
	if v, _ := rec.Get("name"); v != "Alpha" {
		t.Fatalf("name = %v, want Alpha", v)
	}

	if err := rec.Update(ctx, map[string]any{"name": "Beta"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if n := fdb.execCount("UPDATE `records`"); n != 1 {
		t.Fatalf("UPDATE count = %d, want 1", n)
	}
	if p, _ := cachedPayload(t, cc, rec.CacheKey()); p["name"] != "Beta" {
		t.Fatalf("cached name = %v, want Beta", p["name"])
	}

	if err := rec.LoadExtra(ctx); err != nil {
		t.Fatalf("LoadExtra: %v", err)
	}
	if v, _ := rec.Get("note"); v != "First" {
		t.Fatalf("note = %v, want First", v)
	}

	if err := rec.Delete(ctx, 5); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if n := fdb.execCount("DELETE FROM `records`"); n != 1 {
		t.Fatalf("base DELETE count = %d, want 1", n)
	}
	if n := fdb.execCount("DELETE FROM `record_extras`"); n != 1 {
		t.Fatalf("extra DELETE count = %d, want 1", n)
	}

	raw, ok, err := cc.Get(ctx, rec.CacheKey())
	if err != nil || !ok {
		t.Fatalf("tombstone missing: ok=%v err=%v", ok, err)
	}
	if !isDeletionSentinel(raw) {
		t.Fatal("cache must hold the deletion sentinel after delete")
	}

	// a load inside the window falls through to the database, never to
	// stale pre-delete data
	scriptQueries(fdb, nil, nil)
	after := mustRecord(t, st, recordType(), Keys("id", 1))
	mustLoad(t, after, LoadOptions{})
	if after.WasInCache() {
		t.Fatal("sentinel served as a cache hit")
	}
	if after.Loaded() {
		t.Fatal("deleted record must not load")
	}
}

func TestDeleteTombstoneExpires(t *testing.T) {
	ctx := context.Background()
	st, fdb, cc := newMemStore(t)
	scriptQueries(fdb, recordRow(), nil)

	typ := recordType()
	typ.ExtraTable = ""
	typ.ExtraKeyFields = nil
	rec := mustRecord(t, st, typ, Keys("id", 1))
	mustLoad(t, rec, LoadOptions{})

	if err := rec.Delete(ctx, 1); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := cc.Get(ctx, rec.CacheKey()); !ok {
		t.Fatal("tombstone should be present inside the window")
	}
	time.Sleep(1100 * time.Millisecond)
	if _, ok, _ := cc.Get(ctx, rec.CacheKey()); ok {
		t.Fatal("tombstone should expire with its TTL")
	}
}

func TestDeleteWithoutTombstoneJustDrops(t *testing.T) {
	ctx := context.Background()
	st, fdb, cc := newMemStore(t)
	scriptQueries(fdb, recordRow(), nil)

	rec := mustRecord(t, st, recordType(), Keys("id", 1))
	mustLoad(t, rec, LoadOptions{})
	if err := rec.Delete(ctx, 0); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := cc.Get(ctx, rec.CacheKey()); ok {
		t.Fatal("cache entry should be gone")
	}
	if rec.Loaded() {
		t.Fatal("record must be unloaded after delete")
	}
}
