package rowsync

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/unkn0wn-root/rowsync/cache"
	"github.com/unkn0wn-root/rowsync/cache/memory"
	"github.com/unkn0wn-root/rowsync/codec"
	"github.com/unkn0wn-root/rowsync/db"
	"github.com/unkn0wn-root/rowsync/event"
)

type stmt struct {
	query string
	args  []any
}

// fakeDB is a scripted db.Executor. Dispatch handlers are set per test;
// every statement is recorded for assertions.
type fakeDB struct {
	mu      sync.Mutex
	queries []stmt
	execs   []stmt
	onQuery func(query string, args []any) ([]db.Row, error)
	onExec  func(query string, args []any) (db.Result, error)
}

var _ db.Executor = (*fakeDB)(nil)

func (f *fakeDB) Query(_ context.Context, query string, args ...any) ([]db.Row, error) {
	f.mu.Lock()
	f.queries = append(f.queries, stmt{query: query, args: args})
	f.mu.Unlock()
	if f.onQuery != nil {
		return f.onQuery(query, args)
	}
	return nil, nil
}

func (f *fakeDB) FetchOne(ctx context.Context, query string, args ...any) (db.Row, error) {
	rows, err := f.Query(ctx, query, args...)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (f *fakeDB) Execute(_ context.Context, query string, args ...any) (db.Result, error) {
	f.mu.Lock()
	f.execs = append(f.execs, stmt{query: query, args: args})
	f.mu.Unlock()
	if f.onExec != nil {
		return f.onExec(query, args)
	}
	return db.Result{Affected: 1}, nil
}

func (f *fakeDB) Close() error { return nil }

func (f *fakeDB) queryCount(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.queries {
		if strings.HasPrefix(s.query, prefix) {
			n++
		}
	}
	return n
}

func (f *fakeDB) execCount(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.execs {
		if strings.HasPrefix(s.query, prefix) {
			n++
		}
	}
	return n
}

func (f *fakeDB) lastExec(t *testing.T, prefix string) stmt {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.execs) - 1; i >= 0; i-- {
		if strings.HasPrefix(f.execs[i].query, prefix) {
			return f.execs[i]
		}
	}
	t.Fatalf("no executed statement with prefix %q", prefix)
	return stmt{}
}

// recordRow is the scripted base row most tests load.
func recordRow() db.Row {
	return db.Row{"id": int64(1), "name": "Alpha"}
}

// scriptQueries wires a fakeDB with the usual base row, extra row and
// SHOW COLUMNS answers. Any of the rows may be nil to simulate absence.
func scriptQueries(f *fakeDB, base db.Row, extra db.Row) {
	f.onQuery = func(query string, _ []any) ([]db.Row, error) {
		switch {
		case strings.HasPrefix(query, "SELECT * FROM `records`"):
			if base == nil {
				return nil, nil
			}
			return []db.Row{base}, nil
		case strings.HasPrefix(query, "SELECT * FROM `record_extras`"):
			if extra == nil {
				return nil, nil
			}
			return []db.Row{extra}, nil
		case strings.HasPrefix(query, "SHOW COLUMNS FROM `record_extras`"):
			return []db.Row{
				{"Field": "record_id", "Default": nil},
				{"Field": "note", "Default": nil},
				{"Field": "updated_at", "Default": "CURRENT_TIMESTAMP"},
			}, nil
		default:
			return nil, nil
		}
	}
}

func recordType() *Type {
	return &Type{
		Database:       "app",
		Table:          "records",
		ExtraTable:     "record_extras",
		KeyFields:      []string{"id"},
		ExtraKeyFields: []string{"record_id"},
		Derived:        map[string][]string{"display_name": {"name"}},
	}
}

func newTestStore(t *testing.T, fdb *fakeDB, cc cache.Client) *Store {
	t.Helper()
	st, err := Open(Options{DB: fdb, Cache: cc})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return st
}

func mustRecord(t *testing.T, st *Store, typ *Type, keys KeyValues) *Record {
	t.Helper()
	rec, err := st.Record(typ, keys)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	return rec
}

func mustLoad(t *testing.T, rec *Record, opts LoadOptions) {
	t.Helper()
	if err := rec.Load(context.Background(), opts); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

// cachedPayload decodes the current cache entry for rec's key.
func cachedPayload(t *testing.T, cc cache.Client, key string) (Payload, bool) {
	t.Helper()
	raw, ok, err := cc.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("cache Get: %v", err)
	}
	if !ok {
		return nil, false
	}
	p, err := codec.Msgpack[Payload]{}.Decode(raw)
	if err != nil {
		t.Fatalf("cache entry decode: %v", err)
	}
	return p, true
}

// contendingCache simulates a rival writer: before each CompareAndSwap it
// runs the configured hook, which typically mutates the entry so the token
// the engine holds goes stale.
type contendingCache struct {
	cache.Client
	beforeCAS func(attempt int)
	attempts  int
}

func (c *contendingCache) CompareAndSwap(ctx context.Context, key string, value []byte, token cache.Token, ttl time.Duration) (bool, error) {
	c.attempts++
	if c.beforeCAS != nil {
		c.beforeCAS(c.attempts)
	}
	return c.Client.CompareAndSwap(ctx, key, value, token, ttl)
}

// rivalWrite merges extra fields into the current cache entry with a plain
// Set, bumping the token under the engine's feet.
func rivalWrite(t *testing.T, cc cache.Client, key string, fields map[string]any) {
	t.Helper()
	ctx := context.Background()
	raw, ok, err := cc.Get(ctx, key)
	if err != nil || !ok {
		t.Fatalf("rival read: ok=%v err=%v", ok, err)
	}
	mc := codec.Msgpack[Payload]{}
	p, err := mc.Decode(raw)
	if err != nil {
		t.Fatalf("rival decode: %v", err)
	}
	for k, v := range fields {
		p[k] = v
	}
	out, err := mc.Encode(p)
	if err != nil {
		t.Fatalf("rival encode: %v", err)
	}
	if err := cc.Set(ctx, key, out, 0); err != nil {
		t.Fatalf("rival set: %v", err)
	}
}

func countEvents(t *testing.T, bus *event.Bus, kind event.Kind) *int {
	t.Helper()
	n := new(int)
	if err := bus.Subscribe(kind, func(event.Kind, any) { *n++ }); err != nil {
		t.Fatalf("Subscribe(%s): %v", kind, err)
	}
	return n
}

func memoryClient() *memory.Client { return memory.New() }

// asInt folds the integer width differences a codec round-trip introduces.
func asInt(t *testing.T, v any) int64 {
	t.Helper()
	i, ok := asInt64(v)
	if !ok {
		t.Fatalf("not an integer: %#v", v)
	}
	return i
}

func newMemStore(t *testing.T) (*Store, *fakeDB, *memory.Client) {
	t.Helper()
	fdb := &fakeDB{}
	cc := memory.New()
	return newTestStore(t, fdb, cc), fdb, cc
}
