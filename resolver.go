package rowsync

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/unkn0wn-root/rowsync/cache"
	"github.com/unkn0wn-root/rowsync/codec"
	"github.com/unkn0wn-root/rowsync/db"
)

// metadataTTL bounds how long introspected schema lives in the shared cache.
// Deployments that ALTER the extra table converge within this window.
const metadataTTL = 30 * time.Minute

// Metadata is the per-type resolution the engine works from: which fields
// belong to the extra table (and their defaults), and which cached fields
// must be dropped when a parent field changes.
type Metadata struct {
	// Dependencies maps a parent field to the derived fields invalidated by
	// a change to it.
	Dependencies map[string][]string

	// ExtraFields maps extra-table column names to their normalized
	// defaults. Nil when the type has no extra table.
	ExtraFields map[string]any
}

// Resolver lazily builds and memoizes Metadata per record type. The memo is
// process-wide; the schema-derived part is additionally persisted through
// the cache adapter so sibling processes skip the introspection query.
// Races on the shared cache key resolve last-writer-wins: metadata derives
// deterministically from the schema, so any winner is correct.
type Resolver struct {
	db    db.Executor
	cache cache.Client // may be nil
	codec codec.Codec[map[string]any]
	log   Logger

	mu   sync.Mutex
	meta map[string]*Metadata
}

func newResolver(dbx db.Executor, cc cache.Client, log Logger) *Resolver {
	return &Resolver{
		db:    dbx,
		cache: cc,
		codec: codec.Msgpack[map[string]any]{},
		log:   log,
		meta:  make(map[string]*Metadata),
	}
}

// Resolve returns the metadata for t, building it on first access.
// Database errors from introspection propagate; cache errors only degrade
// cross-process memoization and are logged.
func (r *Resolver) Resolve(ctx context.Context, t *Type) (*Metadata, error) {
	key := metadataKey(t.Database, t.Table)

	r.mu.Lock()
	m, ok := r.meta[key]
	r.mu.Unlock()
	if ok {
		return m, nil
	}

	m = &Metadata{Dependencies: t.dependencyMap()}
	if t.ExtraTable != "" {
		fields, err := r.extraFields(ctx, t, key)
		if err != nil {
			return nil, err
		}
		m.ExtraFields = fields
	}

	r.mu.Lock()
	if prior, ok := r.meta[key]; ok {
		m = prior
	} else {
		r.meta[key] = m
	}
	r.mu.Unlock()
	return m, nil
}

// Reset drops every memoized entry. For deterministic tests.
func (r *Resolver) Reset() {
	r.mu.Lock()
	r.meta = make(map[string]*Metadata)
	r.mu.Unlock()
}

// extraFields resolves the extra table's columns and defaults, consulting
// the shared cache before falling back to introspection.
func (r *Resolver) extraFields(ctx context.Context, t *Type, key string) (map[string]any, error) {
	if r.cache != nil {
		raw, ok, err := r.cache.Get(ctx, key)
		switch {
		case err != nil:
			r.log.Warn("metadata cache read failed", Fields{"key": key, "err": err})
		case ok:
			if m, derr := r.codec.Decode(raw); derr == nil {
				return m, nil
			}
			r.log.Debug("undecodable metadata entry ignored", Fields{"key": key})
		}
	}

	rows, err := r.db.Query(ctx, "SHOW COLUMNS FROM `"+t.ExtraTable+"`")
	if err != nil {
		return nil, err
	}
	fields := make(map[string]any, len(rows))
	for _, row := range rows {
		name, _ := row["Field"].(string)
		if name == "" {
			continue
		}
		fields[name] = normalizeDefault(row["Default"])
	}

	if r.cache != nil {
		if raw, err := r.codec.Encode(fields); err == nil {
			if err := r.cache.Set(ctx, key, raw, metadataTTL); err != nil {
				// only cross-process memoization degrades
				r.log.Warn("metadata cache write failed", Fields{"key": key, "err": err})
			}
		}
	}
	return fields, nil
}

// normalizeDefault folds schema defaults into values a payload can carry:
// CURRENT_TIMESTAMP (any casing, with or without precision) becomes 0,
// NULL becomes the empty string.
func normalizeDefault(v any) any {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		if strings.HasPrefix(strings.ToUpper(t), "CURRENT_TIMESTAMP") {
			return int64(0)
		}
		return t
	default:
		return v
	}
}

// dependencyMap returns parent -> dependents for t. An explicit Dependencies
// declaration wins; otherwise the Derived (child -> parents) map is
// inverted. Dependent lists are sorted so invalidation is deterministic.
func (t *Type) dependencyMap() map[string][]string {
	if len(t.Dependencies) > 0 {
		return t.Dependencies
	}
	deps := make(map[string][]string, len(t.Derived))
	for child, parents := range t.Derived {
		for _, p := range parents {
			deps[p] = append(deps[p], child)
		}
	}
	for _, list := range deps {
		sort.Strings(list)
	}
	return deps
}
