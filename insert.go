package rowsync

import (
	"context"

	"github.com/unkn0wn-root/rowsync/event"
)

// InsertOptions tune a single Insert call.
type InsertOptions struct {
	// SuppressEvent skips the insert notification.
	SuppressEvent bool
}

// Insert creates a new record: base-table INSERT, identity derivation, a
// forced load (fresh database read plus unconditional cache overwrite,
// bypassing the add-if-absent race), then the extra-table row when the data
// carries extra columns.
//
// The identity comes from explicit key fields in data, or from the
// generated insert id for a single-column key. A nil record with a nil
// error means the table produced no insert id and no explicit key was
// given - a legal schema choice the caller must handle.
func (s *Store) Insert(ctx context.Context, t *Type, data map[string]any, opts InsertOptions) (*Record, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}
	meta, err := s.meta.Resolve(ctx, t)
	if err != nil {
		return nil, err
	}

	base, extra := partitionFields(data, meta.ExtraFields)
	query, args := buildInsert(t.Table, base)
	res, err := s.db.Execute(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	keys, err := deriveInsertKeys(t, data, res.InsertID)
	if err != nil {
		return nil, err
	}
	if keys == nil {
		return nil, nil
	}

	rec, err := s.Record(t, keys)
	if err != nil {
		return nil, err
	}
	if err := rec.Load(ctx, LoadOptions{ForceRead: true}); err != nil {
		return nil, err
	}

	if t.ExtraTable != "" && len(extra) > 0 {
		insert := make(map[string]any, len(extra)+len(keys))
		for k, v := range extra {
			insert[k] = v
		}
		for i, kv := range keys {
			insert[t.extraKeyColumn(i)] = kv.Value
		}
		query, args := buildInsert(t.ExtraTable, insert)
		if _, err := s.db.Execute(ctx, query, args...); err != nil {
			return nil, err
		}
	}

	if !opts.SuppressEvent {
		s.emit(event.Insert, t.Table, keys, data)
	}
	return rec, nil
}

// deriveInsertKeys builds the new record's identity. Every key column must
// be a literal in data, except that a single-column key may fall back to the
// generated insert id. Returns (nil, nil) when no id was generated and the
// key was not explicit.
func deriveInsertKeys(t *Type, data map[string]any, insertID int64) (KeyValues, error) {
	composite := len(t.KeyFields) > 1
	keys := make(KeyValues, 0, len(t.KeyFields))
	for _, col := range t.KeyFields {
		v, ok := data[col]
		if ok {
			if _, raw := v.(Expr); raw {
				return nil, &InvalidKeyExpressionError{Table: t.Table, Column: col}
			}
			keys = append(keys, KeyValue{Column: col, Value: v})
			continue
		}
		if composite {
			return nil, &MissingCompositeKeyError{Table: t.Table, Column: col}
		}
		if insertID == 0 {
			return nil, nil
		}
		keys = append(keys, KeyValue{Column: col, Value: insertID})
	}
	return keys, nil
}
