package rowsync

import (
	"time"
)

// Bookkeeping fields carried inside every cached payload. Everything else in
// a payload mirrors the latest known database state as of FieldCacheTime.
const (
	// FieldCacheTime is the unix time the payload was produced.
	FieldCacheTime = "cacheTimestamp"
	// FieldCacheExpires is the unix time the cached copy goes stale; 0 = never.
	FieldCacheExpires = "cacheExpires"
	// FieldExtraRead is true once the extra table has been merged in.
	FieldExtraRead = "extraTableRead"
)

// Payload is the materialized row plus cache bookkeeping. Field values are
// whatever the db executor produced (strings, int64s, nils).
type Payload map[string]any

func isBookkeeping(field string) bool {
	return field == FieldCacheTime || field == FieldCacheExpires || field == FieldExtraRead
}

// Clone returns a shallow copy.
func (p Payload) Clone() Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// ExtraRead reports whether the extra table has been merged into p.
func (p Payload) ExtraRead() bool {
	b, _ := p[FieldExtraRead].(bool)
	return b
}

// stamp decorates p with cache bookkeeping. ttl 0 means the copy never
// expires on its own.
func (p Payload) stamp(now time.Time, ttl time.Duration) {
	p[FieldCacheTime] = now.Unix()
	if ttl > 0 {
		p[FieldCacheExpires] = now.Add(ttl).Unix()
	} else {
		p[FieldCacheExpires] = int64(0)
	}
}

// sanitizeChanges drops bookkeeping fields and fields whose proposed value
// already matches the current payload. Raw SQL expressions are always kept:
// their post-execution value is unknowable here. A nil proposal for a field
// the payload does not carry is a no-op too.
func sanitizeChanges(current Payload, changes map[string]any) map[string]any {
	out := make(map[string]any, len(changes))
	for field, proposed := range changes {
		if isBookkeeping(field) {
			continue
		}
		if _, ok := proposed.(Expr); ok {
			out[field] = proposed
			continue
		}
		cur, exists := current[field]
		if !exists && proposed == nil {
			continue
		}
		if exists && valueEqual(cur, proposed) {
			continue
		}
		out[field] = proposed
	}
	return out
}

// mergeChanges applies sanitized changes onto a copy of base. A nil value
// deletes the field rather than storing null. A raw SQL expression deletes
// the field: the cached copy must not guess what the database computed.
// Every changed field also drops its declared dependents so a later read
// recomputes them.
func mergeChanges(base Payload, changes map[string]any, dependents map[string][]string) Payload {
	out := base.Clone()
	for field, v := range changes {
		if v == nil {
			delete(out, field)
		} else if _, raw := v.(Expr); raw {
			delete(out, field)
		} else {
			out[field] = v
		}
		for _, dep := range dependents[field] {
			delete(out, dep)
		}
	}
	return out
}

// valueEqual compares a current payload value with a proposed one, folding
// numeric kinds so an int proposal matches an int64 scanned from the driver.
func valueEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if ai, aok := asInt64(a); aok {
		if bi, bok := asInt64(b); bok {
			return ai == bi
		}
	}
	if af, aok := asFloat64(a); aok {
		if bf, bok := asFloat64(b); bok {
			return af == bf
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return as == bs
	}
	ab, aok := a.(bool)
	bb, bok := b.(bool)
	if aok && bok {
		return ab == bb
	}
	return false
}

func asInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int8:
		return int64(t), true
	case int16:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case uint:
		return int64(t), true
	case uint8:
		return int64(t), true
	case uint16:
		return int64(t), true
	case uint32:
		return int64(t), true
	case uint64:
		return int64(t), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch t := v.(type) {
	case float32:
		return float64(t), true
	case float64:
		return t, true
	default:
		if i, ok := asInt64(v); ok {
			return float64(i), true
		}
		return 0, false
	}
}
