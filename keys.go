package rowsync

import (
	"fmt"
	"strings"
)

// keyVersion prefixes every cache key. Bump it to orphan all entries written
// by incompatible releases.
const keyVersion = "V4"

// metadataSuffix is appended to the table prefix for introspected metadata.
const metadataSuffix = ".metadata"

// deletionSentinel marks a recently deleted record. It is a fixed literal
// that no codec produces for a payload map, so readers can tell it apart
// from a real entry with a byte compare before decoding.
var deletionSentinel = []byte("rowsync:deleted")

// KeyValue is one column of a record identity.
type KeyValue struct {
	Column string
	Value  any
}

// KeyValues is an ordered record identity. Order matters: all processes must
// iterate the same way to produce byte-identical cache keys.
type KeyValues []KeyValue

// Keys builds a KeyValues from alternating column/value pairs.
// Keys("id", 1) == KeyValues{{Column: "id", Value: 1}}.
func Keys(pairs ...any) KeyValues {
	if len(pairs)%2 != 0 {
		panic("rowsync: Keys requires column/value pairs")
	}
	kv := make(KeyValues, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		col, ok := pairs[i].(string)
		if !ok {
			panic("rowsync: Keys column must be a string")
		}
		kv = append(kv, KeyValue{Column: col, Value: pairs[i+1]})
	}
	return kv
}

// cacheKey builds the record cache key. The format is load-bearing across
// processes: "V4" + db + "." + table, then "." + lower(field) + "." +
// lower(value) per key field in order.
func cacheKey(database, table string, keys KeyValues) string {
	var b strings.Builder
	b.WriteString(keyVersion)
	b.WriteString(database)
	b.WriteByte('.')
	b.WriteString(table)
	for _, kv := range keys {
		b.WriteByte('.')
		b.WriteString(strings.ToLower(kv.Column))
		b.WriteByte('.')
		b.WriteString(strings.ToLower(keyValueString(kv.Value)))
	}
	return b.String()
}

// metadataKey builds the cache key for a type's introspected metadata.
func metadataKey(database, table string) string {
	return keyVersion + database + "." + table + metadataSuffix
}

// keyValueString renders a key scalar for the cache key. Only strings and
// integer kinds are legal identity values.
func keyValueString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// isDeletionSentinel reports whether raw cache bytes are the tombstone.
func isDeletionSentinel(b []byte) bool {
	return string(b) == string(deletionSentinel)
}
