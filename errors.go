package rowsync

import (
	"errors"
	"fmt"
)

var (
	// ErrNotLoaded is returned when an operation needs a loaded record and
	// the implicit lazy load could not produce one.
	ErrNotLoaded = errors.New("rowsync: record not loaded")
)

// InvalidKeyError reports an empty or malformed record identity. Raised
// before any I/O happens.
type InvalidKeyError struct {
	Table  string
	Reason string
}

func (e *InvalidKeyError) Error() string {
	return fmt.Sprintf("rowsync: invalid key for %q: %s", e.Table, e.Reason)
}

// MissingCompositeKeyError reports an Insert into a table with a composite
// primary key where not every key column was supplied explicitly. A generated
// insert id can stand in for a single key column only.
type MissingCompositeKeyError struct {
	Table  string
	Column string
}

func (e *MissingCompositeKeyError) Error() string {
	return fmt.Sprintf("rowsync: insert into %q: composite key column %q not supplied", e.Table, e.Column)
}

// InvalidKeyExpressionError reports a raw SQL expression used as a primary
// key value on Insert. Expressions have no literal value to derive a cache
// key from.
type InvalidKeyExpressionError struct {
	Table  string
	Column string
}

func (e *InvalidKeyExpressionError) Error() string {
	return fmt.Sprintf("rowsync: insert into %q: key column %q is a SQL expression, not a literal", e.Table, e.Column)
}

// ConfigError reports an invalid Type or Options before any I/O.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("rowsync: config: %s: %s", e.Field, e.Reason)
}
