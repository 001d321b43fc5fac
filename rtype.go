package rowsync

import (
	"github.com/unkn0wn-root/rowsync/event"
)

// Type is the per-table configuration that parameterizes the generic record
// engine: table identity, key columns, derived-field declarations and the
// field-change events the type may emit.
type Type struct {
	// Database and Table name the primary table. Both are required: they are
	// part of the cache key format shared across processes.
	Database string
	Table    string

	// ExtraTable optionally names a secondary table holding supplementary
	// columns for the same identity. Its columns are discovered by schema
	// introspection.
	ExtraTable string

	// KeyFields are the primary key columns, in cache-key order.
	KeyFields []string

	// ExtraKeyFields optionally rename the key columns in the extra table
	// (e.g. base "id" stored as "record_id"). Must align with KeyFields;
	// empty means the extra table uses the same column names.
	ExtraKeyFields []string

	// Derived declares computed fields and the parent fields they are
	// derived from. Whenever a parent changes, its dependents are dropped
	// from the cached payload so the next read recomputes them.
	Derived map[string][]string

	// Dependencies optionally supplies the inverted map (parent ->
	// dependents) directly, bypassing derivation from Derived.
	Dependencies map[string][]string

	// FieldEvents maps payload fields to the event kind emitted when an
	// update changes them. Kinds are registered with the bus when the store
	// opens; unknown kinds fail Subscribe, not Emit.
	FieldEvents map[string]event.Kind

	// Hooks customizes per-type behavior. Nil means NopHooks.
	Hooks Hooks

	// CacheTTL bounds how long cached copies of this type live. 0 means the
	// store default.
	CacheTTL int64 // seconds
}

func (t *Type) validate() error {
	if t.Table == "" {
		return &ConfigError{Field: "Table", Reason: "required"}
	}
	if t.Database == "" {
		return &ConfigError{Field: "Database", Reason: "required"}
	}
	if len(t.KeyFields) == 0 {
		return &ConfigError{Field: "KeyFields", Reason: "at least one key column required"}
	}
	if len(t.ExtraKeyFields) > 0 && len(t.ExtraKeyFields) != len(t.KeyFields) {
		return &ConfigError{Field: "ExtraKeyFields", Reason: "must align with KeyFields"}
	}
	return nil
}

// extraKeyColumn returns the extra-table column name for key column i.
func (t *Type) extraKeyColumn(i int) string {
	if len(t.ExtraKeyFields) > 0 {
		return t.ExtraKeyFields[i]
	}
	return t.KeyFields[i]
}

// Hooks is the capability interface a record type implements to customize
// engine behavior at its extension points. Embed NopHooks to pick defaults.
type Hooks interface {
	// OnMissing produces the payload for an identity with no database row.
	// Returning nil leaves the record unloaded.
	OnMissing(keys KeyValues) Payload

	// OnFound runs after a database row was materialized and decorated,
	// before it is written through to the cache.
	OnFound(p Payload)

	// ComputedColumns returns extra SELECT expressions appended to the full
	// load (e.g. "UNIX_TIMESTAMP(created_at) AS created_unix").
	ComputedColumns() []string
}

// NopHooks is the default Hooks: missing rows stay unloaded, no computed
// columns.
type NopHooks struct{}

var _ Hooks = NopHooks{}

func (NopHooks) OnMissing(KeyValues) Payload { return nil }
func (NopHooks) OnFound(Payload)             {}
func (NopHooks) ComputedColumns() []string   { return nil }

func (t *Type) hooks() Hooks {
	if t.Hooks != nil {
		return t.Hooks
	}
	return NopHooks{}
}
