package rowsync

import (
	"sort"
	"strings"
)

// Expr is a raw SQL fragment used as an update value, with its own bound
// parameters. Escape hatch for in-place expressions the engine cannot mirror
// into the cache, e.g. Expr{SQL: "count + 1"}.
type Expr struct {
	SQL  string
	Args []any
}

// buildKeyClause renders the identity as a WHERE clause. Built once per
// record; an empty identity is a configuration error raised before any I/O.
func buildKeyClause(table string, keys KeyValues) (clause string, params []any, err error) {
	if len(keys) == 0 {
		return "", nil, &InvalidKeyError{Table: table, Reason: "no key values"}
	}
	var b strings.Builder
	params = make([]any, 0, len(keys))
	for i, kv := range keys {
		if kv.Column == "" {
			return "", nil, &InvalidKeyError{Table: table, Reason: "empty key column"}
		}
		if i > 0 {
			b.WriteString(" AND ")
		}
		b.WriteByte('`')
		b.WriteString(kv.Column)
		b.WriteString("` = ?")
		params = append(params, kv.Value)
	}
	return b.String(), params, nil
}

// buildSelect renders the full load statement. Computed columns are appended
// verbatim after the star.
func buildSelect(table string, computed []string, clause string) string {
	var b strings.Builder
	b.WriteString("SELECT *")
	for _, c := range computed {
		b.WriteString(", ")
		b.WriteString(c)
	}
	b.WriteString(" FROM `")
	b.WriteString(table)
	b.WriteString("` WHERE ")
	b.WriteString(clause)
	return b.String()
}

// buildUpdate renders an UPDATE for one table. Fields are emitted in sorted
// order so statements are deterministic. Expr values are inlined with their
// own args; everything else is parameterized.
func buildUpdate(table string, fields map[string]any, clause string, keyParams []any) (string, []any) {
	names := sortedFields(fields)
	var b strings.Builder
	args := make([]any, 0, len(names)+len(keyParams))
	b.WriteString("UPDATE `")
	b.WriteString(table)
	b.WriteString("` SET ")
	for i, name := range names {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('`')
		b.WriteString(name)
		b.WriteString("` = ")
		switch v := fields[name].(type) {
		case Expr:
			b.WriteString(v.SQL)
			args = append(args, v.Args...)
		default:
			b.WriteByte('?')
			args = append(args, v)
		}
	}
	b.WriteString(" WHERE ")
	b.WriteString(clause)
	args = append(args, keyParams...)
	return b.String(), args
}

// buildInsert renders an INSERT for one table. An empty field set falls back
// to the zero-column form for tables where every column is generated or
// defaulted.
func buildInsert(table string, fields map[string]any) (string, []any) {
	names := sortedFields(fields)
	if len(names) == 0 {
		return "INSERT INTO `" + table + "` () VALUES ()", nil
	}
	var b strings.Builder
	args := make([]any, 0, len(names))
	b.WriteString("INSERT INTO `")
	b.WriteString(table)
	b.WriteString("` (")
	for i, name := range names {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('`')
		b.WriteString(name)
		b.WriteByte('`')
	}
	b.WriteString(") VALUES (")
	for i, name := range names {
		if i > 0 {
			b.WriteString(", ")
		}
		switch v := fields[name].(type) {
		case Expr:
			b.WriteString(v.SQL)
			args = append(args, v.Args...)
		default:
			b.WriteByte('?')
			args = append(args, v)
		}
	}
	b.WriteByte(')')
	return b.String(), args
}

// buildDelete renders a DELETE for one table.
func buildDelete(table, clause string) string {
	return "DELETE FROM `" + table + "` WHERE " + clause
}

// sortedFields returns field names in sorted order for deterministic SQL.
func sortedFields(fields map[string]any) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
