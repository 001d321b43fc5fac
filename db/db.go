// Package db defines the relational execution abstraction used by rowsync.
// The engine builds parameterized SQL and hands it to an Executor; pooling,
// dialects and transactions live behind this boundary. Database errors are
// load-bearing and must be returned as-is, never swallowed.
package db

import "context"

// Row is one result row keyed by column name. Drivers typically produce
// int64, float64, string, []byte->string, time values and nils.
type Row = map[string]any

// Result reports the outcome of a mutating statement.
type Result struct {
	Affected int64
	InsertID int64
}

// Executor runs parameterized SQL. Must be safe for concurrent use.
type Executor interface {
	// Query runs a SELECT and returns every row.
	Query(ctx context.Context, query string, args ...any) ([]Row, error)

	// FetchOne runs a SELECT and returns the first row, or (nil, nil) when
	// there is no row.
	FetchOne(ctx context.Context, query string, args ...any) (Row, error)

	// Execute runs a mutating statement.
	Execute(ctx context.Context, query string, args ...any) (Result, error)

	// Close releases the pool.
	Close() error
}
