// Package mysql implements db.Executor over database/sql with the
// go-sql-driver/mysql driver. Rows are materialized as maps with []byte
// columns converted to strings, matching what the record engine caches.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/unkn0wn-root/rowsync/db"
)

var ErrNilDB = errors.New("mysql executor: nil db handle")

type Config struct {
	DSN string

	// Pool knobs; zero values keep database/sql defaults.
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type Executor struct {
	sdb *sql.DB
}

var _ db.Executor = (*Executor)(nil)

// Open dials a pool from a DSN.
func Open(cfg Config) (*Executor, error) {
	sdb, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		sdb.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sdb.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sdb.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return &Executor{sdb: sdb}, nil
}

// Wrap adopts an existing pool the caller manages.
func Wrap(sdb *sql.DB) (*Executor, error) {
	if sdb == nil {
		return nil, ErrNilDB
	}
	return &Executor{sdb: sdb}, nil
}

func (e *Executor) Query(ctx context.Context, query string, args ...any) ([]db.Row, error) {
	rows, err := e.sdb.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAll(rows)
}

func (e *Executor) FetchOne(ctx context.Context, query string, args ...any) (db.Row, error) {
	rows, err := e.sdb.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	all, err := scanAll(rows)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all[0], nil
}

func (e *Executor) Execute(ctx context.Context, query string, args ...any) (db.Result, error) {
	res, err := e.sdb.ExecContext(ctx, query, args...)
	if err != nil {
		return db.Result{}, err
	}
	out := db.Result{}
	// Both are optional per driver; mysql supports them.
	if n, err := res.RowsAffected(); err == nil {
		out.Affected = n
	}
	if id, err := res.LastInsertId(); err == nil {
		out.InsertID = id
	}
	return out, nil
}

func (e *Executor) Close() error { return e.sdb.Close() }

func scanAll(rows *sql.Rows) ([]db.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []db.Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(db.Row, len(cols))
		for i, col := range cols {
			row[col] = normalize(vals[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// normalize converts driver byte slices to strings so values survive a
// cache round-trip through any codec unchanged.
func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
