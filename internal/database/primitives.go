package database

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ErrClosed is returned when an operation runs against a closed database.
var ErrClosed = errors.New("database is closed")

// Row is a single record as a flat column-to-value mapping.
type Row map[string]any

// Result reports the outcome of a mutating statement. LastInsertID is only
// meaningful after an INSERT into a table with an autoincrementing key.
type Result struct {
	LastInsertID int64
	RowsAffected int64
}

// QueryError wraps a driver error together with the statement that caused it.
type QueryError struct {
	SQL string
	Err error
}

func (e *QueryError) Error() string {
	return "query failed: " + e.Err.Error()
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// store carries the primitives and generic helpers shared by DB and Tx.
type store struct {
	q       querier
	timeout time.Duration
}

func (s *store) stmtCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Query executes a SELECT and returns all matching rows. Values arrive with
// the driver's native types; BLOB columns are converted to string.
func (s *store) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	if s.q == nil {
		return nil, ErrClosed
	}
	ctx, cancel := s.stmtCtx(ctx)
	defer cancel()

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &QueryError{SQL: query, Err: err}
	}
	defer rows.Close()

	return scanRows(rows, query)
}

// Run executes a mutating statement (INSERT/UPDATE/DELETE).
func (s *store) Run(ctx context.Context, query string, args ...any) (Result, error) {
	if s.q == nil {
		return Result{}, ErrClosed
	}
	ctx, cancel := s.stmtCtx(ctx)
	defer cancel()

	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return Result{}, &QueryError{SQL: query, Err: err}
	}

	// modernc.org/sqlite supports both; errors here mean a non-INSERT
	// statement and are safe to ignore.
	lastID, _ := res.LastInsertId()
	affected, _ := res.RowsAffected()
	return Result{LastInsertID: lastID, RowsAffected: affected}, nil
}

// Get executes a SELECT expected to match at most one row. Returns nil when
// nothing matches.
func (s *store) Get(ctx context.Context, query string, args ...any) (Row, error) {
	rows, err := s.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func scanRows(rows *sql.Rows, query string) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, &QueryError{SQL: query, Err: err}
	}

	var out []Row
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, &QueryError{SQL: query, Err: err}
		}
		row := make(Row, len(cols))
		for i, col := range cols {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[col] = v
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{SQL: query, Err: err}
	}
	return out, nil
}
