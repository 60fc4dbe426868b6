// Package database moves tabular data between server files and a PostgreSQL database.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Execer runs statements. *sql.DB and *sql.Tx satisfy it.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Rows is the subset of *sql.Rows read by Import.
type Rows interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// Querier runs a query and returns its rows.
type Querier interface {
	Query(ctx context.Context, query string) (Rows, error)
}

// DB is a PostgreSQL connection pool opened through the pgx driver.
type DB struct {
	db *sql.DB
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("database DSN is empty (set [database] dsn or --dsn)")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return &DB{db: db}, nil
}

// ExecContext implements Execer.
func (d *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.db.ExecContext(ctx, query, args...)
}

// Query implements Querier.
func (d *DB) Query(ctx context.Context, query string) (Rows, error) {
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Close releases the pool.
func (d *DB) Close() error {
	return d.db.Close()
}

// permanentError wraps database errors that retrying cannot fix, such as constraint
// violations or a missing table.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string      { return e.err.Error() }
func (e *permanentError) Unwrap() error      { return e.err }
func (e *permanentError) NonRetryable() bool { return true }

// classify tags server-reported errors as permanent unless their SQLSTATE class says
// the connection or transaction was lost.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	if transientState(pgErr.Code) {
		return err
	}
	return &permanentError{err: err}
}

// transientState reports SQLSTATE codes worth retrying: connection exceptions (08),
// transaction rollbacks such as deadlocks (40), insufficient resources (53) and
// operator intervention (57P).
func transientState(code string) bool {
	return strings.HasPrefix(code, "08") ||
		strings.HasPrefix(code, "40") ||
		strings.HasPrefix(code, "53") ||
		strings.HasPrefix(code, "57P")
}
