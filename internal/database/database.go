package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// DefaultStatementTimeout bounds every statement issued through the layer.
// A hung query cancels instead of blocking its caller forever.
const DefaultStatementTimeout = 30 * time.Second

// DB wraps the SQLite database connection. It is constructed once by the
// composition root and handed to everything that needs storage; there is no
// package-level instance.
type DB struct {
	store
	conn *sql.DB
	path string
	mu   sync.Mutex
}

// Open creates the database's parent directory if needed, opens the SQLite
// connection and verifies it with a ping.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// SQLite connection with WAL mode for better concurrency
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite with WAL mode supports concurrent reads but serializes writes
	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)

	log.Debug().Str("path", path).Msg("Database connection established")

	db := &DB{
		conn: conn,
		path: path,
	}
	db.store = store{q: conn, timeout: DefaultStatementTimeout}
	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// SetStatementTimeout overrides the per-statement timeout. Zero disables it.
func (db *DB) SetStatementTimeout(d time.Duration) {
	db.store.timeout = d
}

// Close releases the connection. Safe to call more than once or on a DB
// that never opened.
func (db *DB) Close() error {
	if db == nil || db.conn == nil {
		return nil
	}
	err := db.conn.Close()
	db.conn = nil
	db.store.q = nil
	if err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// Tx is a transaction-scoped handle exposing the same primitives and generic
// helpers as DB. It deliberately has no Transaction method, so transactions
// cannot nest.
type Tx struct {
	store
	tx *sql.Tx
}

// Transaction wraps fn in a database transaction: commit when fn returns nil,
// rollback and re-raise otherwise.
func (db *DB) Transaction(ctx context.Context, fn func(*Tx) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.conn == nil {
		return ErrClosed
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	handle := &Tx{store: store{q: tx, timeout: db.store.timeout}, tx: tx}

	if err := fn(handle); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).Msg("Failed to rollback transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
