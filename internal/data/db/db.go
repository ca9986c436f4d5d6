// Package db owns the local SQLite database holding client-side data such as
// the journal of actions the backend has not acknowledged yet.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// FileName is the database file created inside the data directory.
const FileName = "vgloss.db"

// OpenOptions tunes the connection pool and startup retries.
type OpenOptions struct {
	MaxOpenConns int
	MaxIdleConns int
	BusyTimeout  time.Duration
	PingRetries  int
	PingWait     time.Duration
}

// DefaultOpenOptions returns the options used by the CLI.
func DefaultOpenOptions() OpenOptions {
	return OpenOptions{
		MaxOpenConns: 4,
		MaxIdleConns: 2,
		BusyTimeout:  5 * time.Second,
		PingRetries:  5,
		PingWait:     100 * time.Millisecond,
	}
}

// DB wraps a SQL database connection and its queries.
type DB struct {
	conn    *sql.DB
	queries *Queries
}

// Open creates or opens the database in dataDir and applies pending
// migrations.
func Open(dataDir string, opts OpenOptions) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, FileName)
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)", dbPath, opts.BusyTimeout.Milliseconds())
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(opts.MaxOpenConns)
	conn.SetMaxIdleConns(opts.MaxIdleConns)
	conn.SetConnMaxLifetime(0)

	db := &DB{
		conn:    conn,
		queries: New(conn),
	}

	ctx := context.Background()
	if err := db.pingWithRetry(ctx, opts); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := migrateUp(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn exposes the raw connection.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Queries returns the query set bound to the connection.
func (db *DB) Queries() *Queries {
	return db.queries
}

// WithTx executes fn within a transaction. If fn returns an error, the
// transaction is rolled back.
func (db *DB) WithTx(ctx context.Context, fn func(*Queries) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(db.queries.WithTx(tx)); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// pingWithRetry pings the database, doubling the wait between attempts.
func (db *DB) pingWithRetry(ctx context.Context, opts OpenOptions) error {
	retries := max(opts.PingRetries, 1)
	wait := opts.PingWait

	var err error
	for i := 0; i < retries; i++ {
		if err = db.conn.PingContext(ctx); err == nil {
			return nil
		}

		if i < retries-1 {
			time.Sleep(wait)
			wait *= 2
		}
	}

	return fmt.Errorf("failed to ping database after %d retries: %w", retries, err)
}
