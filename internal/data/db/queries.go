package db

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// Queries holds the typed statements run against the database.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// KvStore is one row of the kv_store table.
type KvStore struct {
	Key       string
	Value     []byte
	CreatedAt int64
	UpdatedAt int64
}

const kvGet = `SELECT key, value, created_at, updated_at FROM kv_store WHERE key = ?`

func (q *Queries) KVGet(ctx context.Context, key string) (KvStore, error) {
	row := q.db.QueryRowContext(ctx, kvGet, key)
	var i KvStore
	err := row.Scan(&i.Key, &i.Value, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

const kvSet = `
INSERT INTO kv_store (key, value, created_at, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
`

type KVSetParams struct {
	Key       string
	Value     []byte
	CreatedAt int64
	UpdatedAt int64
}

func (q *Queries) KVSet(ctx context.Context, arg KVSetParams) error {
	_, err := q.db.ExecContext(ctx, kvSet, arg.Key, arg.Value, arg.CreatedAt, arg.UpdatedAt)
	return err
}

const kvDelete = `DELETE FROM kv_store WHERE key = ?`

func (q *Queries) KVDelete(ctx context.Context, key string) error {
	_, err := q.db.ExecContext(ctx, kvDelete, key)
	return err
}

const kvHas = `SELECT COUNT(*) FROM kv_store WHERE key = ?`

func (q *Queries) KVHas(ctx context.Context, key string) (int64, error) {
	row := q.db.QueryRowContext(ctx, kvHas, key)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const kvListKeys = `SELECT key FROM kv_store ORDER BY key`

func (q *Queries) KVListKeys(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, kvListKeys)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		items = append(items, key)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
