// Package kv defines a small persistent key-value abstraction with JSON
// values, and typed namespaced views over it.
package kv

import "context"

// KV is the interface for a persistent key-value store.
// Keys are strings, values are JSON-serializable.
// Get on a missing key returns an error wrapping sql.ErrNoRows.
type KV interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) error
	Has(ctx context.Context, key string) (bool, error)
	ListKeys(ctx context.Context) ([]string, error)
}
