// Package kv defines the key/value ledger surface the record store is built on,
// together with the embedded backends used to run it locally.
package kv

import "context"

// Backend is a flat, globally readable key/value surface. It has no listing
// primitive and no multi-key atomicity.
type Backend interface {
	// Get returns the value stored under key, or empty bytes when the key is
	// absent. A missing key is never an error.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set overwrites the value stored under key.
	Set(ctx context.Context, key string, value []byte) error
	// Available reports whether the backend is reachable and usable.
	Available(ctx context.Context) bool
}

// Swapper is implemented by backends that can atomically replace a value
// only when it still equals what the caller last read. An empty old value
// matches both an absent key and an empty value.
type Swapper interface {
	CompareAndSet(ctx context.Context, key string, old, value []byte) (bool, error)
}
