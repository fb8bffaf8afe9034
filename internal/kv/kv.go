// Package kv provides the persistent key-value stores the anchor record store
// is built on.
//
// Every backend has the same contract as a platform preferences store:
// string values under string keys, with writes that only become durable on
// an explicit Flush. Backends that write through (badger) treat Flush as a
// sync; backends that buffer (sqlite, file) commit everything pending in
// one step, so a crash before Flush loses the whole batch rather than part
// of it.
//
// Backends:
//   - Memory: process-local map (tests, simulator)
//   - SQLite: single-file database, WAL mode, one writer
//   - Badger: embedded LSM store
//   - File: a single YAML document replaced atomically on Flush
package kv

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("kv: store closed")

// Store is a string key-value store with explicit commit.
type Store interface {
	// Get returns the value for key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set stores value under key. The write is visible to Get immediately
	// but only durable after Flush.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Flush makes every preceding write durable.
	Flush(ctx context.Context) error

	// Close releases resources. Unflushed writes may be lost.
	Close() error
}
