// Package kv defines the persistence layer used to record command outcomes.
//
// A Store is a flat, ordered byte-key/byte-value map. Implementations live in
// the badger (persistent) and memory (ephemeral) subpackages. Callers never
// hold a Store directly: they go through a Handle, which adds reference
// counting and runs every call on a bounded Executor.
package kv

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a closed Store or Handle.
var ErrClosed = errors.New("kv: store closed")

// ScanFunc is called for every entry visited by Scan. The key and value
// slices are only valid for the duration of the call. Returning a non-nil
// error stops the scan and the error is returned from Scan.
type ScanFunc func(key, value []byte) error

// Store is a key-value engine.
//
// Implementations must be safe for concurrent use. Writes to the same key
// are last-write-wins. Engine errors are returned unwrapped so callers can
// report them verbatim.
type Store interface {
	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key, value []byte) error

	// Get returns the value stored under key. found is false when the key
	// does not exist; that is not an error.
	Get(ctx context.Context, key []byte) (value []byte, found bool, err error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key []byte) error

	// Scan visits every entry whose key starts with prefix, in key order.
	// A nil prefix visits the whole store.
	Scan(ctx context.Context, prefix []byte, fn ScanFunc) error

	// Close releases the engine.
	Close() error
}
