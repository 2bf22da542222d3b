// Package kvstore provides the pluggable key-value storage abstraction
// that every index view (tx_by_hash, tx_by_block, address_tx_index, ...)
// is built on. A Database opens named Trees; a Tree is a flat byte-key/
// byte-value namespace with the handful of operations the index layer
// needs.
package kvstore

import "errors"

// ErrNotFound is a not-found sentinel for callers that need a single
// error value. The Tree implementations in this package never return
// it: Get reports an absent key through its bool result.
var ErrNotFound = errors.New("kvstore: key not found")

// Tree is a single named keyspace within a Database. Implementations
// must be safe for concurrent use by multiple goroutines.
type Tree interface {
	// Get returns the value for key and true, or nil and false if the
	// key is absent.
	Get(key []byte) ([]byte, bool, error)

	// Insert writes key/value, overwriting any existing value.
	Insert(key, value []byte) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(key []byte) error

	// ContainsKey reports whether key is present.
	ContainsKey(key []byte) (bool, error)

	// Len returns the number of keys in the tree.
	Len() (int, error)

	// Clear removes every key in the tree.
	Clear() error

	// Scan calls fn for every key/value pair whose key has the given
	// prefix, in key order, until fn returns false or an error. The
	// value slice passed to fn is only valid for the duration of the
	// call.
	Scan(prefix []byte, fn func(key, value []byte) (bool, error)) error
}

// Database opens named Trees. OpenTree is idempotent: calling it twice
// with the same name returns handles to the same underlying storage.
type Database interface {
	OpenTree(name string) (Tree, error)
	Close() error
}
