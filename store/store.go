// Package store defines the interface to the external key-value
// service that persists credentials and save files.
//
// The store is remote and eventually consistent: writes become
// globally visible at some point after they are made, and there are no
// transactions and no compare-and-swap. Read-then-write sequences
// built on top of it are therefore not atomic; callers that gate a
// write on a prior read accept that the read may be stale.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no value exists for the key.
// An absent key is distinct from a key holding an empty string.
var ErrNotFound = errors.New("store: key not found")

// Store is a string-keyed get/put/delete service. Values are opaque
// UTF-8 text. Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound if the
	// key is absent.
	Get(ctx context.Context, key string) (string, error)

	// Put stores value under key, overwriting any previous value.
	Put(ctx context.Context, key, value string) error

	// Del removes key. Deleting an absent key is not an error.
	Del(ctx context.Context, key string) error
}
