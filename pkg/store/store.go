// Package store provides the narrow key/value persistence interface the
// trading core depends on. Values are JSON blobs under stable keys; the
// store's durability guarantees are the backend's concern.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key has no stored value.
var ErrNotFound = errors.New("store: key not found")

// Store is the persistence collaborator contract: get/set/remove semantics
// over JSON-encoded values.
type Store interface {
	// Get unmarshals the value under key into dest. Returns ErrNotFound
	// when the key is absent.
	Get(ctx context.Context, key string, dest interface{}) error
	// Set marshals value as JSON and stores it under key.
	Set(ctx context.Context, key string, value interface{}) error
	// Delete removes keys; missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
	// Close releases backend resources.
	Close() error
}
