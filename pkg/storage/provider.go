// Package storage provides pluggable persistence backends for scoped memory.
//
// A Provider is a uniform save/load/delete/list interface over (scope, key)
// addressed values. Values are opaque JSON; interpretation belongs to the
// caller. All implementations are safe for concurrent use.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Storage error types.
var (
	// ErrNotFound is returned when a (scope, key) pair has no stored value.
	ErrNotFound = errors.New("key not found")

	// ErrInvalidKey is returned when a key is empty.
	ErrInvalidKey = errors.New("invalid key")

	// ErrInvalidScope is returned when a scope is empty.
	ErrInvalidScope = errors.New("invalid scope")

	// ErrInvalidConfig is returned for invalid provider configuration.
	ErrInvalidConfig = errors.New("invalid storage config")

	// ErrClosed is returned when operating on a closed provider.
	ErrClosed = errors.New("storage provider closed")
)

// Provider is a persistence backend for scoped key/value data.
//
// Key uniqueness is per scope: the same key may exist in many scopes
// without collision. Saving an existing (scope, key) overwrites it.
type Provider interface {
	// Save stores value under (scope, key), overwriting any previous value.
	Save(ctx context.Context, scope, key string, value json.RawMessage) error

	// Load returns the value stored under (scope, key).
	// Returns ErrNotFound if no value exists.
	Load(ctx context.Context, scope, key string) (json.RawMessage, error)

	// Delete removes the value under (scope, key).
	// Reports whether a value existed.
	Delete(ctx context.Context, scope, key string) (bool, error)

	// ListKeys returns the keys stored in scope, sorted.
	// An unknown scope yields an empty slice, not an error.
	ListKeys(ctx context.Context, scope string) ([]string, error)

	// ListScopes returns all scopes containing at least one value, sorted.
	ListScopes(ctx context.Context) ([]string, error)

	// HasKey reports whether (scope, key) has a stored value.
	HasKey(ctx context.Context, scope, key string) (bool, error)

	// Close releases provider resources.
	Close() error
}

// validateScopeKey checks the common (scope, key) preconditions.
func validateScopeKey(scope, key string) error {
	if scope == "" {
		return fmt.Errorf("%w: empty scope", ErrInvalidScope)
	}
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	return nil
}
