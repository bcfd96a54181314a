package memory

import "errors"

// Memory service error types.
var (
	// ErrKeyNotFound is returned when a key has no value in the target
	// scope (nor, when child fallback applies, in any accessible child).
	ErrKeyNotFound = errors.New("memory key not found")

	// ErrScopeDenied is returned when the requester scope may not access
	// the target scope.
	ErrScopeDenied = errors.New("scope access denied")

	// ErrInvalidKey is returned when a key is empty.
	ErrInvalidKey = errors.New("invalid memory key")

	// ErrInvalidQuery is returned when a search query is empty or too long.
	ErrInvalidQuery = errors.New("invalid search query")
)
