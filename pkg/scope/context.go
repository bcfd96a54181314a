package scope

import (
	"context"
	"errors"
)

// ErrNoScope is returned when no requester scope is present in a context.
// This triggers fail-closed behavior: operations refuse to run rather than
// defaulting to a permissive scope.
var ErrNoScope = errors.New("requester scope missing from context")

// scopeContextKey is the context key for the requester scope.
type scopeContextKey struct{}

// WithScope returns a context carrying s as the requester scope.
func WithScope(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, scopeContextKey{}, s)
}

// FromContext extracts the requester scope from a context.
// Returns ErrNoScope if not present; callers must not substitute a default.
func FromContext(ctx context.Context) (Scope, error) {
	val := ctx.Value(scopeContextKey{})
	if val == nil {
		return "", ErrNoScope
	}
	s, ok := val.(Scope)
	if !ok || s == "" {
		return "", ErrNoScope
	}
	return s, nil
}

// MustFromContext extracts the requester scope or panics.
// Use only when scope presence is guaranteed by middleware.
func MustFromContext(ctx context.Context) Scope {
	s, err := FromContext(ctx)
	if err != nil {
		panic("requester scope required but missing from context")
	}
	return s
}

// HasScope checks whether a requester scope is present in the context.
func HasScope(ctx context.Context) bool {
	_, err := FromContext(ctx)
	return err == nil
}
