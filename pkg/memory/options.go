package memory

import "github.com/fyrsmithlabs/memoryd/pkg/scope"

// Search defaults.
const (
	// DefaultSearchLimit caps search results when no limit is given.
	DefaultSearchLimit = 10

	// DefaultMinScore is the minimum similarity score for search hits.
	DefaultMinScore = 0.7

	// maxQueryLength bounds search queries.
	maxQueryLength = 10000
)

// callOptions collects the per-call settings shared by the service
// operations. Each operation reads the fields that apply to it.
type callOptions struct {
	targetScope     scope.Scope
	childFallback   bool
	includeChildren bool
	pattern         string
	limit           int
	minScore        float64
}

// defaultCallOptions enable child traversal: retrieval falls through to
// child scopes and listings include them.
func defaultCallOptions() callOptions {
	return callOptions{
		childFallback:   true,
		includeChildren: true,
		limit:           DefaultSearchLimit,
		minScore:        DefaultMinScore,
	}
}

// Option configures a single service call.
//
// Options not read by an operation are ignored: InScope applies to every
// operation, WithoutChildFallback to Retrieve, MatchPattern and
// WithoutChildScopes to ListKeys and Search, WithLimit and WithMinScore
// to Search.
type Option func(*callOptions)

// InScope targets the operation at a scope other than the requester's
// own. The requester must have access to it.
func InScope(s scope.Scope) Option {
	return func(o *callOptions) { o.targetScope = s }
}

// WithoutChildFallback disables searching accessible child scopes when a
// key is absent from the target scope.
func WithoutChildFallback() Option {
	return func(o *callOptions) { o.childFallback = false }
}

// WithoutChildScopes restricts listing and search to the target scope
// only, excluding accessible children.
func WithoutChildScopes() Option {
	return func(o *callOptions) { o.includeChildren = false }
}

// MatchPattern filters listed keys with a glob pattern; "*" matches any
// run of characters.
func MatchPattern(pattern string) Option {
	return func(o *callOptions) { o.pattern = pattern }
}

// WithLimit caps the number of search results.
func WithLimit(limit int) Option {
	return func(o *callOptions) {
		if limit > 0 {
			o.limit = limit
		}
	}
}

// WithMinScore sets the minimum similarity score for search hits.
func WithMinScore(score float64) Option {
	return func(o *callOptions) { o.minScore = score }
}
