package scope

// Controller decides whether a requesting scope may access a target scope.
//
// Implementations must be safe for concurrent use.
type Controller interface {
	// CanAccess reports whether requester may read and write target.
	CanAccess(requester, target Scope) bool
}

// Hierarchical is the standard access controller.
//
// Rules, applied in order:
//  1. The global scope is accessible to every requester.
//  2. A scope always accesses itself.
//  3. A scope accesses its descendants (segment-boundary prefix match).
//  4. Everything else is denied: siblings, ancestors, unrelated scopes.
type Hierarchical struct{}

// NewHierarchical returns the standard hierarchical controller.
func NewHierarchical() *Hierarchical {
	return &Hierarchical{}
}

// CanAccess implements Controller.
func (*Hierarchical) CanAccess(requester, target Scope) bool {
	if target.IsGlobal() {
		return true
	}
	return requester.Contains(target)
}

// AllowAll is a Controller that permits every access. Testing only; it
// removes the isolation boundary between scopes.
type AllowAll struct{}

// NewAllowAll returns a controller that permits every access. Testing only.
func NewAllowAll() *AllowAll {
	return &AllowAll{}
}

// CanAccess implements Controller.
func (*AllowAll) CanAccess(requester, target Scope) bool { return true }

// Filter returns the subset of scopes accessible from requester, in the
// input order.
func Filter(c Controller, requester Scope, scopes []Scope) []Scope {
	out := make([]Scope, 0, len(scopes))
	for _, s := range scopes {
		if c.CanAccess(requester, s) {
			out = append(out, s)
		}
	}
	return out
}
