// Package scope defines hierarchical memory scopes and the access rules
// between them.
//
// A scope is a colon-delimited path such as "workflow:123:agent:456".
// Scopes partition stored memory and gate access: a requester holding a
// scope may act on its own scope and on any descendant scope, and every
// requester may read the distinguished "global" scope. Siblings and
// ancestors are not accessible.
package scope

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Separator delimits segments within a scope path.
const Separator = ":"

// Global is the distinguished root scope readable by every requester.
// Note the asymmetry: global content is world-readable, but holding the
// global scope does not grant access to other scopes.
const Global = Scope("global")

// ErrInvalidScope is returned when a scope string fails validation.
var ErrInvalidScope = errors.New("invalid scope")

// segmentPattern validates individual scope segments.
// Pattern: letters, digits, underscore, dot, hyphen; 1-128 characters.
var segmentPattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]{1,128}$`)

// Scope is a colon-delimited hierarchical namespace path.
//
// The zero value is not a valid scope; obtain one via Parse or the
// convention constructors (ForWorkflow, ForAgent, ForWorkspace).
type Scope string

// Parse validates raw and returns it as a Scope.
//
// A valid scope has at least one segment, and every segment matches
// [a-zA-Z0-9_.-]{1,128}. Leading, trailing, and doubled separators are
// rejected.
func Parse(raw string) (Scope, error) {
	if raw == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidScope)
	}
	for _, seg := range strings.Split(raw, Separator) {
		if !segmentPattern.MatchString(seg) {
			return "", fmt.Errorf("%w: bad segment %q in %q", ErrInvalidScope, seg, raw)
		}
	}
	return Scope(raw), nil
}

// MustParse is Parse that panics on invalid input. For constants and tests.
func MustParse(raw string) Scope {
	s, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return s
}

// String returns the scope path.
func (s Scope) String() string { return string(s) }

// Segments returns the path split on the separator.
func (s Scope) Segments() []string {
	if s == "" {
		return nil
	}
	return strings.Split(string(s), Separator)
}

// IsGlobal reports whether this is the global scope.
func (s Scope) IsGlobal() bool { return s == Global }

// Contains reports whether other equals s or is a descendant of s.
//
// Descent is tested on segment boundaries: "workflow:12" does not contain
// "workflow:123", but does contain "workflow:12:agent:a".
func (s Scope) Contains(other Scope) bool {
	if s == other {
		return true
	}
	return strings.HasPrefix(string(other), string(s)+Separator)
}

// Child returns the scope extended with the given segments.
func (s Scope) Child(segments ...string) Scope {
	if len(segments) == 0 {
		return s
	}
	return Scope(string(s) + Separator + strings.Join(segments, Separator))
}

// ForWorkflow returns the conventional scope for a workflow.
func ForWorkflow(workflowID string) Scope {
	return Scope("workflow" + Separator + workflowID)
}

// ForAgent returns the conventional scope for an agent within a workflow.
func ForAgent(workflowID, agentID string) Scope {
	return ForWorkflow(workflowID).Child("agent", agentID)
}

// ForWorkspace returns the conventional scope for a shared workspace.
func ForWorkspace(workspaceID string) Scope {
	return Scope("workspace" + Separator + workspaceID)
}
