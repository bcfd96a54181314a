// Package memory provides the scoped memory façade: a key/value store
// partitioned by hierarchical scopes, with access control, pluggable
// persistence, and optional semantic search.
//
// Callers identify themselves by placing a requester scope in the context
// (scope.WithScope); every operation is checked against the access
// controller before touching storage.
package memory

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/memoryd/pkg/scope"
)

// Item is one stored memory entry.
//
// Key uniqueness is per scope: the same key may exist independently in
// many scopes. Items are overwritten by repeated stores of the same
// (key, scope) and removed by delete; there is no automatic expiry.
type Item struct {
	// Key identifies the item within its scope.
	Key string `json:"key"`

	// Scope is the hierarchical namespace holding the item.
	Scope scope.Scope `json:"scope"`

	// Value is the stored payload, arbitrary JSON.
	Value json.RawMessage `json:"value"`

	// CreatedAt is when the item was first stored.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the item was last overwritten.
	UpdatedAt time.Time `json:"updated_at"`
}

// EncodeValue marshals an arbitrary payload for storage.
func EncodeValue(v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding value: %w", err)
	}
	return data, nil
}

// DecodeValue unmarshals a stored payload into out.
func DecodeValue(raw json.RawMessage, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding value: %w", err)
	}
	return nil
}

// Decode unmarshals the item's value into out.
func (i *Item) Decode(out any) error {
	return DecodeValue(i.Value, out)
}

// Text returns the natural-language text of the item's value, if any.
//
// Rich and plain content payloads contribute their text field; a bare
// JSON string contributes itself; a {"content": "..."} wrapper (as
// written by workspaces) contributes its wrapped string. Other
// structured values have no text and are not indexed for search.
func (i *Item) Text() string {
	if rich, ok := i.Rich(); ok {
		return rich.Text
	}
	var c Content
	if err := json.Unmarshal(i.Value, &c); err == nil && c.Text != "" {
		return c.Text
	}
	var s string
	if err := json.Unmarshal(i.Value, &s); err == nil {
		return s
	}
	if wrapped, ok := unwrapContent(i.Value); ok {
		return wrapped
	}
	return ""
}

// unwrapContent extracts the string payload of a {"content": "..."}
// wrapper, if the value is one.
func unwrapContent(raw json.RawMessage) (string, bool) {
	var w struct {
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(raw, &w); err != nil || len(w.Content) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(w.Content, &s); err != nil {
		return "", false
	}
	return s, true
}

// Rich decodes the item's value as RichContent.
// Reports false when the value does not carry rich content fields.
func (i *Item) Rich() (*RichContent, bool) {
	var rc RichContent
	if err := json.Unmarshal(i.Value, &rc); err != nil {
		return nil, false
	}
	if rc.MemoryType == "" {
		return nil, false
	}
	return &rc, true
}
