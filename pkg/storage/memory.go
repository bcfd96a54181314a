package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"sync"
)

// MemoryProvider stores values in process memory.
//
// Contents are lost when the process exits. Suitable for tests and for
// ephemeral agent runs that do not need persistence.
type MemoryProvider struct {
	mu   sync.RWMutex
	data map[string]map[string]json.RawMessage
}

// NewMemoryProvider creates an empty in-memory provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		data: make(map[string]map[string]json.RawMessage),
	}
}

// Save implements Provider.
func (p *MemoryProvider) Save(ctx context.Context, scope, key string, value json.RawMessage) error {
	if err := validateScopeKey(scope, key); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	items, ok := p.data[scope]
	if !ok {
		items = make(map[string]json.RawMessage)
		p.data[scope] = items
	}
	items[key] = slices.Clone(value)
	return nil
}

// Load implements Provider.
func (p *MemoryProvider) Load(ctx context.Context, scope, key string) (json.RawMessage, error) {
	if err := validateScopeKey(scope, key); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	value, ok := p.data[scope][key]
	if !ok {
		return nil, fmt.Errorf("%w: %s in scope %s", ErrNotFound, key, scope)
	}
	return slices.Clone(value), nil
}

// Delete implements Provider.
func (p *MemoryProvider) Delete(ctx context.Context, scope, key string) (bool, error) {
	if err := validateScopeKey(scope, key); err != nil {
		return false, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	items, ok := p.data[scope]
	if !ok {
		return false, nil
	}
	if _, ok := items[key]; !ok {
		return false, nil
	}
	delete(items, key)
	if len(items) == 0 {
		delete(p.data, scope)
	}
	return true, nil
}

// ListKeys implements Provider.
func (p *MemoryProvider) ListKeys(ctx context.Context, scope string) ([]string, error) {
	if scope == "" {
		return nil, fmt.Errorf("%w: empty scope", ErrInvalidScope)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	items := p.data[scope]
	keys := make([]string, 0, len(items))
	for key := range items {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// ListScopes implements Provider.
func (p *MemoryProvider) ListScopes(ctx context.Context) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	scopes := make([]string, 0, len(p.data))
	for scope := range p.data {
		scopes = append(scopes, scope)
	}
	sort.Strings(scopes)
	return scopes, nil
}

// HasKey implements Provider.
func (p *MemoryProvider) HasKey(ctx context.Context, scope, key string) (bool, error) {
	if err := validateScopeKey(scope, key); err != nil {
		return false, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	_, ok := p.data[scope][key]
	return ok, nil
}

// Close implements Provider. It is a no-op for the memory provider.
func (p *MemoryProvider) Close() error { return nil }

// Ensure MemoryProvider implements Provider.
var _ Provider = (*MemoryProvider)(nil)
