package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// scopeFile is the on-disk document for one scope.
//
// Embedding the scope name makes files self-describing: filesystem-safe
// names are lossy (":" and "/" both map to "_"), so the name inside the
// file is authoritative.
type scopeFile struct {
	Scope string                     `json:"scope"`
	Items map[string]json.RawMessage `json:"items"`
}

// FileProvider persists each scope as a JSON document under a directory.
//
// Reads go through a write-through cache; writes are atomic (temp file
// plus rename). Files are created 0600 and the directory 0700. A single
// mutex serializes operations, so concurrent use is safe but not parallel.
type FileProvider struct {
	dir    string
	logger *zap.Logger

	mu    sync.Mutex
	cache map[string]map[string]json.RawMessage
	// fileScopes maps scope file names to scope names for watcher
	// invalidation and scope listing.
	fileScopes map[string]string

	watcher *fsnotify.Watcher
	stop    chan struct{}
}

// NewFileProvider creates a file-backed provider rooted at cfg.Dir,
// creating the directory if needed. When cfg.Watch is set, a filesystem
// watcher invalidates cached scopes whose files change externally.
func NewFileProvider(cfg FileConfig, logger *zap.Logger) (*FileProvider, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("%w: file provider requires dir", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating storage dir: %w", err)
	}

	p := &FileProvider{
		dir:        cfg.Dir,
		logger:     logger,
		cache:      make(map[string]map[string]json.RawMessage),
		fileScopes: make(map[string]string),
	}

	if cfg.Watch {
		if err := p.startWatcher(); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// sanitizeScope converts a scope name into a filesystem-safe file name.
func sanitizeScope(scope string) string {
	s := strings.ReplaceAll(scope, ":", "_")
	s = strings.ReplaceAll(s, "/", "_")
	return s + ".json"
}

// scopePath returns the file path for a scope.
func (p *FileProvider) scopePath(scope string) string {
	return filepath.Join(p.dir, sanitizeScope(scope))
}

// loadScopeLocked returns the items for scope, reading from disk on a
// cache miss. Callers must hold p.mu. A missing file yields an empty map.
func (p *FileProvider) loadScopeLocked(scope string) (map[string]json.RawMessage, error) {
	if items, ok := p.cache[scope]; ok {
		return items, nil
	}

	items := make(map[string]json.RawMessage)
	data, err := os.ReadFile(p.scopePath(scope))
	switch {
	case errors.Is(err, os.ErrNotExist):
		// New scope.
	case err != nil:
		return nil, fmt.Errorf("reading scope file for %s: %w", scope, err)
	default:
		var doc scopeFile
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing scope file for %s: %w", scope, err)
		}
		if doc.Scope != "" && doc.Scope != scope {
			return nil, fmt.Errorf("scope file collision: %s and %s map to the same file", doc.Scope, scope)
		}
		if doc.Items != nil {
			items = doc.Items
		}
	}

	p.cache[scope] = items
	p.fileScopes[sanitizeScope(scope)] = scope
	return items, nil
}

// writeScopeLocked persists the items for scope atomically.
// Callers must hold p.mu.
func (p *FileProvider) writeScopeLocked(scope string, items map[string]json.RawMessage) error {
	doc := scopeFile{Scope: scope, Items: items}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding scope %s: %w", scope, err)
	}

	path := p.scopePath(scope)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing scope file for %s: %w", scope, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replacing scope file for %s: %w", scope, err)
	}
	return nil
}

// Save implements Provider.
func (p *FileProvider) Save(ctx context.Context, scope, key string, value json.RawMessage) error {
	if err := validateScopeKey(scope, key); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	items, err := p.loadScopeLocked(scope)
	if err != nil {
		return err
	}
	items[key] = slices.Clone(value)
	return p.writeScopeLocked(scope, items)
}

// Load implements Provider.
func (p *FileProvider) Load(ctx context.Context, scope, key string) (json.RawMessage, error) {
	if err := validateScopeKey(scope, key); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	items, err := p.loadScopeLocked(scope)
	if err != nil {
		return nil, err
	}
	value, ok := items[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s in scope %s", ErrNotFound, key, scope)
	}
	return slices.Clone(value), nil
}

// Delete implements Provider.
func (p *FileProvider) Delete(ctx context.Context, scope, key string) (bool, error) {
	if err := validateScopeKey(scope, key); err != nil {
		return false, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	items, err := p.loadScopeLocked(scope)
	if err != nil {
		return false, err
	}
	if _, ok := items[key]; !ok {
		return false, nil
	}
	delete(items, key)

	if len(items) == 0 {
		delete(p.cache, scope)
		delete(p.fileScopes, sanitizeScope(scope))
		if err := os.Remove(p.scopePath(scope)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return false, fmt.Errorf("removing scope file for %s: %w", scope, err)
		}
		return true, nil
	}
	return true, p.writeScopeLocked(scope, items)
}

// ListKeys implements Provider.
func (p *FileProvider) ListKeys(ctx context.Context, scope string) ([]string, error) {
	if scope == "" {
		return nil, fmt.Errorf("%w: empty scope", ErrInvalidScope)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	items, err := p.loadScopeLocked(scope)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(items))
	for key := range items {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// ListScopes implements Provider.
//
// Scopes are discovered from the directory listing; each unseen file is
// read once to recover its authoritative scope name.
func (p *FileProvider) ListScopes(ctx context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, fmt.Errorf("listing storage dir: %w", err)
	}

	scopes := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		if scope, ok := p.fileScopes[name]; ok {
			scopes = append(scopes, scope)
			continue
		}

		data, err := os.ReadFile(filepath.Join(p.dir, name))
		if err != nil {
			p.logger.Warn("skipping unreadable scope file", zap.String("file", name), zap.Error(err))
			continue
		}
		var doc scopeFile
		if err := json.Unmarshal(data, &doc); err != nil || doc.Scope == "" {
			p.logger.Warn("skipping malformed scope file", zap.String("file", name))
			continue
		}
		p.fileScopes[name] = doc.Scope
		if doc.Items != nil {
			p.cache[doc.Scope] = doc.Items
		}
		scopes = append(scopes, doc.Scope)
	}
	sort.Strings(scopes)
	return scopes, nil
}

// HasKey implements Provider.
func (p *FileProvider) HasKey(ctx context.Context, scope, key string) (bool, error) {
	if err := validateScopeKey(scope, key); err != nil {
		return false, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	items, err := p.loadScopeLocked(scope)
	if err != nil {
		return false, err
	}
	_, ok := items[key]
	return ok, nil
}

// startWatcher begins watching the storage directory for external changes.
func (p *FileProvider) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	if err := watcher.Add(p.dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watching storage dir: %w", err)
	}

	p.watcher = watcher
	p.stop = make(chan struct{})
	go p.processEvents()
	return nil
}

// processEvents invalidates cached scopes whose files change on disk.
// Our own writes also pass through here; the cost is a redundant reload
// on the next access.
func (p *FileProvider) processEvents() {
	for {
		select {
		case <-p.stop:
			return
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if filepath.Ext(event.Name) != ".json" {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			p.invalidate(filepath.Base(event.Name))
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Warn("storage watcher error", zap.Error(err))
		}
	}
}

// invalidate drops the cache entry backed by the named file.
func (p *FileProvider) invalidate(file string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	scope, ok := p.fileScopes[file]
	if !ok {
		return
	}
	delete(p.cache, scope)
	delete(p.fileScopes, file)
	p.logger.Debug("invalidated cached scope", zap.String("scope", scope))
}

// Close implements Provider. It stops the watcher when one is running.
func (p *FileProvider) Close() error {
	if p.watcher != nil {
		select {
		case <-p.stop:
		default:
			close(p.stop)
		}
		return p.watcher.Close()
	}
	return nil
}

// Ensure FileProvider implements Provider.
var _ Provider = (*FileProvider)(nil)
