package services

import (
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/memoryd/internal/embeddings"
	"github.com/fyrsmithlabs/memoryd/internal/events"
	"github.com/fyrsmithlabs/memoryd/internal/secrets"
	"github.com/fyrsmithlabs/memoryd/pkg/memory"
	"github.com/fyrsmithlabs/memoryd/pkg/storage"
)

// Registry provides access to all memoryd services.
// Use accessor methods to retrieve individual services.
type Registry interface {
	// Memory is the scoped memory façade every surface talks to.
	Memory() *memory.Service

	// Storage is the persistence provider under the façade.
	Storage() storage.Provider

	// Index is the semantic search index; nil when provider is "none".
	Index() memory.SearchIndex

	// Embedder backs the index; nil when no index is configured.
	Embedder() embeddings.Provider

	// Scrubber redacts secrets from stored text; never nil, may be
	// disabled.
	Scrubber() *secrets.Scrubber

	// Events publishes lifecycle events; nil when events are disabled.
	Events() *events.Publisher

	// Close releases every owned service, events first so in-flight
	// publishes drain before storage goes away.
	Close() error
}

// Options configures the registry with service instances.
type Options struct {
	Memory   *memory.Service
	Storage  storage.Provider
	Index    memory.SearchIndex
	Embedder embeddings.Provider
	Scrubber *secrets.Scrubber
	Events   *events.Publisher
}

// registry is the concrete implementation of Registry.
type registry struct {
	memory   *memory.Service
	storage  storage.Provider
	index    memory.SearchIndex
	embedder embeddings.Provider
	scrubber *secrets.Scrubber
	events   *events.Publisher
}

// NewRegistry creates a new service registry from instances.
func NewRegistry(opts Options) Registry {
	return &registry{
		memory:   opts.Memory,
		storage:  opts.Storage,
		index:    opts.Index,
		embedder: opts.Embedder,
		scrubber: opts.Scrubber,
		events:   opts.Events,
	}
}

func (r *registry) Memory() *memory.Service      { return r.memory }
func (r *registry) Storage() storage.Provider    { return r.storage }
func (r *registry) Index() memory.SearchIndex    { return r.index }
func (r *registry) Embedder() embeddings.Provider { return r.embedder }
func (r *registry) Scrubber() *secrets.Scrubber  { return r.scrubber }
func (r *registry) Events() *events.Publisher    { return r.events }

// Close shuts the registry down. The memory service closes the index
// and the storage provider it owns; the embedder is closed separately
// because the index does not own it.
func (r *registry) Close() error {
	var errs []error
	if r.events != nil {
		if err := r.events.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing events: %w", err))
		}
	}
	if r.memory != nil {
		if err := r.memory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing memory: %w", err))
		}
	} else if r.storage != nil {
		if err := r.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing storage: %w", err))
		}
	}
	if r.embedder != nil {
		if err := r.embedder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing embedder: %w", err))
		}
	}
	return errors.Join(errs...)
}
