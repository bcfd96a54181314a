// Package services provides the centralized service registry for memoryd.
//
// Registry pattern for accessing the core services (storage, memory
// façade, search index, embedder, scrubber, event publisher). Build()
// assembles a registry from configuration; the daemon, the workflow
// worker, and tests share that wiring. NewRegistry() accepts
// pre-constructed instances for composition in tests.
package services
