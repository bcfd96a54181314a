// Package index provides the semantic search index behind the memory
// service.
//
// Two backends implement the Store interface: an embedded chromem-go
// collection (default, optionally persisted to disk) and a remote
// Qdrant reached over gRPC with retries and a circuit breaker. The
// Adapter maps both onto pkg/memory.SearchIndex: documents are keyed
// by scope and key so re-stores overwrite, and query results are
// filtered by scope containment and minimum score before they reach
// the service.
package index
