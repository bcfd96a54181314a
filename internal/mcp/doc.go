// Package mcp exposes scoped memory over the Model Context Protocol.
//
// The server (github.com/modelcontextprotocol/go-sdk/mcp) runs on stdio
// and registers typed tools for remembering, recalling, and searching
// memories, for shared workspaces, and for reading workflow status.
// Callers pick the scope they act as per call; without one the server's
// configured default scope applies. All textual output is scrubbed for
// secrets before returning to clients.
package mcp
