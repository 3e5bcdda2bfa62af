// Package graph defines the Store interface for the memory relationship graph.
//
// The graph mirrors ownership of memories: user and agent nodes connect to the
// memories they remember or observed. It carries no embeddings — semantic
// retrieval lives in the vector store — and exists so that relationship
// queries (who knows what) stay cheap.
//
// Implementations must be safe for concurrent use.
package graph

import "context"

// Store is the abstraction over the relationship-graph backend.
//
// Linking is an upsert: repeated links of the same memory are not errors.
// Unlinking a non-existent memory is not an error either.
type Store interface {
	// LinkMemory upserts the user node (and agent node, when agentID is
	// non-empty) and connects them to the memory node identified by memoryID.
	LinkMemory(ctx context.Context, userID, agentID, memoryID, content string) error

	// UnlinkMemory removes the memory node and all its relationships.
	UnlinkMemory(ctx context.Context, memoryID string) error

	// UnlinkAll removes every memory node linked to the given user (and agent,
	// when agentID is non-empty) along with the relationships.
	UnlinkAll(ctx context.Context, userID, agentID string) error

	// Close releases the backend connection.
	Close(ctx context.Context) error
}
