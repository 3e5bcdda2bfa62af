// Package vector defines the Store interface for vector-search backends.
//
// A Store persists embedded memories as [Point] records and retrieves them by
// identifier, by owner filter, or by embedding similarity. Three backends are
// provided as subpackages: pgvector (PostgreSQL), qdrant (gRPC), and neo4j
// (native vector index).
//
// Implementations must be safe for concurrent use.
package vector

import (
	"context"
	"time"
)

// Point is one embedded memory as stored in a vector backend.
type Point struct {
	// ID is the unique identifier of the memory (a UUID).
	ID string

	// Vector is the embedding of Content. Dimension must match the store
	// configuration; it is fixed at collection creation time.
	Vector []float32

	// Content is the memory text.
	Content string

	// UserID identifies the owning user. Never empty.
	UserID string

	// AgentID identifies the owning agent. Empty for user-scoped memories.
	AgentID string

	// CreatedAt is when the memory was first stored.
	CreatedAt time.Time

	// UpdatedAt is when the memory content was last changed.
	UpdatedAt time.Time
}

// Hit pairs a retrieved point with its vector-space distance from the query
// embedding. Lower Distance values indicate higher semantic similarity.
type Hit struct {
	Point Point

	// Distance is the cosine distance to the query embedding.
	Distance float64
}

// Filter narrows a listing, search, or bulk deletion to a subset of points.
// All non-zero fields are applied as AND conditions.
type Filter struct {
	// UserID restricts results to memories owned by this user.
	UserID string

	// AgentID restricts results to memories owned by this agent.
	AgentID string

	// Limit caps the number of results returned.
	// A value of 0 means the implementation may apply its own default.
	Limit int
}

// Store is the abstraction over any vector-search backend.
//
// Upsert must replace an existing point with the same ID rather than fail.
// Deletions of non-existent points are not errors.
type Store interface {
	// Upsert stores a pre-embedded point. If a point with the same ID already
	// exists it is completely replaced.
	Upsert(ctx context.Context, p Point) error

	// Get retrieves a point by its unique ID.
	// Returns (nil, nil) when the point does not exist.
	Get(ctx context.Context, id string) (*Point, error)

	// List returns the points matching filter, most recently created first.
	// Returns an empty (non-nil) slice when no points match.
	List(ctx context.Context, filter Filter) ([]Point, error)

	// Search finds the points whose vectors are closest to the query
	// embedding, filtered by filter and capped at filter.Limit.
	// Results are ordered by ascending Distance (most similar first).
	// Returns an empty (non-nil) slice when no points match.
	Search(ctx context.Context, embedding []float32, filter Filter) ([]Hit, error)

	// Delete removes the point with the given ID. Deleting a non-existent
	// point is not an error.
	Delete(ctx context.Context, id string) error

	// DeleteAll removes every point matching filter.
	DeleteAll(ctx context.Context, filter Filter) error

	// Close releases the backend connection.
	Close(ctx context.Context) error
}
