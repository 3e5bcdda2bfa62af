// Package memory defines the memory engine used by the mnemo service: a
// long-term store of short declarative facts owned by a user and optionally
// an agent, retrievable by semantic similarity.
//
// The [Engine] interface is the capability surface the service layer binds
// its remote operations to; [Memory] is the shipped implementation, wiring a
// vector store, a relationship graph, a change log, and the model providers
// together. External packages can supply alternative engines without
// depending on the concrete type.
//
// Every implementation must be safe for concurrent use.
package memory

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when an operation references a memory ID that does
// not exist.
var ErrNotFound = errors.New("memory not found")

// Record is one stored memory as seen by callers.
type Record struct {
	// ID is the unique identifier of the memory (a UUID).
	ID string `json:"id"`

	// Content is the memory text.
	Content string `json:"content"`

	// UserID identifies the owning user.
	UserID string `json:"user_id"`

	// AgentID identifies the owning agent. Empty for user-scoped memories.
	AgentID string `json:"agent_id,omitempty"`

	// Score is the similarity to the query (higher is more similar).
	// Only populated by Search; zero elsewhere.
	Score float64 `json:"score,omitempty"`

	// CreatedAt is when the memory was first stored.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the memory content was last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// Filter scopes an operation to memories owned by a user and optionally an
// agent.
type Filter struct {
	// UserID restricts the operation to this user's memories. Required by
	// every operation that takes a Filter.
	UserID string

	// AgentID additionally restricts to memories observed by this agent.
	// Empty means all of the user's memories.
	AgentID string

	// Limit caps the number of results returned.
	// A value of 0 means the implementation may apply its own default.
	Limit int
}

// Engine is the capability surface of a memory backend.
type Engine interface {
	// Add stores content as a new memory for the filtered owner and returns
	// the created records.
	Add(ctx context.Context, content string, filter Filter) ([]Record, error)

	// GetAll returns the memories matching filter, most recently created
	// first. Returns an empty (non-nil) slice when no memories match.
	GetAll(ctx context.Context, filter Filter) ([]Record, error)

	// Search returns the memories most similar to query, filtered by filter
	// and ordered by descending similarity.
	// Returns an empty (non-nil) slice when no memories match.
	Search(ctx context.Context, query string, filter Filter) ([]Record, error)

	// Update replaces the content of the memory identified by memoryID and
	// returns the updated record. Returns an error wrapping [ErrNotFound]
	// when no such memory exists.
	Update(ctx context.Context, memoryID, content string) (*Record, error)

	// Delete removes the memory identified by memoryID. Returns an error
	// wrapping [ErrNotFound] when no such memory exists.
	Delete(ctx context.Context, memoryID string) error

	// DeleteAll removes every memory matching filter.
	DeleteAll(ctx context.Context, filter Filter) error

	// Close releases all backend connections held by the engine.
	Close(ctx context.Context) error
}
