// Package neo4j provides a graph.Store backed by Neo4j.
//
// Schema: (:User {id})-[:REMEMBERS]->(:MemoryNode {id, content}) and, for
// agent-scoped memories, (:Agent {id})-[:OBSERVED]->(:MemoryNode). Memory
// nodes are labelled MemoryNode to keep them distinct from the :Memory nodes
// the neo4j vector backend may own in the same database.
package neo4j

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/mnemo-ai/mnemo/pkg/memory/graph"
)

// Ensure Store implements the graph.Store interface.
var _ graph.Store = (*Store)(nil)

// Store is a Neo4j-backed relationship graph. All operations are safe for
// concurrent use.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
}

// New creates a Store, connects to the Neo4j instance at uri, and verifies
// connectivity.
func New(ctx context.Context, uri, username, password, database string) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j graph store: create driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j graph store: verify connectivity: %w", err)
	}
	return &Store{driver: driver, database: database}, nil
}

// LinkMemory implements graph.Store.
func (s *Store) LinkMemory(ctx context.Context, userID, agentID, memoryID, content string) error {
	// The FOREACH/CASE construct makes the agent link conditional without a
	// second round trip: an empty agent_id yields an empty list to iterate.
	const stmt = `
		MERGE (u:User {id: $user_id})
		MERGE (m:MemoryNode {id: $memory_id})
		SET m.content = $content
		MERGE (u)-[:REMEMBERS]->(m)
		FOREACH (_ IN CASE WHEN $agent_id <> '' THEN [1] ELSE [] END |
		    MERGE (a:Agent {id: $agent_id})
		    MERGE (a)-[:OBSERVED]->(m))`

	_, err := s.run(ctx, stmt, map[string]any{
		"user_id":   userID,
		"agent_id":  agentID,
		"memory_id": memoryID,
		"content":   content,
	})
	if err != nil {
		return fmt.Errorf("neo4j graph store: link memory %q: %w", memoryID, err)
	}
	return nil
}

// UnlinkMemory implements graph.Store.
func (s *Store) UnlinkMemory(ctx context.Context, memoryID string) error {
	const stmt = `MATCH (m:MemoryNode {id: $memory_id}) DETACH DELETE m`
	if _, err := s.run(ctx, stmt, map[string]any{"memory_id": memoryID}); err != nil {
		return fmt.Errorf("neo4j graph store: unlink memory %q: %w", memoryID, err)
	}
	return nil
}

// UnlinkAll implements graph.Store.
func (s *Store) UnlinkAll(ctx context.Context, userID, agentID string) error {
	const stmt = `
		MATCH (u:User {id: $user_id})-[:REMEMBERS]->(m:MemoryNode)
		WHERE $agent_id = '' OR EXISTS {
		    MATCH (:Agent {id: $agent_id})-[:OBSERVED]->(m)
		}
		DETACH DELETE m`

	_, err := s.run(ctx, stmt, map[string]any{
		"user_id":  userID,
		"agent_id": agentID,
	})
	if err != nil {
		return fmt.Errorf("neo4j graph store: unlink all for user %q: %w", userID, err)
	}
	return nil
}

// Close implements graph.Store.
func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// run executes one cypher statement against the configured database.
func (s *Store) run(ctx context.Context, stmt string, params map[string]any) (*neo4j.EagerResult, error) {
	return neo4j.ExecuteQuery(ctx, s.driver, stmt, params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(s.database))
}
