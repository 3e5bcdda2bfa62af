// Package neo4j provides a vector.Store backed by Neo4j's native vector index.
//
// Memories are :Memory nodes; similarity search goes through
// db.index.vector.queryNodes against an index created at construction time.
// Timestamps are stored as epoch nanoseconds so listing can order on them
// directly.
package neo4j

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/mnemo-ai/mnemo/pkg/memory/vector"
)

// Ensure Store implements the vector.Store interface.
var _ vector.Store = (*Store)(nil)

// defaultLimit is applied when a filter does not cap its result set.
const defaultLimit = 100

// indexName is the vector index backing similarity search.
const indexName = "memory_embeddings"

// Store is a Neo4j-backed vector store. All operations are safe for
// concurrent use.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
}

// New creates a Store, connects to the Neo4j instance at uri, verifies
// connectivity, and ensures the vector index exists with the given embedding
// dimension and cosine similarity.
func New(ctx context.Context, uri, username, password, database string, dimensions int) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j vector store: create driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j vector store: verify connectivity: %w", err)
	}

	s := &Store{driver: driver, database: database}
	if err := s.ensureIndex(ctx, dimensions); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j vector store: ensure index: %w", err)
	}
	return s, nil
}

// ensureIndex creates the vector index when absent. Index options cannot be
// parameterised, so the dimension is formatted into the statement.
func (s *Store) ensureIndex(ctx context.Context, dimensions int) error {
	stmt := fmt.Sprintf(`
		CREATE VECTOR INDEX %s IF NOT EXISTS
		FOR (m:Memory) ON (m.embedding)
		OPTIONS {indexConfig: {
		    `+"`vector.dimensions`"+`: %d,
		    `+"`vector.similarity_function`"+`: 'cosine'
		}}`, indexName, dimensions)

	_, err := s.run(ctx, stmt, nil)
	return err
}

// Upsert implements vector.Store.
func (s *Store) Upsert(ctx context.Context, p vector.Point) error {
	const stmt = `
		MERGE (m:Memory {id: $id})
		SET m.embedding  = $embedding,
		    m.content    = $content,
		    m.user_id    = $user_id,
		    m.agent_id   = $agent_id,
		    m.created_at = $created_at,
		    m.updated_at = $updated_at`

	_, err := s.run(ctx, stmt, map[string]any{
		"id":         p.ID,
		"embedding":  float32To64(p.Vector),
		"content":    p.Content,
		"user_id":    p.UserID,
		"agent_id":   p.AgentID,
		"created_at": p.CreatedAt.UnixNano(),
		"updated_at": p.UpdatedAt.UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("neo4j vector store: upsert %q: %w", p.ID, err)
	}
	return nil
}

// Get implements vector.Store.
func (s *Store) Get(ctx context.Context, id string) (*vector.Point, error) {
	const stmt = `MATCH (m:Memory {id: $id}) RETURN m`

	result, err := s.run(ctx, stmt, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("neo4j vector store: get %q: %w", id, err)
	}
	if len(result.Records) == 0 {
		return nil, nil
	}
	p, err := recordToPoint(result.Records[0], "m")
	if err != nil {
		return nil, fmt.Errorf("neo4j vector store: get %q: %w", id, err)
	}
	return &p, nil
}

// List implements vector.Store.
func (s *Store) List(ctx context.Context, filter vector.Filter) ([]vector.Point, error) {
	const stmt = `
		MATCH (m:Memory)
		WHERE ($user_id = '' OR m.user_id = $user_id)
		  AND ($agent_id = '' OR m.agent_id = $agent_id)
		RETURN m
		ORDER BY m.created_at DESC
		LIMIT $limit`

	result, err := s.run(ctx, stmt, map[string]any{
		"user_id":  filter.UserID,
		"agent_id": filter.AgentID,
		"limit":    limitOf(filter),
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j vector store: list: %w", err)
	}

	points := make([]vector.Point, 0, len(result.Records))
	for _, rec := range result.Records {
		p, err := recordToPoint(rec, "m")
		if err != nil {
			return nil, fmt.Errorf("neo4j vector store: list: %w", err)
		}
		points = append(points, p)
	}
	return points, nil
}

// Search implements vector.Store. The index query returns its top candidates
// before owner filtering applies, so the candidate pool is widened and the
// filtered result capped afterwards. Neo4j reports cosine similarity; it is
// converted to cosine distance to match the interface contract.
func (s *Store) Search(ctx context.Context, embedding []float32, filter vector.Filter) ([]vector.Hit, error) {
	limit := limitOf(filter)

	const stmt = `
		CALL db.index.vector.queryNodes($index, $candidates, $embedding)
		YIELD node, score
		WHERE ($user_id = '' OR node.user_id = $user_id)
		  AND ($agent_id = '' OR node.agent_id = $agent_id)
		RETURN node, score
		LIMIT $limit`

	result, err := s.run(ctx, stmt, map[string]any{
		"index":      indexName,
		"candidates": limit * 4,
		"embedding":  float32To64(embedding),
		"user_id":    filter.UserID,
		"agent_id":   filter.AgentID,
		"limit":      limit,
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j vector store: search: %w", err)
	}

	hits := make([]vector.Hit, 0, len(result.Records))
	for _, rec := range result.Records {
		p, err := recordToPoint(rec, "node")
		if err != nil {
			return nil, fmt.Errorf("neo4j vector store: search: %w", err)
		}
		score, _, err := neo4j.GetRecordValue[float64](rec, "score")
		if err != nil {
			return nil, fmt.Errorf("neo4j vector store: search: read score: %w", err)
		}
		hits = append(hits, vector.Hit{Point: p, Distance: 1 - score})
	}
	return hits, nil
}

// Delete implements vector.Store.
func (s *Store) Delete(ctx context.Context, id string) error {
	const stmt = `MATCH (m:Memory {id: $id}) DETACH DELETE m`
	if _, err := s.run(ctx, stmt, map[string]any{"id": id}); err != nil {
		return fmt.Errorf("neo4j vector store: delete %q: %w", id, err)
	}
	return nil
}

// DeleteAll implements vector.Store.
func (s *Store) DeleteAll(ctx context.Context, filter vector.Filter) error {
	const stmt = `
		MATCH (m:Memory)
		WHERE ($user_id = '' OR m.user_id = $user_id)
		  AND ($agent_id = '' OR m.agent_id = $agent_id)
		DETACH DELETE m`

	_, err := s.run(ctx, stmt, map[string]any{
		"user_id":  filter.UserID,
		"agent_id": filter.AgentID,
	})
	if err != nil {
		return fmt.Errorf("neo4j vector store: delete all: %w", err)
	}
	return nil
}

// Close implements vector.Store.
func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// run executes one cypher statement against the configured database.
func (s *Store) run(ctx context.Context, stmt string, params map[string]any) (*neo4j.EagerResult, error) {
	return neo4j.ExecuteQuery(ctx, s.driver, stmt, params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(s.database))
}

// limitOf returns the filter's limit, or defaultLimit when unset.
func limitOf(filter vector.Filter) int {
	if filter.Limit > 0 {
		return filter.Limit
	}
	return defaultLimit
}

// recordToPoint reads the node bound to key out of a record.
func recordToPoint(rec *neo4j.Record, key string) (vector.Point, error) {
	node, _, err := neo4j.GetRecordValue[dbtype.Node](rec, key)
	if err != nil {
		return vector.Point{}, fmt.Errorf("read node %q: %w", key, err)
	}
	return nodeToPoint(node), nil
}

// nodeToPoint converts a :Memory node's properties into a vector.Point.
func nodeToPoint(node dbtype.Node) vector.Point {
	var p vector.Point
	p.ID, _ = node.Props["id"].(string)
	p.Content, _ = node.Props["content"].(string)
	p.UserID, _ = node.Props["user_id"].(string)
	p.AgentID, _ = node.Props["agent_id"].(string)
	if ns, ok := node.Props["created_at"].(int64); ok {
		p.CreatedAt = time.Unix(0, ns).UTC()
	}
	if ns, ok := node.Props["updated_at"].(int64); ok {
		p.UpdatedAt = time.Unix(0, ns).UTC()
	}
	if raw, ok := node.Props["embedding"].([]any); ok {
		p.Vector = make([]float32, 0, len(raw))
		for _, v := range raw {
			if f, ok := v.(float64); ok {
				p.Vector = append(p.Vector, float32(f))
			}
		}
	}
	return p
}

// float32To64 widens an embedding for the bolt protocol, which has no
// float32 list type.
func float32To64(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}
