// Package qdrant provides a vector.Store backed by a Qdrant collection over gRPC.
//
// Memory fields ride along as point payload; user_id and agent_id get keyword
// indexes so owner-scoped filtering stays cheap. Collection setup is idempotent
// and runs once at construction.
package qdrant

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"github.com/mnemo-ai/mnemo/pkg/memory/vector"
)

// Ensure Store implements the vector.Store interface.
var _ vector.Store = (*Store)(nil)

// defaultLimit is applied when a filter does not cap its result set.
const defaultLimit = 100

// Store is a Qdrant-backed vector store. All operations are safe for
// concurrent use.
type Store struct {
	client     *qdrant.Client
	collection string
}

// New creates a Store, connects to the Qdrant gRPC endpoint at host:port, and
// ensures the named collection exists with the given embedding dimension and
// cosine distance.
func New(ctx context.Context, host string, port int, collection string, dimensions int) (*Store, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant store: create client: %w", err)
	}

	s := &Store{client: client, collection: collection}
	if err := s.ensureCollection(ctx, uint64(dimensions)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("qdrant store: ensure collection %q: %w", collection, err)
	}
	return s, nil
}

// ensureCollection creates the collection and its payload indexes when absent.
func (s *Store) ensureCollection(ctx context.Context, dimensions uint64) error {
	collections, err := s.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	for _, name := range collections {
		if name == s.collection {
			return nil
		}
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     dimensions,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}

	for _, field := range []string{"user_id", "agent_id"} {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("create field index %q: %w", field, err)
		}
	}
	return nil
}

// Upsert implements vector.Store.
func (s *Store) Upsert(ctx context.Context, p vector.Point) error {
	point := &qdrant.PointStruct{
		Id:      qdrant.NewID(p.ID),
		Vectors: qdrant.NewVectors(p.Vector...),
		Payload: qdrant.NewValueMap(map[string]any{
			"content":    p.Content,
			"user_id":    p.UserID,
			"agent_id":   p.AgentID,
			"created_at": p.CreatedAt.UTC().Format(time.RFC3339Nano),
			"updated_at": p.UpdatedAt.UTC().Format(time.RFC3339Nano),
		}),
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         []*qdrant.PointStruct{point},
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("qdrant store: upsert %q: %w", p.ID, err)
	}
	return nil
}

// Get implements vector.Store.
func (s *Store) Get(ctx context.Context, id string) (*vector.Point, error) {
	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collection,
		Ids:            []*qdrant.PointId{qdrant.NewID(id)},
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant store: get %q: %w", id, err)
	}
	if len(points) == 0 {
		return nil, nil
	}
	p := retrievedToPoint(points[0])
	return &p, nil
}

// List implements vector.Store. Qdrant scroll has no server-side ordering, so
// results are sorted by creation time after retrieval.
func (s *Store) List(ctx context.Context, filter vector.Filter) ([]vector.Point, error) {
	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.collection,
		Filter:         buildFilter(filter),
		Limit:          qdrant.PtrOf(uint32(limitOf(filter))),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant store: scroll: %w", err)
	}

	out := make([]vector.Point, 0, len(points))
	for _, rp := range points {
		out = append(out, retrievedToPoint(rp))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Search implements vector.Store. Qdrant reports cosine similarity; it is
// converted to cosine distance so ordering matches the interface contract.
func (s *Store) Search(ctx context.Context, embedding []float32, filter vector.Filter) ([]vector.Hit, error) {
	scored, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          qdrant.PtrOf(uint64(limitOf(filter))),
		Filter:         buildFilter(filter),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant store: query: %w", err)
	}

	hits := make([]vector.Hit, 0, len(scored))
	for _, sp := range scored {
		hits = append(hits, vector.Hit{
			Point:    scoredToPoint(sp),
			Distance: 1 - float64(sp.Score),
		})
	}
	return hits, nil
}

// Delete implements vector.Store. The deletion is applied before returning so
// a follow-up listing cannot re-observe the point.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{
					Ids: []*qdrant.PointId{qdrant.NewID(id)},
				},
			},
		},
		Wait: qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("qdrant store: delete %q: %w", id, err)
	}
	return nil
}

// DeleteAll implements vector.Store. An empty filter matches every point.
func (s *Store) DeleteAll(ctx context.Context, filter vector.Filter) error {
	f := buildFilter(filter)
	if f == nil {
		f = &qdrant.Filter{}
	}
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: f,
			},
		},
		Wait: qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("qdrant store: delete all: %w", err)
	}
	return nil
}

// Close implements vector.Store.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Close()
}

// buildFilter renders an owner filter as qdrant Must conditions.
// Returns nil when the filter is empty.
func buildFilter(filter vector.Filter) *qdrant.Filter {
	var conditions []*qdrant.Condition
	if filter.UserID != "" {
		conditions = append(conditions, qdrant.NewMatch("user_id", filter.UserID))
	}
	if filter.AgentID != "" {
		conditions = append(conditions, qdrant.NewMatch("agent_id", filter.AgentID))
	}
	if len(conditions) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: conditions}
}

// limitOf returns the filter's limit, or defaultLimit when unset.
func limitOf(filter vector.Filter) int {
	if filter.Limit > 0 {
		return filter.Limit
	}
	return defaultLimit
}

// retrievedToPoint converts a scroll/get result into a vector.Point.
func retrievedToPoint(rp *qdrant.RetrievedPoint) vector.Point {
	p := vector.Point{ID: rp.Id.GetUuid()}
	if v := rp.Vectors.GetVector(); v != nil {
		p.Vector = v.Data
	}
	fillFromPayload(&p, rp.Payload)
	return p
}

// scoredToPoint converts a query result into a vector.Point.
func scoredToPoint(sp *qdrant.ScoredPoint) vector.Point {
	p := vector.Point{ID: sp.Id.GetUuid()}
	if v := sp.Vectors.GetVector(); v != nil {
		p.Vector = v.Data
	}
	fillFromPayload(&p, sp.Payload)
	return p
}

// fillFromPayload copies the memory fields out of a point payload.
func fillFromPayload(p *vector.Point, payload map[string]*qdrant.Value) {
	if payload == nil {
		return
	}
	if v, ok := payload["content"]; ok {
		p.Content = v.GetStringValue()
	}
	if v, ok := payload["user_id"]; ok {
		p.UserID = v.GetStringValue()
	}
	if v, ok := payload["agent_id"]; ok {
		p.AgentID = v.GetStringValue()
	}
	if v, ok := payload["created_at"]; ok {
		if t, err := time.Parse(time.RFC3339Nano, v.GetStringValue()); err == nil {
			p.CreatedAt = t
		}
	}
	if v, ok := payload["updated_at"]; ok {
		if t, err := time.Parse(time.RFC3339Nano, v.GetStringValue()); err == nil {
			p.UpdatedAt = t
		}
	}
}
