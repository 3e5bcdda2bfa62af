package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mnemo-ai/mnemo/pkg/memory/graph"
	graphneo4j "github.com/mnemo-ai/mnemo/pkg/memory/graph/neo4j"
	"github.com/mnemo-ai/mnemo/pkg/memory/history"
	"github.com/mnemo-ai/mnemo/pkg/memory/vector"
	vecneo4j "github.com/mnemo-ai/mnemo/pkg/memory/vector/neo4j"
	"github.com/mnemo-ai/mnemo/pkg/memory/vector/pgvector"
	vecqdrant "github.com/mnemo-ai/mnemo/pkg/memory/vector/qdrant"
	"github.com/mnemo-ai/mnemo/pkg/provider/embeddings"
	embopenai "github.com/mnemo-ai/mnemo/pkg/provider/embeddings/openai"
	"github.com/mnemo-ai/mnemo/pkg/provider/llm"
	llmopenai "github.com/mnemo-ai/mnemo/pkg/provider/llm/openai"
	"github.com/mnemo-ai/mnemo/pkg/provider/resilience"
)

// Ensure Memory implements the Engine interface.
var _ Engine = (*Memory)(nil)

// distillPrompt condenses raw input into a single storable fact. Kept short
// and imperative; the model's reply is stored verbatim.
const distillPrompt = `You condense raw input into a single short declarative memory about the user.
Reply with only the memory text, no preamble and no quotes.`

// historyRecorder is the slice of the history store the engine needs.
type historyRecorder interface {
	Record(ctx context.Context, memoryID, event, oldContent, newContent string) error
	Close() error
}

// Memory is the shipped [Engine]: embeddings-backed storage with a
// relationship graph and an append-only change log.
type Memory struct {
	vector   vector.Store
	graph    graph.Store
	history  historyRecorder
	embedder embeddings.Provider
	llm      llm.Provider
}

// New constructs a Memory engine from a backend descriptor. This is the only
// place outward connections are opened; any failure tears down what was
// already opened and aborts.
func New(ctx context.Context, cfg Config) (*Memory, error) {
	m := &Memory{}

	fail := func(err error) (*Memory, error) {
		_ = m.Close(ctx)
		return nil, err
	}

	var err error
	if m.embedder, err = newEmbedder(cfg.Embedder); err != nil {
		return fail(err)
	}
	if m.llm, err = newLLM(cfg.LLM); err != nil {
		return fail(err)
	}
	if m.vector, err = newVectorStore(ctx, cfg.VectorStore, m.embedder.Dimensions()); err != nil {
		return fail(err)
	}
	if m.graph, err = newGraphStore(ctx, cfg.GraphStore); err != nil {
		return fail(err)
	}
	if m.history, err = history.Open(cfg.HistoryDBPath); err != nil {
		return fail(err)
	}

	slog.Info("memory engine ready",
		"vector_store", cfg.VectorStore.Provider,
		"graph_store", cfg.GraphStore.Provider,
		"llm", cfg.LLM.Model,
		"embedder", cfg.Embedder.Model,
	)
	return m, nil
}

// newEmbedder constructs the embeddings provider named by cfg, guarded by a
// circuit breaker.
func newEmbedder(cfg EmbedderConfig) (embeddings.Provider, error) {
	switch cfg.Provider {
	case ProviderOpenAI:
		p, err := embopenai.New(cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, err
		}
		return resilience.NewEmbedder(p), nil
	default:
		return nil, fmt.Errorf("memory: unsupported embedder provider %q", cfg.Provider)
	}
}

// newLLM constructs the chat-completion provider named by cfg, guarded by a
// circuit breaker.
func newLLM(cfg LLMConfig) (llm.Provider, error) {
	switch cfg.Provider {
	case ProviderOpenAI:
		p, err := llmopenai.New(cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, err
		}
		return resilience.NewLLM(p), nil
	default:
		return nil, fmt.Errorf("memory: unsupported llm provider %q", cfg.Provider)
	}
}

// newVectorStore constructs the vector backend named by cfg.
func newVectorStore(ctx context.Context, cfg VectorStoreConfig, dimensions int) (vector.Store, error) {
	switch cfg.Provider {
	case ProviderPGVector:
		return pgvector.New(ctx, cfg.PGVector.DSN(), cfg.PGVector.Collection, dimensions)
	case ProviderQdrant:
		return vecqdrant.New(ctx, cfg.Qdrant.Host, cfg.Qdrant.Port, cfg.Qdrant.Collection, dimensions)
	case ProviderNeo4j:
		n := cfg.Neo4j
		return vecneo4j.New(ctx, n.URI(), n.Username, n.Password, n.Database, dimensions)
	default:
		return nil, fmt.Errorf("memory: unsupported vector store provider %q", cfg.Provider)
	}
}

// newGraphStore constructs the graph backend named by cfg.
func newGraphStore(ctx context.Context, cfg GraphStoreConfig) (graph.Store, error) {
	switch cfg.Provider {
	case ProviderNeo4j:
		n := cfg.Neo4j
		return graphneo4j.New(ctx, n.URI(), n.Username, n.Password, n.Database)
	default:
		return nil, fmt.Errorf("memory: unsupported graph store provider %q", cfg.Provider)
	}
}

// Add implements Engine. Raw input is distilled through the LLM into a short
// fact, embedded, and written to every store.
func (m *Memory) Add(ctx context.Context, content string, filter Filter) ([]Record, error) {
	if err := requireOwner(filter); err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, errors.New("memory: content must not be empty")
	}

	fact, err := m.distill(ctx, content)
	if err != nil {
		return nil, err
	}

	embedding, err := m.embedder.Embed(ctx, fact)
	if err != nil {
		return nil, fmt.Errorf("memory: embed content: %w", err)
	}

	now := time.Now().UTC()
	p := vector.Point{
		ID:        uuid.NewString(),
		Vector:    embedding,
		Content:   fact,
		UserID:    filter.UserID,
		AgentID:   filter.AgentID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := m.vector.Upsert(ctx, p); err != nil {
		return nil, fmt.Errorf("memory: store memory: %w", err)
	}
	if err := m.graph.LinkMemory(ctx, p.UserID, p.AgentID, p.ID, p.Content); err != nil {
		return nil, fmt.Errorf("memory: link memory: %w", err)
	}
	if err := m.history.Record(ctx, p.ID, history.EventAdd, "", p.Content); err != nil {
		return nil, fmt.Errorf("memory: record history: %w", err)
	}

	return []Record{pointToRecord(p, 0)}, nil
}

// distill condenses content into a single fact via the LLM. An empty model
// reply falls back to the raw content.
func (m *Memory) distill(ctx context.Context, content string) (string, error) {
	resp, err := m.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: distillPrompt,
		Prompt:       content,
	})
	if err != nil {
		return "", fmt.Errorf("memory: distill content: %w", err)
	}
	fact := strings.TrimSpace(resp.Content)
	if fact == "" {
		return content, nil
	}
	return fact, nil
}

// GetAll implements Engine.
func (m *Memory) GetAll(ctx context.Context, filter Filter) ([]Record, error) {
	if err := requireOwner(filter); err != nil {
		return nil, err
	}

	points, err := m.vector.List(ctx, vector.Filter(filter))
	if err != nil {
		return nil, fmt.Errorf("memory: list memories: %w", err)
	}

	records := make([]Record, 0, len(points))
	for _, p := range points {
		records = append(records, pointToRecord(p, 0))
	}
	return records, nil
}

// Search implements Engine.
func (m *Memory) Search(ctx context.Context, query string, filter Filter) ([]Record, error) {
	if err := requireOwner(filter); err != nil {
		return nil, err
	}

	embedding, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("memory: embed query: %w", err)
	}

	hits, err := m.vector.Search(ctx, embedding, vector.Filter(filter))
	if err != nil {
		return nil, fmt.Errorf("memory: search memories: %w", err)
	}

	records := make([]Record, 0, len(hits))
	for _, h := range hits {
		records = append(records, pointToRecord(h.Point, 1-h.Distance))
	}
	return records, nil
}

// Update implements Engine. Identity fields (owner, creation time) are
// preserved; only content, embedding, and the update time change.
func (m *Memory) Update(ctx context.Context, memoryID, content string) (*Record, error) {
	if strings.TrimSpace(content) == "" {
		return nil, errors.New("memory: content must not be empty")
	}

	existing, err := m.vector.Get(ctx, memoryID)
	if err != nil {
		return nil, fmt.Errorf("memory: load memory: %w", err)
	}
	if existing == nil {
		return nil, fmt.Errorf("memory: update %q: %w", memoryID, ErrNotFound)
	}

	embedding, err := m.embedder.Embed(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("memory: embed content: %w", err)
	}

	updated := *existing
	updated.Vector = embedding
	updated.Content = content
	updated.UpdatedAt = time.Now().UTC()

	if err := m.vector.Upsert(ctx, updated); err != nil {
		return nil, fmt.Errorf("memory: store memory: %w", err)
	}
	if err := m.graph.LinkMemory(ctx, updated.UserID, updated.AgentID, updated.ID, updated.Content); err != nil {
		return nil, fmt.Errorf("memory: link memory: %w", err)
	}
	if err := m.history.Record(ctx, memoryID, history.EventUpdate, existing.Content, content); err != nil {
		return nil, fmt.Errorf("memory: record history: %w", err)
	}

	rec := pointToRecord(updated, 0)
	return &rec, nil
}

// Delete implements Engine.
func (m *Memory) Delete(ctx context.Context, memoryID string) error {
	existing, err := m.vector.Get(ctx, memoryID)
	if err != nil {
		return fmt.Errorf("memory: load memory: %w", err)
	}
	if existing == nil {
		return fmt.Errorf("memory: delete %q: %w", memoryID, ErrNotFound)
	}

	if err := m.vector.Delete(ctx, memoryID); err != nil {
		return fmt.Errorf("memory: delete memory: %w", err)
	}
	if err := m.graph.UnlinkMemory(ctx, memoryID); err != nil {
		return fmt.Errorf("memory: unlink memory: %w", err)
	}
	if err := m.history.Record(ctx, memoryID, history.EventDelete, existing.Content, ""); err != nil {
		return fmt.Errorf("memory: record history: %w", err)
	}
	return nil
}

// DeleteAll implements Engine. Memories are removed page by page so each
// deletion lands in the change log; the loop ends when a listing comes back
// empty.
func (m *Memory) DeleteAll(ctx context.Context, filter Filter) error {
	if err := requireOwner(filter); err != nil {
		return err
	}

	owner := vector.Filter{UserID: filter.UserID, AgentID: filter.AgentID}
	for {
		points, err := m.vector.List(ctx, owner)
		if err != nil {
			return fmt.Errorf("memory: list memories: %w", err)
		}
		if len(points) == 0 {
			break
		}
		for _, p := range points {
			if err := m.vector.Delete(ctx, p.ID); err != nil {
				return fmt.Errorf("memory: delete memory %q: %w", p.ID, err)
			}
			if err := m.history.Record(ctx, p.ID, history.EventDelete, p.Content, ""); err != nil {
				return fmt.Errorf("memory: record history: %w", err)
			}
		}
	}

	if err := m.graph.UnlinkAll(ctx, filter.UserID, filter.AgentID); err != nil {
		return fmt.Errorf("memory: unlink memories: %w", err)
	}
	return nil
}

// Close implements Engine. Safe to call on a partially constructed engine.
func (m *Memory) Close(ctx context.Context) error {
	var errs []error
	if m.vector != nil {
		if err := m.vector.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("memory: close vector store: %w", err))
		}
	}
	if m.graph != nil {
		if err := m.graph.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("memory: close graph store: %w", err))
		}
	}
	if m.history != nil {
		if err := m.history.Close(); err != nil {
			errs = append(errs, fmt.Errorf("memory: close history store: %w", err))
		}
	}
	return errors.Join(errs...)
}

// requireOwner rejects filters without a user scope.
func requireOwner(filter Filter) error {
	if filter.UserID == "" {
		return errors.New("memory: user_id must not be empty")
	}
	return nil
}

// pointToRecord converts a stored point into a caller-facing record.
func pointToRecord(p vector.Point, score float64) Record {
	return Record{
		ID:        p.ID,
		Content:   p.Content,
		UserID:    p.UserID,
		AgentID:   p.AgentID,
		Score:     score,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}
