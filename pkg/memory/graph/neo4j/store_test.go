package neo4j_test

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	neo4jstore "github.com/mnemo-ai/mnemo/pkg/memory/graph/neo4j"
)

// testCreds returns the Neo4j connection settings from the environment, or
// skips the test if MNEMO_TEST_NEO4J_DSN is not set.
func testCreds(t *testing.T) (uri, username, password, database string) {
	t.Helper()
	uri = os.Getenv("MNEMO_TEST_NEO4J_DSN")
	if uri == "" {
		t.Skip("MNEMO_TEST_NEO4J_DSN not set — skipping Neo4j integration tests")
	}
	username = envOr("MNEMO_TEST_NEO4J_USERNAME", "neo4j")
	password = envOr("MNEMO_TEST_NEO4J_PASSWORD", "password")
	database = envOr("MNEMO_TEST_NEO4J_DATABASE", "neo4j")
	return uri, username, password, database
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// graphHarness bundles a store under test with a raw driver for verifying the
// graph shape from outside the store's own API.
type graphHarness struct {
	store    *neo4jstore.Store
	driver   neo4j.DriverWithContext
	database string
	userID   string
	agentID  string
}

// newHarness creates a store plus an inspection driver. Every harness gets
// unique user and agent ids, so tests stay isolated without wiping the
// database between runs.
func newHarness(t *testing.T) *graphHarness {
	t.Helper()
	uri, username, password, database := testCreds(t)
	ctx := context.Background()

	store, err := neo4jstore.New(ctx, uri, username, password, database)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		_ = store.Close(ctx)
		t.Fatalf("inspection driver: %v", err)
	}

	h := &graphHarness{
		store:    store,
		driver:   driver,
		database: database,
		userID:   "user-" + uuid.NewString(),
		agentID:  "agent-" + uuid.NewString(),
	}
	t.Cleanup(func() {
		ctx := context.Background()
		_ = store.UnlinkAll(ctx, h.userID, "")
		_ = driver.Close(ctx)
		_ = store.Close(ctx)
	})
	return h
}

// query runs a cypher statement through the inspection driver.
func (h *graphHarness) query(t *testing.T, stmt string, params map[string]any) *neo4j.EagerResult {
	t.Helper()
	result, err := neo4j.ExecuteQuery(context.Background(), h.driver, stmt, params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(h.database))
	if err != nil {
		t.Fatalf("inspection query: %v", err)
	}
	return result
}

// memoryContent returns the stored content of a memory node, or "" with
// ok=false when the node does not exist.
func (h *graphHarness) memoryContent(t *testing.T, memoryID string) (string, bool) {
	t.Helper()
	result := h.query(t,
		`MATCH (m:MemoryNode {id: $id}) RETURN m.content AS content`,
		map[string]any{"id": memoryID})
	if len(result.Records) == 0 {
		return "", false
	}
	content, _, err := neo4j.GetRecordValue[string](result.Records[0], "content")
	if err != nil {
		t.Fatalf("read content: %v", err)
	}
	return content, true
}

// remembersCount returns how many memory nodes the harness user remembers.
func (h *graphHarness) remembersCount(t *testing.T) int64 {
	t.Helper()
	result := h.query(t,
		`MATCH (:User {id: $user_id})-[:REMEMBERS]->(m:MemoryNode) RETURN count(m) AS n`,
		map[string]any{"user_id": h.userID})
	n, _, err := neo4j.GetRecordValue[int64](result.Records[0], "n")
	if err != nil {
		t.Fatalf("read count: %v", err)
	}
	return n
}

// observedByAgent reports whether the harness agent observed the memory.
func (h *graphHarness) observedByAgent(t *testing.T, memoryID string) bool {
	t.Helper()
	result := h.query(t,
		`MATCH (:Agent {id: $agent_id})-[:OBSERVED]->(m:MemoryNode {id: $id}) RETURN count(m) AS n`,
		map[string]any{"agent_id": h.agentID, "id": memoryID})
	n, _, err := neo4j.GetRecordValue[int64](result.Records[0], "n")
	if err != nil {
		t.Fatalf("read count: %v", err)
	}
	return n > 0
}

func TestStore_LinkMemoryUserOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	memoryID := uuid.NewString()

	if err := h.store.LinkMemory(ctx, h.userID, "", memoryID, "prefers dark mode"); err != nil {
		t.Fatalf("LinkMemory: %v", err)
	}

	content, ok := h.memoryContent(t, memoryID)
	if !ok {
		t.Fatal("memory node not created")
	}
	if content != "prefers dark mode" {
		t.Errorf("content: got %q", content)
	}
	if n := h.remembersCount(t); n != 1 {
		t.Errorf("REMEMBERS edges: want 1, got %d", n)
	}
	// No agent id, no OBSERVED edge.
	if h.observedByAgent(t, memoryID) {
		t.Error("unexpected OBSERVED edge for empty agent id")
	}
}

func TestStore_LinkMemoryWithAgent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	memoryID := uuid.NewString()

	if err := h.store.LinkMemory(ctx, h.userID, h.agentID, memoryID, "asked about pricing"); err != nil {
		t.Fatalf("LinkMemory: %v", err)
	}

	if !h.observedByAgent(t, memoryID) {
		t.Error("missing OBSERVED edge for agent-scoped memory")
	}
	if n := h.remembersCount(t); n != 1 {
		t.Errorf("REMEMBERS edges: want 1, got %d", n)
	}
}

func TestStore_RelinkUpdatesContent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	memoryID := uuid.NewString()

	if err := h.store.LinkMemory(ctx, h.userID, "", memoryID, "first version"); err != nil {
		t.Fatalf("LinkMemory: %v", err)
	}
	if err := h.store.LinkMemory(ctx, h.userID, "", memoryID, "second version"); err != nil {
		t.Fatalf("LinkMemory (relink): %v", err)
	}

	content, ok := h.memoryContent(t, memoryID)
	if !ok {
		t.Fatal("memory node missing after relink")
	}
	if content != "second version" {
		t.Errorf("content after relink: got %q, want %q", content, "second version")
	}
	// MERGE must not duplicate the node or its edge.
	if n := h.remembersCount(t); n != 1 {
		t.Errorf("REMEMBERS edges after relink: want 1, got %d", n)
	}
}

func TestStore_UnlinkMemory(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	memoryID := uuid.NewString()

	if err := h.store.LinkMemory(ctx, h.userID, h.agentID, memoryID, "to be removed"); err != nil {
		t.Fatalf("LinkMemory: %v", err)
	}
	if err := h.store.UnlinkMemory(ctx, memoryID); err != nil {
		t.Fatalf("UnlinkMemory: %v", err)
	}

	if _, ok := h.memoryContent(t, memoryID); ok {
		t.Error("memory node survived UnlinkMemory")
	}
	if n := h.remembersCount(t); n != 0 {
		t.Errorf("REMEMBERS edges after unlink: want 0, got %d", n)
	}

	// Unlinking a non-existent memory is not an error.
	if err := h.store.UnlinkMemory(ctx, uuid.NewString()); err != nil {
		t.Errorf("UnlinkMemory non-existent: %v", err)
	}
}

func TestStore_UnlinkAllScopesToAgent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	agentMemory := uuid.NewString()
	plainMemory := uuid.NewString()

	if err := h.store.LinkMemory(ctx, h.userID, h.agentID, agentMemory, "agent observed"); err != nil {
		t.Fatalf("LinkMemory agent: %v", err)
	}
	if err := h.store.LinkMemory(ctx, h.userID, "", plainMemory, "user only"); err != nil {
		t.Fatalf("LinkMemory plain: %v", err)
	}

	// Agent-scoped unlink removes only the observed memory.
	if err := h.store.UnlinkAll(ctx, h.userID, h.agentID); err != nil {
		t.Fatalf("UnlinkAll scoped: %v", err)
	}
	if _, ok := h.memoryContent(t, agentMemory); ok {
		t.Error("agent-observed memory survived scoped UnlinkAll")
	}
	if _, ok := h.memoryContent(t, plainMemory); !ok {
		t.Error("user-only memory removed by agent-scoped UnlinkAll")
	}

	// Unscoped unlink clears the rest.
	if err := h.store.UnlinkAll(ctx, h.userID, ""); err != nil {
		t.Fatalf("UnlinkAll: %v", err)
	}
	if n := h.remembersCount(t); n != 0 {
		t.Errorf("REMEMBERS edges after UnlinkAll: want 0, got %d", n)
	}
}
