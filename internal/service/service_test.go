package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mnemo-ai/mnemo/pkg/memory"
)

// fakeEngine records calls and serves canned records.
type fakeEngine struct {
	mu    sync.Mutex
	calls []string

	records []memory.Record
	err     error
}

func (f *fakeEngine) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeEngine) Add(_ context.Context, content string, filter memory.Filter) ([]memory.Record, error) {
	f.record("add:" + content + ":" + filter.UserID + ":" + filter.AgentID)
	return f.records, f.err
}

func (f *fakeEngine) GetAll(_ context.Context, filter memory.Filter) ([]memory.Record, error) {
	f.record("get_all:" + filter.UserID + ":" + filter.AgentID)
	if f.err != nil {
		return nil, f.err
	}
	out := f.records
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (f *fakeEngine) Search(_ context.Context, query string, filter memory.Filter) ([]memory.Record, error) {
	f.record("search:" + query + ":" + filter.UserID)
	return f.records, f.err
}

func (f *fakeEngine) Update(_ context.Context, memoryID, content string) (*memory.Record, error) {
	f.record("update:" + memoryID + ":" + content)
	if f.err != nil {
		return nil, f.err
	}
	return &memory.Record{ID: memoryID, Content: content, UserID: "alice"}, nil
}

func (f *fakeEngine) Delete(_ context.Context, memoryID string) error {
	f.record("delete:" + memoryID)
	return f.err
}

func (f *fakeEngine) DeleteAll(_ context.Context, filter memory.Filter) error {
	f.record("delete_all:" + filter.UserID + ":" + filter.AgentID)
	return f.err
}

func (f *fakeEngine) Close(context.Context) error { return nil }

// connect wires a client session to the service over in-memory transports.
func connect(t *testing.T, svc *Service) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	clientTransport, serverTransport := mcp.NewInMemoryTransports()

	serverSession, err := svc.server.Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	t.Cleanup(func() { _ = serverSession.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "mnemo-test", Version: "0.0.1"}, nil)
	clientSession, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { _ = clientSession.Close() })

	return clientSession
}

func TestService_Catalog(t *testing.T) {
	t.Parallel()

	svc := New(&fakeEngine{}, nil, "test")
	session := connect(t, svc)
	ctx := context.Background()

	var tools []string
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			t.Fatalf("list tools: %v", err)
		}
		tools = append(tools, tool.Name)
	}
	sort.Strings(tools)

	wantTools := []string{
		"add_memory",
		"delete_all_memories",
		"delete_memory",
		"search_memories",
		"update_memory",
	}
	if len(tools) != len(wantTools) {
		t.Fatalf("tools = %v, want %v", tools, wantTools)
	}
	for i, name := range wantTools {
		if tools[i] != name {
			t.Errorf("tools[%d] = %q, want %q", i, tools[i], name)
		}
	}

	var templates []string
	for tmpl, err := range session.ResourceTemplates(ctx, nil) {
		if err != nil {
			t.Fatalf("list resource templates: %v", err)
		}
		templates = append(templates, tmpl.Name)
	}
	if len(templates) != 1 || templates[0] != "get_all_memories" {
		t.Errorf("resource templates = %v, want [get_all_memories]", templates)
	}
}

func TestService_AddMemory(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{}
	session := connect(t, New(engine, nil, "test"))

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name: "add_memory",
		Arguments: map[string]any{
			"content":  "likes coffee",
			"user_id":  "alice",
			"agent_id": "helper",
		},
	})
	if err != nil {
		t.Fatalf("call add_memory: %v", err)
	}
	if result.IsError {
		t.Fatalf("add_memory returned tool error: %v", result.Content)
	}

	if got, want := engine.calls, "add:likes coffee:alice:helper"; len(got) != 1 || got[0] != want {
		t.Errorf("engine calls = %v, want [%s]", got, want)
	}
	if text := firstText(t, result); !strings.Contains(text, "alice") {
		t.Errorf("result text %q should mention the user", text)
	}
}

func TestService_SearchMemories(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{
		records: []memory.Record{
			{ID: "m1", Content: "likes coffee", UserID: "alice", Score: 0.92},
		},
	}
	session := connect(t, New(engine, nil, "test"))

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name: "search_memories",
		Arguments: map[string]any{
			"query":   "coffee",
			"user_id": "alice",
		},
	})
	if err != nil {
		t.Fatalf("call search_memories: %v", err)
	}
	if result.IsError {
		t.Fatalf("search_memories returned tool error: %v", result.Content)
	}

	var out searchMemoriesResult
	if err := json.Unmarshal([]byte(firstText(t, result)), &out); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if len(out.Results) != 1 || out.Results[0].ID != "m1" {
		t.Errorf("results = %+v, want one record m1", out.Results)
	}
}

func TestService_UpdateMemory(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{}
	session := connect(t, New(engine, nil, "test"))

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name: "update_memory",
		Arguments: map[string]any{
			"memory_id": "m1",
			"content":   "likes tea",
		},
	})
	if err != nil {
		t.Fatalf("call update_memory: %v", err)
	}
	if result.IsError {
		t.Fatalf("update_memory returned tool error: %v", result.Content)
	}

	var rec memory.Record
	if err := json.Unmarshal([]byte(firstText(t, result)), &rec); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if rec.ID != "m1" || rec.Content != "likes tea" {
		t.Errorf("record = %+v, want m1 with updated content", rec)
	}
}

func TestService_DeleteTools(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{}
	session := connect(t, New(engine, nil, "test"))
	ctx := context.Background()

	if _, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "delete_memory",
		Arguments: map[string]any{"memory_id": "m1"},
	}); err != nil {
		t.Fatalf("call delete_memory: %v", err)
	}

	if _, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "delete_all_memories",
		Arguments: map[string]any{"user_id": "alice"},
	}); err != nil {
		t.Fatalf("call delete_all_memories: %v", err)
	}

	want := []string{"delete:m1", "delete_all:alice:"}
	if len(engine.calls) != len(want) {
		t.Fatalf("engine calls = %v, want %v", engine.calls, want)
	}
	for i := range want {
		if engine.calls[i] != want[i] {
			t.Errorf("calls[%d] = %q, want %q", i, engine.calls[i], want[i])
		}
	}
}

func TestService_EngineErrorBecomesToolError(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{err: errors.New("backend unavailable")}
	session := connect(t, New(engine, nil, "test"))

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "delete_memory",
		Arguments: map[string]any{"memory_id": "m1"},
	})
	if err != nil {
		t.Fatalf("call delete_memory: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error result")
	}
}

func TestService_ReadMemoriesResource(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	engine := &fakeEngine{
		records: []memory.Record{
			{ID: "m1", Content: "likes coffee", UserID: "alice", AgentID: "helper", CreatedAt: now, UpdatedAt: now},
			{ID: "m2", Content: "plays chess", UserID: "alice", AgentID: "helper", CreatedAt: now, UpdatedAt: now},
		},
	}
	session := connect(t, New(engine, nil, "test"))

	result, err := session.ReadResource(context.Background(), &mcp.ReadResourceParams{
		URI: "memories://alice/helper/1",
	})
	if err != nil {
		t.Fatalf("read resource: %v", err)
	}
	if len(result.Contents) != 1 {
		t.Fatalf("len(Contents) = %d, want 1", len(result.Contents))
	}

	content := result.Contents[0]
	if content.MIMEType != "application/json" {
		t.Errorf("MIMEType = %q, want application/json", content.MIMEType)
	}

	var records []memory.Record
	if err := json.Unmarshal([]byte(content.Text), &records); err != nil {
		t.Fatalf("unmarshal contents: %v", err)
	}
	// The limit segment of the URI caps the listing.
	if len(records) != 1 || records[0].ID != "m1" {
		t.Errorf("records = %+v, want just m1", records)
	}

	if got, want := engine.calls, "get_all:alice:helper"; len(got) != 1 || got[0] != want {
		t.Errorf("engine calls = %v, want [%s]", got, want)
	}
}

func TestParseMemoriesURI(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		uri     string
		want    memory.Filter
		wantErr bool
	}{
		{
			name: "full",
			uri:  "memories://alice/helper/25",
			want: memory.Filter{UserID: "alice", AgentID: "helper", Limit: 25},
		},
		{
			name: "empty agent",
			uri:  "memories://alice//25",
			want: memory.Filter{UserID: "alice", Limit: 25},
		},
		{
			name: "empty limit defaults",
			uri:  "memories://alice/helper/",
			want: memory.Filter{UserID: "alice", AgentID: "helper", Limit: defaultListLimit},
		},
		{name: "wrong scheme", uri: "notes://alice/helper/25", wantErr: true},
		{name: "missing segments", uri: "memories://alice/helper", wantErr: true},
		{name: "empty user", uri: "memories:///helper/25", wantErr: true},
		{name: "bad limit", uri: "memories://alice/helper/many", wantErr: true},
		{name: "zero limit", uri: "memories://alice/helper/0", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseMemoriesURI(tc.uri)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("parseMemoriesURI(%q): expected error", tc.uri)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseMemoriesURI(%q): %v", tc.uri, err)
			}
			if got != tc.want {
				t.Errorf("parseMemoriesURI(%q) = %+v, want %+v", tc.uri, got, tc.want)
			}
		})
	}
}

// firstText returns the first text content of a tool result.
func firstText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("result has no content")
	}
	text, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("content[0] is %T, want *mcp.TextContent", result.Content[0])
	}
	return text.Text
}
