// Package service registers the remote memory operations on an MCP server.
//
// The catalog is fixed: five tools (add_memory, search_memories,
// update_memory, delete_memory, delete_all_memories) and one resource
// template (memories://{user_id}/{agent_id}/{limit}, named get_all_memories).
// Registration only attaches handlers — no I/O happens until a session calls
// an operation, and per-operation errors propagate to the SDK which turns
// them into protocol errors.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mnemo-ai/mnemo/internal/observe"
	"github.com/mnemo-ai/mnemo/pkg/memory"
)

// memoriesScheme prefixes every get_all_memories resource URI.
const memoriesScheme = "memories://"

// defaultListLimit applies when the limit segment of a memories:// URI is empty.
const defaultListLimit = 100

// Service binds the remote operation catalog to a [memory.Engine].
type Service struct {
	engine  memory.Engine
	metrics *observe.Metrics
	server  *mcp.Server
}

// New creates the MCP server and registers the full operation catalog.
// metrics may be nil; recording then becomes a no-op.
func New(engine memory.Engine, metrics *observe.Metrics, version string) *Service {
	s := &Service{
		engine:  engine,
		metrics: metrics,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "mnemo",
			Version: version,
		}, nil),
	}
	s.register()
	return s
}

// Handler returns the streamable-HTTP handler serving this MCP server,
// suitable for mounting on an HTTP mux.
func (s *Service) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.server }, nil)
}

// register attaches all tools and resources. Handlers only; no I/O.
func (s *Service) register() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "add_memory",
		Description: "Store a new piece of information as a long-term memory for a user.",
	}, s.addMemory)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_memories",
		Description: "Find the stored memories most relevant to a natural-language query.",
	}, s.searchMemories)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "update_memory",
		Description: "Replace the content of an existing memory by its ID.",
	}, s.updateMemory)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "delete_memory",
		Description: "Delete a single memory by its ID.",
	}, s.deleteMemory)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "delete_all_memories",
		Description: "Delete every memory belonging to a user, optionally scoped to one agent.",
	}, s.deleteAllMemories)

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		Name:        "get_all_memories",
		URITemplate: memoriesScheme + "{user_id}/{agent_id}/{limit}",
		Description: "List a user's stored memories as JSON. Leave agent_id empty for all agents; leave limit empty for the default of 100.",
		MIMEType:    "application/json",
	}, s.readMemories)
}

// ── Tool arguments and results ───────────────────────────────────────────────

type addMemoryArgs struct {
	Content string `json:"content"`
	UserID  string `json:"user_id"`
	AgentID string `json:"agent_id,omitempty"`
}

type searchMemoriesArgs struct {
	Query   string `json:"query"`
	UserID  string `json:"user_id"`
	AgentID string `json:"agent_id,omitempty"`
}

type searchMemoriesResult struct {
	Results []memory.Record `json:"results"`
}

type updateMemoryArgs struct {
	MemoryID string `json:"memory_id"`
	Content  string `json:"content"`
}

type deleteMemoryArgs struct {
	MemoryID string `json:"memory_id"`
}

type deleteAllMemoriesArgs struct {
	UserID  string `json:"user_id"`
	AgentID string `json:"agent_id,omitempty"`
}

// ── Tool handlers ────────────────────────────────────────────────────────────

func (s *Service) addMemory(ctx context.Context, _ *mcp.CallToolRequest, args addMemoryArgs) (*mcp.CallToolResult, any, error) {
	start := time.Now()
	_, err := s.engine.Add(ctx, args.Content, memory.Filter{
		UserID:  args.UserID,
		AgentID: args.AgentID,
	})
	s.metrics.RecordOperation(ctx, "add_memory", start, err)
	if err != nil {
		return nil, nil, err
	}
	return textResult(fmt.Sprintf("Memory added for user %q.", args.UserID)), nil, nil
}

func (s *Service) searchMemories(ctx context.Context, req *mcp.CallToolRequest, args searchMemoriesArgs) (*mcp.CallToolResult, searchMemoriesResult, error) {
	start := time.Now()
	s.notify(ctx, req.Session, fmt.Sprintf("Searching memories for query %q", args.Query))

	records, err := s.engine.Search(ctx, args.Query, memory.Filter{
		UserID:  args.UserID,
		AgentID: args.AgentID,
	})
	s.metrics.RecordOperation(ctx, "search_memories", start, err)
	if err != nil {
		return nil, searchMemoriesResult{}, err
	}

	out := searchMemoriesResult{Results: records}
	res, err := jsonResult(out)
	if err != nil {
		return nil, searchMemoriesResult{}, err
	}
	return res, out, nil
}

func (s *Service) updateMemory(ctx context.Context, req *mcp.CallToolRequest, args updateMemoryArgs) (*mcp.CallToolResult, memory.Record, error) {
	start := time.Now()
	s.notify(ctx, req.Session, fmt.Sprintf("Updating memory %q", args.MemoryID))

	record, err := s.engine.Update(ctx, args.MemoryID, args.Content)
	s.metrics.RecordOperation(ctx, "update_memory", start, err)
	if err != nil {
		return nil, memory.Record{}, err
	}

	res, err := jsonResult(*record)
	if err != nil {
		return nil, memory.Record{}, err
	}
	return res, *record, nil
}

func (s *Service) deleteMemory(ctx context.Context, _ *mcp.CallToolRequest, args deleteMemoryArgs) (*mcp.CallToolResult, any, error) {
	start := time.Now()
	err := s.engine.Delete(ctx, args.MemoryID)
	s.metrics.RecordOperation(ctx, "delete_memory", start, err)
	if err != nil {
		return nil, nil, err
	}
	return textResult(fmt.Sprintf("Memory %q deleted.", args.MemoryID)), nil, nil
}

func (s *Service) deleteAllMemories(ctx context.Context, _ *mcp.CallToolRequest, args deleteAllMemoriesArgs) (*mcp.CallToolResult, any, error) {
	start := time.Now()
	err := s.engine.DeleteAll(ctx, memory.Filter{
		UserID:  args.UserID,
		AgentID: args.AgentID,
	})
	s.metrics.RecordOperation(ctx, "delete_all_memories", start, err)
	if err != nil {
		return nil, nil, err
	}
	return textResult(fmt.Sprintf("All memories deleted for user %q.", args.UserID)), nil, nil
}

// ── Resource handler ─────────────────────────────────────────────────────────

// readMemories serves memories://{user_id}/{agent_id}/{limit}.
func (s *Service) readMemories(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	start := time.Now()

	filter, err := parseMemoriesURI(req.Params.URI)
	if err != nil {
		s.metrics.RecordOperation(ctx, "get_all_memories", start, err)
		return nil, err
	}

	records, err := s.engine.GetAll(ctx, filter)
	s.metrics.RecordOperation(ctx, "get_all_memories", start, err)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("service: marshal memories: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(payload),
		}},
	}, nil
}

// parseMemoriesURI extracts owner and limit from a memories:// URI. The
// agent_id and limit segments may be empty; user_id may not.
func parseMemoriesURI(uri string) (memory.Filter, error) {
	rest, ok := strings.CutPrefix(uri, memoriesScheme)
	if !ok {
		return memory.Filter{}, fmt.Errorf("service: unsupported resource uri %q", uri)
	}

	parts := strings.Split(rest, "/")
	if len(parts) != 3 {
		return memory.Filter{}, fmt.Errorf("service: resource uri %q must have the form %s{user_id}/{agent_id}/{limit}", uri, memoriesScheme)
	}

	filter := memory.Filter{
		UserID:  parts[0],
		AgentID: parts[1],
		Limit:   defaultListLimit,
	}
	if filter.UserID == "" {
		return memory.Filter{}, fmt.Errorf("service: resource uri %q has an empty user_id", uri)
	}
	if parts[2] != "" {
		limit, err := strconv.Atoi(parts[2])
		if err != nil || limit < 1 {
			return memory.Filter{}, fmt.Errorf("service: resource uri %q has an invalid limit %q", uri, parts[2])
		}
		filter.Limit = limit
	}
	return filter, nil
}

// ── Helpers ──────────────────────────────────────────────────────────────────

// notify sends a best-effort logging notification to the calling session.
// Failures are logged and swallowed — the operation itself must not fail
// because the client ignores notifications.
func (s *Service) notify(ctx context.Context, session *mcp.ServerSession, message string) {
	if session == nil {
		return
	}
	if err := session.Log(ctx, &mcp.LoggingMessageParams{
		Level: "info",
		Data:  message,
	}); err != nil {
		slog.Debug("log notification failed", "error", err)
	}
}

// textResult wraps a plain-text message as a tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// jsonResult renders v as JSON text content so that clients without
// structured-content support still get the payload.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("service: marshal result: %w", err)
	}
	return textResult(string(payload)), nil
}
