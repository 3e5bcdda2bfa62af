package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// stubMCP records whether the MCP mount was hit.
type stubMCP struct {
	hits []string
}

func (s *stubMCP) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.hits = append(s.hits, r.URL.Path)
	w.WriteHeader(http.StatusOK)
}

func newTestServer() (*Server, *stubMCP) {
	mcp := &stubMCP{}
	return New(Config{Addr: "localhost:0", Version: "1.2.3", Backend: "pgvector"}, mcp), mcp
}

func get(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer()
	rec := get(t, srv.Handler(), "/healthz")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf(`body = %v, want {"status":"ok"}`, body)
	}
}

func TestServer_RootInfo(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer()
	rec := get(t, srv.Handler(), "/")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if body["service"] != "mnemo" || body["version"] != "1.2.3" || body["backend"] != "pgvector" {
		t.Errorf("body = %v, want service/version/backend", body)
	}
}

func TestServer_RootOnlyMatchesExactPath(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer()
	if rec := get(t, srv.Handler(), "/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("GET /nope status = %d, want 404", rec.Code)
	}
}

func TestServer_MemoryMount(t *testing.T) {
	t.Parallel()

	srv, mcp := newTestServer()
	get(t, srv.Handler(), "/memory")
	get(t, srv.Handler(), "/memory/session")

	want := []string{"/memory", "/memory/session"}
	if len(mcp.hits) != len(want) {
		t.Fatalf("mcp hits = %v, want %v", mcp.hits, want)
	}
	for i := range want {
		if mcp.hits[i] != want[i] {
			t.Errorf("hits[%d] = %q, want %q", i, mcp.hits[i], want[i])
		}
	}
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer()
	if rec := get(t, srv.Handler(), "/metrics"); rec.Code != http.StatusOK {
		t.Errorf("GET /metrics status = %d, want 200", rec.Code)
	}
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	// Give ListenAndServe a moment to bind before cancelling.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
