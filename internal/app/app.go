// Package app wires all mnemo subsystems into a running service.
//
// The App struct owns the full lifecycle: New builds the backend descriptor,
// constructs the memory engine exactly once, and mounts the MCP service on
// the HTTP server; Run serves until the context is cancelled; Shutdown tears
// everything down in order.
//
// For testing, inject doubles via functional options (WithEngine,
// WithMetrics). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"

	"github.com/mnemo-ai/mnemo/internal/config"
	"github.com/mnemo-ai/mnemo/internal/observe"
	"github.com/mnemo-ai/mnemo/internal/server"
	"github.com/mnemo-ai/mnemo/internal/service"
	"github.com/mnemo-ai/mnemo/pkg/memory"
)

// App owns all subsystem lifetimes for the mnemo service.
type App struct {
	cfg     *config.Config
	version string

	engine  memory.Engine
	metrics *observe.Metrics
	svc     *service.Service
	srv     *server.Server

	// closers are called in order during Shutdown.
	closers []func(context.Context) error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithEngine injects a memory engine instead of constructing one from config.
// The App does not close an injected engine.
func WithEngine(e memory.Engine) Option {
	return func(a *App) { a.engine = e }
}

// WithMetrics injects a metrics set instead of creating one from the global
// meter provider.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App from validated configuration. The memory engine is
// constructed here and nowhere else; every remote operation goes through this
// single instance.
func New(ctx context.Context, cfg *config.Config, version string, opts ...Option) (*App, error) {
	a := &App{
		cfg:     cfg,
		version: version,
	}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Memory engine ─────────────────────────────────────────────────
	if a.engine == nil {
		memCfg, err := BuildMemoryConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("app: build memory config: %w", err)
		}
		engine, err := memory.New(ctx, memCfg)
		if err != nil {
			return nil, fmt.Errorf("app: init memory engine: %w", err)
		}
		a.engine = engine
		a.closers = append(a.closers, engine.Close)
	}

	// ── 2. Metrics ───────────────────────────────────────────────────────
	if a.metrics == nil {
		metrics, err := observe.NewMetrics(otel.GetMeterProvider())
		if err != nil {
			return nil, fmt.Errorf("app: init metrics: %w", err)
		}
		a.metrics = metrics
	}

	// ── 3. MCP service + HTTP server ─────────────────────────────────────
	a.svc = service.New(a.engine, a.metrics, version)
	a.srv = server.New(server.Config{
		Addr:    fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort),
		Version: version,
		Backend: string(cfg.Backend),
	}, a.svc.Handler())

	return a, nil
}

// BuildMemoryConfig maps validated service configuration onto the engine's
// backend descriptor. Every descriptor carries the neo4j graph store, the
// openai language model, and the openai embedder; only the vector-store slot
// varies with the configured backend.
func BuildMemoryConfig(cfg *config.Config) (memory.Config, error) {
	vs := memory.VectorStoreConfig{Provider: string(cfg.Backend)}

	switch cfg.Backend {
	case config.BackendPGVector:
		vs.PGVector = memory.PGVectorConfig{
			Host:       cfg.PostgresHost,
			Port:       cfg.PostgresPort,
			User:       cfg.PostgresUser,
			Password:   cfg.PostgresPassword,
			Database:   cfg.PostgresDatabase,
			Collection: cfg.PostgresCollectionName,
		}
	case config.BackendQdrant:
		// The collection name setting is shared across backends.
		vs.Qdrant = memory.QdrantConfig{
			Host:       cfg.QdrantHost,
			Port:       cfg.QdrantPort,
			Collection: cfg.PostgresCollectionName,
		}
	case config.BackendNeo4j:
		vs.Neo4j = neo4jConfig(cfg)
	default:
		return memory.Config{}, fmt.Errorf("unsupported backend %q", cfg.Backend)
	}

	return memory.Config{
		VectorStore: vs,
		GraphStore: memory.GraphStoreConfig{
			Provider: memory.ProviderNeo4j,
			Neo4j:    neo4jConfig(cfg),
		},
		LLM: memory.LLMConfig{
			Provider: memory.ProviderOpenAI,
			APIKey:   cfg.OpenAIAPIKey,
			Model:    cfg.OpenAIModel,
		},
		Embedder: memory.EmbedderConfig{
			Provider: memory.ProviderOpenAI,
			APIKey:   cfg.OpenAIAPIKey,
			Model:    cfg.OpenAIEmbeddingModel,
		},
		HistoryDBPath: cfg.HistoryDBPath,
	}, nil
}

func neo4jConfig(cfg *config.Config) memory.Neo4jConfig {
	return memory.Neo4jConfig{
		Host:     cfg.Neo4jHost,
		Port:     cfg.Neo4jPort,
		Username: cfg.Neo4jUsername,
		Password: cfg.Neo4jPassword,
		Database: cfg.Neo4jDatabase,
	}
}

// Run serves HTTP until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	slog.Info("app running",
		"backend", a.cfg.Backend,
		"addr", fmt.Sprintf("%s:%d", a.cfg.ServerHost, a.cfg.ServerPort),
	)
	return a.srv.Run(ctx)
}

// Shutdown tears down all subsystems in order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(ctx); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
