// Package pgvector provides a vector.Store backed by PostgreSQL with the
// pgvector extension.
//
// Each store owns one table named after the configured collection, with the
// embedding dimension baked into the vector column at creation time. Schema
// setup is idempotent (CREATE EXTENSION / TABLE / INDEX IF NOT EXISTS) and
// safe to run on every application start.
package pgvector

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvec "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/mnemo-ai/mnemo/pkg/memory/vector"
)

// Ensure Store implements the vector.Store interface.
var _ vector.Store = (*Store)(nil)

// defaultLimit is applied when a filter does not cap its result set.
const defaultLimit = 100

// Store is a PostgreSQL/pgvector-backed vector store. All operations are safe
// for concurrent use.
type Store struct {
	pool  *pgxpool.Pool
	table string
}

// New creates a Store, establishes a connection pool to the PostgreSQL
// database at dsn, registers pgvector types on every connection, and ensures
// the collection table exists.
//
// dimensions must match the output dimension of the embedding model producing
// [vector.Point.Vector] values (e.g., 1536 for text-embedding-3-small).
// Changing it after the first run requires a manual schema change.
func New(ctx context.Context, dsn, collection string, dimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pgvector store: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so that vector columns
	// can be scanned into and inserted from pgvec.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgvector store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvector store: ping: %w", err)
	}

	table := pgx.Identifier{collection}.Sanitize()
	if err := migrate(ctx, pool, table, dimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvector store: migrate: %w", err)
	}

	return &Store{pool: pool, table: table}, nil
}

// migrate ensures the extension, collection table, and indexes exist.
func migrate(ctx context.Context, pool *pgxpool.Pool, table string, dimensions int) error {
	ddl := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS %[1]s (
    id          TEXT         PRIMARY KEY,
    embedding   vector(%[2]d),
    content     TEXT         NOT NULL,
    user_id     TEXT         NOT NULL,
    agent_id    TEXT         NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_memories_user_agent
    ON %[1]s (user_id, agent_id);

CREATE INDEX IF NOT EXISTS idx_memories_embedding
    ON %[1]s USING hnsw (embedding vector_cosine_ops);
`, table, dimensions)

	if _, err := pool.Exec(ctx, ddl); err != nil {
		return err
	}
	return nil
}

// Upsert implements vector.Store.
func (s *Store) Upsert(ctx context.Context, p vector.Point) error {
	q := fmt.Sprintf(`
		INSERT INTO %s (id, embedding, content, user_id, agent_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
		    embedding  = EXCLUDED.embedding,
		    content    = EXCLUDED.content,
		    user_id    = EXCLUDED.user_id,
		    agent_id   = EXCLUDED.agent_id,
		    updated_at = EXCLUDED.updated_at`, s.table)

	_, err := s.pool.Exec(ctx, q,
		p.ID,
		pgvec.NewVector(p.Vector),
		p.Content,
		p.UserID,
		p.AgentID,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("pgvector store: upsert %q: %w", p.ID, err)
	}
	return nil
}

// Get implements vector.Store.
func (s *Store) Get(ctx context.Context, id string) (*vector.Point, error) {
	q := fmt.Sprintf(`
		SELECT id, embedding, content, user_id, agent_id, created_at, updated_at
		FROM   %s
		WHERE  id = $1`, s.table)

	rows, err := s.pool.Query(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("pgvector store: get %q: %w", id, err)
	}

	p, err := pgx.CollectOneRow(rows, scanPoint)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("pgvector store: get %q: %w", id, err)
	}
	return &p, nil
}

// List implements vector.Store.
func (s *Store) List(ctx context.Context, filter vector.Filter) ([]vector.Point, error) {
	where, args := filterConditions(filter, nil)
	args = append(args, limitOf(filter))

	q := fmt.Sprintf(`
		SELECT id, embedding, content, user_id, agent_id, created_at, updated_at
		FROM   %s
		%s
		ORDER  BY created_at DESC
		LIMIT  $%d`, s.table, where, len(args))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("pgvector store: list: %w", err)
	}

	points, err := pgx.CollectRows(rows, scanPoint)
	if err != nil {
		return nil, fmt.Errorf("pgvector store: scan rows: %w", err)
	}
	if points == nil {
		points = []vector.Point{}
	}
	return points, nil
}

// Search implements vector.Store. Cosine distance, ascending.
func (s *Store) Search(ctx context.Context, embedding []float32, filter vector.Filter) ([]vector.Hit, error) {
	args := []any{pgvec.NewVector(embedding)} // $1 = query vector
	where, args := filterConditions(filter, args)
	args = append(args, limitOf(filter))

	q := fmt.Sprintf(`
		SELECT id, embedding, content, user_id, agent_id, created_at, updated_at,
		       embedding <=> $1 AS distance
		FROM   %s
		%s
		ORDER  BY distance
		LIMIT  $%d`, s.table, where, len(args))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("pgvector store: search: %w", err)
	}

	hits, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (vector.Hit, error) {
		var (
			h   vector.Hit
			vec pgvec.Vector
		)
		if err := row.Scan(
			&h.Point.ID,
			&vec,
			&h.Point.Content,
			&h.Point.UserID,
			&h.Point.AgentID,
			&h.Point.CreatedAt,
			&h.Point.UpdatedAt,
			&h.Distance,
		); err != nil {
			return vector.Hit{}, err
		}
		h.Point.Vector = vec.Slice()
		return h, nil
	})
	if err != nil {
		return nil, fmt.Errorf("pgvector store: scan rows: %w", err)
	}
	if hits == nil {
		hits = []vector.Hit{}
	}
	return hits, nil
}

// Delete implements vector.Store.
func (s *Store) Delete(ctx context.Context, id string) error {
	q := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.table)
	if _, err := s.pool.Exec(ctx, q, id); err != nil {
		return fmt.Errorf("pgvector store: delete %q: %w", id, err)
	}
	return nil
}

// DeleteAll implements vector.Store.
func (s *Store) DeleteAll(ctx context.Context, filter vector.Filter) error {
	where, args := filterConditions(filter, nil)
	q := fmt.Sprintf(`DELETE FROM %s %s`, s.table, where)
	if _, err := s.pool.Exec(ctx, q, args...); err != nil {
		return fmt.Errorf("pgvector store: delete all: %w", err)
	}
	return nil
}

// Close implements vector.Store.
func (s *Store) Close(ctx context.Context) error {
	s.pool.Close()
	return nil
}

// filterConditions renders filter as a WHERE clause, appending bind values to
// args. The returned args slice must be passed to the query alongside any
// positional parameters already present.
func filterConditions(filter vector.Filter, args []any) (string, []any) {
	var conditions []string
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.UserID != "" {
		conditions = append(conditions, "user_id = "+next(filter.UserID))
	}
	if filter.AgentID != "" {
		conditions = append(conditions, "agent_id = "+next(filter.AgentID))
	}

	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

// limitOf returns the filter's limit, or defaultLimit when unset.
func limitOf(filter vector.Filter) int {
	if filter.Limit > 0 {
		return filter.Limit
	}
	return defaultLimit
}

// scanPoint scans one full row (without distance) into a vector.Point.
func scanPoint(row pgx.CollectableRow) (vector.Point, error) {
	var (
		p   vector.Point
		vec pgvec.Vector
	)
	if err := row.Scan(
		&p.ID,
		&vec,
		&p.Content,
		&p.UserID,
		&p.AgentID,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return vector.Point{}, err
	}
	p.Vector = vec.Slice()
	return p, nil
}
