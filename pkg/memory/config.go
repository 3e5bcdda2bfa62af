package memory

import (
	"fmt"
	"net/url"
)

// Provider identifiers recognised by [New].
const (
	ProviderPGVector = "pgvector"
	ProviderQdrant   = "qdrant"
	ProviderNeo4j    = "neo4j"
	ProviderOpenAI   = "openai"
)

// Config is the backend descriptor handed to [New]. It is plain data — it
// owns no connections and opens none; all outward connections are established
// by New.
type Config struct {
	// VectorStore selects and configures the similarity-search backend.
	VectorStore VectorStoreConfig

	// GraphStore selects and configures the relationship-graph backend.
	GraphStore GraphStoreConfig

	// LLM configures the language model used to distill raw input into
	// memory facts.
	LLM LLMConfig

	// Embedder configures the embedding model.
	Embedder EmbedderConfig

	// HistoryDBPath is the filesystem path of the SQLite change log.
	HistoryDBPath string
}

// VectorStoreConfig selects one vector backend. Only the sub-config matching
// Provider is consulted.
type VectorStoreConfig struct {
	// Provider is one of ProviderPGVector, ProviderQdrant, ProviderNeo4j.
	Provider string

	PGVector PGVectorConfig
	Qdrant   QdrantConfig
	Neo4j    Neo4jConfig
}

// PGVectorConfig holds PostgreSQL connection settings for the pgvector backend.
type PGVectorConfig struct {
	Host       string
	Port       int
	User       string
	Password   string
	Database   string
	Collection string
}

// DSN renders the settings as a postgres connection URL.
func (c PGVectorConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   c.Database,
	}
	return u.String()
}

// QdrantConfig holds Qdrant gRPC connection settings.
type QdrantConfig struct {
	Host       string
	Port       int
	Collection string
}

// Neo4jConfig holds Neo4j connection settings, shared by the graph store and
// the neo4j vector backend.
type Neo4jConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Database string
}

// URI renders the settings as a bolt routing URI.
func (c Neo4jConfig) URI() string {
	return fmt.Sprintf("neo4j://%s:%d", c.Host, c.Port)
}

// GraphStoreConfig selects the relationship-graph backend.
type GraphStoreConfig struct {
	// Provider is ProviderNeo4j; no other graph backend is shipped.
	Provider string

	Neo4j Neo4jConfig
}

// LLMConfig configures the chat-completion model.
type LLMConfig struct {
	// Provider is ProviderOpenAI; no other LLM backend is shipped.
	Provider string
	APIKey   string
	Model    string
}

// EmbedderConfig configures the embedding model.
type EmbedderConfig struct {
	// Provider is ProviderOpenAI; no other embeddings backend is shipped.
	Provider string
	APIKey   string
	Model    string
}
