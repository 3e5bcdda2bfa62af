// Package config provides the configuration schema, environment loader, and
// validation rules for the mnemo memory service.
package config

import (
	"fmt"
	"log/slog"
	"strings"
)

// Backend selects the vector-store technology used to persist memories.
type Backend string

const (
	// BackendPGVector stores memories in PostgreSQL using the pgvector extension.
	BackendPGVector Backend = "pgvector"

	// BackendQdrant stores memories in a Qdrant collection over gRPC.
	BackendQdrant Backend = "qdrant"

	// BackendNeo4j stores memories as Neo4j nodes with a native vector index.
	BackendNeo4j Backend = "neo4j"
)

// Backends lists all recognised backend values, in the order they are
// reported in validation errors.
var Backends = []Backend{BackendPGVector, BackendQdrant, BackendNeo4j}

// IsValid reports whether b is a recognised backend.
func (b Backend) IsValid() bool {
	switch b {
	case BackendPGVector, BackendQdrant, BackendNeo4j:
		return true
	}
	return false
}

// ParseBackend coerces a raw string into a [Backend]. Unlike log levels the
// match is case-sensitive — backend names are identifiers, not prose.
func ParseBackend(s string) (Backend, error) {
	b := Backend(s)
	if !b.IsValid() {
		return "", fmt.Errorf("backend must be one of %v, got '%s'", Backends, s)
	}
	return b, nil
}

// LogLevel controls log verbosity for the mnemo server.
type LogLevel string

const (
	LogDebug    LogLevel = "debug"
	LogInfo     LogLevel = "info"
	LogWarning  LogLevel = "warning"
	LogError    LogLevel = "error"
	LogCritical LogLevel = "critical"
	LogTrace    LogLevel = "trace"
)

// LogLevels lists all recognised log levels, in the order they are reported
// in validation errors.
var LogLevels = []LogLevel{LogDebug, LogInfo, LogWarning, LogError, LogCritical, LogTrace}

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarning, LogError, LogCritical, LogTrace:
		return true
	}
	return false
}

// ParseLogLevel coerces a raw string into a [LogLevel], matching
// case-insensitively against the recognised level names.
func ParseLogLevel(s string) (LogLevel, error) {
	l := LogLevel(strings.ToLower(s))
	if !l.IsValid() {
		return "", fmt.Errorf("memory_log_level must be one of %v, got '%s'", LogLevels, s)
	}
	return l, nil
}

// Level maps a LogLevel to its [slog.Level] equivalent. Trace maps below
// debug and critical above error, mirroring the conventional ordering.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogTrace:
		return slog.LevelDebug - 4
	case LogDebug:
		return slog.LevelDebug
	case LogWarning:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	case LogCritical:
		return slog.LevelError + 4
	default:
		return slog.LevelInfo
	}
}

// Config is the process-wide settings record for mnemo. It is constructed by
// [Load] (or [LoadEnviron]), validated before use, and never mutated after a
// successful load. Construct it exactly once at process start and pass it by
// reference — there is no package-level cached instance.
type Config struct {
	// Backend selects the vector-store technology.
	Backend Backend

	// HistoryDBPath is the filesystem path of the SQLite memory-history store.
	HistoryDBPath string

	// Qdrant connection settings, used when Backend is "qdrant".
	QdrantHost string
	QdrantPort int

	// Neo4j connection settings. The graph store always uses these; the
	// vector store additionally uses them when Backend is "neo4j".
	Neo4jHost     string
	Neo4jPort     int
	Neo4jUsername string
	Neo4jPassword string
	Neo4jDatabase string

	// PostgreSQL connection settings, used when Backend is "pgvector".
	PostgresHost           string
	PostgresPort           int
	PostgresUser           string
	PostgresPassword       string
	PostgresDatabase       string
	PostgresCollectionName string

	// HTTP server settings.
	ServerHost     string
	ServerPort     int
	MemoryLogLevel LogLevel

	// OpenAI settings. The API key is shared by the language model and the
	// embedder; the model names are configured independently.
	OpenAIAPIKey         string
	OpenAIModel          string
	OpenAIEmbeddingModel string
}

// placeholderAPIKey is the shipped default OpenAI key. A deployment must
// replace it before validation passes, unless the development bypass applies.
const placeholderAPIKey = "your_openai_api_key"

// placeholderNeo4jPasswords are the Neo4j passwords treated as shipped
// defaults. The empty string counts as a placeholder: an unset password is no
// more production-ready than the default one.
var placeholderNeo4jPasswords = []string{"password", "mem0graph", ""}

// placeholderAPIKeys are the OpenAI API keys treated as shipped defaults.
var placeholderAPIKeys = []string{placeholderAPIKey, "sk-proj-"}

// UsingDevelopmentDefaults reports whether the secret-bearing fields still
// hold their shipped placeholder values. When true, [Validate] skips all
// cross-field checks and only warns — an escape hatch for local development
// that must never widen beyond this exact predicate.
func (c *Config) UsingDevelopmentDefaults() bool {
	devPassword := false
	for _, p := range placeholderNeo4jPasswords {
		if c.Neo4jPassword == p {
			devPassword = true
			break
		}
	}
	devKey := false
	for _, k := range placeholderAPIKeys {
		if c.OpenAIAPIKey == k {
			devKey = true
			break
		}
	}
	return devPassword && devKey
}

// warnDevelopmentDefaults emits the development-defaults warning. Kept
// separate from [Config.UsingDevelopmentDefaults] so the predicate stays
// side-effect free and independently testable.
func warnDevelopmentDefaults() {
	slog.Warn("using development defaults — set secure values for production")
}

// validPort reports whether p is a usable TCP port. The bounds are inclusive:
// 1 and 65535 are valid, 0 and 65536 are not.
func validPort(p int) bool {
	return p >= 1 && p <= 65535
}
