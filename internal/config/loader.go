package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Load builds a [Config] from the process environment. If envFile is
// non-empty and exists, it is loaded first with its values overriding the
// inherited environment, matching the behaviour of the usual .env tooling.
// A missing envFile is not an error — deployments commonly configure
// everything through real environment variables.
//
// Load validates the result; a non-nil error means the configuration must not
// be used and the process should exit.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Overload(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: load env file %q: %w", envFile, err)
		}
	}
	return LoadEnviron(os.Environ())
}

// LoadEnviron builds a [Config] from an explicit environment in the
// "KEY=value" form of [os.Environ]. Useful in tests where the process
// environment should not be touched.
//
// Keys are matched case-insensitively and unrecognised keys are ignored.
// Field-level coercion runs first; cross-field validation ([Validate]) runs
// only once every field has coerced successfully.
func LoadEnviron(environ []string) (*Config, error) {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		env[strings.ToUpper(k)] = v
	}

	cfg := defaults()

	var errs []error
	coerce := func(fn func() error) {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}

	// ── Field-level coercion ─────────────────────────────────────────────
	if s, ok := env["BACKEND"]; ok {
		coerce(func() (err error) {
			cfg.Backend, err = ParseBackend(s)
			return err
		})
	}
	if s, ok := env["MEMORY_LOG_LEVEL"]; ok {
		coerce(func() (err error) {
			cfg.MemoryLogLevel, err = ParseLogLevel(s)
			return err
		})
	}

	setString(env, "HISTORY_DB_PATH", &cfg.HistoryDBPath)
	setString(env, "QDRANT_HOST", &cfg.QdrantHost)
	setString(env, "NEO4J_HOST", &cfg.Neo4jHost)
	setString(env, "NEO4J_USERNAME", &cfg.Neo4jUsername)
	setString(env, "NEO4J_PASSWORD", &cfg.Neo4jPassword)
	setString(env, "NEO4J_DATABASE", &cfg.Neo4jDatabase)
	setString(env, "POSTGRES_HOST", &cfg.PostgresHost)
	setString(env, "POSTGRES_USER", &cfg.PostgresUser)
	setString(env, "POSTGRES_PASSWORD", &cfg.PostgresPassword)
	setString(env, "POSTGRES_DATABASE", &cfg.PostgresDatabase)
	setString(env, "POSTGRES_COLLECTION_NAME", &cfg.PostgresCollectionName)
	setString(env, "SERVER_HOST", &cfg.ServerHost)
	setString(env, "OPENAI_API_KEY", &cfg.OpenAIAPIKey)
	setString(env, "OPENAI_MODEL", &cfg.OpenAIModel)
	setString(env, "OPENAI_EMBEDDING_MODEL", &cfg.OpenAIEmbeddingModel)

	coerce(func() error { return setInt(env, "QDRANT_PORT", &cfg.QdrantPort) })
	coerce(func() error { return setInt(env, "NEO4J_PORT", &cfg.Neo4jPort) })
	coerce(func() error { return setInt(env, "POSTGRES_PORT", &cfg.PostgresPort) })
	coerce(func() error { return setInt(env, "SERVER_PORT", &cfg.ServerPort) })

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	// ── Cross-field validation ───────────────────────────────────────────
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaults returns a Config populated with the shipped default values.
func defaults() *Config {
	return &Config{
		Backend:       BackendPGVector,
		HistoryDBPath: "memory.db",

		QdrantHost: "localhost",
		QdrantPort: 6333,

		Neo4jHost:     "localhost",
		Neo4jPort:     7687,
		Neo4jUsername: "neo4j",
		Neo4jPassword: "password",
		Neo4jDatabase: "neo4j",

		PostgresHost:           "postgres",
		PostgresPort:           5432,
		PostgresUser:           "postgres",
		PostgresPassword:       "postgres",
		PostgresDatabase:       "postgres",
		PostgresCollectionName: "memories",

		ServerHost:     "localhost",
		ServerPort:     8000,
		MemoryLogLevel: LogInfo,

		OpenAIAPIKey:         placeholderAPIKey,
		OpenAIModel:          "gpt-4o-mini",
		OpenAIEmbeddingModel: "text-embedding-3-small",
	}
}

// setString assigns env[key] to *dst when the key is present.
func setString(env map[string]string, key string, dst *string) {
	if v, ok := env[key]; ok {
		*dst = v
	}
}

// setInt parses env[key] as an integer into *dst when the key is present.
// The returned error names the field and the offending value.
func setInt(env map[string]string, key string, dst *int) error {
	v, ok := env[key]
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s must be an integer, got '%s'", strings.ToLower(key), v)
	}
	*dst = n
	return nil
}

// Validate checks the cross-field invariants of cfg. It must only be called
// after every field has passed coercion; in particular cfg.Backend is assumed
// to be a recognised value, making the backend branch exhaustive.
//
// When [Config.UsingDevelopmentDefaults] holds, Validate warns and returns
// nil without running any further check. All failures found otherwise are
// joined into a single error.
func Validate(cfg *Config) error {
	if cfg.UsingDevelopmentDefaults() {
		warnDevelopmentDefaults()
		return nil
	}

	var errs []error

	switch cfg.Backend {
	case BackendPGVector:
		if cfg.PostgresHost == "" {
			errs = append(errs, errors.New("postgres_host is required when backend is 'pgvector'"))
		}
		if cfg.PostgresUser == "" {
			errs = append(errs, errors.New("postgres_user is required when backend is 'pgvector'"))
		}
		if !validPort(cfg.PostgresPort) {
			errs = append(errs, fmt.Errorf("postgres_port must be a valid port number (1-65535), got %d", cfg.PostgresPort))
		}

	case BackendQdrant:
		if cfg.QdrantHost == "" {
			errs = append(errs, errors.New("qdrant_host is required when backend is 'qdrant'"))
		}
		if !validPort(cfg.QdrantPort) {
			errs = append(errs, fmt.Errorf("qdrant_port must be a valid port number (1-65535), got %d", cfg.QdrantPort))
		}

	case BackendNeo4j:
		if cfg.Neo4jHost == "" {
			errs = append(errs, errors.New("neo4j_host is required when backend is 'neo4j'"))
		}
		if cfg.Neo4jUsername == "" {
			errs = append(errs, errors.New("neo4j_username is required when backend is 'neo4j'"))
		}
		if cfg.Neo4jDatabase == "" {
			errs = append(errs, errors.New("neo4j_database is required when backend is 'neo4j'"))
		}
		if !validPort(cfg.Neo4jPort) {
			errs = append(errs, fmt.Errorf("neo4j_port must be a valid port number (1-65535), got %d", cfg.Neo4jPort))
		}

	default:
		// Unreachable after coercion, but rejected for real rather than assumed.
		errs = append(errs, fmt.Errorf("backend must be one of %v, got '%s'", Backends, cfg.Backend))
	}

	if cfg.OpenAIAPIKey == "" || cfg.OpenAIAPIKey == placeholderAPIKey {
		errs = append(errs, errors.New("openai_api_key must be set to a valid OpenAI API key"))
	}

	return errors.Join(errs...)
}
