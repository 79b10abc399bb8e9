package clausegraph

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/brunobiangulo/clausegraph/analysis"
	"github.com/brunobiangulo/clausegraph/cache"
	"github.com/brunobiangulo/clausegraph/cypher"
	"github.com/brunobiangulo/clausegraph/graphdb"
	"github.com/brunobiangulo/clausegraph/llm"
	"github.com/brunobiangulo/clausegraph/retrieval"
)

// Config holds all configuration for the clausegraph engine.
type Config struct {
	// LLM providers
	Chat      LLMConfig `json:"chat" yaml:"chat"`
	Embedding LLMConfig `json:"embedding" yaml:"embedding"`

	Generation cypher.Config   `json:"generation" yaml:"generation"`
	Analysis   analysis.Config `json:"analysis" yaml:"analysis"`

	// CatalogPath replaces the embedded schema catalog when set.
	CatalogPath string `json:"catalog_path" yaml:"catalog_path"`
	// QueriesPath replaces the embedded showcase queries when set.
	QueriesPath string `json:"queries_path" yaml:"queries_path"`

	Neo4j graphdb.Config `json:"neo4j" yaml:"neo4j"`

	// DatabaseURL points similarity search at a Postgres/pgvector database.
	// When empty the local SQLite mirror is searched instead.
	DatabaseURL string `json:"database_url" yaml:"database_url"`

	// DBPath is the SQLite file holding the contract mirror and the query
	// log. Empty disables both.
	DBPath       string `json:"db_path" yaml:"db_path"`
	EmbeddingDim int    `json:"embedding_dim" yaml:"embedding_dim"`

	Retrieval    retrieval.Options `json:"retrieval" yaml:"retrieval"`
	WeightVector float64           `json:"weight_vector" yaml:"weight_vector"`
	WeightFTS    float64           `json:"weight_fts" yaml:"weight_fts"`

	Cache  CacheConfig  `json:"cache" yaml:"cache"`
	Server ServerConfig `json:"server" yaml:"server"`
}

// LLMConfig configures a single LLM provider endpoint.
type LLMConfig struct {
	Provider string `json:"provider" yaml:"provider"` // openai, groq, ollama, lmstudio, openrouter, xai, gemini, genai, custom
	Model    string `json:"model" yaml:"model"`
	BaseURL  string `json:"base_url" yaml:"base_url"`
	APIKey   string `json:"api_key" yaml:"api_key"`
}

func (c LLMConfig) provider() llm.Config {
	return llm.Config{
		Provider: c.Provider,
		Model:    c.Model,
		BaseURL:  c.BaseURL,
		APIKey:   c.APIKey,
	}
}

// CacheConfig configures where showcase envelopes are persisted.
type CacheConfig struct {
	// Dir holds query-<id>.json files. Ignored when S3 is set.
	Dir string `json:"dir" yaml:"dir"`
	// MemoryEntries sizes the in-memory LRU in front of the backing store.
	// Zero disables it.
	MemoryEntries int             `json:"memory_entries" yaml:"memory_entries"`
	S3            *cache.S3Config `json:"s3,omitempty" yaml:"s3,omitempty"`
}

// ServerConfig configures the HTTP boundary.
type ServerConfig struct {
	Addr           string `json:"addr" yaml:"addr"`
	APIKey         string `json:"api_key" yaml:"api_key"`
	CORSOrigins    string `json:"cors_origins" yaml:"cors_origins"`
	RequestTimeout int    `json:"request_timeout_seconds" yaml:"request_timeout_seconds"`
}

// DefaultConfig returns a Config for the hosted OpenAI models the contract
// graph was built with. Neo4j credentials come from the environment.
func DefaultConfig() Config {
	return Config{
		Chat: LLMConfig{
			Provider: "openai",
			Model:    "gpt-4o",
		},
		Embedding: LLMConfig{
			Provider: "openai",
			Model:    "text-embedding-3-small",
		},
		Generation:   cypher.DefaultConfig(),
		Analysis:     analysis.DefaultConfig(),
		EmbeddingDim: 1536,
		Retrieval:    retrieval.DefaultOptions(),
		WeightVector: 1.0,
		WeightFTS:    1.0,
		Cache: CacheConfig{
			Dir:           "cache",
			MemoryEntries: 32,
		},
		Server: ServerConfig{
			Addr:           ":8080",
			RequestTimeout: 60,
		},
	}
}

// LoadConfig reads a YAML or JSON file (by extension) over DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("%w: parsing %s: %v", ErrInvalidConfig, path, err)
	}
	return cfg, nil
}

// DefaultEnvFiles are loaded by ApplyEnv when no files are given. Earlier
// files win; variables already in the environment win over all of them.
var DefaultEnvFiles = []string{".env.local", ".env"}

// ApplyEnv loads env files with godotenv and overrides cfg from the
// environment. Missing env files are skipped.
func (c *Config) ApplyEnv(files ...string) error {
	if len(files) == 0 {
		files = DefaultEnvFiles
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}

	setString(&c.DBPath, "CLAUSEGRAPH_DB_PATH")
	setString(&c.CatalogPath, "CLAUSEGRAPH_CATALOG_PATH")
	setString(&c.QueriesPath, "CLAUSEGRAPH_QUERIES_PATH")
	setString(&c.Cache.Dir, "CLAUSEGRAPH_CACHE_DIR")

	setString(&c.Chat.Provider, "CLAUSEGRAPH_CHAT_PROVIDER")
	setString(&c.Chat.Model, "CLAUSEGRAPH_CHAT_MODEL")
	setString(&c.Chat.BaseURL, "CLAUSEGRAPH_CHAT_BASE_URL")
	setString(&c.Chat.APIKey, "CLAUSEGRAPH_CHAT_API_KEY")
	setString(&c.Embedding.Provider, "CLAUSEGRAPH_EMBED_PROVIDER")
	setString(&c.Embedding.Model, "CLAUSEGRAPH_EMBED_MODEL")
	setString(&c.Embedding.BaseURL, "CLAUSEGRAPH_EMBED_BASE_URL")
	setString(&c.Embedding.APIKey, "CLAUSEGRAPH_EMBED_API_KEY")

	setString(&c.Server.Addr, "CLAUSEGRAPH_ADDR")
	setString(&c.Server.APIKey, "CLAUSEGRAPH_API_KEY")
	setString(&c.Server.CORSOrigins, "CLAUSEGRAPH_CORS_ORIGINS")

	setString(&c.Neo4j.URI, "NEO4J_URI")
	setString(&c.Neo4j.Username, "NEO4J_USERNAME")
	setString(&c.Neo4j.Password, "NEO4J_PASSWORD")
	setString(&c.Neo4j.Database, "NEO4J_DATABASE")

	setString(&c.DatabaseURL, "DATABASE_URL")

	if v := os.Getenv("CLAUSEGRAPH_S3_BUCKET"); v != "" {
		if c.Cache.S3 == nil {
			c.Cache.S3 = &cache.S3Config{}
		}
		c.Cache.S3.Bucket = v
	}
	if c.Cache.S3 != nil {
		setString(&c.Cache.S3.Endpoint, "CLAUSEGRAPH_S3_ENDPOINT")
		setString(&c.Cache.S3.AccessKey, "CLAUSEGRAPH_S3_ACCESS_KEY")
		setString(&c.Cache.S3.SecretKey, "CLAUSEGRAPH_S3_SECRET_KEY")
		setString(&c.Cache.S3.Region, "CLAUSEGRAPH_S3_REGION")
		if v, err := strconv.ParseBool(os.Getenv("CLAUSEGRAPH_S3_USE_SSL")); err == nil {
			c.Cache.S3.UseSSL = v
		}
	}

	// Fallback: well-known provider env vars for API keys.
	c.Chat.APIKey = providerKey(c.Chat)
	c.Embedding.APIKey = providerKey(c.Embedding)
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func providerKey(c LLMConfig) string {
	if c.APIKey != "" {
		return c.APIKey
	}
	switch c.Provider {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "groq":
		return os.Getenv("GROQ_API_KEY")
	case "gemini", "genai":
		return os.Getenv("GEMINI_API_KEY")
	}
	return ""
}

// Validate checks value ranges. Missing credentials are not an error here;
// the collaborator that needs them reports itself unconfigured.
func (c *Config) Validate() error {
	var errs []string
	if c.Chat.Provider == "" {
		errs = append(errs, "chat.provider is required")
	}
	if c.DBPath != "" && c.EmbeddingDim <= 0 {
		errs = append(errs, "embedding_dim must be positive")
	}
	if c.Retrieval.Threshold < 0 || c.Retrieval.Threshold > 1 {
		errs = append(errs, "retrieval.threshold must be within [0, 1]")
	}
	if c.Retrieval.Count < 0 {
		errs = append(errs, "retrieval.count must not be negative")
	}
	if c.WeightVector < 0 || c.WeightFTS < 0 {
		errs = append(errs, "retrieval weights must not be negative")
	}
	if c.Generation.MaxTokens < 0 || c.Analysis.MaxTokens < 0 {
		errs = append(errs, "max_tokens must not be negative")
	}
	if c.Cache.MemoryEntries < 0 {
		errs = append(errs, "cache.memory_entries must not be negative")
	}
	if c.Server.RequestTimeout < 0 {
		errs = append(errs, "server.request_timeout_seconds must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}
