// Package config provides YAML-based configuration for ragmm.
// Configuration is loaded with a layered precedence: defaults → YAML file → env vars.
// Environment variables always win, so existing workflows are unaffected.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. RAGMM_CONFIG environment variable
//  3. ~/.ragmm/config.yaml
//  4. ./ragmm.yaml
//
// If no file is found the system runs entirely from env vars.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type Config struct {
	// LLM configures the chat completion provider for the agent.
	LLM LLMConfig `yaml:"llm"`

	// Embedding configures the Jina embedding API client.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Qdrant configures the Qdrant single-vector store connection.
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Storage configures the local stores: multi-vectors, document
	// metadata, and raw files.
	Storage StorageConfig `yaml:"storage"`

	// MCP configures the external MCP tool server.
	MCP MCPConfig `yaml:"mcp"`

	// Agent configures the tool-calling loop.
	Agent AgentConfig `yaml:"agent"`

	// Retrieval configures the two-stage retrieval pipeline defaults.
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig holds chat completion provider settings.
type LLMConfig struct {
	// Provider selects the backend: groq, openai, anthropic.
	Provider string `yaml:"provider"`
	// Model is the model name (e.g. "llama-3.3-70b-versatile").
	Model string `yaml:"model"`
	// MaxTokens is the maximum number of tokens in a response.
	MaxTokens int `yaml:"max_tokens"`
	// APIKey is the provider credential. Prefer the provider's native
	// env var (GROQ_API_KEY, OPENAI_API_KEY, ANTHROPIC_API_KEY).
	APIKey string `yaml:"api_key"`
}

// EmbeddingConfig holds Jina embedding API settings.
type EmbeddingConfig struct {
	// APIKey is the Jina API key. Prefer env var JINA_API_KEY.
	APIKey string `yaml:"api_key"`
	// APIURL overrides the embeddings endpoint.
	APIURL string `yaml:"api_url"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// RateLimit is the maximum requests per second.
	RateLimit float64 `yaml:"rate_limit"`
	// MaxAttempts is the total attempts per request including retries.
	MaxAttempts int `yaml:"max_attempts"`
}

// QdrantConfig holds Qdrant vector store settings.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`
	// Port is the Qdrant gRPC port.
	Port int `yaml:"port"`
	// Collection is the Qdrant collection name.
	Collection string `yaml:"collection"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	// TLS enables TLS for the Qdrant connection.
	TLS bool `yaml:"tls"`
	// VectorSize is the dense vector dimension of the collection.
	VectorSize int `yaml:"vector_size"`
}

// StorageConfig holds local storage paths.
type StorageConfig struct {
	// MultiVectorDB is the SQLite database path for multi-vectors.
	MultiVectorDB string `yaml:"multivector_db"`
	// DocumentDB is the SQLite database path for document metadata.
	DocumentDB string `yaml:"document_db"`
	// DocumentsDir is the directory for raw uploaded documents.
	DocumentsDir string `yaml:"documents_dir"`
	// ChunksDir is the directory for page chunk files.
	ChunksDir string `yaml:"chunks_dir"`
}

// MCPConfig holds external MCP tool server settings.
type MCPConfig struct {
	// ServerCommand is the stdio server invocation, e.g. "python mcp_server.py".
	// Empty disables MCP tools.
	ServerCommand string `yaml:"server_command"`
	// Tools optionally restricts which server tools are registered.
	Tools []string `yaml:"tools"`
}

// AgentConfig holds tool-calling loop settings.
type AgentConfig struct {
	// MaxIterations bounds the tool-calling loop per query.
	MaxIterations int `yaml:"max_iterations"`
}

// RetrievalConfig holds retrieval pipeline defaults.
type RetrievalConfig struct {
	// TopKANN is the candidate count fetched from the ANN index.
	TopKANN int `yaml:"top_k_ann"`
	// TopKRerank is the result count kept after reranking.
	TopKRerank int `yaml:"top_k_rerank"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host"`
	// Port is the TCP port.
	Port int `yaml:"port"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"LLM_PROVIDER", func(c *Config) string { return c.LLM.Provider }},
	{"LLM_MODEL", func(c *Config) string { return c.LLM.Model }},
	{"LLM_MAX_TOKENS", func(c *Config) string { return intStr(c.LLM.MaxTokens) }},
	{"LLM_API_KEY", func(c *Config) string { return c.LLM.APIKey }},
	{"JINA_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"JINA_API_URL", func(c *Config) string { return c.Embedding.APIURL }},
	{"JINA_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"JINA_RATE_LIMIT", func(c *Config) string { return floatStr(c.Embedding.RateLimit) }},
	{"JINA_MAX_ATTEMPTS", func(c *Config) string { return intStr(c.Embedding.MaxAttempts) }},
	{"QDRANT_HOST", func(c *Config) string { return c.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Qdrant.Port) }},
	{"QDRANT_COLLECTION", func(c *Config) string { return c.Qdrant.Collection }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Qdrant.TLS) }},
	{"QDRANT_VECTOR_SIZE", func(c *Config) string { return intStr(c.Qdrant.VectorSize) }},
	{"RAGMM_MULTIVECTOR_DB", func(c *Config) string { return c.Storage.MultiVectorDB }},
	{"RAGMM_DOCUMENT_DB", func(c *Config) string { return c.Storage.DocumentDB }},
	{"RAGMM_DOCUMENTS_DIR", func(c *Config) string { return c.Storage.DocumentsDir }},
	{"RAGMM_CHUNKS_DIR", func(c *Config) string { return c.Storage.ChunksDir }},
	{"MCP_SERVER_COMMAND", func(c *Config) string { return c.MCP.ServerCommand }},
	{"MCP_TOOLS", func(c *Config) string { return strings.Join(c.MCP.Tools, ",") }},
	{"AGENT_MAX_ITERATIONS", func(c *Config) string { return intStr(c.Agent.MaxIterations) }},
	{"RETRIEVAL_TOP_K_ANN", func(c *Config) string { return intStr(c.Retrieval.TopKANN) }},
	{"RETRIEVAL_TOP_K_RERANK", func(c *Config) string { return intStr(c.Retrieval.TopKRerank) }},
	{"SERVER_HOST", func(c *Config) string { return c.Server.Host }},
	{"SERVER_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue // env var already set — do not override
		}
		os.Setenv(m.envKey, yamlVal)
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// FromEnv builds a fully defaulted Config from the environment. Call
// after [Load] so YAML values have been applied.
func FromEnv() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:  getEnvOrDefault("LLM_PROVIDER", "groq"),
			Model:     getEnvOrDefault("LLM_MODEL", "llama-3.3-70b-versatile"),
			MaxTokens: getEnvInt("LLM_MAX_TOKENS", 4096),
			APIKey:    os.Getenv("LLM_API_KEY"),
		},
		Embedding: EmbeddingConfig{
			APIKey:      os.Getenv("JINA_API_KEY"),
			APIURL:      os.Getenv("JINA_API_URL"),
			Model:       os.Getenv("JINA_MODEL"),
			RateLimit:   getEnvFloat("JINA_RATE_LIMIT", 10),
			MaxAttempts: getEnvInt("JINA_MAX_ATTEMPTS", 3),
		},
		Qdrant: QdrantConfig{
			Host:       getEnvOrDefault("QDRANT_HOST", "localhost"),
			Port:       getEnvInt("QDRANT_PORT", 6334),
			Collection: getEnvOrDefault("QDRANT_COLLECTION", "ragmm_chunks"),
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			TLS:        os.Getenv("QDRANT_TLS") == "true",
			VectorSize: getEnvInt("QDRANT_VECTOR_SIZE", 2048),
		},
		Storage: StorageConfig{
			MultiVectorDB: getEnvOrDefault("RAGMM_MULTIVECTOR_DB", defaultDataPath("multivectors.db")),
			DocumentDB:    getEnvOrDefault("RAGMM_DOCUMENT_DB", defaultDataPath("documents.db")),
			DocumentsDir:  getEnvOrDefault("RAGMM_DOCUMENTS_DIR", defaultDataPath("documents")),
			ChunksDir:     getEnvOrDefault("RAGMM_CHUNKS_DIR", defaultDataPath("chunks")),
		},
		MCP: MCPConfig{
			ServerCommand: os.Getenv("MCP_SERVER_COMMAND"),
			Tools:         splitList(os.Getenv("MCP_TOOLS")),
		},
		Agent: AgentConfig{
			MaxIterations: getEnvInt("AGENT_MAX_ITERATIONS", 10),
		},
		Retrieval: RetrievalConfig{
			TopKANN:    getEnvInt("RETRIEVAL_TOP_K_ANN", 10),
			TopKRerank: getEnvInt("RETRIEVAL_TOP_K_RERANK", 5),
		},
		Server: ServerConfig{
			Host: getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			Port: getEnvInt("SERVER_PORT", 8080),
		},
		Logging: LoggingConfig{
			Level:  os.Getenv("LOG_LEVEL"),
			Format: os.Getenv("LOG_FORMAT"),
		},
	}
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("RAGMM_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".ragmm", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("ragmm.yaml"); err == nil {
		return "ragmm.yaml"
	}

	return ""
}

// defaultDataPath resolves a filename under ~/.ragmm, falling back to
// the working directory when the home directory is unknown.
func defaultDataPath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	return filepath.Join(home, ".ragmm", name)
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvFloat returns the float64 value of the named environment variable,
// or fallback if the variable is unset, empty, or not parseable.
func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

// floatStr converts a float64 to string, returning "" for zero values.
func floatStr(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// splitList parses a comma-separated env value into a slice, trimming
// whitespace and dropping empty entries.
func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
