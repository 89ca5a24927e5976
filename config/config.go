// Package config loads the assistant's configuration from environment
// variables and validates it before anything is wired together.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Provider names accepted by JARVAS_PROVIDER.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderClaude = "claude"
	ProviderGemini = "gemini"
)

// Config holds everything the assembled assistant needs.
type Config struct {
	// Model provider
	Provider    string
	Model       string
	APIKey      string
	OllamaURL   string
	Temperature float64

	// Search
	SearXNGURL     string
	SearchResults  int
	SearchRetries  int
	SearchCacheTTL time.Duration

	// Prompt building
	AssistantName string
	MaxTokens     int
	// MemoryTriggerTerms overrides the Portuguese trigger-term list that
	// gates memory lookups; empty keeps the built-in defaults.
	MemoryTriggerTerms []string

	// Session
	SecondPassTimeout time.Duration

	// Cache backend; empty RedisAddr keeps the cache in-process.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Memory store backend: inmemory, redis, postgres or mongo.
	MemoryBackend string
	// Embeddings enable similarity search on the postgres memory store;
	// an empty API key keeps the text-matching path.
	EmbeddingsAPIKey    string
	EmbeddingsModel     string
	EmbeddingsDimension int

	// Telemetry
	Environment      string
	DisableTelemetry bool
}

// FromEnv loads configuration with sensible single-host defaults.
func FromEnv() *Config {
	return &Config{
		Provider:    getEnv("JARVAS_PROVIDER", ProviderOllama),
		Model:       getEnv("JARVAS_MODEL", "llama3.1"),
		APIKey:      getEnv("JARVAS_API_KEY", ""),
		OllamaURL:   getEnv("OLLAMA_URL", "http://localhost:11434"),
		Temperature: getEnvFloat("JARVAS_TEMPERATURE", 0.2),

		SearXNGURL:     getEnv("SEARXNG_URL", "http://localhost:8888"),
		SearchResults:  getEnvInt("JARVAS_SEARCH_RESULTS", 5),
		SearchRetries:  getEnvInt("JARVAS_SEARCH_RETRIES", 3),
		SearchCacheTTL: getEnvDuration("JARVAS_SEARCH_CACHE_TTL", 5*time.Minute),

		AssistantName:      getEnv("JARVAS_NAME", "Jarvas"),
		MaxTokens:          getEnvInt("JARVAS_MAX_TOKENS", 3000),
		MemoryTriggerTerms: getEnvList("JARVAS_MEMORY_TRIGGERS"),

		SecondPassTimeout: getEnvDuration("JARVAS_SECOND_PASS_TIMEOUT", 60*time.Second),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		MemoryBackend:       getEnv("JARVAS_MEMORY_BACKEND", "inmemory"),
		EmbeddingsAPIKey:    getEnv("JARVAS_EMBEDDINGS_API_KEY", ""),
		EmbeddingsModel:     getEnv("JARVAS_EMBEDDINGS_MODEL", "text-embedding-3-small"),
		EmbeddingsDimension: getEnvInt("JARVAS_EMBEDDINGS_DIM", 1536),

		Environment:      getEnv("JARVAS_ENV", "development"),
		DisableTelemetry: getEnvBool("JARVAS_DISABLE_TELEMETRY", false),
	}
}

// Validate checks the configuration for a runnable assistant.
func (c *Config) Validate() error {
	v := NewValidator()

	v.ValidateOneOf("provider", c.Provider, ProviderOllama, ProviderOpenAI, ProviderClaude, ProviderGemini)
	v.RequireNonEmpty("model", c.Model)
	v.ValidateFloatRange("temperature", c.Temperature, 0.0, 2.0)
	if c.Provider != ProviderOllama {
		v.RequireNonEmpty("apiKey", c.APIKey)
	} else {
		v.ValidateURL("ollamaURL", c.OllamaURL)
	}

	v.ValidateURL("searxngURL", c.SearXNGURL)
	v.RequirePositive("searchResults", c.SearchResults)
	v.RequirePositive("searchRetries", c.SearchRetries)

	v.RequireNonEmpty("assistantName", c.AssistantName)
	v.RequirePositive("maxTokens", c.MaxTokens)
	v.ValidateOneOf("memoryBackend", c.MemoryBackend, "inmemory", "redis", "postgres", "mongo")

	return v.Error()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
