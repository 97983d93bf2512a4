// Package config reads service settings from the environment.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DatabaseURL string
	AutoMigrate bool

	RedisURL       string
	SchemaCacheTTL time.Duration

	LLMProvider     string
	DefaultModel    string
	GroqAPIKey      string
	GroqBaseURL     string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	OllamaURL       string
	LLMTimeout      time.Duration
	EmbeddingModel  string

	WorkflowEngine string

	LogLevel  string
	LogFormat string

	SentryDSN         string
	SentryEnvironment string
	CORSOrigins       []string

	GoogleCredentialsFile string
}

// Load reads .env files when present, then the environment. Existing
// environment variables win over .env values.
func Load(files ...string) Config {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		_ = godotenv.Load(f)
	}

	return Config{
		Port:        getEnv("PORT", "8000"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		AutoMigrate: getBool("AUTO_MIGRATE", false),

		RedisURL:       getEnv("REDIS_URL", ""),
		SchemaCacheTTL: getDuration("SCHEMA_CACHE_TTL", 10*time.Minute),

		LLMProvider:     getEnv("LLM_PROVIDER", "groq"),
		DefaultModel:    getEnv("DEFAULT_MODEL", "gemma2-9b-it"),
		GroqAPIKey:      getEnv("GROQ_API_KEY", ""),
		GroqBaseURL:     getEnv("GROQ_BASE_URL", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OllamaURL:       getEnv("OLLAMA_URL", "http://localhost:11434"),
		LLMTimeout:      getDuration("LLM_TIMEOUT", 60*time.Second),
		EmbeddingModel:  getEnv("EMBEDDING_MODEL", "nomic-embed-text"),

		WorkflowEngine: getEnv("WORKFLOW_ENGINE", "graph"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		SentryDSN:         getEnv("SENTRY_DSN", ""),
		SentryEnvironment: getEnv("SENTRY_ENVIRONMENT", "development"),
		CORSOrigins:       getList("CORS_ORIGINS", []string{"*"}),

		GoogleCredentialsFile: getEnv("GOOGLE_CREDENTIALS_FILE", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(defaultValue)))
	if err != nil {
		return defaultValue
	}
	return v
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	// bare numbers are seconds
	if n, err := strconv.Atoi(raw); err == nil {
		return time.Duration(n) * time.Second
	}
	slog.Warn("ignoring invalid duration", "key", key, "value", raw)
	return defaultValue
}

func getList(key string, defaultValue []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
