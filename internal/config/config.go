// Package config loads slopbot configuration from the environment.
package config

import (
	"errors"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// LLM provider identifiers.
const (
	ProviderGoogle    = "google"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

// Config holds all configuration values.
type Config struct {
	// Discord
	DiscordToken string

	// Agent identity
	AgentName string

	// Postgres connection
	PostgresURL string

	// Memgraph/Neo4j (Bolt) connection
	GraphURL  string
	GraphUser string
	GraphPass string

	// LLM
	LLMProvider     string
	LLMModel        string
	GoogleAPIKey    string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	OllamaHost      string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from a .env file (if present) and the process
// environment. Graph defaults match a local Memgraph instance.
func Load() Config {
	// Missing .env is fine; real deployments use the process environment.
	_ = godotenv.Load()

	return Config{
		DiscordToken: strings.TrimSpace(os.Getenv("DISCORD_TOKEN")),

		AgentName: getEnv("SLOPBOT_AGENT_NAME", "slopbot"),

		PostgresURL: os.Getenv("POSTGRES_URL"),

		GraphURL:  getEnv("MEMGRAPH_URL", "bolt://localhost:7687"),
		GraphUser: getEnv("MEMGRAPH_USER", "memgraph"),
		GraphPass: getEnv("MEMGRAPH_PASSWORD", "memgraph"),

		LLMProvider:     getEnv("SLOPBOT_LLM_PROVIDER", ProviderGoogle),
		LLMModel:        getEnv("SLOPBOT_LLM_MODEL", "gemini-2.5-flash"),
		GoogleAPIKey:    os.Getenv("GOOGLE_API_KEY"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		OllamaHost:      getEnv("OLLAMA_HOST", "http://localhost:11434"),

		LogFile:  getEnv("SLOPBOT_LOG_FILE", "/tmp/slopbot.log"),
		LogLevel: parseLogLevel(getEnv("SLOPBOT_LOG_LEVEL", "INFO")),
	}
}

// Validate checks that the credentials the bot cannot run without are set.
func (c Config) Validate() error {
	var errs []error
	if c.DiscordToken == "" {
		errs = append(errs, errors.New("DISCORD_TOKEN is missing from environment variables"))
	}
	if c.PostgresURL == "" {
		errs = append(errs, errors.New("POSTGRES_URL is missing from environment variables"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
