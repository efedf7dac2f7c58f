package config

import (
	"os"
	"strconv"

	"threadlens/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Server     ServerConfig
	Storage    StorageConfig
	Reddit     RedditConfig
	AI         AIConfig
	Collection CollectionConfig
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port    string
	GinMode string
}

// StorageConfig holds database and export paths
type StorageConfig struct {
	DBPath    string
	ExportDir string
}

// RedditConfig holds Reddit API access settings
type RedditConfig struct {
	ClientID     string
	ClientSecret string
	UserAgent    string
}

// AIConfig holds LLM provider settings
type AIConfig struct {
	Provider     string // "openai" or "anthropic"
	OpenAIKey    string
	AnthropicKey string
	Model        string
	Temperature  float64
	MaxTokens    int
}

// CollectionConfig holds discovery defaults and hard limits
type CollectionConfig struct {
	DefaultMaxThreads        int
	MaxThreadsLimit          int
	DefaultCommentsPerThread int
	CommentsPerThreadLimit   int
	TotalCommentsCap         int
	ScoringBatchSize         int
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:    getEnvOrDefault("PORT", "8080"),
			GinMode: getEnvOrDefault("GIN_MODE", "debug"),
		},
		Storage: StorageConfig{
			DBPath:    getEnvOrDefault("DB_PATH", "data/research.db"),
			ExportDir: getEnvOrDefault("EXPORT_DIR", "data/exports"),
		},
		Reddit: RedditConfig{
			ClientID:     os.Getenv("REDDIT_CLIENT_ID"),
			ClientSecret: os.Getenv("REDDIT_CLIENT_SECRET"),
			UserAgent:    getEnvOrDefault("REDDIT_USER_AGENT", "threadlens/1.0"),
		},
		AI: AIConfig{
			Provider:     getEnvOrDefault("LLM_PROVIDER", "openai"),
			OpenAIKey:    os.Getenv("OPENAI_API_KEY"),
			AnthropicKey: os.Getenv("ANTHROPIC_API_KEY"),
			Model:        getEnvOrDefault("LLM_MODEL", "gpt-4o-mini"),
			Temperature:  getEnvFloatOrDefault("LLM_TEMPERATURE", 0.0),
			MaxTokens:    getEnvIntOrDefault("LLM_MAX_TOKENS", 4000),
		},
		Collection: CollectionConfig{
			DefaultMaxThreads:        getEnvIntOrDefault("DEFAULT_MAX_THREADS", 15),
			MaxThreadsLimit:          getEnvIntOrDefault("MAX_THREADS_LIMIT", 25),
			DefaultCommentsPerThread: getEnvIntOrDefault("DEFAULT_MAX_COMMENTS", 100),
			CommentsPerThreadLimit:   getEnvIntOrDefault("MAX_COMMENTS_LIMIT", 200),
			TotalCommentsCap:         getEnvIntOrDefault("TOTAL_COMMENTS_CAP", 750),
			ScoringBatchSize:         getEnvIntOrDefault("LLM_BATCH_SIZE", 20),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	switch cfg.AI.Provider {
	case "openai":
		if cfg.AI.OpenAIKey == "" {
			return errors.ConfigInvalid("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
		}
	case "anthropic":
		if cfg.AI.AnthropicKey == "" {
			return errors.ConfigInvalid("ANTHROPIC_API_KEY is required when LLM_PROVIDER=anthropic")
		}
	default:
		return errors.ConfigInvalid("LLM_PROVIDER must be openai or anthropic")
	}
	if cfg.Storage.DBPath == "" {
		return errors.ConfigInvalid("DB_PATH is required")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
