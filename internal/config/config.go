package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds application configuration values loaded from environment
// variables. It is loaded once at startup and treated as read-only afterwards;
// everything that needs a setting gets it injected from here.
type Config struct {
	HTTPPort        string
	JWTSecret       string
	TokenExpiration time.Duration

	// DatabaseURL is optional: when empty the server runs on the in-memory
	// store (useful for development and tests).
	DatabaseURL string

	// Upstream provider settings.
	ProviderBaseURL string
	ProviderAPIKey  string
	ProviderTimeout time.Duration

	// Model catalog. Identifiers are opaque to this service.
	DefaultModel string
	Models       []string

	// ContextWindowMessages caps how many trailing non-system messages are
	// sent to the provider as context.
	ContextWindowMessages int
}

// LoadConfig loads configuration from environment variables.
// It looks for a .env file first, then checks actual environment variables.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file, using environment variables only")
	}

	providerBaseURL := getEnv("PROVIDER_BASE_URL", "https://api.openai.com/v1")
	providerAPIKey := getEnv("PROVIDER_API_KEY", "")
	if providerAPIKey == "" {
		return nil, fmt.Errorf("PROVIDER_API_KEY environment variable is not set")
	}

	tokenExpHours, err := strconv.Atoi(getEnv("JWT_EXPIRATION_HOURS", "24"))
	if err != nil {
		log.Warn().Err(err).Msg("invalid JWT_EXPIRATION_HOURS, using default 24h")
		tokenExpHours = 24
	}

	providerTimeoutSecs, err := strconv.Atoi(getEnv("PROVIDER_TIMEOUT_SECONDS", "120"))
	if err != nil {
		log.Warn().Err(err).Msg("invalid PROVIDER_TIMEOUT_SECONDS, using default 120s")
		providerTimeoutSecs = 120
	}

	contextWindow, err := strconv.Atoi(getEnv("CONTEXT_WINDOW_MESSAGES", "20"))
	if err != nil || contextWindow <= 0 {
		log.Warn().Str("value", os.Getenv("CONTEXT_WINDOW_MESSAGES")).Msg("invalid CONTEXT_WINDOW_MESSAGES, using default 20")
		contextWindow = 20
	}

	defaultModel := getEnv("DEFAULT_MODEL", "gpt-4o-mini")
	models := splitModels(getEnv("MODELS", defaultModel))
	if !containsModel(models, defaultModel) {
		models = append([]string{defaultModel}, models...)
	}

	cfg := &Config{
		HTTPPort:              getEnv("HTTP_PORT", "8080"),
		JWTSecret:             getEnv("JWT_SECRET", "default-super-secret-key"), // CHANGE THIS IN PRODUCTION!
		TokenExpiration:       time.Hour * time.Duration(tokenExpHours),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		ProviderBaseURL:       strings.TrimRight(providerBaseURL, "/"),
		ProviderAPIKey:        providerAPIKey,
		ProviderTimeout:       time.Second * time.Duration(providerTimeoutSecs),
		DefaultModel:          defaultModel,
		Models:                models,
		ContextWindowMessages: contextWindow,
	}

	log.Info().
		Str("port", cfg.HTTPPort).
		Str("provider_base_url", cfg.ProviderBaseURL).
		Str("default_model", cfg.DefaultModel).
		Dur("token_expiration", cfg.TokenExpiration).
		Dur("provider_timeout", cfg.ProviderTimeout).
		Msg("configuration loaded")

	return cfg, nil
}

// ValidModel reports whether the given identifier is part of the catalog.
func (c *Config) ValidModel(model string) bool {
	return containsModel(c.Models, model)
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func splitModels(raw string) []string {
	parts := strings.Split(raw, ",")
	models := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			models = append(models, p)
		}
	}
	return models
}

func containsModel(models []string, model string) bool {
	for _, m := range models {
		if m == model {
			return true
		}
	}
	return false
}
