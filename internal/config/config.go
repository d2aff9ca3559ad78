package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config aggregates every setting the service reads from the environment.
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Users     UsersConfig
	RateLimit RateLimitConfig
	OpenAI    OpenAIConfig
	Gemini    GeminiConfig
	Claude    ClaudeConfig
	Ark       ArkConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	store, err := loadStorageConfig()
	if err != nil {
		return nil, err
	}

	limit, err := loadRateLimitConfig()
	if err != nil {
		return nil, err
	}

	ark, err := loadArkConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		Storage:   store,
		Users:     UsersConfig{File: getEnvOrDefault("USERS_FILE", "users.json")},
		RateLimit: limit,
		OpenAI: OpenAIConfig{
			APIKey: strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
			Model:  getEnvOrDefault("OPENAI_MODEL", ""),
		},
		Gemini: GeminiConfig{
			APIKey: strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
			Model:  getEnvOrDefault("GEMINI_MODEL", ""),
		},
		Claude: ClaudeConfig{
			APIKey: strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")),
			Model:  getEnvOrDefault("ANTHROPIC_MODEL", ""),
		},
		Ark: ark,
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Allow ":8080" or "127.0.0.1:8080" directly.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// Storage backend names accepted in STORAGE_BACKEND.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendMongo  = "mongo"
)

// StorageConfig selects and parameterizes the persistence backend.
type StorageConfig struct {
	Backend       string
	HistoryFile   string
	MongoURI      string
	MongoDatabase string
}

func loadStorageConfig() (StorageConfig, error) {
	backend := strings.ToLower(getEnvOrDefault("STORAGE_BACKEND", BackendFile))
	switch backend {
	case BackendMemory, BackendFile, BackendMongo:
	default:
		return StorageConfig{}, fmt.Errorf("invalid STORAGE_BACKEND value: %q", backend)
	}

	return StorageConfig{
		Backend:       backend,
		HistoryFile:   getEnvOrDefault("CHAT_HISTORY_FILE", "chat_history.json"),
		MongoURI:      getEnvOrDefault("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: getEnvOrDefault("MONGO_DATABASE", "llm_chat_app"),
	}, nil
}

// UsersConfig locates the credential file.
type UsersConfig struct {
	File string
}

// RateLimitConfig throttles outbound provider calls. Zero RPS disables the
// limiter.
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// Enabled reports whether a limiter should be installed.
func (c RateLimitConfig) Enabled() bool {
	return c.RPS > 0
}

func loadRateLimitConfig() (RateLimitConfig, error) {
	rps, err := parseOptionalFloatEnv("CHAT_RATE_LIMIT_RPS")
	if err != nil {
		return RateLimitConfig{}, err
	}

	burst, err := parseOptionalIntEnv("CHAT_RATE_LIMIT_BURST")
	if err != nil {
		return RateLimitConfig{}, err
	}

	cfg := RateLimitConfig{}
	if rps != nil {
		cfg.RPS = *rps
	}
	cfg.Burst = 1
	if burst != nil && *burst > 0 {
		cfg.Burst = *burst
	}
	return cfg, nil
}

// OpenAIConfig holds OpenAI chat completion credentials.
type OpenAIConfig struct {
	APIKey string
	Model  string
}

// Enabled reports whether the required key was provided.
func (c OpenAIConfig) Enabled() bool { return c.APIKey != "" }

// GeminiConfig holds Google Gemini credentials.
type GeminiConfig struct {
	APIKey string
	Model  string
}

// Enabled reports whether the required key was provided.
func (c GeminiConfig) Enabled() bool { return c.APIKey != "" }

// ClaudeConfig holds Anthropic credentials.
type ClaudeConfig struct {
	APIKey string
	Model  string
}

// Enabled reports whether the required key was provided.
func (c ClaudeConfig) Enabled() bool { return c.APIKey != "" }

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
