// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultHandlers are the built-in capability handlers and their default
// settings. Lower rank is consulted first.
var DefaultHandlers = map[string]HandlerConfig{
	"conversational": {Enabled: true, Rank: 5, Timeout: 2000},
	"tradelog":       {Enabled: true, Rank: 10, Timeout: 30000},
	"scheduling":     {Enabled: true, Rank: 20, Timeout: 15000},
	"emailsend":      {Enabled: true, Rank: 30, Timeout: 20000},
	"records":        {Enabled: true, Rank: 40, Timeout: 10000, MaxRetries: 1},
	"quote":          {Enabled: true, Rank: 50, Timeout: 10000, MaxRetries: 1},
	"compliance":     {Enabled: true, Rank: 60, Timeout: 20000, MaxRetries: 1},
}

// Load reads configs/config.yaml plus an optional config.<APP_ENVIRONMENT>.yaml
// overlay, expands ${VAR} placeholders and validates the result.
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig()

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile loads the first .env found walking up from the working directory.
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			v.Set(key, os.ExpandEnv(strVal))
		}
	}
}

// overrideEmptyConfig fills secrets that are still empty from the environment.
func overrideEmptyConfig(cfg *Config) {
	setIfEmpty(&cfg.APIs.OpenAI.APIKey, "OPENAI_API_KEY")
	setIfEmpty(&cfg.APIs.GenAI.APIKey, "GENAI_API_KEY")
	setIfEmpty(&cfg.APIs.Finnhub.APIKey, "FINNHUB_API_KEY")
	setIfEmpty(&cfg.APIs.Calendar.Token, "CALENDAR_TOKEN")
	setIfEmpty(&cfg.Database.Postgres.User, "DB_USER")
	setIfEmpty(&cfg.Database.Postgres.Password, "DB_PASSWORD")
	setIfEmpty(&cfg.Database.Redis.Password, "REDIS_PASSWORD")
}

func setIfEmpty(field *string, envKey string) {
	if *field != "" {
		return
	}
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "orqon-dispatch"
	}
	if cfg.App.Environment == "" {
		cfg.App.Environment = "development"
	}

	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"*"}
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15000
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60000
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10000
	}

	if cfg.Dispatch.MaxQueryLength == 0 {
		cfg.Dispatch.MaxQueryLength = 4000
	}
	if cfg.Dispatch.TurnTimeout == 0 {
		cfg.Dispatch.TurnTimeout = 60000
	}

	if cfg.Resolver.SemanticThreshold == 0 {
		cfg.Resolver.SemanticThreshold = 0.75
	}
	if cfg.Resolver.Collection == "" {
		cfg.Resolver.Collection = "clients"
	}
	if cfg.Resolver.Embedder == "" {
		cfg.Resolver.Embedder = "openai"
	}

	if cfg.Session.Backend == "" {
		cfg.Session.Backend = "memory"
	}
	if cfg.Session.BufferCap == 0 {
		cfg.Session.BufferCap = 50
	}
	if cfg.Session.MaxSessions == 0 {
		cfg.Session.MaxSessions = 10000
	}
	if cfg.Session.IdleTTL == 0 {
		cfg.Session.IdleTTL = 86400
	}
	if cfg.Session.KeyPrefix == "" {
		cfg.Session.KeyPrefix = "orqon"
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}
	if cfg.Database.Elasticsearch.Index == "" {
		cfg.Database.Elasticsearch.Index = "compliance-kb"
	}
	if cfg.Database.Redis.CacheTTL == 0 {
		cfg.Database.Redis.CacheTTL = 300
	}

	if cfg.Handlers == nil {
		cfg.Handlers = make(map[string]HandlerConfig)
	}
	for name, def := range DefaultHandlers {
		h, ok := cfg.Handlers[name]
		if !ok {
			cfg.Handlers[name] = def
			continue
		}
		if h.Rank == 0 {
			h.Rank = def.Rank
		}
		if h.Timeout == 0 {
			h.Timeout = def.Timeout
		}
		cfg.Handlers[name] = h
	}
	for name, h := range cfg.Handlers {
		if h.Timeout == 0 {
			h.Timeout = 30000
			cfg.Handlers[name] = h
		}
	}

	if cfg.APIs.OpenAI.Model == "" {
		cfg.APIs.OpenAI.Model = "gpt-4o-mini"
	}
	if cfg.APIs.OpenAI.EmbeddingModel == "" {
		cfg.APIs.OpenAI.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.APIs.OpenAI.MaxTokens == 0 {
		cfg.APIs.OpenAI.MaxTokens = 800
	}
	if cfg.APIs.OpenAI.Timeout == 0 {
		cfg.APIs.OpenAI.Timeout = 60000
	}
	if cfg.APIs.GenAI.EmbeddingModel == "" {
		cfg.APIs.GenAI.EmbeddingModel = "text-embedding-004"
	}
	if cfg.APIs.GenAI.Timeout == 0 {
		cfg.APIs.GenAI.Timeout = 30000
	}
	if cfg.APIs.Finnhub.BaseURL == "" {
		cfg.APIs.Finnhub.BaseURL = "https://finnhub.io/api/v1"
	}
	if cfg.APIs.Finnhub.Timeout == 0 {
		cfg.APIs.Finnhub.Timeout = 10000
	}
	if cfg.APIs.Calendar.BaseURL == "" {
		cfg.APIs.Calendar.BaseURL = "https://www.googleapis.com/calendar/v3"
	}
	if cfg.APIs.Calendar.CalendarID == "" {
		cfg.APIs.Calendar.CalendarID = "primary"
	}
	if cfg.APIs.Calendar.TimeZone == "" {
		cfg.APIs.Calendar.TimeZone = "UTC"
	}
	if cfg.APIs.Calendar.Timeout == 0 {
		cfg.APIs.Calendar.Timeout = 15000
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = cfg.App.Name
	}
	if cfg.Observability.SampleRatio == 0 {
		cfg.Observability.SampleRatio = 1
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Dispatch.MaxQueryLength <= 0 {
		return fmt.Errorf("dispatch.max_query_length must be positive")
	}
	if t := cfg.Resolver.SemanticThreshold; t <= 0 || t >= 1 {
		return fmt.Errorf("resolver.semantic_threshold must be in (0,1), got %v", t)
	}
	switch cfg.Resolver.Embedder {
	case "openai", "genai", "none":
	default:
		return fmt.Errorf("resolver.embedder must be openai, genai or none, got %q", cfg.Resolver.Embedder)
	}

	if cfg.Session.BufferCap <= 0 {
		return fmt.Errorf("session.buffer_cap must be positive")
	}
	if cfg.Session.MaxSessions <= 0 {
		return fmt.Errorf("session.max_sessions must be positive")
	}
	switch cfg.Session.Backend {
	case "memory":
	case "redis":
		if cfg.Database.Redis.Address == "" {
			return fmt.Errorf("database.redis.address is required for the redis session backend")
		}
	default:
		return fmt.Errorf("session.backend must be memory or redis, got %q", cfg.Session.Backend)
	}

	if cfg.Database.Postgres.Enabled() && cfg.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}

	return validateRanks(cfg.Handlers)
}

func validateRanks(handlers map[string]HandlerConfig) error {
	names := make([]string, 0, len(handlers))
	for name := range handlers {
		names = append(names, name)
	}
	sort.Strings(names)

	seen := make(map[int]string)
	for _, name := range names {
		h := handlers[name]
		if !h.Enabled {
			continue
		}
		if h.Rank <= 0 {
			return fmt.Errorf("handlers.%s.rank must be positive", name)
		}
		if other, dup := seen[h.Rank]; dup {
			return fmt.Errorf("handlers.%s and handlers.%s share rank %d", other, name, h.Rank)
		}
		seen[h.Rank] = name
	}
	return nil
}

// GetHandlerConfig retrieves handler configuration with fallback to defaults
func GetHandlerConfig(cfg *Config, name string) HandlerConfig {
	if h, ok := cfg.Handlers[name]; ok {
		return h
	}
	if def, ok := DefaultHandlers[name]; ok {
		return def
	}
	return HandlerConfig{Enabled: true, Timeout: 30000}
}

// IsHandlerEnabled checks if a specific handler is enabled
func IsHandlerEnabled(cfg *Config, name string) bool {
	return GetHandlerConfig(cfg, name).Enabled
}
