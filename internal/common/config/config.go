// internal/common/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig                `mapstructure:"app"`
	Server        ServerConfig             `mapstructure:"server"`
	Dispatch      DispatchConfig           `mapstructure:"dispatch"`
	Resolver      ResolverConfig           `mapstructure:"resolver"`
	Session       SessionConfig            `mapstructure:"session"`
	Database      DatabaseConfig           `mapstructure:"database"`
	Handlers      map[string]HandlerConfig `mapstructure:"handlers"`
	Integrations  IntegrationConfig        `mapstructure:"integrations"`
	APIs          APIsConfig               `mapstructure:"apis"`
	Observability ObservabilityConfig      `mapstructure:"observability"`
	Logging       LoggingConfig            `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Address         string   `mapstructure:"address"`
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	ReadTimeout     int      `mapstructure:"read_timeout"`     // milliseconds
	WriteTimeout    int      `mapstructure:"write_timeout"`    // milliseconds
	ShutdownTimeout int      `mapstructure:"shutdown_timeout"` // milliseconds
}

// DispatchConfig controls query validation and classification.
type DispatchConfig struct {
	MaxQueryLength int  `mapstructure:"max_query_length"` // runes
	LLMClassifier  bool `mapstructure:"llm_classifier"`
	TurnTimeout    int  `mapstructure:"turn_timeout"` // milliseconds, waiting for the session gate
}

type ResolverConfig struct {
	SemanticThreshold float64 `mapstructure:"semantic_threshold"`
	Collection        string  `mapstructure:"collection"`
	Embedder          string  `mapstructure:"embedder"` // openai | genai | none
	PersistPath       string  `mapstructure:"persist_path"`
}

type SessionConfig struct {
	Backend     string `mapstructure:"backend"` // memory | redis
	BufferCap   int    `mapstructure:"buffer_cap"`
	MaxSessions int    `mapstructure:"max_sessions"`
	IdleTTL     int    `mapstructure:"idle_ttl"` // seconds, redis backend
	KeyPrefix   string `mapstructure:"key_prefix"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// Enabled reports whether a Postgres record source is configured.
func (p PostgresConfig) Enabled() bool {
	return p.Host != "" && p.Database != ""
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	URL       string   `mapstructure:"url"`
	Index     string   `mapstructure:"index"`
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	CacheTTL int    `mapstructure:"cache_ttl"` // seconds, record list cache
}

// HandlerConfig holds the settings applicable to every capability handler.
type HandlerConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	Rank       int  `mapstructure:"rank"`
	Timeout    int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries int  `mapstructure:"max_retries"` // idempotent reads only
}

// IntegrationConfig holds settings for the AWS services used by handlers.
type IntegrationConfig struct {
	AWS struct {
		Region string `mapstructure:"region"`
		SES    struct {
			Enabled   bool   `mapstructure:"enabled"`
			FromEmail string `mapstructure:"from_email"`
		} `mapstructure:"ses"`
		SNS struct {
			Enabled  bool   `mapstructure:"enabled"`
			TopicARN string `mapstructure:"topic_arn"`
		} `mapstructure:"sns"`
	} `mapstructure:"aws"`
}

// APIsConfig holds settings for external API integrations.
type APIsConfig struct {
	OpenAI struct {
		APIKey         string  `mapstructure:"api_key"`
		BaseURL        string  `mapstructure:"base_url"`
		Model          string  `mapstructure:"model"`
		EmbeddingModel string  `mapstructure:"embedding_model"`
		MaxTokens      int     `mapstructure:"max_tokens"`
		Temperature    float32 `mapstructure:"temperature"`
		Timeout        int     `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"openai"`

	GenAI struct {
		APIKey         string `mapstructure:"api_key"`
		EmbeddingModel string `mapstructure:"embedding_model"`
		Timeout        int    `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"genai"`

	Finnhub struct {
		BaseURL string `mapstructure:"base_url"`
		APIKey  string `mapstructure:"api_key"`
		Timeout int    `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"finnhub"`

	Calendar struct {
		BaseURL    string `mapstructure:"base_url"`
		CalendarID string `mapstructure:"calendar_id"`
		Token      string `mapstructure:"token"`
		TimeZone   string `mapstructure:"time_zone"`
		Timeout    int    `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"calendar"`
}

type ObservabilityConfig struct {
	ServiceName    string  `mapstructure:"service_name"`
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	SampleRatio    float64 `mapstructure:"sample_ratio"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
