// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.loom/config.yaml)
//  3. Default values
//
// Error handling uses sentinel errors checked with errors.Is(), wrapped with
// fmt.Errorf("%w: details", ErrXxx) where context helps.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidModelName indicates the default model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxIterations indicates the tool-loop bound is out of range.
	ErrInvalidMaxIterations = errors.New("invalid max iterations")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidCheckpointBackend indicates an unknown checkpoint backend.
	ErrInvalidCheckpointBackend = errors.New("invalid checkpoint backend")

	// ErrInvalidCheckpointPath indicates the durable backend has no file path.
	ErrInvalidCheckpointPath = errors.New("invalid checkpoint path")

	// ErrInvalidReminderInterval indicates a non-positive reminder poll interval.
	ErrInvalidReminderInterval = errors.New("invalid reminder interval")

	// ErrInvalidRateLimit indicates a non-positive model rate limit.
	ErrInvalidRateLimit = errors.New("invalid rate limit")
)

// Checkpoint backend identifiers used in Config.CheckpointBackend.
const (
	CheckpointMemory = "memory"
	CheckpointBolt   = "bolt"
)

const (
	// DefaultModel is the provider-qualified default chat model.
	DefaultModel = "openai/gpt-4o"

	// DefaultEmbedderModel is the provider-qualified default embedding model.
	DefaultEmbedderModel = "googleai/gemini-embedding-001"

	// DefaultMaxIterations bounds the tool loop per turn.
	DefaultMaxIterations = 10
)

// Config stores application configuration.
// SECURITY: sensitive fields are masked in MarshalJSON(); update it when
// adding new secrets.
type Config struct {
	// Model configuration. Model names are provider-qualified,
	// e.g. "openai/gpt-4o", "anthropic/claude-sonnet-4-5", "ollama/llama3.3".
	Model         string  `mapstructure:"model" json:"model"`
	EmbedderModel string  `mapstructure:"embedder_model" json:"embedder_model"`
	Temperature   float32 `mapstructure:"temperature" json:"temperature"`
	MaxIterations int     `mapstructure:"max_iterations" json:"max_iterations"`

	// Provider credentials. Read from the environment only.
	OpenAIAPIKey    string `mapstructure:"openai_api_key" json:"openai_api_key"`       // SENSITIVE: masked in MarshalJSON
	AnthropicAPIKey string `mapstructure:"anthropic_api_key" json:"anthropic_api_key"` // SENSITIVE: masked in MarshalJSON
	GoogleAPIKey    string `mapstructure:"google_api_key" json:"google_api_key"`       // SENSITIVE: masked in MarshalJSON
	OllamaHost      string `mapstructure:"ollama_host" json:"ollama_host"`

	// Model call rate limiting.
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps" json:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst" json:"rate_limit_burst"`

	// Memory storage (PostgreSQL + pgvector).
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Checkpoint persistence: "memory" (default) or "bolt" (durable).
	CheckpointBackend string `mapstructure:"checkpoint_backend" json:"checkpoint_backend"`
	CheckpointPath    string `mapstructure:"checkpoint_path" json:"checkpoint_path"`

	// Reminder scheduler.
	ReminderInterval  time.Duration `mapstructure:"reminder_interval" json:"reminder_interval"`
	ReminderLookahead time.Duration `mapstructure:"reminder_lookahead" json:"reminder_lookahead"`

	// Logging.
	LogLevel string `mapstructure:"log_level" json:"log_level"`
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".loom")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// Missing config file is fine, defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("model", DefaultModel)
	viper.SetDefault("embedder_model", DefaultEmbedderModel)
	viper.SetDefault("temperature", 0.7)
	viper.SetDefault("max_iterations", DefaultMaxIterations)

	viper.SetDefault("ollama_host", "http://localhost:11434")

	viper.SetDefault("rate_limit_rps", 2.0)
	viper.SetDefault("rate_limit_burst", 4)

	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "loom")
	viper.SetDefault("postgres_password", "loom_dev_password")
	viper.SetDefault("postgres_db_name", "loom")
	viper.SetDefault("postgres_ssl_mode", "disable")

	viper.SetDefault("checkpoint_backend", CheckpointMemory)
	viper.SetDefault("checkpoint_path", "")

	viper.SetDefault("reminder_interval", 3*time.Minute)
	viper.SetDefault("reminder_lookahead", 30*time.Minute)

	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_json", false)
}

// bindEnvVariables binds environment variables explicitly. Secrets are only
// ever read from the environment, never from the config file on disk.
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("openai_api_key", "OPENAI_API_KEY")
	mustBind("anthropic_api_key", "ANTHROPIC_API_KEY")
	mustBind("google_api_key", "GOOGLE_API_KEY")

	mustBind("model", "LOOM_MODEL")
	mustBind("embedder_model", "LOOM_EMBEDDER_MODEL")
	mustBind("ollama_host", "LOOM_OLLAMA_HOST")
	mustBind("checkpoint_backend", "LOOM_CHECKPOINT_BACKEND")
	mustBind("checkpoint_path", "LOOM_CHECKPOINT_PATH")
	mustBind("postgres_password", "LOOM_POSTGRES_PASSWORD")
	mustBind("log_level", "LOOM_LOG_LEVEL")
}

// maskedValue is the placeholder for masked sensitive data. Full-width
// blocks avoid accidental substring matches against real secret content.
const maskedValue = "████████"

// maskSecret masks a secret for safe logging. Short secrets are fully
// masked; longer ones keep the first and last two characters for debug
// utility. This defends against accidental logging, nothing stronger.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field
// masking. Update when adding new secret fields.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.OpenAIAPIKey = maskSecret(a.OpenAIAPIKey)
	a.AnthropicAPIKey = maskSecret(a.AnthropicAPIKey)
	a.GoogleAPIKey = maskSecret(a.GoogleAPIKey)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// ConnString returns the PostgreSQL connection string for pgx.
func (c *Config) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.PostgresUser, c.PostgresPassword,
		c.PostgresHost, c.PostgresPort,
		c.PostgresDBName, c.PostgresSSLMode)
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
