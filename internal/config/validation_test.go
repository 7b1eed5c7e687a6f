package config

import (
	"errors"
	"testing"
	"time"
)

// validBaseConfig returns a Config with all required fields set.
func validBaseConfig() *Config {
	return &Config{
		Model:             "openai/gpt-4o",
		EmbedderModel:     "googleai/gemini-embedding-001",
		Temperature:       0.7,
		MaxIterations:     10,
		RateLimitRPS:      2.0,
		RateLimitBurst:    4,
		PostgresHost:      "localhost",
		PostgresPort:      5432,
		PostgresUser:      "loom",
		PostgresPassword:  "test_password",
		PostgresDBName:    "loom",
		PostgresSSLMode:   "disable",
		CheckpointBackend: CheckpointMemory,
		ReminderInterval:  3 * time.Minute,
		ReminderLookahead: 30 * time.Minute,
	}
}

func TestValidateSuccess(t *testing.T) {
	if err := validBaseConfig().Validate(); err != nil {
		t.Errorf("Validate() unexpected error with valid config: %v", err)
	}
}

func TestValidateNilConfig(t *testing.T) {
	var cfg *Config
	if err := cfg.Validate(); !errors.Is(err, ErrConfigNil) {
		t.Errorf("Validate() = %v, want ErrConfigNil", err)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:    "empty model",
			mutate:  func(c *Config) { c.Model = "" },
			wantErr: ErrInvalidModelName,
		},
		{
			name:    "model without provider prefix",
			mutate:  func(c *Config) { c.Model = "gpt-4o" },
			wantErr: ErrInvalidModelName,
		},
		{
			name:    "embedder without provider prefix",
			mutate:  func(c *Config) { c.EmbedderModel = "gemini-embedding-001" },
			wantErr: ErrInvalidModelName,
		},
		{
			name:    "temperature out of range",
			mutate:  func(c *Config) { c.Temperature = 2.5 },
			wantErr: ErrInvalidTemperature,
		},
		{
			name:    "zero max iterations",
			mutate:  func(c *Config) { c.MaxIterations = 0 },
			wantErr: ErrInvalidMaxIterations,
		},
		{
			name:    "zero rate limit",
			mutate:  func(c *Config) { c.RateLimitRPS = 0 },
			wantErr: ErrInvalidRateLimit,
		},
		{
			name:    "empty postgres host",
			mutate:  func(c *Config) { c.PostgresHost = "" },
			wantErr: ErrInvalidPostgresHost,
		},
		{
			name:    "postgres port out of range",
			mutate:  func(c *Config) { c.PostgresPort = 70000 },
			wantErr: ErrInvalidPostgresPort,
		},
		{
			name:    "empty postgres db name",
			mutate:  func(c *Config) { c.PostgresDBName = "" },
			wantErr: ErrInvalidPostgresDBName,
		},
		{
			name:    "unknown checkpoint backend",
			mutate:  func(c *Config) { c.CheckpointBackend = "redis" },
			wantErr: ErrInvalidCheckpointBackend,
		},
		{
			name: "bolt backend without path",
			mutate: func(c *Config) {
				c.CheckpointBackend = CheckpointBolt
				c.CheckpointPath = ""
			},
			wantErr: ErrInvalidCheckpointPath,
		},
		{
			name:    "zero reminder interval",
			mutate:  func(c *Config) { c.ReminderInterval = 0 },
			wantErr: ErrInvalidReminderInterval,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validBaseConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateBoltBackendWithPath(t *testing.T) {
	cfg := validBaseConfig()
	cfg.CheckpointBackend = CheckpointBolt
	cfg.CheckpointPath = "/tmp/loom-checkpoints.db"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
}
