package config

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if c.Model == "" {
		return fmt.Errorf("%w: model cannot be empty", ErrInvalidModelName)
	}
	if !strings.Contains(c.Model, "/") {
		return fmt.Errorf("%w: model must be provider-qualified, e.g. %q, got %q",
			ErrInvalidModelName, DefaultModel, c.Model)
	}
	if c.EmbedderModel != "" && !strings.Contains(c.EmbedderModel, "/") {
		return fmt.Errorf("%w: embedder_model must be provider-qualified, got %q",
			ErrInvalidModelName, c.EmbedderModel)
	}

	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("%w: must be between 0.0 and 2.0, got %.2f", ErrInvalidTemperature, c.Temperature)
	}

	if c.MaxIterations < 1 || c.MaxIterations > 100 {
		return fmt.Errorf("%w: must be between 1 and 100, got %d", ErrInvalidMaxIterations, c.MaxIterations)
	}

	if c.RateLimitRPS <= 0 || c.RateLimitBurst < 1 {
		return fmt.Errorf("%w: rps %.2f burst %d", ErrInvalidRateLimit, c.RateLimitRPS, c.RateLimitBurst)
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}
	if c.PostgresPassword == "loom_dev_password" {
		slog.Warn("Using default development password for PostgreSQL",
			"warning", "Change postgres_password for production deployments")
	}

	// Modern SSL modes only; allow/prefer are deprecated.
	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v",
			ErrInvalidPostgresHost, c.PostgresSSLMode, validSSLModes)
	}

	switch c.CheckpointBackend {
	case CheckpointMemory:
	case CheckpointBolt:
		if c.CheckpointPath == "" {
			return fmt.Errorf("%w: checkpoint_path required for the bolt backend", ErrInvalidCheckpointPath)
		}
	default:
		return fmt.Errorf("%w: %q, must be %q or %q",
			ErrInvalidCheckpointBackend, c.CheckpointBackend, CheckpointMemory, CheckpointBolt)
	}

	if c.ReminderInterval <= 0 || c.ReminderLookahead <= 0 {
		return fmt.Errorf("%w: interval %s lookahead %s",
			ErrInvalidReminderInterval, c.ReminderInterval, c.ReminderLookahead)
	}

	return nil
}
