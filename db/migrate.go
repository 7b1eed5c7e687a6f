// Package db runs the embedded schema migrations for the memory index.
package db

import (
	"embed"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5" // pgx v5 driver
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/loomlabs/loom/internal/log"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies all pending migrations. Migrations are embedded at
// compile time; golang-migrate tracks applied versions in
// schema_migrations. connURL must be a postgres:// or postgresql:// URL.
func Migrate(connURL string, logger log.Logger) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("creating migration source: %w", err)
	}

	dbURL, err := toMigrateURL(connURL)
	if err != nil {
		return err
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, dbURL)
	if err != nil {
		return fmt.Errorf("connecting for migrations: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			logger.Warn("closing migration source failed", "error", srcErr)
		}
		if dbErr != nil {
			logger.Warn("closing migration connection failed", "error", dbErr)
		}
	}()

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("checking migration version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database in dirty migration state (version=%d), manual cleanup required", version)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Debug("no new migrations to apply")
			return nil
		}
		return fmt.Errorf("running migrations: %w", err)
	}

	if version, dirty, err = m.Version(); err == nil {
		logger.Info("migrations applied", "version", version, "dirty", dirty)
	}
	return nil
}

// toMigrateURL rewrites a postgres URL to the pgx5 scheme golang-migrate's
// pgx v5 driver registers under.
func toMigrateURL(connURL string) (string, error) {
	u, err := url.Parse(connURL)
	if err != nil {
		return "", fmt.Errorf("parsing database URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "postgres", "postgresql":
		u.Scheme = "pgx5"
		return u.String(), nil
	default:
		return "", fmt.Errorf("unsupported database URL scheme %q", u.Scheme)
	}
}
