package postgres

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies the embedded schema migrations. connString must be a
// postgres:// or postgresql:// URL.
func Migrate(connString string, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("postgres: open migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, migrationURL(connString))
	if err != nil {
		return fmt.Errorf("postgres: init migrations: %w", err)
	}
	defer func() {
		if sourceErr, dbErr := m.Close(); sourceErr != nil || dbErr != nil {
			log.Warn("failed to close migrator", zap.NamedError("source", sourceErr), zap.NamedError("database", dbErr))
		}
	}()

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("postgres: read migration version: %w", err)
	}
	if dirty {
		return fmt.Errorf("postgres: migration %d is dirty, fix the schema and force the version", version)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("database schema is up to date", zap.Uint("version", version))
			return nil
		}
		return fmt.Errorf("postgres: migrate up: %w", err)
	}

	newVersion, _, _ := m.Version()
	log.Info("database schema migrated", zap.Uint("from", version), zap.Uint("to", newVersion))
	return nil
}

// migrationURL rewrites the scheme for the pgx/v5 migrate driver.
func migrationURL(connString string) string {
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(connString, scheme) {
			return "pgx5://" + strings.TrimPrefix(connString, scheme)
		}
	}
	return connString
}
