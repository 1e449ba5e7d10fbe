package repository

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	log "github.com/sirupsen/logrus"
)

//go:embed migrations
var migrationsFS embed.FS

// Use a separate migrations table so the bot can share a database with
// other services.
const migrationsTable = "sms_bot_schema_migrations"

// Migrate applies all pending migrations for the repository's dialect.
func (r *Repository) Migrate() error {
	src, err := iofs.New(migrationsFS, "migrations/"+string(r.dialect))
	if err != nil {
		return fmt.Errorf("could not open migration source: %w", err)
	}

	var m *migrate.Migrate
	switch r.dialect {
	case dialectPostgres:
		migrationURL := r.url
		if strings.Contains(migrationURL, "?") {
			migrationURL += "&x-migrations-table=" + migrationsTable
		} else {
			migrationURL += "?x-migrations-table=" + migrationsTable
		}
		m, err = migrate.NewWithSourceInstance("iofs", src, migrationURL)
		if err != nil {
			return fmt.Errorf("could not create migration instance: %w", err)
		}
		// The postgres driver owns its own connection here.
		defer m.Close()
	case dialectSQLite:
		driver, err := sqlite.WithInstance(r.db, &sqlite.Config{MigrationsTable: migrationsTable})
		if err != nil {
			return fmt.Errorf("could not create sqlite migration driver: %w", err)
		}
		m, err = migrate.NewWithInstance("iofs", src, "sqlite", driver)
		if err != nil {
			return fmt.Errorf("could not create migration instance: %w", err)
		}
		// Closing m would close the shared *sql.DB.
	default:
		return fmt.Errorf("no migrations for dialect %q", r.dialect)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not apply migration: %w", err)
	}
	version, dirty, _ := m.Version()
	log.WithFields(log.Fields{"dialect": r.dialect, "version": version, "dirty": dirty}).Info("Database migration successfully applied")
	return nil
}
