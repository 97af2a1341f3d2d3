package db

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/sirupsen/logrus"
)

func newMigrator(config Config) (*migrate.Migrate, string, error) {
	source, err := config.migrationsSource()
	if err != nil {
		return nil, "", err
	}

	m, err := migrate.New(source, config.URL())
	if err != nil {
		return nil, source, fmt.Errorf("failed to create migrator: %w", err)
	}
	return m, source, nil
}

// RunMigrations executes database migrations
func RunMigrations(logger *logrus.Logger, config Config) error {
	m, source, err := newMigrator(config)
	if err != nil {
		return err
	}
	defer m.Close()

	logger.WithField("migrations_path", source).Debug("Running database migrations")

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// MigrationStatus returns the current migration version and dirty state
func MigrationStatus(logger *logrus.Logger, config Config) (uint, bool, error) {
	logger.Debug("Checking migration status")

	m, _, err := newMigrator(config)
	if err != nil {
		return 0, false, err
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if err != nil {
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"version": version,
		"dirty":   dirty,
	}).Debug("Migration status retrieved")

	return version, dirty, nil
}
