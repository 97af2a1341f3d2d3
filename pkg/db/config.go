package db

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
)

// Config holds the ledger database connection settings.
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string

	// MigrationsDir is the directory holding the SQL migrations; empty means
	// <project root>/migrations
	MigrationsDir string
}

// NewConfigFromEnv reads DB_HOST, DB_PORT, DB_USER, DB_PASSWORD, DB_NAME,
// DB_SSLMODE and DB_MIGRATIONS_DIR.
func NewConfigFromEnv() Config {
	return Config{
		Host:          getEnvOrDefault("DB_HOST", "localhost"),
		Port:          getEnvOrDefault("DB_PORT", "5432"),
		User:          os.Getenv("DB_USER"),
		Password:      os.Getenv("DB_PASSWORD"),
		Name:          os.Getenv("DB_NAME"),
		SSLMode:       getEnvOrDefault("DB_SSLMODE", "disable"),
		MigrationsDir: os.Getenv("DB_MIGRATIONS_DIR"),
	}
}

// Validate checks that the required settings are present.
func (c Config) Validate() error {
	if c.Host == "" || c.Port == "" {
		return fmt.Errorf("database host and port are required")
	}
	if c.User == "" {
		return fmt.Errorf("database user is required")
	}
	if c.Name == "" {
		return fmt.Errorf("database name is required")
	}
	return nil
}

// DSN returns the key/value connection string used by the gorm driver.
func (c Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.Host, c.User, c.Password, c.Name, c.Port, c.SSLMode)
}

// URL returns the postgres:// URL used by the migrator.
func (c Config) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + c.Port,
		Path:     "/" + c.Name,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

// migrationsSource returns the file:// source of the migrations.
func (c Config) migrationsSource() (string, error) {
	dir := c.MigrationsDir
	if dir == "" {
		projectRoot, err := findProjectRoot()
		if err != nil {
			return "", fmt.Errorf("failed to find project root: %w", err)
		}
		dir = filepath.Join(projectRoot, "migrations")
	}
	return "file://" + dir, nil
}

// findProjectRoot looks for go.mod file to determine project root
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("could not find project root (go.mod)")
		}
		dir = parent
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
