// Package pgtest connects repository tests to a real Postgres. Tests skip
// unless DB_HOST is set.
package pgtest

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/oak/pkg/database"
)

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// migrationsDir resolves db/pg relative to this file so tests work from any package.
func migrationsDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "..", "db", "pg")
}

// Open connects to the database named by the DB_* variables and applies the
// migrations. The connection is closed when the test ends.
func Open(t *testing.T) database.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	if os.Getenv("DB_HOST") == "" {
		t.Skip("Database not configured")
	}

	logger := Logger()
	cfg := database.Config{
		Host:     os.Getenv("DB_HOST"),
		Port:     env("DB_PORT", "5432"),
		User:     env("DB_USER", "postgres"),
		Password: env("DB_PASSWORD", "postgres"),
		Name:     env("DB_NAME", "oak_test"),
		SSLMode:  env("DB_SSL_MODE", "disable"),
	}

	db, err := database.Connect(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	sqlDB, ok := db.(*database.DatabaseInstance)
	require.True(t, ok)
	migrations := database.NewMigrationService(logger, &database.MigrationConfig{MigrationFolderPath: migrationsDir()})
	require.NoError(t, migrations.MigratePostgres(sqlDB.DB.DB, cfg.Name))
	return db
}

// TreeID returns a family tree id unique to one test.
func TreeID() string {
	return "tree-" + uuid.New().String()[:8]
}

func Logger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}
