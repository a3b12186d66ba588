package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "oak", cfg.AppName)
	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, 30*time.Minute, cfg.ImportMaxDuration)
	assert.Equal(t, 3, cfg.JobMaxAttempts)
	assert.Equal(t, time.Second, cfg.JobBaseDelay)
	assert.Equal(t, 168*time.Hour, cfg.CacheIdentifierTTL)
	assert.False(t, cfg.LegacyCousinFallback)
}

func TestLoad_EnvFileAndOverrides(t *testing.T) {
	file := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(file, []byte("IMPORT_MAX_DEPTH=5\nKAFKA_BROKERS=a:9092,b:9092\n"), 0o600))

	t.Setenv("IMPORT_MAX_DEPTH", "2")
	t.Setenv("IMPORT_MAX_DURATION", "0s")
	t.Cleanup(func() { _ = os.Unsetenv("KAFKA_BROKERS") })

	cfg, err := Load(file)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.ImportMaxDepth)
	assert.Equal(t, "a:9092,b:9092", cfg.KafkaBrokers)
	assert.Zero(t, cfg.ImportMaxDuration)
}

func TestLoad_InvalidValue(t *testing.T) {
	t.Setenv("PORT", "not-a-number")
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}
