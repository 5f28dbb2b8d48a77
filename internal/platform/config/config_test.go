package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "consent.db", cfg.StoragePath)
	assert.Empty(t, cfg.AnalyticsID, "missing vendor IDs are legal")
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"addr: \":9090\"\nanalytics_id: \"G-FILE\"\nlog_level: debug\n",
	), 0o600))

	t.Setenv("CONSENTGATE_CONFIG", path)
	t.Setenv("CONSENTGATE_ANALYTICS_ID", "G-ENV")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "G-ENV", cfg.AnalyticsID, "environment overrides the file")
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: [broken"), 0o600))
	t.Setenv("CONSENTGATE_CONFIG", path)

	_, err := Load()
	assert.Error(t, err)
}
