package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "/v1", cfg.Server.BasePath)
	assert.Equal(t, []string{"DONE", "CANCELED"}, cfg.Tasks.FinishedStatuses)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL())
}

func TestFromYAMLKeepsDefaultsForMissingKeys(t *testing.T) {
	cfg, err := FromYAML([]byte("server:\n  addr: 0.0.0.0:9000\n"))
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestValidateRejectsUnknownFinishedStatus(t *testing.T) {
	_, err := FromYAML([]byte("tasks:\n  finished_statuses: [SHIPPED]\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHIPPED")
}

func TestValidateRejectsBadTTL(t *testing.T) {
	_, err := FromYAML([]byte("auth:\n  token_ttl: soon\n"))
	require.Error(t, err)
}

func TestLoadMissingFileFallsBackToDefault(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadReadsWorkspaceFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(Path(dir), []byte("log:\n  level: debug\n"), 0o644))
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}
