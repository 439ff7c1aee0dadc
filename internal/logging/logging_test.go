package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planboard/internal/config"
)

func TestNewWritesRotatingFileUnderWorkspace(t *testing.T) {
	dir := t.TempDir()
	logger, closer, err := New(config.LogConfig{Level: "debug", Format: "json", File: "logs/planboard.log", MaxSizeMB: 1}, dir)
	require.NoError(t, err)
	logger.WithField("team_id", "t1").Debug("team deleted")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(filepath.Join(dir, "logs", "planboard.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"team_id":"t1"`)
	assert.Contains(t, string(data), `"msg":"team deleted"`)
}

func TestNewDefaultsToInfoOnStderr(t *testing.T) {
	logger, closer, err := New(config.LogConfig{}, "")
	require.NoError(t, err)
	defer closer.Close()
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	assert.Equal(t, os.Stderr, logger.Out)
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, _, err := New(config.LogConfig{Level: "chatty"}, "")
	require.Error(t, err)
}
