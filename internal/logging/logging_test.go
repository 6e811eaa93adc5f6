package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/christopherjohns/socialhub/internal/config"
)

func TestNewWritesToRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "socialhub.log")
	logger, err := New(config.LogConfig{
		Level:      "info",
		Format:     "json",
		File:       path,
		MaxSizeMB:  1,
		MaxBackups: 1,
	})
	require.NoError(t, err)

	logger.Info().Int64("user_id", 7).Msg("session opened")
	logger.Debug().Msg("filtered out")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	body := string(data)
	require.Contains(t, body, `"user_id":7`)
	require.Contains(t, body, `"app":"socialhub"`)
	require.False(t, strings.Contains(body, "filtered out"))
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(config.LogConfig{Level: "loud", Format: "json"})
	require.Error(t, err)
}

func TestNewSetsLevel(t *testing.T) {
	logger, err := New(config.LogConfig{Level: "warn", Format: "console"})
	require.NoError(t, err)
	require.Equal(t, zerolog.WarnLevel, logger.GetLevel())
}
