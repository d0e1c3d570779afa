package logging_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jmerrifield20/socialmedia/internal/config"
	"github.com/jmerrifield20/socialmedia/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_writesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "node.log")
	logger, err := logging.New(config.LogConfig{
		Level:     "info",
		Format:    "json",
		File:      path,
		MaxSizeMB: 1,
	})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("call applied", zap.String("method", "create_post"))
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `"msg":"call applied"`)
	assert.Contains(t, out, `"method":"create_post"`)
	assert.False(t, strings.Contains(out, "hidden"), "debug is below the configured level")
}

func TestNew_rejectsUnknownLevel(t *testing.T) {
	_, err := logging.New(config.LogConfig{Level: "loud", Format: "json"})
	assert.Error(t, err)
}
