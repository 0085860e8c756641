// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jeranaias/chatstream/internal/config"
)

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter("info", "json", &buf)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("stream opened", zap.String("session_id", "s-1"))
	require.NoError(t, logger.Sync())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1, "debug must be filtered at info level")

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "stream opened", entry["message"])
	assert.Equal(t, "s-1", entry["session_id"])
	assert.Contains(t, entry, "timestamp")
}

func TestNewWithWriter_Console(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter("warn", "console", &buf)
	require.NoError(t, err)

	logger.Warn("idle timeout")
	_ = logger.Sync()
	assert.Contains(t, buf.String(), "WARN")
	assert.Contains(t, buf.String(), "idle timeout")
}

func TestNewWithWriter_Invalid(t *testing.T) {
	_, err := NewWithWriter("loud", "json", &bytes.Buffer{})
	assert.Error(t, err)

	_, err = NewWithWriter("info", "xml", &bytes.Buffer{})
	assert.Error(t, err)
}

func TestNew_FileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "chatstream.log")
	logger, err := New(config.LoggingConfig{
		Level:      "debug",
		Format:     "console",
		File:       path,
		MaxSizeMB:  1,
		MaxBackups: 1,
	})
	require.NoError(t, err)

	logger.Debug("to file")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"to file"`, "file sink always writes JSON")
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
	l := zap.NewExample()
	assert.Same(t, l, OrNop(l))
}
