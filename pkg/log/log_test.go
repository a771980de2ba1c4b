package log

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsoleLoggerLevels(t *testing.T) {
	color.NoColor = true

	buf := &bytes.Buffer{}
	logger := NewConsoleLogger(buf, LevelInfo)
	logger.now = func() time.Time { return time.Date(2024, 1, 1, 12, 30, 0, 0, time.UTC) }

	logger.Debug("hidden")
	logger.Info("started")
	logger.Warn("slow")
	logger.Error("failed")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "12:30:00.000 [INFO] started", lines[0])
	assert.Equal(t, "12:30:00.000 [WARN] slow", lines[1])
	assert.Equal(t, "12:30:00.000 [ERROR] failed", lines[2])
}

func TestConsoleLoggerPrefix(t *testing.T) {
	color.NoColor = true

	buf := &bytes.Buffer{}
	logger := NewConsoleLogger(buf, LevelDebug).WithPrefix("recipient")

	logger.Debug("subscribed")
	assert.Contains(t, buf.String(), "[DEBUG] recipient: subscribed")
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, LevelDebug, level)

	level, err = ParseLevel("WARNING")
	require.NoError(t, err)
	assert.Equal(t, LevelWarn, level)

	level, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, LevelInfo, level)

	_, err = ParseLevel("verbose")
	assert.Error(t, err)
}
