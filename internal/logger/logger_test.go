package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestInit_JSON(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	l := initTo(&buf, Config{Level: "info", Format: "json"})
	l.Debug("hidden")
	l.Info("key issued", "username", "bob")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "key issued", line["msg"])
	assert.Equal(t, "bob", line["username"])
	assert.Equal(t, "keygate", line["service"])
}

func TestInit_TextHasNoColorOffTerminal(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	l := initTo(&buf, Config{Format: "text"})
	l.Info("verify", "ip", "1.2.3.4")

	assert.Contains(t, buf.String(), "ip=1.2.3.4")
	assert.NotContains(t, buf.String(), "\x1b[")
}
