package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupWithOptionsWritesJSON(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	var buf bytes.Buffer
	logger, closer := SetupWithOptions(Options{Service: "kelilid", Env: "test", Level: "debug", Output: &buf})
	defer closer.Close()

	logger.Debug("dht: lookup started", slog.String("target", "0xabcd"), slog.String("auth_secret", "hunter2"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	require.Equal(t, "DEBUG", line["severity"])
	require.Equal(t, "dht: lookup started", line["message"])
	require.Equal(t, "kelilid", line["service"])
	require.Equal(t, "test", line["env"])
	require.Equal(t, "0xabcd", line["target"])
	require.Equal(t, RedactedValue, line["auth_secret"])
	require.Contains(t, line, "timestamp")
}

func TestLevelFiltersOutput(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	var buf bytes.Buffer
	logger, closer := SetupWithOptions(Options{Service: "kelilid", Level: "warn", Output: &buf})
	defer closer.Close()

	logger.Info("hidden")
	logger.Warn("shown")
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "shown")
}

func TestFileSink(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "kelili.log")
	logger, closer := SetupWithOptions(Options{Service: "kelilid", File: path, MaxSizeMB: 1, Output: &buf})
	logger.Info("to both sinks")
	require.NoError(t, closer.Close())
	require.FileExists(t, path)
	require.True(t, strings.Contains(buf.String(), "to both sinks"))
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("WARNING")
	require.NoError(t, err)
	require.Equal(t, slog.LevelWarn, level)

	_, err = ParseLevel("verbose")
	require.Error(t, err)
}

func TestMasking(t *testing.T) {
	require.Equal(t, "", MaskValue(""))
	require.Equal(t, " ", MaskValue(" "))
	require.Equal(t, RedactedValue, MaskValue("x"))
	require.True(t, IsSensitive("Authorization"))
	require.False(t, IsSensitive("peer"))
	require.Contains(t, SensitiveKeys(), "token")
	require.Equal(t, RedactedValue, MaskField("key", "v").Value.String())
}
