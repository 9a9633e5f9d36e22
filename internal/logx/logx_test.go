package logx

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"typstlab/internal/paths"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"trace":   zerolog.TraceLevel,
		" DEBUG ": zerolog.DebugLevel,
		"info":    zerolog.InfoLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"off":     zerolog.Disabled,
	}
	for raw, want := range cases {
		got, ok := ParseLevel(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, want, got, raw)
	}
	for _, raw := range []string{"", "loud", "5"} {
		_, ok := ParseLevel(raw)
		assert.False(t, ok, raw)
	}
}

func TestNewWritesJSONLinesToLogsDir(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	p := paths.New(t.TempDir())

	logger, closer, err := New(p, Options{})
	require.NoError(t, err)
	logger.Debug().Msg("hidden")
	logger.Info().Str("tool", "typst").Msg("installed")
	require.NoError(t, closer.Close())

	entries, err := os.ReadDir(p.LogsDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasSuffix(entries[0].Name(), ".log"))

	data, err := os.ReadFile(filepath.Join(p.LogsDir, entries[0].Name()))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1, "debug lines are dropped at the default level")

	var line map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &line))
	assert.Equal(t, "installed", line["message"])
	assert.Equal(t, "typst", line["tool"])
	assert.Equal(t, "info", line["level"])
}

func TestNewVerboseMirrorsToConsole(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	var console bytes.Buffer
	logger, closer, err := New(paths.New(t.TempDir()), Options{Verbose: true, Console: &console})
	require.NoError(t, err)
	defer closer.Close()

	logger.Debug().Msg("probing system typst")
	assert.Contains(t, console.String(), "probing system typst")
}

func TestConsoleQuietByDefault(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	var buf bytes.Buffer
	logger := Console(&buf, false)
	logger.Error().Msg("nope")
	assert.Empty(t, buf.String())

	t.Setenv(EnvLogLevel, "warn")
	logger = Console(&buf, false)
	logger.Warn().Msg("lock held")
	assert.Contains(t, buf.String(), "lock held")
}
