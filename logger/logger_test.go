package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()
	cases := []struct {
		level    string
		expected zapcore.Level
	}{
		{Debug, zapcore.DebugLevel},
		{Info, zapcore.InfoLevel},
		{Warning, zapcore.WarnLevel},
		{"WARN", zapcore.WarnLevel},
		{Error, zapcore.ErrorLevel},
		{"unknown", zapcore.InfoLevel},
	}
	for _, tc := range cases {
		t.Run(tc.level, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expected, ParseLevel(tc.level))
		})
	}
}

func TestNewWritesJSON(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.log")
	l, err := New(Config{Level: Debug, ServiceName: "spanz-test", Output: []string{path}})
	require.NoError(t, err)

	l.Debug("span listener failed")
	require.NoError(t, l.Sync())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(raw, &entry))
	assert.Equal(t, "DEBUG", entry["level"])
	assert.Equal(t, "spanz-test", entry["service"])
	assert.Equal(t, "span listener failed", entry["msg"])
	assert.Contains(t, entry, "timestamp")
	assert.Contains(t, entry, "pid")
}

func TestNewRespectsLevel(t *testing.T) {
	t.Parallel()

	l, err := New(Config{Level: Error, Output: []string{filepath.Join(t.TempDir(), "out.log")}})
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.ErrorLevel))
}

func TestNewBadEncoding(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Encoding: "xml"})
	assert.Error(t, err)
}
