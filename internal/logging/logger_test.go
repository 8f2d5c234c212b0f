package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    LogLevel
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"loud", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLogLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", LogLevel(42).String())
}

func TestJSONLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelDebug, Format: "json", Output: &buf})

	logger.WithComponent("pipeline").
		With("task", "styles").
		Error(context.Background(), errors.New("boom"), "task failed", "file", "app/sass/main.scss")

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))

	assert.Equal(t, "task failed", rec["msg"])
	assert.Equal(t, "ERROR", rec["level"])
	assert.Equal(t, "pipeline", rec["component"])
	assert.Equal(t, "boom", rec["error"])
	assert.Equal(t, "styles", rec["task"])
	assert.Equal(t, "app/sass/main.scss", rec["file"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelWarn, Output: &buf})

	logger.Debug(context.Background(), "hidden debug")
	logger.Info(context.Background(), "hidden info")
	logger.Warn(context.Background(), nil, "shown warning")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown warning")
}

func TestOddFieldsAreDropped(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelInfo, Output: &buf})

	logger.Info(context.Background(), "message", "key", "value", "dangling", 7, "value2")

	out := buf.String()
	assert.Contains(t, out, "key=value")
	assert.False(t, strings.Contains(out, "value2"))
}

func TestRecorder(t *testing.T) {
	rec := NewRecorder()
	derived := rec.WithComponent("watcher").With("root", "app")

	derived.Info(context.Background(), "watching", "dirs", 3)
	rec.Warn(context.Background(), errors.New("x"), "careful")

	entries := rec.Entries()
	require.Len(t, entries, 2)

	assert.Equal(t, "watcher", entries[0].Component)
	assert.Equal(t, "app", entries[0].Fields["root"])
	assert.Equal(t, 3, entries[0].Fields["dirs"])
	assert.Equal(t, LevelWarn, entries[1].Level)
	assert.EqualError(t, entries[1].Err, "x")
}

func TestPerfLogger(t *testing.T) {
	rec := NewRecorder()
	op := StartOperation(rec, "build")
	d := op.End(context.Background(), "tasks", 7)

	assert.GreaterOrEqual(t, int64(d), int64(0))
	entries := rec.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "build", entries[0].Fields["operation"])
	assert.Equal(t, 7, entries[0].Fields["tasks"])
	assert.Contains(t, entries[0].Fields, "duration")
}
