package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupWriter_DebugLevel(t *testing.T) {
	var buf bytes.Buffer
	m := NewManager()
	m.SetupWriter(&buf, "debug")

	m.Logger().Debug("debug msg")
	m.Logger().Info("info msg")

	output := buf.String()
	assert.Contains(t, output, "debug msg")
	assert.Contains(t, output, "info msg")
}

func TestSetupWriter_InfoLevel_FiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	m := NewManager()
	m.SetupWriter(&buf, "info")

	m.Logger().Debug("should be filtered")
	m.Logger().Info("should appear")

	output := buf.String()
	assert.NotContains(t, output, "should be filtered")
	assert.Contains(t, output, "should appear")
}

func TestSetup_CreatesLogFile(t *testing.T) {
	dir := t.TempDir()
	m := NewManager()
	m.Setup(Options{Level: "info", LogsDir: filepath.Join(dir, "logs")})
	t.Cleanup(func() { m.Close() })

	m.Logger().Info("to file")

	entries, err := os.ReadDir(filepath.Join(dir, "logs"))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	data, err := os.ReadFile(filepath.Join(dir, "logs", entries[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
}

func TestSetup_UnreachableLogsDir_DegradesToConsole(t *testing.T) {
	m := NewManager()
	// A path under an existing file cannot be created as a directory.
	f := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(f, []byte("x"), 0644))

	m.Setup(Options{Level: "info", LogsDir: filepath.Join(f, "logs")})
	t.Cleanup(func() { m.Close() })

	// Logging must still work
	m.Logger().Info("console only")
	assert.Nil(t, m.logFile)
}

func TestLogger_DefaultBeforeSetup(t *testing.T) {
	m := NewManager()
	assert.Equal(t, slog.Default(), m.Logger())
}

func TestClose_Idempotent(t *testing.T) {
	m := NewManager()
	m.Setup(Options{Level: "info", LogsDir: t.TempDir()})
	assert.NoError(t, m.Close())
	assert.NoError(t, m.Close())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"invalid", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.input))
		})
	}
}

func TestMultiHandler_FansOut(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	h1 := slog.NewTextHandler(&buf1, &slog.HandlerOptions{Level: slog.LevelInfo})
	h2 := slog.NewTextHandler(&buf2, &slog.HandlerOptions{Level: slog.LevelInfo})

	logger := slog.New(NewMultiHandler(h1, h2))
	logger.Info("fanned out")

	assert.Contains(t, buf1.String(), "fanned out")
	assert.Contains(t, buf2.String(), "fanned out")
}

func TestMultiHandler_FiltersNilHandlers(t *testing.T) {
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, nil)

	multi := NewMultiHandler(nil, h, nil)
	require.Len(t, multi.handlers, 1)

	slog.New(multi).Info("works")
	assert.Contains(t, buf.String(), "works")
}

func TestMultiHandler_Enabled(t *testing.T) {
	infoHandler := slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelInfo})
	debugHandler := slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelDebug})

	infoOnly := NewMultiHandler(infoHandler)
	assert.False(t, infoOnly.Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, infoOnly.Enabled(context.Background(), slog.LevelInfo))

	both := NewMultiHandler(infoHandler, debugHandler)
	assert.True(t, both.Enabled(context.Background(), slog.LevelDebug))
}

func TestMultiHandler_Empty(t *testing.T) {
	multi := NewMultiHandler()
	assert.False(t, multi.Enabled(context.Background(), slog.LevelInfo))
}

func TestMultiHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})

	logger := slog.New(NewMultiHandler(h).WithAttrs([]slog.Attr{slog.String("component", "test")}))
	logger.Info("with attrs")

	assert.Contains(t, buf.String(), "component=test")
}

func TestMultiHandler_WithGroup(t *testing.T) {
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})

	logger := slog.New(NewMultiHandler(h).WithGroup("grp"))
	logger.Info("grouped", "key", "val")

	assert.Contains(t, buf.String(), "grp.key=val")
}

func TestMultiHandler_WithGroupEmpty(t *testing.T) {
	h := slog.NewTextHandler(&bytes.Buffer{}, nil)
	multi := NewMultiHandler(h)

	assert.Equal(t, multi, multi.WithGroup(""))
}

// errorHandler is a slog.Handler that always returns an error from Handle.
type errorHandler struct {
	slog.Handler
}

func (h *errorHandler) Handle(_ context.Context, _ slog.Record) error {
	return errors.New("handler error")
}

func (h *errorHandler) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

func TestMultiHandler_HandleError(t *testing.T) {
	var buf bytes.Buffer
	spy := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})

	multi := NewMultiHandler(&errorHandler{}, spy)
	err := multi.Handle(context.Background(), slog.Record{Level: slog.LevelInfo, Message: "should reach spy"})

	assert.Error(t, err)
	assert.Contains(t, buf.String(), "should reach spy")
}
