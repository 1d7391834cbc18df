package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
)

// Manager manages slog-based logging with console, file, and optional
// Graylog output.
type Manager struct {
	logger *slog.Logger

	logFile    *os.File
	gelfWriter *gelf.Writer
}

// Options control where log records are sent.
type Options struct {
	// Level is the minimum level as a string ("debug", "info", "warn", "error").
	Level string

	// LogsDir, when non-empty, receives a timestamped log file.
	LogsDir string

	// GraylogAddress, when non-empty, enables a GELF UDP handler.
	GraylogAddress string
}

// NewManager creates an unconfigured logging manager. Call Setup before use.
func NewManager() *Manager {
	return &Manager{}
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup initializes the logging system. A failure to open the log file or
// reach Graylog degrades to console-only logging rather than an error.
func (m *Manager) Setup(opts Options) {
	lvl := parseLevel(opts.Level)

	handlerOpts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
				}
			}
			return a
		},
	}

	var handlers []slog.Handler

	handlers = append(handlers, slog.NewTextHandler(os.Stdout, handlerOpts))

	if opts.LogsDir != "" {
		if f, err := openLogFile(opts.LogsDir); err == nil {
			m.logFile = f
			handlers = append(handlers, slog.NewTextHandler(f, handlerOpts))
		}
	}

	if opts.GraylogAddress != "" {
		if w, err := gelf.NewWriter(opts.GraylogAddress); err == nil {
			m.gelfWriter = w
			handlers = append(handlers, slog.NewJSONHandler(w, handlerOpts))
		}
	}

	m.logger = slog.New(NewMultiHandler(handlers...))
	m.logger.Info("Logging initialized", "level", opts.Level)
}

// SetupWriter initializes logging against an explicit writer. Used by tests
// and embedders that manage their own output.
func (m *Manager) SetupWriter(w io.Writer, level string) {
	handlerOpts := &slog.HandlerOptions{Level: parseLevel(level)}
	m.logger = slog.New(NewMultiHandler(slog.NewTextHandler(w, handlerOpts)))
}

func openLogFile(dir string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	name := fmt.Sprintf("derive_%s.log", time.Now().UTC().Format("2006-01-02_15-04-05"))
	return os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}

// Logger returns the configured slog.Logger.
func (m *Manager) Logger() *slog.Logger {
	if m.logger == nil {
		// Setup hasn't been called
		return slog.Default()
	}
	return m.logger
}

// Close releases the log file and Graylog connection.
func (m *Manager) Close() error {
	var firstErr error
	if m.logFile != nil {
		if err := m.logFile.Close(); err != nil {
			firstErr = err
		}
		m.logFile = nil
	}
	if m.gelfWriter != nil {
		if err := m.gelfWriter.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		m.gelfWriter = nil
	}
	return firstErr
}
