package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/nerrad567/stomp-sql-gateway/internal/infrastructure/config"
)

// serviceName is attached to every log entry.
const serviceName = "sqlgateway"

// Logger is a slog.Logger carrying the gateway's service and version
// fields. It is safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New builds the process logger from the logging config section. Output
// "stderr" selects standard error; anything else writes to standard output.
func New(cfg config.LoggingConfig, version string) *Logger {
	var out io.Writer = os.Stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		out = os.Stderr
	}
	return NewWithWriter(cfg, version, out)
}

// NewWithWriter is New with an explicit destination, ignoring cfg.Output.
// Format "text" selects slog's text handler; the default is JSON.
func NewWithWriter(cfg config.LoggingConfig, version string, out io.Writer) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var h slog.Handler = slog.NewJSONHandler(out, opts)
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(out, opts)
	}
	h = h.WithAttrs([]slog.Attr{
		slog.String("service", serviceName),
		slog.String("version", version),
	})
	return &Logger{Logger: slog.New(h)}
}

// parseLevel maps debug, info, warn (or warning) and error to slog levels,
// case-insensitively. Anything else is info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Default is the logger used until the configuration file has been read:
// JSON on stdout at info level.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json"}, "dev")
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// With returns a child logger with extra attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Component tags entries with the subsystem that wrote them.
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Session tags entries with one client connection's identity.
func (l *Logger) Session(id, remoteAddr string) *Logger {
	return l.With("session_id", id, "remote_addr", remoteAddr)
}

// Command records the outcome of one client command. Successes are debug
// entries; failures are warnings carrying the engine's message. The command
// text itself is never logged since it may hold credentials.
func (l *Logger) Command(kind, verb string, elapsed time.Duration, failure string) {
	if failure == "" {
		l.Debug("command executed", "kind", kind, "verb", verb, "duration", elapsed)
		return
	}
	l.Warn("command failed", "kind", kind, "verb", verb, "duration", elapsed, "error", failure)
}
