package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/m-mizutani/clog"
)

type contextKey struct{}

// Format selects the log handler
type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

var (
	loggerKey = contextKey{}

	// stdout is reserved for command output and the MCP stdio stream
	defaultLogger   = New("info", os.Stderr)
	defaultLoggerMu sync.RWMutex
)

func parseLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// New creates a console logger. Unknown levels fall back to info.
func New(level string, w io.Writer) *slog.Logger {
	return NewWithFormat(level, FormatConsole, w)
}

// NewWithFormat creates a logger writing either colored console lines or JSON
// records. A nil writer means stderr.
func NewWithFormat(level string, format Format, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	lvl, ok := parseLevel(level)

	var logger *slog.Logger
	if Format(strings.ToLower(string(format))) == FormatJSON {
		logger = slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
	} else {
		logger = slog.New(clog.New(
			clog.WithWriter(w),
			clog.WithLevel(lvl),
			clog.WithTimeFmt("15:04:05"),
			clog.WithSource(false),
			clog.WithAttrHook(clog.GoerrHook),
		))
	}

	if !ok {
		logger.Warn("invalid log level, using info", "level", level)
	}
	return logger
}

func Default() *slog.Logger {
	defaultLoggerMu.RLock()
	defer defaultLoggerMu.RUnlock()
	return defaultLogger
}

func SetDefault(logger *slog.Logger) {
	defaultLoggerMu.Lock()
	defer defaultLoggerMu.Unlock()
	defaultLogger = logger
}

// With returns a new context with the logger attached
func With(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// From retrieves the logger from the context, or the default logger
func From(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return logger
	}
	return Default()
}

// WithAttrs derives a logger carrying args (e.g. session_id, request_id) and
// attaches it to ctx, so that every log line of a turn or request is tagged.
func WithAttrs(ctx context.Context, args ...any) (context.Context, *slog.Logger) {
	logger := From(ctx).With(args...)
	return With(ctx, logger), logger
}
