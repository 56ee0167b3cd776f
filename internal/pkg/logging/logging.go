package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-chi/httplog/v3"
)

// ParseLevel maps DEBUG/INFO/WARN/ERROR (any case) to a slog level. Default INFO.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup builds the process logger and installs it as slog default.
// format "text" gives a human readable handler; anything else is ECS JSON,
// the same schema httplog uses for request logs.
func Setup(level, format string, attrs ...any) *slog.Logger {
	return setup(os.Stdout, level, format, attrs...)
}

func setup(w io.Writer, level, format string, attrs ...any) *slog.Logger {
	var handler slog.Handler
	lvl := ParseLevel(level)

	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})
	} else {
		logFormat := httplog.SchemaECS.Concise(false)
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:       lvl,
			ReplaceAttr: logFormat.ReplaceAttr,
		})
	}

	logger := slog.New(handler).With(attrs...)
	slog.SetDefault(logger)
	return logger
}

type ctxKey struct{}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the logger stored in ctx or the default logger.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}
