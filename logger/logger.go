package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type ctxKey string

const (
	RequestIDKey ctxKey = "request_id"
	loggerKey    ctxKey = "logger"
)

type Logger struct {
	*slog.Logger
}

// New cria um logger JSON (ou texto com format="text") com o nível de LOG_LEVEL (padrão info).
func New(format string) *Logger {
	return NewWithWriter(os.Stdout, format, os.Getenv("LOG_LEVEL"))
}

func NewWithWriter(w io.Writer, format, level string) *Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return &Logger{slog.New(handler)}
}

func parseLevel(s string) slog.Level {
	level := slog.LevelInfo
	if s == "" {
		return level
	}
	var parsed slog.Level
	if err := parsed.UnmarshalText([]byte(s)); err == nil {
		level = parsed
	}
	return level
}

func (l *Logger) With(key string, val any) *Logger {
	return &Logger{l.Logger.With(key, val)}
}

func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	return &Logger{slog.Default()}
}

func WithContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}
