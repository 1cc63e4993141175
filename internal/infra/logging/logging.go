package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"carservice-commerce/internal/config"

	"github.com/rs/zerolog"
)

// New builds the service logger. Levels: trace|debug|info|warn|error.
// Formats: json|console; dev always writes console output. Sampling keeps
// one event in 100 and only applies outside dev.
func New(cfg config.LogConfig, dev bool) *zerolog.Logger {
	return newLogger(os.Stdout, cfg, dev)
}

func newLogger(w io.Writer, cfg config.LogConfig, dev bool) *zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	if strings.EqualFold(cfg.Format, "console") || dev {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	base := zerolog.New(w).Level(level).With().Timestamp().Str("service", "carservice-commerce").Logger()

	if cfg.Sampling && !dev {
		sampled := base.Sample(&zerolog.BasicSampler{N: 100})
		return &sampled
	}
	return &base
}

type ctxKey int

const fieldsKey ctxKey = 0

// request-scoped fields carried on the context
type fields struct {
	traceID   string
	requestID string
	userID    string
}

func fromContext(ctx context.Context) fields {
	f, _ := ctx.Value(fieldsKey).(fields)
	return f
}

// With returns base enriched with the trace, request and user IDs stored on ctx.
func With(ctx context.Context, base *zerolog.Logger) *zerolog.Logger {
	f := fromContext(ctx)
	if f == (fields{}) {
		return base
	}
	l := base.With()
	if f.traceID != "" {
		l = l.Str("trace_id", f.traceID)
	}
	if f.requestID != "" {
		l = l.Str("request_id", f.requestID)
	}
	if f.userID != "" {
		l = l.Str("user_id", f.userID)
	}
	logger := l.Logger()
	return &logger
}

// TraceDuration logs entry and exit of name at trace level.
// Usage: defer logging.TraceDuration(logger, "LedgerService.Apply")()
func TraceDuration(logger *zerolog.Logger, name string) func() {
	start := time.Now()
	logger.Trace().Str("method", name).Msg("start")
	return func() {
		logger.Trace().Str("method", name).Dur("duration", time.Since(start)).Msg("finish")
	}
}

func WithTraceID(ctx context.Context, id string) context.Context {
	f := fromContext(ctx)
	f.traceID = id
	return context.WithValue(ctx, fieldsKey, f)
}

func WithRequestID(ctx context.Context, id string) context.Context {
	f := fromContext(ctx)
	f.requestID = id
	return context.WithValue(ctx, fieldsKey, f)
}

func WithUserID(ctx context.Context, id string) context.Context {
	f := fromContext(ctx)
	f.userID = id
	return context.WithValue(ctx, fieldsKey, f)
}
