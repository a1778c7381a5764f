package utils

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Logger is the logging surface the engine depends on. The *Ctx variants
// append the key-value pairs attached to ctx by WithDefaultArgs, so a live
// query or a reindex can tag every line it logs without threading ids
// through each call.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	DebugCtx(ctx context.Context, msg string, args ...any)
	InfoCtx(ctx context.Context, msg string, args ...any)
	WarnCtx(ctx context.Context, msg string, args ...any)
	ErrorCtx(ctx context.Context, msg string, args ...any)
}

// DefaultLogger writes slog text records prefixed with "[feedview] ".
// Records below the configured level are dropped before formatting.
type DefaultLogger struct {
	logger *slog.Logger
}

// NewDefaultLogger logs to stderr.
func NewDefaultLogger(level slog.Level) *DefaultLogger {
	return NewWriterLogger(os.Stderr, level)
}

// NewWriterLogger logs text records to w, mostly useful in tests and the REPL.
func NewWriterLogger(w io.Writer, level slog.Level) *DefaultLogger {
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
	return &DefaultLogger{logger: logger}
}

const prefix = "[feedview] "

func (d *DefaultLogger) log(ctx context.Context, level slog.Level, msg string, args []any) {
	if !d.logger.Enabled(ctx, level) {
		return
	}
	if dargs := getDefaultArgs(ctx); len(dargs) > 0 {
		args = append(args[:len(args):len(args)], dargs...)
	}
	d.logger.Log(ctx, level, prefix+msg, args...)
}

func (d *DefaultLogger) Debug(msg string, args ...any) {
	d.log(context.Background(), slog.LevelDebug, msg, args)
}

func (d *DefaultLogger) Info(msg string, args ...any) {
	d.log(context.Background(), slog.LevelInfo, msg, args)
}

func (d *DefaultLogger) Warn(msg string, args ...any) {
	d.log(context.Background(), slog.LevelWarn, msg, args)
}

func (d *DefaultLogger) Error(msg string, args ...any) {
	d.log(context.Background(), slog.LevelError, msg, args)
}

type defaultArgsKey struct{}

func getDefaultArgs(ctx context.Context) []any {
	ctxargs, _ := ctx.Value(defaultArgsKey{}).([]any)
	return ctxargs
}

// WithDefaultArgs attaches key-value pairs that every *Ctx call appends.
func WithDefaultArgs(ctx context.Context, args ...any) context.Context {
	dargs := getDefaultArgs(ctx)
	merged := make([]any, 0, len(dargs)+len(args))
	merged = append(merged, dargs...)
	merged = append(merged, args...)
	return context.WithValue(ctx, defaultArgsKey{}, merged)
}

func (d *DefaultLogger) DebugCtx(ctx context.Context, msg string, args ...any) {
	d.log(ctx, slog.LevelDebug, msg, args)
}

func (d *DefaultLogger) InfoCtx(ctx context.Context, msg string, args ...any) {
	d.log(ctx, slog.LevelInfo, msg, args)
}

func (d *DefaultLogger) WarnCtx(ctx context.Context, msg string, args ...any) {
	d.log(ctx, slog.LevelWarn, msg, args)
}

func (d *DefaultLogger) ErrorCtx(ctx context.Context, msg string, args ...any) {
	d.log(ctx, slog.LevelError, msg, args)
}
