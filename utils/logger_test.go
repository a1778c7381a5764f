package utils

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultLogger_CtxArgs(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWriterLogger(buf, slog.LevelDebug)

	ctx := WithDefaultArgs(context.Background(), "query", "q1")
	ctx = WithDefaultArgs(ctx, "index", "typ")
	log.InfoCtx(ctx, "scan started", "reverse", true)

	out := buf.String()
	assert.Contains(t, out, "[feedview] scan started")
	assert.Contains(t, out, "query=q1")
	assert.Contains(t, out, "index=typ")
	assert.Contains(t, out, "reverse=true")
}

func TestDefaultLogger_Level(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWriterLogger(buf, slog.LevelWarn)
	log.Debug("hidden")
	log.Info("hidden too")
	assert.Empty(t, buf.String())
	log.Error("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestWithDefaultArgs_DoesNotAlias(t *testing.T) {
	base := WithDefaultArgs(context.Background(), "a", 1)
	left := WithDefaultArgs(base, "b", 2)
	right := WithDefaultArgs(base, "c", 3)
	assert.Equal(t, []any{"a", 1, "b", 2}, getDefaultArgs(left))
	assert.Equal(t, []any{"a", 1, "c", 3}, getDefaultArgs(right))
}

func TestDefaultLogger_KeepsCallerArgs(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWriterLogger(buf, slog.LevelDebug)
	ctx := WithDefaultArgs(context.Background(), "query", "q1")

	args := make([]any, 2, 8)
	args[0], args[1] = "n", 1
	log.DebugCtx(ctx, "first", args...)
	assert.Equal(t, []any{"n", 1}, args[:cap(args)][:2])
	assert.Nil(t, args[:cap(args)][2], "context args must not be written into the caller's array")
	assert.Contains(t, buf.String(), "query=q1")
}
