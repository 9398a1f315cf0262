package logger

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

type ctxKey int

const (
	ctxLoggerKey ctxKey = iota
	ctxFieldsKey
)

type ctxFields struct {
	mu     sync.Mutex
	fields []zap.Field
}

// NewFromCtx returns the logger stored in ctx, or the global one, with the
// ctx fields attached.
func NewFromCtx(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return globalLogger
	}
	lg, ok := ctx.Value(ctxLoggerKey).(*zap.Logger)
	if !ok || lg == nil {
		lg = globalLogger
	}
	if fields := GetCtxFields(ctx); len(fields) > 0 {
		return lg.With(fields...)
	}
	return lg
}

func WrapInCtx(ctx context.Context, lg *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxLoggerKey, lg)
}

// CtxWithAttrs attaches a mutable field set to ctx.
func CtxWithAttrs(ctx context.Context, fields ...zap.Field) context.Context {
	holder := &ctxFields{fields: append([]zap.Field(nil), fields...)}
	return context.WithValue(ctx, ctxFieldsKey, holder)
}

// SetCtxFields appends to the field set created by CtxWithAttrs; it is a no-op otherwise.
func SetCtxFields(ctx context.Context, fields ...zap.Field) {
	holder, ok := ctx.Value(ctxFieldsKey).(*ctxFields)
	if !ok {
		return
	}
	holder.mu.Lock()
	holder.fields = append(holder.fields, fields...)
	holder.mu.Unlock()
}

func GetCtxFields(ctx context.Context) []zap.Field {
	holder, ok := ctx.Value(ctxFieldsKey).(*ctxFields)
	if !ok {
		return nil
	}
	holder.mu.Lock()
	defer holder.mu.Unlock()
	return append([]zap.Field(nil), holder.fields...)
}

// WithCtxFields returns the ctx fields followed by extra, without storing extra.
func WithCtxFields(ctx context.Context, extra ...zap.Field) []zap.Field {
	return append(GetCtxFields(ctx), extra...)
}
