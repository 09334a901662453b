package logging

import (
	"context"

	"go.uber.org/zap"
)

// Context key types
type requestCtxKey struct{}
type threadCtxKey struct{}

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 2)

	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request.id", requestID))
	}

	if threadID := ThreadIDFromContext(ctx); threadID != "" {
		fields = append(fields, zap.String("thread.id", threadID))
	}

	return fields
}

// ContextWithRequestID attaches a request identifier to the context.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

// RequestIDFromContext returns the request identifier, or "" when absent.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestCtxKey{}).(string); ok {
		return v
	}
	return ""
}

// ContextWithThreadID attaches a conversation thread identifier to the context.
func ContextWithThreadID(ctx context.Context, threadID string) context.Context {
	return context.WithValue(ctx, threadCtxKey{}, threadID)
}

// ThreadIDFromContext returns the conversation thread identifier, or "" when absent.
func ThreadIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(threadCtxKey{}).(string); ok {
		return v
	}
	return ""
}
