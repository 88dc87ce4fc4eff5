package common

import "context"

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyRequestID contextKey = "request_id"
	ContextKeyThreadID  contextKey = "thread_id"
)

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// RequestIDFromContext extracts the request ID from context
func RequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return requestID
	}
	return ""
}

// WithThreadID tags the context with the workflow thread being driven.
func WithThreadID(ctx context.Context, threadID string) context.Context {
	return context.WithValue(ctx, ContextKeyThreadID, threadID)
}

// ThreadIDFromContext extracts the workflow thread ID from context
func ThreadIDFromContext(ctx context.Context) string {
	if threadID, ok := ctx.Value(ContextKeyThreadID).(string); ok {
		return threadID
	}
	return ""
}
