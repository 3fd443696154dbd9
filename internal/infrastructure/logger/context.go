package logger

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// contextKey is a type for context keys used by the logger package
type contextKey string

const (
	// LoggerKey is the context key for the logger
	LoggerKey contextKey = "logger"
	// SpaceIDKey is the context key for the active space
	SpaceIDKey contextKey = "space_id"
	// SessionIDKey is the context key for the client session
	SessionIDKey contextKey = "session_id"
)

// WithContext returns a new context with the logger attached
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// FromContext retrieves the logger from context, returns a no-op logger if not found
func FromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(LoggerKey).(*zap.Logger); ok {
		return logger
	}
	return zap.NewNop()
}

// WithSpaceID adds the active space to the context and returns an enriched logger
func WithSpaceID(ctx context.Context, logger *zap.Logger, spaceID uuid.UUID) (context.Context, *zap.Logger) {
	ctx = context.WithValue(ctx, SpaceIDKey, spaceID)
	enriched := logger.With(zap.String("space_id", spaceID.String()))
	return WithContext(ctx, enriched), enriched
}

// WithSessionID adds the client session ID to the context and returns an enriched logger
func WithSessionID(ctx context.Context, logger *zap.Logger, sessionID string) (context.Context, *zap.Logger) {
	ctx = context.WithValue(ctx, SessionIDKey, sessionID)
	enriched := logger.With(zap.String("session_id", sessionID))
	return WithContext(ctx, enriched), enriched
}

// GetSpaceID retrieves the active space from the context
func GetSpaceID(ctx context.Context) uuid.UUID {
	if spaceID, ok := ctx.Value(SpaceIDKey).(uuid.UUID); ok {
		return spaceID
	}
	return uuid.Nil
}
