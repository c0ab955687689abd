package audit

import (
	"context"
	"time"

	"github.com/platinummonkey/crmcore/pkg/contextkeys"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log logs an audit event
	Log(ctx context.Context, event *AuditEvent) error

	// Close closes the logger and flushes any buffered logs
	Close() error
}

// contextKey is the type for context keys
type contextKey string

// AuditLoggerKey is the context key for the audit logger
const AuditLoggerKey contextKey = "audit_logger"

// WithLogger adds an audit logger to the context
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, AuditLoggerKey, logger)
}

// FromContext retrieves the audit logger from context
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(AuditLoggerKey).(Logger); ok {
		return logger
	}
	return NoopLogger{}
}

// NoopLogger discards every event
type NoopLogger struct{}

func (NoopLogger) Log(ctx context.Context, event *AuditEvent) error { return nil }
func (NoopLogger) Close() error                                      { return nil }

// NewEvent builds an event stamped with the actor and request id found in ctx
func NewEvent(ctx context.Context, eventType EventType, status EventStatus) *AuditEvent {
	event := &AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		RequestID: contextkeys.GetRequestID(ctx),
	}

	if ac, ok := contextkeys.GetAuth(ctx); ok {
		event.TenantID = ac.TenantID()
		event.UserID = ac.UserID()
		event.Role = string(ac.Role())
	} else {
		event.UserID = contextkeys.GetUserID(ctx)
	}

	return event
}
