package audit

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"
)

// LogrusLogger writes audit events as structured logrus entries. Denied and failed
// events are logged at warn level, everything else at info.
type LogrusLogger struct {
	log *logrus.Logger
}

// NewLogrusLogger creates an audit logger on log. A nil log gets a new JSON logger on
// stdout.
func NewLogrusLogger(log *logrus.Logger) *LogrusLogger {
	if log == nil {
		log = logrus.New()
		log.SetOutput(os.Stdout)
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return &LogrusLogger{log: log}
}

// Log writes event
func (l *LogrusLogger) Log(ctx context.Context, event *AuditEvent) error {
	fields := logrus.Fields{
		"audit":      true,
		"event_type": string(event.EventType),
		"status":     string(event.Status),
	}
	addField(fields, "tenant_id", event.TenantID)
	addField(fields, "user_id", event.UserID)
	addField(fields, "role", event.Role)
	addField(fields, "resource_type", event.ResourceType)
	addField(fields, "resource_id", event.ResourceID)
	addField(fields, "action", event.Action)
	addField(fields, "request_id", event.RequestID)
	addField(fields, "error", event.ErrorMessage)
	if len(event.Metadata) > 0 {
		fields["metadata"] = event.Metadata
	}
	if event.Changes != nil {
		fields["changes"] = event.Changes
	}

	entry := l.log.WithFields(fields).WithTime(event.Timestamp)
	msg := event.Message
	if msg == "" {
		msg = string(event.EventType)
	}

	switch event.Status {
	case EventStatusDenied, EventStatusFailure:
		entry.Warn(msg)
	default:
		entry.Info(msg)
	}
	return nil
}

// Close is a no-op; the underlying logrus logger is owned by the caller
func (l *LogrusLogger) Close() error {
	return nil
}

func addField(fields logrus.Fields, key, value string) {
	if value != "" {
		fields[key] = value
	}
}
