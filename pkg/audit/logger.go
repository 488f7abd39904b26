package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/depreg/pkg/observability"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log records an audit event
	Log(ctx context.Context, event *Event) error

	// Close flushes and releases the destination
	Close() error
}

// NewEvent builds an event stamped with a fresh ID, the current time and the
// request ID carried by ctx. A non-nil err marks the event as failed.
func NewEvent(ctx context.Context, eventType EventType, hive, key string, err error) *Event {
	event := &Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    EventStatusSuccess,
		RequestID: observability.GetRequestID(ctx),
		Hive:      hive,
		Key:       key,
	}
	if err != nil {
		event.Status = EventStatusFailure
		event.ErrorMessage = err.Error()
	}
	return event
}

// NoOpLogger discards every event
type NoOpLogger struct{}

func (NoOpLogger) Log(context.Context, *Event) error { return nil }
func (NoOpLogger) Close() error                      { return nil }

// LogrusLogger writes events as structured log entries
type LogrusLogger struct {
	logger logrus.FieldLogger
}

// NewLogrusLogger creates an audit logger on top of logger
func NewLogrusLogger(logger logrus.FieldLogger) *LogrusLogger {
	return &LogrusLogger{logger: logger.WithField("component", "audit")}
}

// Log writes event at info level, or warn level for failures
func (l *LogrusLogger) Log(ctx context.Context, event *Event) error {
	entry := l.logger.WithFields(logrus.Fields{
		"audit_id":   event.ID,
		"event_type": event.EventType,
		"status":     event.Status,
		"hive":       event.Hive,
		"key":        event.Key,
	})
	if event.RequestID != "" {
		entry = entry.WithField("request_id", event.RequestID)
	}
	if event.Dependent != "" {
		entry = entry.WithField("dependent", event.Dependent)
	}
	if event.Changes != nil {
		entry = entry.WithField("changes", event.Changes)
	}

	if event.IsFailure() {
		entry.WithField("error", event.ErrorMessage).Warn("audit event")
		return nil
	}
	entry.Info("audit event")
	return nil
}

// Close is a no-op
func (l *LogrusLogger) Close() error {
	return nil
}
