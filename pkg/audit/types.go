package audit

import (
	"time"
)

// EventType is the registry mutation an event records
type EventType string

const (
	EventTypeRegisterDependency   EventType = "dependency.register"
	EventTypeUnregisterDependency EventType = "dependency.unregister"
	EventTypeRegisterDependent    EventType = "dependent.register"
	EventTypeUnregisterDependent  EventType = "dependent.unregister"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
)

// Event is one audited registry mutation
type Event struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`
	RequestID string      `json:"request_id,omitempty"`

	Hive      string `json:"hive"`
	Key       string `json:"key"`
	Dependent string `json:"dependent,omitempty"`

	// Changes holds the written row for register events
	Changes *ChangeDetails `json:"changes,omitempty"`

	ErrorMessage string `json:"error_message,omitempty"`
}

// ChangeDetails captures the values written by a register event
type ChangeDetails struct {
	Version     string `json:"version,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	MinVersion  string `json:"min_version,omitempty"`
	MaxVersion  string `json:"max_version,omitempty"`
	Attributes  int    `json:"attributes,omitempty"`
}

// IsFailure reports whether the audited operation failed
func (e *Event) IsFailure() bool {
	return e.Status == EventStatusFailure
}
