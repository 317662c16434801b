package model

import (
	"errors"
	"strings"
	"time"
)

// Event is an immutable record of something a source observed.
// Copies are passed by value, so no stage can mutate another stage's view.
type Event struct {
	Kind       string    `json:"kind"`
	Payload    string    `json:"payload"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewEvent creates an event; a zero occurredAt means now
func NewEvent(kind, payload string, occurredAt time.Time) Event {
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}
	return Event{
		Kind:       strings.TrimSpace(kind),
		Payload:    payload,
		OccurredAt: occurredAt.UTC(),
	}
}

// Validate checks that the event can be processed
func (e Event) Validate() error {
	if e.Kind == "" {
		return errors.New("event kind is required")
	}
	return nil
}

// ToMap converts the event to a map representation
func (e Event) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"kind":        e.Kind,
		"payload":     e.Payload,
		"occurred_at": e.OccurredAt,
	}
}

// Notice is an internal message published on the daemon's bus
type Notice struct {
	Type      NoticeType
	SourceID  string
	Data      interface{}
	Timestamp time.Time
}

// NewNotice creates a new notice stamped with the current time
func NewNotice(noticeType NoticeType, sourceID string, data interface{}) Notice {
	return Notice{
		Type:      noticeType,
		SourceID:  sourceID,
		Data:      data,
		Timestamp: time.Now(),
	}
}
