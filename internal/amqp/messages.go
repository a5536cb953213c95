package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType names a record mutation.
type EventType string

const (
	EventCreated     EventType = "created"
	EventUpdated     EventType = "updated"
	EventDeactivated EventType = "deactivated"
	EventReactivated EventType = "reactivated"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventCreated, EventUpdated, EventDeactivated, EventReactivated:
		return true
	}
	return false
}

// RecordEvent announces that a record changed. It carries only the id;
// consumers fetch the current state themselves.
type RecordEvent struct {
	EventID   string    `json:"event_id"`
	Type      EventType `json:"type"`
	RecordID  int64     `json:"record_id"`
	Actor     string    `json:"actor,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewRecordEvent creates an event with a fresh id and the current time.
func NewRecordEvent(t EventType, recordID int64, actor string) *RecordEvent {
	return &RecordEvent{
		EventID:   uuid.NewString(),
		Type:      t,
		RecordID:  recordID,
		Actor:     actor,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the event to JSON bytes
func (e *RecordEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// RecordEventFromJSON decodes and validates an event.
func RecordEventFromJSON(data []byte) (*RecordEvent, error) {
	var e RecordEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if !e.Type.Valid() {
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.RecordID <= 0 {
		return nil, fmt.Errorf("invalid record id %d", e.RecordID)
	}
	return &e, nil
}
