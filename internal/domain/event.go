package domain

import "time"

// EventType identifies what happened to a beacon.
type EventType int

const (
	// EventActiveAdded is emitted when a beacon joins the active registry.
	EventActiveAdded EventType = iota + 1
	// EventStateChanged is emitted when a beacon's desired state changes.
	EventStateChanged
)

// String returns the wire name of the event type.
func (t EventType) String() string {
	switch t {
	case EventActiveAdded:
		return "active_added"
	case EventStateChanged:
		return "state_changed"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Event is a beacon state notification.
type Event struct {
	Type     EventType   `json:"type"`
	Identity Identity    `json:"identity"`
	State    ActiveState `json:"state"`
	Subject  string      `json:"subject,omitempty"`
	At       time.Time   `json:"at"`
}
