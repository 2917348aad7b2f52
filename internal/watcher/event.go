package watcher

import (
	"fmt"
	"time"
)

// EventType represents the kind of application-level notification.
type EventType int

const (
	// EventCreated is emitted when an entry is created in a watched directory.
	EventCreated EventType = iota
	// EventDeleted is emitted when an entry is deleted from a watched directory.
	EventDeleted
	// EventModified is emitted when a file in a watched directory is written.
	EventModified
	// EventRenamed is emitted when both halves of a move were observed.
	EventRenamed
	// EventMovedIn is emitted for a moved-to record with no matching departure.
	EventMovedIn
	// EventMovedAway is emitted when a moved-from record was never matched
	// within the dwell threshold.
	EventMovedAway
)

// EventTypes lists every event type in declaration order.
var EventTypes = []EventType{
	EventCreated,
	EventDeleted,
	EventModified,
	EventRenamed,
	EventMovedIn,
	EventMovedAway,
}

// String returns the string representation of the event type.
func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "created"
	case EventDeleted:
		return "deleted"
	case EventModified:
		return "modified"
	case EventRenamed:
		return "renamed"
	case EventMovedIn:
		return "moved_in"
	case EventMovedAway:
		return "moved_away"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *EventType) UnmarshalText(text []byte) error {
	parsed, err := ParseEventType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseEventType is the inverse of EventType.String.
func ParseEventType(s string) (EventType, error) {
	for _, t := range EventTypes {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown event type %q", s)
}

// Event is one application-level notification.
type Event struct {
	// Time is when the notification was emitted.
	Time time.Time `json:"time"`

	// Name is the entry name, or its absolute path when
	// Options.IncludeAbsolutePaths is set. For renames it is the new name.
	Name string `json:"name"`

	// OldName is the name before the move (renames only).
	OldName string `json:"old_name,omitempty"`

	// Type is the kind of notification.
	Type EventType `json:"type"`

	// WatchID identifies the watch that reported the event. For renames it
	// is the destination watch.
	WatchID int `json:"watch_id"`

	// OldWatchID is the watch the entry left (renames only).
	OldWatchID int `json:"old_watch_id,omitempty"`
}
