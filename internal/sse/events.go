// Package sse streams watcher notifications to HTTP clients as Server-Sent
// Events.
package sse

import (
	"time"

	"github.com/movewatch/movewatch/internal/watcher"
)

// EventType names an SSE event. Notifications use the watcher kind names
// prefixed with "fs.".
type EventType string

const (
	// EventConnected is the first event a client receives.
	EventConnected EventType = "connected"
	// EventHeartbeat keeps idle connections open.
	EventHeartbeat EventType = "heartbeat"
	// EventWatchAdded is sent when a directory starts being watched.
	EventWatchAdded EventType = "watch.added"
	// EventWatchRemoved is sent when a directory stops being watched.
	EventWatchRemoved EventType = "watch.removed"
)

// Event is one SSE message.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
	Type      EventType `json:"type"`

	// kind is set for notifications and used for client filtering.
	kind   watcher.EventType
	notify bool
}

// NotificationType returns the SSE event type for a watcher kind.
func NotificationType(kind watcher.EventType) EventType {
	return EventType("fs." + kind.String())
}

// NewNotificationEvent wraps a watcher notification.
func NewNotificationEvent(ev watcher.Event) Event {
	return Event{
		Type:      NotificationType(ev.Type),
		Timestamp: ev.Time,
		Data:      ev,
		kind:      ev.Type,
		notify:    true,
	}
}

// NewHeartbeatEvent creates a keepalive event.
func NewHeartbeatEvent() Event {
	return Event{
		Type:      EventHeartbeat,
		Timestamp: time.Now(),
	}
}

// WatchData is the payload of watch.added and watch.removed.
type WatchData struct {
	Path   string `json:"path"`
	ID     int    `json:"id"`
	Events string `json:"events,omitempty"`
}

// NewWatchAddedEvent reports a new watch.
func NewWatchAddedEvent(w watcher.Watch) Event {
	return Event{
		Type:      EventWatchAdded,
		Timestamp: time.Now(),
		Data:      WatchData{Path: w.Path, ID: w.ID, Events: w.Ops.String()},
	}
}

// NewWatchRemovedEvent reports a removed watch.
func NewWatchRemovedEvent(path string, wd int) Event {
	return Event{
		Type:      EventWatchRemoved,
		Timestamp: time.Now(),
		Data:      WatchData{Path: path, ID: wd},
	}
}
