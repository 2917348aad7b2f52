package watcher

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// NameFunc receives a create, delete, modify, moved-in or moved-away notification.
type NameFunc func(name string, watchID int)

// RenameFunc receives a rename notification.
type RenameFunc func(oldName, newName string, watchID int)

// EventFunc receives every notification as an Event.
type EventFunc func(Event)

type handlerEntry struct {
	name   NameFunc
	rename RenameFunc
	any    EventFunc
	id     uuid.UUID
	kind   EventType
}

// Handlers is a registry of notification callbacks. Several callbacks may be
// registered per kind; they run in registration order on the watcher's worker
// goroutine. A slow callback delays every later notification.
//
// Registration is safe at any time, including from inside a callback.
type Handlers struct {
	entries atomic.Pointer[[]handlerEntry]
	mu      sync.Mutex
}

// NewHandlers creates an empty registry.
func NewHandlers() *Handlers {
	h := &Handlers{}
	h.entries.Store(&[]handlerEntry{})
	return h
}

// OnCreate registers fn for entries created in a watched directory.
func (h *Handlers) OnCreate(fn NameFunc) uuid.UUID {
	return h.add(handlerEntry{kind: EventCreated, name: fn})
}

// OnDelete registers fn for entries deleted from a watched directory.
func (h *Handlers) OnDelete(fn NameFunc) uuid.UUID {
	return h.add(handlerEntry{kind: EventDeleted, name: fn})
}

// OnModify registers fn for files written in a watched directory.
func (h *Handlers) OnModify(fn NameFunc) uuid.UUID {
	return h.add(handlerEntry{kind: EventModified, name: fn})
}

// OnRename registers fn for moves whose both halves were observed.
func (h *Handlers) OnRename(fn RenameFunc) uuid.UUID {
	return h.add(handlerEntry{kind: EventRenamed, rename: fn})
}

// OnMovedIn registers fn for entries moved in from an unwatched location.
func (h *Handlers) OnMovedIn(fn NameFunc) uuid.UUID {
	return h.add(handlerEntry{kind: EventMovedIn, name: fn})
}

// OnMovedAway registers fn for entries moved to an unwatched location.
func (h *Handlers) OnMovedAway(fn NameFunc) uuid.UUID {
	return h.add(handlerEntry{kind: EventMovedAway, name: fn})
}

// OnEvent registers fn for every notification.
func (h *Handlers) OnEvent(fn EventFunc) uuid.UUID {
	return h.add(handlerEntry{any: fn})
}

// Remove unregisters a callback. It reports whether id was registered.
func (h *Handlers) Remove(id uuid.UUID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	current := *h.entries.Load()
	for i, e := range current {
		if e.id != id {
			continue
		}
		next := make([]handlerEntry, 0, len(current)-1)
		next = append(next, current[:i]...)
		next = append(next, current[i+1:]...)
		h.entries.Store(&next)
		return true
	}
	return false
}

// Len returns the number of registered callbacks.
func (h *Handlers) Len() int {
	return len(*h.entries.Load())
}

func (h *Handlers) add(e handlerEntry) uuid.UUID {
	if e.name == nil && e.rename == nil && e.any == nil {
		return uuid.Nil
	}
	e.id = uuid.New()

	h.mu.Lock()
	defer h.mu.Unlock()

	current := *h.entries.Load()
	next := make([]handlerEntry, len(current), len(current)+1)
	copy(next, current)
	next = append(next, e)
	h.entries.Store(&next)
	return e.id
}

// emit delivers ev to every matching callback. Kinds without callbacks are
// dropped.
func (h *Handlers) emit(ev Event) {
	for _, e := range *h.entries.Load() {
		switch {
		case e.any != nil:
			e.any(ev)
		case e.kind != ev.Type:
		case e.rename != nil:
			e.rename(ev.OldName, ev.Name, ev.WatchID)
		case e.name != nil:
			e.name(ev.Name, ev.WatchID)
		}
	}
}
