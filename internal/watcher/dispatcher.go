package watcher

import (
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/movewatch/movewatch/internal/errors"
	"github.com/movewatch/movewatch/internal/movestore"
)

// Reasons passed to Metrics.Dropped.
const (
	DropCapacity      = "capacity"
	DropQueueOverflow = "queue_overflow"
	DropStopped       = "stopped"
)

// Metrics receives watcher counters.
type Metrics interface {
	Notified(t EventType)
	Dropped(reason string, n int)
	Pending(n int)
	// Watches receives the number of registered directories after every
	// change, including watches the kernel drops.
	Watches(n int)
}

type noopMetrics struct{}

func (noopMetrics) Notified(EventType)  {}
func (noopMetrics) Dropped(string, int) {}
func (noopMetrics) Pending(int)         {}
func (noopMetrics) Watches(int)         {}

// dispatcher turns records into notifications. It is owned by the worker
// goroutine together with its store.
type dispatcher struct {
	store    *movestore.Store
	handlers *Handlers
	metrics  Metrics
	logger   *slog.Logger
	opts     *Options
	warn     *rate.Limiter

	// resolve maps a watch-relative name to the name handed to callbacks.
	resolve func(watchID int, name string) string
}

func newDispatcher(logger *slog.Logger, handlers *Handlers, opts *Options, metrics Metrics, resolve func(int, string) string) *dispatcher {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if resolve == nil {
		resolve = func(_ int, name string) string { return name }
	}
	return &dispatcher{
		store:    movestore.New(opts.Clock, opts.Capacity),
		handlers: handlers,
		metrics:  metrics,
		logger:   logger,
		opts:     opts,
		warn:     rate.NewLimiter(rate.Every(10*time.Second), 1),
		resolve:  resolve,
	}
}

// Dispatch handles one create, delete, modify, moved-from or moved-to record.
func (d *dispatcher) Dispatch(rec Record) {
	switch rec.Kind {
	case RecordCreate:
		d.notify(Event{Type: EventCreated, Name: rec.Name, WatchID: rec.WatchID})
	case RecordDelete:
		d.notify(Event{Type: EventDeleted, Name: rec.Name, WatchID: rec.WatchID})
	case RecordModify:
		d.notify(Event{Type: EventModified, Name: rec.Name, WatchID: rec.WatchID})
	case RecordMovedFrom:
		d.track(rec)
	case RecordMovedTo:
		if move, ok := d.store.FindAndRemove(rec.Cookie); ok {
			d.notify(Event{
				Type:       EventRenamed,
				OldName:    move.Name,
				Name:       rec.Name,
				WatchID:    rec.WatchID,
				OldWatchID: move.WatchID,
			})
			return
		}
		d.notify(Event{Type: EventMovedIn, Name: rec.Name, WatchID: rec.WatchID})
	}
}

// Expire reports every pending move older than the dwell threshold as moved
// away and returns how many were reported.
func (d *dispatcher) Expire(now time.Time) int {
	expired := d.store.ExpireOlderThan(d.opts.DwellThreshold, now)
	for _, move := range expired {
		d.movedAway(move)
	}
	return len(expired)
}

// Pending returns the number of unmatched moved-from records.
func (d *dispatcher) Pending() int {
	return d.store.Len()
}

// Discard drops every pending move without notifying.
func (d *dispatcher) Discard() int {
	n := d.store.Drain()
	if n > 0 {
		d.metrics.Dropped(DropStopped, n)
	}
	return n
}

func (d *dispatcher) track(rec Record) {
	err := d.store.Track(rec.WatchID, rec.Cookie, rec.Name)
	if err == nil {
		return
	}
	if !errors.Is(err, errors.ErrCapacityExceeded) {
		d.logger.Error("failed to track move", "wd", rec.WatchID, "cookie", rec.Cookie, "error", err)
		return
	}

	if d.opts.OverflowPolicy == OverflowEvictOldest {
		if victim, ok := d.store.EvictOldest(); ok {
			d.movedAway(victim)
		}
		if err = d.store.Track(rec.WatchID, rec.Cookie, rec.Name); err == nil {
			return
		}
	}

	d.metrics.Dropped(DropCapacity, 1)
	if d.warn.Allow() {
		d.logger.Warn("move store full, dropping moved-from record",
			"wd", rec.WatchID,
			"cookie", rec.Cookie,
			"name", rec.Name,
			"capacity", d.store.Capacity(),
		)
	}
}

func (d *dispatcher) movedAway(move movestore.PendingMove) {
	d.notify(Event{Type: EventMovedAway, Name: move.Name, WatchID: move.WatchID})
}

// notify resolves names, applies ignore rules and calls the handlers. A rename
// is only suppressed when both of its names are ignored.
func (d *dispatcher) notify(ev Event) {
	if ev.Type == EventRenamed {
		if d.opts.shouldIgnore(ev.OldName) && d.opts.shouldIgnore(ev.Name) {
			return
		}
		ev.OldName = d.resolve(ev.OldWatchID, ev.OldName)
	} else if d.opts.shouldIgnore(ev.Name) {
		return
	}

	ev.Name = d.resolve(ev.WatchID, ev.Name)
	ev.Time = d.opts.Clock.Now()

	d.metrics.Notified(ev.Type)
	d.handlers.emit(ev)
}
