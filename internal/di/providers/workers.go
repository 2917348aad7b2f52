package providers

import (
	"context"
	"log/slog"

	"github.com/samber/do/v2"

	"github.com/movewatch/movewatch/internal/config"
	"github.com/movewatch/movewatch/internal/errors"
	"github.com/movewatch/movewatch/internal/logger"
	"github.com/movewatch/movewatch/internal/metrics"
	"github.com/movewatch/movewatch/internal/watcher"
)

// WatcherHandle wraps the watcher with shutdown capability.
type WatcherHandle struct {
	*watcher.Watcher
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable. Pending moves are discarded.
func (h *WatcherHandle) Shutdown() error {
	h.cancel()
	return h.Watcher.Stop()
}

// ProvideWatcher provides the directory watcher, with every notification
// logged, journaled and streamed.
func ProvideWatcher(i do.Injector) (*WatcherHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	m := do.MustInvoke[*metrics.Metrics](i)
	journalHandle := do.MustInvoke[*JournalHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)

	policy, err := watcher.ParseOverflowPolicy(cfg.Watcher.OverflowPolicy)
	if err != nil {
		return nil, err
	}
	ops, err := watcher.ParseOps(cfg.Watcher.Events)
	if err != nil {
		return nil, err
	}

	notifications := log.Component("notify")
	handlers := watcher.NewHandlers()
	handlers.OnEvent(func(ev watcher.Event) {
		notifications.Info(ev.Type.String(), notificationAttrs(ev)...)
	})
	if journalHandle.Journal != nil {
		handlers.OnEvent(journalHandle.Handle)
	}
	handlers.OnEvent(sseHandle.Handle)

	w, err := watcher.New(log.Component("watcher"), handlers, watcher.Options{
		OverflowPolicy:       policy,
		IgnorePatterns:       cfg.Watcher.IgnorePatterns,
		PollInterval:         cfg.Watcher.PollInterval,
		DwellThreshold:       cfg.Watcher.DwellThreshold,
		Capacity:             cfg.Watcher.Capacity,
		IncludeAbsolutePaths: cfg.Watcher.AbsolutePaths,
		IgnoreHidden:         cfg.Watcher.IgnoreHidden,
	})
	if err != nil {
		return nil, err
	}
	w.SetMetrics(m)

	for _, path := range cfg.Watcher.Paths {
		wd, err := w.AddWatch(path, ops)
		if err != nil {
			_ = w.Stop()
			return nil, err
		}
		log.Info("Watching directory", "path", path, "wd", wd, "events", ops.String())
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := w.Start(ctx); err != nil {
		cancel()
		_ = w.Stop()
		return nil, err
	}

	return &WatcherHandle{Watcher: w, cancel: cancel}, nil
}

func notificationAttrs(ev watcher.Event) []any {
	attrs := []any{"name", ev.Name, "wd", ev.WatchID}
	if ev.Type == watcher.EventRenamed {
		attrs = append(attrs, "old_name", ev.OldName, "old_wd", ev.OldWatchID)
	}
	return attrs
}

// WatchListHandle keeps the watcher in sync with the watch-list file.
type WatchListHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Shutdown implements do.Shutdownable.
func (h *WatchListHandle) Shutdown() error {
	if h.cancel == nil {
		return nil
	}
	h.cancel()
	<-h.done
	return nil
}

// ProvideWatchList loads the watch-list file, applies it and reloads it on
// change. Without a configured file it does nothing.
func ProvideWatchList(i do.Injector) (*WatchListHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	watcherHandle := do.MustInvoke[*WatcherHandle](i)

	if cfg.WatchList.Path == "" {
		return &WatchListHandle{}, nil
	}

	listLog := log.Component("watchlist")
	rec := NewReconciler(watcherHandle.Watcher, listLog)

	list, err := config.LoadWatchList(cfg.WatchList.Path)
	if err != nil {
		return nil, err
	}
	rec.Apply(list)

	reloader, err := config.NewWatchListReloader(listLog, cfg.WatchList.Path, config.DefaultReloadDelay, rec.Apply)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := reloader.Run(ctx); err != nil {
			listLog.Error("Watch list reloader stopped", "error", err)
		}
	}()

	listLog.Info("Watch list loaded", "path", cfg.WatchList.Path, "watches", len(list.Watches))

	return &WatchListHandle{cancel: cancel, done: done}, nil
}

// WatchTarget is the part of the watcher a Reconciler changes.
type WatchTarget interface {
	AddWatch(path string, mask watcher.Op) (int, error)
	RemovePath(path string) error
}

// Reconciler applies successive watch lists, adding and removing only what
// changed between them. Entries that fail are logged and retried on the
// next list.
type Reconciler struct {
	target  WatchTarget
	logger  *slog.Logger
	current *config.WatchList
}

// NewReconciler creates a Reconciler with no list applied yet.
func NewReconciler(target WatchTarget, logger *slog.Logger) *Reconciler {
	return &Reconciler{target: target, logger: logger}
}

// Apply brings the watcher in line with next.
func (r *Reconciler) Apply(next *config.WatchList) {
	added, removed := r.current.Diff(next)

	addedPaths := make(map[string]bool, len(added))
	for _, e := range added {
		addedPaths[e.Path] = true
	}

	applied := &config.WatchList{}
	failed := make(map[string]bool)

	for _, e := range removed {
		// A changed entry is re-added below with its new events.
		if addedPaths[e.Path] {
			continue
		}
		if err := r.target.RemovePath(e.Path); err != nil && !errors.Is(err, errors.ErrNotFound) {
			r.logger.Warn("failed to remove watch", "path", e.Path, "error", err)
		} else {
			r.logger.Info("watch removed", "path", e.Path)
		}
	}

	for _, e := range added {
		ops, err := watcher.ParseOps(e.Events)
		if err == nil {
			_, err = r.target.AddWatch(e.Path, ops)
		}
		if err != nil {
			r.logger.Warn("failed to add watch", "path", e.Path, "error", err)
			failed[e.Path] = true
			continue
		}
		r.logger.Info("watch added", "path", e.Path, "events", ops.String())
	}

	// Remember only what took effect, so failures are retried next time.
	if next != nil {
		for _, e := range next.Watches {
			if !failed[e.Path] {
				applied.Watches = append(applied.Watches, e)
			}
		}
	}
	r.current = applied
}
