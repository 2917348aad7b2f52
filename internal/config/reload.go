package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultReloadDelay is how long the reloader waits for writes to a watch
// list to settle before reading it.
const DefaultReloadDelay = 200 * time.Millisecond

// WatchListReloader re-reads a watch-list file whenever it changes on disk.
type WatchListReloader struct {
	logger   *slog.Logger
	onChange func(*WatchList)
	watcher  *fsnotify.Watcher
	timer    *time.Timer
	path     string
	delay    time.Duration
	mu       sync.Mutex
}

// NewWatchListReloader watches the directory holding path, so that editors
// replacing the file by rename are noticed too. onChange runs on the
// reloader's goroutine with each successfully parsed list.
func NewWatchListReloader(logger *slog.Logger, path string, delay time.Duration, onChange func(*WatchList)) (*WatchListReloader, error) {
	if delay <= 0 {
		delay = DefaultReloadDelay
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve watch list path: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	return &WatchListReloader{
		logger:   logger,
		onChange: onChange,
		watcher:  w,
		path:     abs,
		delay:    delay,
	}, nil
}

// Run processes file events until ctx is done, then releases the watcher.
func (r *WatchListReloader) Run(ctx context.Context) error {
	defer r.stopTimer()
	defer r.watcher.Close()

	reload := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != r.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			r.schedule(reload)
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("watch list watcher error", "error", err)
		case <-reload:
			r.reload()
		}
	}
}

// schedule restarts the settle timer.
func (r *WatchListReloader) schedule(reload chan<- struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(r.delay, func() {
		select {
		case reload <- struct{}{}:
		default:
		}
	})
}

func (r *WatchListReloader) stopTimer() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
	}
}

func (r *WatchListReloader) reload() {
	list, err := LoadWatchList(r.path)
	if err != nil {
		// A removed or half-written file keeps the current watches.
		r.logger.Warn("failed to reload watch list", "path", r.path, "error", err)
		return
	}
	r.logger.Info("watch list reloaded", "path", r.path, "watches", len(list.Watches))
	r.onChange(list)
}
