// Package watcher turns inotify records into file notifications.
//
// Moved-from and moved-to records that share a cookie are paired into a
// single rename. A moved-from record that is not paired within the dwell
// threshold is reported as moved away, and a moved-to record without a
// pending departure is reported as moved in.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/movewatch/movewatch/internal/errors"
)

// Watch is a registered directory.
type Watch struct {
	Path string
	ID   int
	Ops  Op
}

// Watcher owns a Source and one worker goroutine that reads it.
//
// Handlers run on the worker. Calling Stop from inside a handler deadlocks;
// cancel the context passed to Start instead.
type Watcher struct {
	logger   *slog.Logger
	handlers *Handlers
	open     SourceOpener
	metrics  Metrics

	src    Source
	cancel context.CancelFunc
	done   chan struct{}
	err    error

	watches map[string]*Watch
	wdPaths map[int]string

	opts Options

	pending atomic.Int64

	// lifecycle serializes Start and Stop. mu guards the source, the worker
	// state and metrics; pathsMu guards watches and wdPaths.
	lifecycle sync.Mutex
	mu        sync.Mutex
	pathsMu   sync.RWMutex
	running   bool
}

// New creates a watcher backed by inotify.
func New(logger *slog.Logger, handlers *Handlers, opts Options) (*Watcher, error) {
	return NewWithSource(logger, handlers, opts, NewInotifySource)
}

// NewWithSource creates a watcher reading from sources created by open.
func NewWithSource(logger *slog.Logger, handlers *Handlers, opts Options, open SourceOpener) (*Watcher, error) {
	opts.setDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	if handlers == nil {
		handlers = NewHandlers()
	}

	src, err := open()
	if err != nil {
		return nil, fmt.Errorf("failed to open source: %w", err)
	}

	return &Watcher{
		logger:   logger,
		handlers: handlers,
		open:     open,
		metrics:  noopMetrics{},
		opts:     opts,
		src:      src,
		watches:  make(map[string]*Watch),
		wdPaths:  make(map[int]string),
	}, nil
}

// SetMetrics sets the metrics sink. Record counters switch on the next
// Start; the watch count is published right away.
func (w *Watcher) SetMetrics(m Metrics) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if m == nil {
		m = noopMetrics{}
	}
	w.metrics = m
	w.publishWatches(m)
}

// Handlers returns the callback registry.
func (w *Watcher) Handlers() *Handlers {
	return w.handlers
}

// Options returns the effective options.
func (w *Watcher) Options() Options {
	return w.opts
}

// AddWatch watches the directory at path for the kinds in mask and returns
// its watch id. Watching a path again replaces its mask and keeps its id.
func (w *Watcher) AddWatch(path string, mask Op) (int, error) {
	if mask&OpAll == 0 {
		return -1, errors.Validationf("watch %s: no event kinds selected", path)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return -1, errors.Wrapf(err, errors.CodeInternal, "resolve %s", path)
	}

	info, err := os.Stat(abs)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return -1, errors.NotFoundf("watch path %s does not exist", abs).WithCause(err)
	case errors.Is(err, fs.ErrPermission):
		return -1, errors.PermissionDeniedf("access to %s denied", abs).WithCause(err)
	case err != nil:
		return -1, errors.Wrapf(err, errors.CodeInternal, "stat %s", abs)
	case !info.IsDir():
		return -1, errors.InvalidTargetf("%s is not a directory", abs)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	src, err := w.sourceLocked()
	if err != nil {
		return -1, err
	}

	wd, err := src.AddWatch(abs, mask)
	if err != nil {
		return -1, err
	}

	w.pathsMu.Lock()
	if old, ok := w.watches[abs]; ok && old.ID != wd {
		delete(w.wdPaths, old.ID)
	}
	w.watches[abs] = &Watch{Path: abs, ID: wd, Ops: mask}
	w.wdPaths[wd] = abs
	w.pathsMu.Unlock()
	w.publishWatches(w.metrics)

	w.logger.Debug("added watch", "path", abs, "wd", wd, "events", mask.String())
	return wd, nil
}

// RemoveWatch cancels the watch with id wd. It reports whether the watch was
// known and is gone now. A watch the source no longer knows counts as
// removed; on any other source error the watch is kept.
func (w *Watcher) RemoveWatch(wd int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pathsMu.RLock()
	path, ok := w.wdPaths[wd]
	w.pathsMu.RUnlock()
	if !ok {
		return false
	}

	if w.src != nil {
		if err := w.src.RemoveWatch(wd); err != nil && !errors.Is(err, errors.ErrNotFound) {
			w.logger.Warn("failed to remove watch", "path", path, "wd", wd, "error", err)
			return false
		}
	}

	w.forget(wd, w.metrics)
	w.logger.Debug("removed watch", "path", path, "wd", wd)
	return true
}

// RemovePath cancels the watch on path.
func (w *Watcher) RemovePath(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrapf(err, errors.CodeInternal, "resolve %s", path)
	}

	w.pathsMu.RLock()
	watch, ok := w.watches[abs]
	var wd int
	if ok {
		wd = watch.ID
	}
	w.pathsMu.RUnlock()

	if !ok {
		return errors.NotFoundf("%s is not watched", abs)
	}
	if !w.RemoveWatch(wd) {
		return errors.Internalf("watch on %s could not be removed", abs)
	}
	return nil
}

// Watches returns the registered directories ordered by watch id.
func (w *Watcher) Watches() []Watch {
	w.pathsMu.RLock()
	out := make([]Watch, 0, len(w.watches))
	for _, watch := range w.watches {
		out = append(out, *watch)
	}
	w.pathsMu.RUnlock()

	slices.SortFunc(out, func(a, b Watch) int { return a.ID - b.ID })
	return out
}

// Start launches the worker. Calling Start on a running watcher does nothing.
// After the worker stopped, Start reopens the source and re-adds every
// remembered path; watch ids may change.
func (w *Watcher) Start(ctx context.Context) error {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	src, err := w.sourceLocked()
	if err != nil {
		return err
	}

	d := newDispatcher(w.logger, w.handlers, &w.opts, w.metrics, w.resolve)

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	w.running = true
	w.cancel = cancel
	w.done = done
	w.err = nil

	w.pathsMu.RLock()
	count := len(w.wdPaths)
	w.pathsMu.RUnlock()

	w.logger.Info("watcher started",
		"watches", count,
		"poll_interval", w.opts.PollInterval,
		"dwell_threshold", w.opts.DwellThreshold,
		"capacity", w.opts.Capacity,
		"overflow_policy", w.opts.OverflowPolicy,
	)

	go w.work(ctx, src, d, done)
	return nil
}

// Stop stops the worker and blocks until it has exited. Pending moves are
// discarded without notifications and the source is closed.
func (w *Watcher) Stop() error {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()

	w.mu.Lock()
	if !w.running {
		var err error
		if w.src != nil {
			err = w.src.Close()
			w.src = nil
		}
		w.mu.Unlock()
		return err
	}
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done
	return nil
}

// Running reports whether the worker is running.
func (w *Watcher) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Err returns the error that stopped the worker, if any.
func (w *Watcher) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Done returns a channel closed when the current worker exits.
func (w *Watcher) Done() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return w.done
}

// Pending returns the number of moved-from records awaiting a match, as of
// the last completed cycle.
func (w *Watcher) Pending() int {
	return int(w.pending.Load())
}

func (w *Watcher) work(ctx context.Context, src Source, d *dispatcher, done chan struct{}) {
	defer close(done)

	err := w.run(ctx, src, d)
	dropped := d.Discard()
	w.publishPending(d, 0)

	w.mu.Lock()
	if cerr := src.Close(); cerr != nil {
		w.logger.Warn("failed to close source", "error", cerr)
	}
	if w.src == src {
		w.src = nil
	}
	w.running = false
	w.cancel = nil
	w.err = err
	w.mu.Unlock()

	if err != nil {
		w.logger.Error("watcher stopped", "error", err, "dropped_moves", dropped)
		return
	}
	w.logger.Info("watcher stopped", "dropped_moves", dropped)
}

// sourceLocked returns the open source, reopening it and re-adding every
// remembered path if it was closed. Paths that can no longer be watched are
// forgotten.
func (w *Watcher) sourceLocked() (Source, error) {
	if w.src != nil {
		return w.src, nil
	}

	src, err := w.open()
	if err != nil {
		return nil, fmt.Errorf("failed to open source: %w", err)
	}
	w.src = src

	w.pathsMu.Lock()
	defer w.pathsMu.Unlock()

	clear(w.wdPaths)
	for path, watch := range w.watches {
		wd, err := src.AddWatch(path, watch.Ops)
		if err != nil {
			w.logger.Warn("failed to re-add watch", "path", path, "error", err)
			delete(w.watches, path)
			continue
		}
		watch.ID = wd
		w.wdPaths[wd] = path
	}
	w.metrics.Watches(len(w.watches))

	return src, nil
}

// forget drops the bookkeeping for wd and publishes the new watch count to m.
// It reports whether wd was known.
func (w *Watcher) forget(wd int, m Metrics) bool {
	w.pathsMu.Lock()
	path, ok := w.wdPaths[wd]
	if ok {
		delete(w.wdPaths, wd)
		delete(w.watches, path)
	}
	w.pathsMu.Unlock()

	if ok {
		w.publishWatches(m)
	}
	return ok
}

func (w *Watcher) publishWatches(m Metrics) {
	w.pathsMu.RLock()
	n := len(w.watches)
	w.pathsMu.RUnlock()
	m.Watches(n)
}

// resolve joins name to the watched directory when absolute paths are enabled.
func (w *Watcher) resolve(wd int, name string) string {
	if !w.opts.IncludeAbsolutePaths {
		return name
	}

	w.pathsMu.RLock()
	dir, ok := w.wdPaths[wd]
	w.pathsMu.RUnlock()

	if !ok {
		return name
	}
	return filepath.Join(dir, name)
}
