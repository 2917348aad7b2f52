package watcher

import (
	"fmt"
	"sync"
	"time"

	"github.com/movewatch/movewatch/internal/errors"
)

// fakeSource is an in-memory Source fed by tests.
type fakeSource struct {
	records   chan []Record
	failures  chan error
	watches   map[int]string
	byPath    map[string]int
	pending   []Record
	readErr   error
	addErr    error
	removeErr error
	nextWD    int
	closed    bool
	mu        sync.Mutex
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		records:  make(chan []Record, 64),
		failures: make(chan error, 1),
		watches:  make(map[int]string),
		byPath:   make(map[string]int),
	}
}

func (f *fakeSource) AddWatch(path string, _ Op) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.addErr != nil {
		return -1, f.addErr
	}
	if wd, ok := f.byPath[path]; ok {
		return wd, nil
	}
	f.nextWD++
	f.watches[f.nextWD] = path
	f.byPath[path] = f.nextWD
	return f.nextWD, nil
}

func (f *fakeSource) RemoveWatch(wd int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.removeErr != nil {
		return f.removeErr
	}
	path, ok := f.watches[wd]
	if !ok {
		return errors.NotFoundf("watch %d", wd)
	}
	delete(f.watches, wd)
	delete(f.byPath, path)
	return nil
}

func (f *fakeSource) Wait(timeout time.Duration) (bool, error) {
	f.mu.Lock()
	ready := len(f.pending) > 0 || f.readErr != nil
	f.mu.Unlock()
	if ready {
		return true, nil
	}

	select {
	case batch := <-f.records:
		f.mu.Lock()
		f.pending = append(f.pending, batch...)
		f.mu.Unlock()
		return true, nil
	case err := <-f.failures:
		f.mu.Lock()
		f.readErr = err
		f.mu.Unlock()
		return true, nil
	case <-time.After(timeout):
		return false, nil
	}
}

func (f *fakeSource) Read() ([]Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.readErr != nil {
		return nil, f.readErr
	}
	batch := f.pending
	f.pending = nil
	return batch, nil
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return fmt.Errorf("already closed")
	}
	f.closed = true
	return nil
}

// drop forgets wd without telling the watcher, as the kernel does when the
// directory goes away.
func (f *fakeSource) drop(wd int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byPath, f.watches[wd])
	delete(f.watches, wd)
}

func (f *fakeSource) setRemoveErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeErr = err
}

func (f *fakeSource) send(records ...Record) {
	f.records <- records
}

func (f *fakeSource) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeSource) paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.byPath))
	for p := range f.byPath {
		out = append(out, p)
	}
	return out
}

// fakeOpener hands out a new fakeSource on every call.
type fakeOpener struct {
	sources []*fakeSource
	mu      sync.Mutex
}

func (o *fakeOpener) open() (Source, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := newFakeSource()
	o.sources = append(o.sources, s)
	return s, nil
}

func (o *fakeOpener) current() *fakeSource {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sources[len(o.sources)-1]
}

func (o *fakeOpener) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sources)
}

// recorder collects notifications delivered to an OnEvent callback.
type recorder struct {
	events []Event
	mu     sync.Mutex
}

func (r *recorder) record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) ofType(t EventType) []Event {
	var out []Event
	for _, ev := range r.snapshot() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// fakeMetrics records calls from the watcher.
type fakeMetrics struct {
	notified map[EventType]int
	dropped  map[string]int
	pending  int
	watches  int
	mu       sync.Mutex
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{
		notified: make(map[EventType]int),
		dropped:  make(map[string]int),
	}
}

func (m *fakeMetrics) Notified(t EventType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notified[t]++
}

func (m *fakeMetrics) Dropped(reason string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped[reason] += n
}

func (m *fakeMetrics) Pending(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = n
}

func (m *fakeMetrics) Watches(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watches = n
}

func (m *fakeMetrics) watchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.watches
}

func (m *fakeMetrics) droppedFor(reason string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped[reason]
}
