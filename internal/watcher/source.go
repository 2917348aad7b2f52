package watcher

import "time"

// Source is the low-level change notification facility. A Source is read
// only by the watcher's worker goroutine; AddWatch and RemoveWatch may be
// called concurrently with Wait and Read.
type Source interface {
	// AddWatch subscribes to changes of mask inside the directory at path
	// and returns its watch id. Adding a path twice returns the same id.
	AddWatch(path string, mask Op) (int, error)

	// RemoveWatch cancels a watch.
	RemoveWatch(wd int) error

	// Wait blocks until records are readable or timeout elapses.
	Wait(timeout time.Duration) (bool, error)

	// Read returns the records currently available. It does not block.
	Read() ([]Record, error)

	// Close releases the facility. Watch ids become invalid.
	Close() error
}

// SourceOpener creates a fresh Source. The watcher calls it on first use and
// again when it restarts after its source was closed.
type SourceOpener func() (Source, error)
