//go:build !linux

package watcher

import (
	"runtime"

	"github.com/movewatch/movewatch/internal/errors"
)

// NewInotifySource is only available on Linux.
func NewInotifySource() (Source, error) {
	return nil, errors.Unsupported("inotify is not available on " + runtime.GOOS)
}
