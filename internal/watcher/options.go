package watcher

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
)

// Defaults applied by setDefaults.
const (
	DefaultPollInterval   = 250 * time.Millisecond
	DefaultDwellThreshold = 500 * time.Millisecond
	DefaultCapacity       = 8192
)

// OverflowPolicy decides what happens to a moved-from record when the move
// store is full.
type OverflowPolicy string

const (
	// OverflowReject drops the new record and keeps the pending ones.
	OverflowReject OverflowPolicy = "reject"
	// OverflowEvictOldest reports the oldest pending move as moved away and
	// stores the new record in its place.
	OverflowEvictOldest OverflowPolicy = "evict-oldest"
)

// ParseOverflowPolicy parses a policy name. An empty string means OverflowReject.
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch OverflowPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", OverflowReject:
		return OverflowReject, nil
	case OverflowEvictOldest:
		return OverflowEvictOldest, nil
	default:
		return "", fmt.Errorf("unknown overflow policy %q", s)
	}
}

// Options configures the watcher.
type Options struct {
	// Clock supplies timestamps for the move store and the expiry sweep.
	Clock clock.Clock

	OverflowPolicy OverflowPolicy
	IgnorePatterns []string

	// PollInterval bounds how long one cycle waits for records.
	PollInterval time.Duration

	// DwellThreshold is how long a moved-from record waits for its moved-to
	// half before it is reported as moved away.
	DwellThreshold time.Duration

	// Capacity bounds the number of pending moves. Zero means
	// DefaultCapacity, a negative value means unbounded.
	Capacity int

	// IncludeAbsolutePaths joins names to the watched directory.
	IncludeAbsolutePaths bool
	IgnoreHidden         bool
}

// setDefaults applies default values to unset options.
func (o *Options) setDefaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.DwellThreshold <= 0 {
		o.DwellThreshold = DefaultDwellThreshold
	}
	if o.Capacity == 0 {
		o.Capacity = DefaultCapacity
	}
	if o.Capacity < 0 {
		o.Capacity = 0
	}
	if o.OverflowPolicy == "" {
		o.OverflowPolicy = OverflowReject
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
}

// shouldIgnore checks if a name matches ignore patterns.
func (o *Options) shouldIgnore(name string) bool {
	if name == "" {
		return false
	}

	if o.IgnoreHidden {
		parts := strings.Split(filepath.Clean(name), string(filepath.Separator))
		for _, part := range parts {
			if strings.HasPrefix(part, ".") && part != "." && part != ".." {
				return true
			}
		}
	}

	base := filepath.Base(name)
	for _, pattern := range o.IgnorePatterns {
		matched, err := filepath.Match(pattern, base)
		if err == nil && matched {
			return true
		}
	}

	return false
}
