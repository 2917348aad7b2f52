package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/movewatch/movewatch/internal/validation"
)

// WatchList is the content of a watch-list file:
//
//	watches:
//	  - path: /srv/incoming
//	    events: [create, rename]
//	  - path: ~/Downloads
type WatchList struct {
	Watches []WatchEntry `yaml:"watches" validate:"dive"`
}

// WatchEntry is one directory in a watch list. Empty Events means every kind.
type WatchEntry struct {
	Path   string   `yaml:"path" validate:"required"`
	Events []string `yaml:"events,omitempty" validate:"omitempty,dive,eventkind"`
}

// key identifies an entry by path and normalized event list.
func (e WatchEntry) key() string {
	events := slices.Clone(e.Events)
	for i := range events {
		events[i] = strings.ToLower(strings.TrimSpace(events[i]))
	}
	slices.Sort(events)
	return e.Path + "\x00" + strings.Join(events, ",")
}

// LoadWatchList reads and validates a watch-list file. Paths are expanded to
// absolute paths and duplicates keep their last entry.
func LoadWatchList(path string) (*WatchList, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- Watch list path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("failed to read watch list: %w", err)
	}
	return ParseWatchList(data)
}

// ParseWatchList decodes watch-list YAML. Unknown keys are rejected.
func ParseWatchList(data []byte) (*WatchList, error) {
	var list WatchList

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&list); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse watch list: %w", err)
	}

	if err := validation.New().Validate(list); err != nil {
		return nil, err
	}

	seen := make(map[string]int, len(list.Watches))
	entries := make([]WatchEntry, 0, len(list.Watches))
	for _, e := range list.Watches {
		expanded, err := expandPath(e.Path, "")
		if err != nil {
			return nil, fmt.Errorf("watch list entry %q: %w", e.Path, err)
		}
		e.Path = expanded
		if i, ok := seen[e.Path]; ok {
			entries[i] = e
			continue
		}
		seen[e.Path] = len(entries)
		entries = append(entries, e)
	}
	list.Watches = entries

	return &list, nil
}

// Diff reports the entries to add and to remove to go from l to next. An
// entry whose events changed appears in both.
func (l *WatchList) Diff(next *WatchList) (added, removed []WatchEntry) {
	var current []WatchEntry
	if l != nil {
		current = l.Watches
	}
	var wanted []WatchEntry
	if next != nil {
		wanted = next.Watches
	}

	have := make(map[string]bool, len(current))
	for _, e := range current {
		have[e.key()] = true
	}
	want := make(map[string]bool, len(wanted))
	for _, e := range wanted {
		want[e.key()] = true
		if !have[e.key()] {
			added = append(added, e)
		}
	}
	for _, e := range current {
		if !want[e.key()] {
			removed = append(removed, e)
		}
	}
	return added, removed
}
