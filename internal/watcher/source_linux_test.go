//go:build linux

package watcher

import (
	"context"
	"encoding/binary"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/movewatch/movewatch/internal/errors"
)

// rawEvent encodes one inotify event the way the kernel lays it out.
func rawEvent(wd int32, mask, cookie uint32, name string) []byte {
	nameLen := 0
	if name != "" {
		// Name is NUL terminated and padded to a 16 byte boundary.
		nameLen = (len(name) + 1 + 15) &^ 15
	}
	buf := make([]byte, unix.SizeofInotifyEvent+nameLen)
	binary.NativeEndian.PutUint32(buf[0:], uint32(wd))
	binary.NativeEndian.PutUint32(buf[4:], mask)
	binary.NativeEndian.PutUint32(buf[8:], cookie)
	binary.NativeEndian.PutUint32(buf[12:], uint32(nameLen))
	copy(buf[unix.SizeofInotifyEvent:], name)
	return buf
}

func TestParseRecords(t *testing.T) {
	var buf []byte
	buf = append(buf, rawEvent(1, unix.IN_MOVED_FROM, 42, "old.txt")...)
	buf = append(buf, rawEvent(1, unix.IN_ATTRIB, 0, "skipped")...)
	buf = append(buf, rawEvent(2, unix.IN_MOVED_TO, 42, "new.txt")...)
	buf = append(buf, rawEvent(2, unix.IN_CREATE|unix.IN_ISDIR, 0, "sub")...)
	buf = append(buf, rawEvent(-1, unix.IN_Q_OVERFLOW, 0, "")...)
	buf = append(buf, rawEvent(3, unix.IN_IGNORED, 0, "")...)

	records := parseRecords(buf)
	require.Len(t, records, 5)

	assert.Equal(t, Record{Kind: RecordMovedFrom, WatchID: 1, Name: "old.txt", Cookie: 42}, records[0])
	assert.Equal(t, Record{Kind: RecordMovedTo, WatchID: 2, Name: "new.txt", Cookie: 42}, records[1])
	assert.Equal(t, Record{Kind: RecordCreate, WatchID: 2, Name: "sub", IsDir: true}, records[2])
	assert.Equal(t, RecordOverflow, records[3].Kind)
	assert.Equal(t, -1, records[3].WatchID)
	assert.Equal(t, Record{Kind: RecordIgnored, WatchID: 3}, records[4])
}

func TestParseRecords_Truncated(t *testing.T) {
	buf := rawEvent(1, unix.IN_CREATE, 0, "complete")
	buf = append(buf, rawEvent(1, unix.IN_CREATE, 0, "cut-short")[:unix.SizeofInotifyEvent+4]...)

	records := parseRecords(buf)
	require.Len(t, records, 1)
	assert.Equal(t, "complete", records[0].Name)
}

func TestMapErrno(t *testing.T) {
	tests := []struct {
		errno unix.Errno
		want  error
	}{
		{unix.ENOENT, errors.ErrNotFound},
		{unix.EACCES, errors.ErrPermissionDenied},
		{unix.EPERM, errors.ErrPermissionDenied},
		{unix.ENOSPC, errors.ErrResourceExhausted},
		{unix.EMFILE, errors.ErrResourceExhausted},
		{unix.ENFILE, errors.ErrResourceExhausted},
		{unix.ENOTDIR, errors.ErrInvalidTarget},
		{unix.EIO, errors.ErrInternal},
	}

	for _, tt := range tests {
		t.Run(tt.errno.Error(), func(t *testing.T) {
			err := mapErrno(tt.errno, "add watch", "/x")
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.True(t, errors.Is(err, tt.errno), "errno must stay in the chain")
		})
	}
}

func TestInotifySource_AddWatchErrors(t *testing.T) {
	src, err := NewInotifySource()
	require.NoError(t, err)
	defer src.Close() //nolint:errcheck // Test cleanup

	_, err = src.AddWatch(filepath.Join(t.TempDir(), "missing"), OpAll)
	assert.True(t, errors.Is(err, errors.ErrNotFound), "got %v", err)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = src.AddWatch(file, OpAll)
	assert.True(t, errors.Is(err, errors.ErrInvalidTarget), "got %v", err)
}

func TestInotifySource_RemoveTwice(t *testing.T) {
	src, err := NewInotifySource()
	require.NoError(t, err)
	defer src.Close() //nolint:errcheck // Test cleanup

	wd, err := src.AddWatch(t.TempDir(), OpAll)
	require.NoError(t, err)

	require.NoError(t, src.RemoveWatch(wd))
	err = src.RemoveWatch(wd)
	assert.True(t, errors.Is(err, errors.ErrNotFound), "got %v", err)
}

func TestInotifySource_WaitTimesOut(t *testing.T) {
	src, err := NewInotifySource()
	require.NoError(t, err)
	defer src.Close() //nolint:errcheck // Test cleanup

	start := time.Now()
	ready, err := src.Wait(30 * time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ready)
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond, "wait must block instead of spinning")

	records, err := src.Read()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func findEvent(rec *recorder, match func(Event) bool) bool {
	for _, ev := range rec.snapshot() {
		if match(ev) {
			return true
		}
	}
	return false
}

func TestInotify_Integration(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	handlers := NewHandlers()
	rec := &recorder{}
	handlers.OnEvent(rec.record)

	w, err := New(logger, handlers, Options{
		PollInterval:   20 * time.Millisecond,
		DwellThreshold: 100 * time.Millisecond,
	})
	require.NoError(t, err)
	defer w.Stop() //nolint:errcheck // Test cleanup

	dirA, dirB, outside := t.TempDir(), t.TempDir(), t.TempDir()
	wdA, err := w.AddWatch(dirA, OpAll)
	require.NoError(t, err)
	wdB, err := w.AddWatch(dirB, OpAll)
	require.NoError(t, err)
	require.NotEqual(t, wdA, wdB)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	// Create.
	require.NoError(t, os.WriteFile(filepath.Join(dirA, "f.txt"), []byte("x"), 0o644))
	require.Eventually(t, func() bool {
		return findEvent(rec, func(ev Event) bool {
			return ev.Type == EventCreated && ev.Name == "f.txt" && ev.WatchID == wdA
		})
	}, 2*time.Second, 10*time.Millisecond)

	// Rename inside one watched directory.
	require.NoError(t, os.Rename(filepath.Join(dirA, "f.txt"), filepath.Join(dirA, "g.txt")))
	require.Eventually(t, func() bool {
		return findEvent(rec, func(ev Event) bool {
			return ev.Type == EventRenamed && ev.OldName == "f.txt" && ev.Name == "g.txt"
		})
	}, 2*time.Second, 10*time.Millisecond)

	// Rename across two watched directories.
	require.NoError(t, os.Rename(filepath.Join(dirA, "g.txt"), filepath.Join(dirB, "g.txt")))
	require.Eventually(t, func() bool {
		return findEvent(rec, func(ev Event) bool {
			return ev.Type == EventRenamed && ev.OldWatchID == wdA && ev.WatchID == wdB && ev.Name == "g.txt"
		})
	}, 2*time.Second, 10*time.Millisecond)

	// Move out to an unwatched directory.
	require.NoError(t, os.Rename(filepath.Join(dirB, "g.txt"), filepath.Join(outside, "g.txt")))
	require.Eventually(t, func() bool {
		return findEvent(rec, func(ev Event) bool {
			return ev.Type == EventMovedAway && ev.Name == "g.txt" && ev.WatchID == wdB
		})
	}, 2*time.Second, 10*time.Millisecond)

	// Move in from an unwatched directory.
	require.NoError(t, os.Rename(filepath.Join(outside, "g.txt"), filepath.Join(dirA, "h.txt")))
	require.Eventually(t, func() bool {
		return findEvent(rec, func(ev Event) bool {
			return ev.Type == EventMovedIn && ev.Name == "h.txt" && ev.WatchID == wdA
		})
	}, 2*time.Second, 10*time.Millisecond)

	// Delete.
	require.NoError(t, os.Remove(filepath.Join(dirA, "h.txt")))
	require.Eventually(t, func() bool {
		return findEvent(rec, func(ev Event) bool {
			return ev.Type == EventDeleted && ev.Name == "h.txt"
		})
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, w.Stop())
	assert.False(t, w.Running())
	assert.NoError(t, w.Err())
	assert.Equal(t, 0, w.Pending())

	// Exactly one moved-away: the cross-directory rename was not split.
	assert.Len(t, rec.ofType(EventMovedAway), 1)
}

func TestInotify_RemovedDirectoryIsForgotten(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	w, err := New(logger, nil, Options{PollInterval: 20 * time.Millisecond})
	require.NoError(t, err)
	defer w.Stop() //nolint:errcheck // Test cleanup

	dir := filepath.Join(t.TempDir(), "watched")
	require.NoError(t, os.Mkdir(dir, 0o755))
	_, err = w.AddWatch(dir, OpAll)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	require.NoError(t, os.Remove(dir))
	require.Eventually(t, func() bool { return len(w.Watches()) == 0 }, 2*time.Second, 10*time.Millisecond)
}
