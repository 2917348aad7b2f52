//go:build linux

package watcher

import (
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/movewatch/movewatch/internal/errors"
)

// readBufferSize fits 64 records with maximum-length names.
const readBufferSize = (unix.SizeofInotifyEvent + unix.NAME_MAX + 1) * 64

// inotifySource implements Source on Linux inotify.
type inotifySource struct {
	buf []byte
	fd  int
}

// NewInotifySource opens a non-blocking inotify instance.
func NewInotifySource() (Source, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return nil, mapErrno(err, "initialize inotify", "")
	}

	return &inotifySource{
		fd:  fd,
		buf: make([]byte, readBufferSize),
	}, nil
}

// AddWatch adds an inotify watch on a directory.
func (s *inotifySource) AddWatch(path string, mask Op) (int, error) {
	wd, err := unix.InotifyAddWatch(s.fd, path, uint32(mask&OpAll)|unix.IN_ONLYDIR)
	if err != nil {
		return -1, mapErrno(err, "add watch", path)
	}
	return wd, nil
}

// RemoveWatch removes an inotify watch.
func (s *inotifySource) RemoveWatch(wd int) error {
	//nolint:gosec // G115: wd is always a small non-negative int from inotify
	if _, err := unix.InotifyRmWatch(s.fd, uint32(wd)); err != nil {
		// EINVAL: the kernel already dropped the watch.
		if errors.Is(err, unix.EINVAL) {
			return errors.NotFoundf("watch %d already removed", wd).WithCause(err)
		}
		return errors.Wrap(err, errors.CodeInternal, "inotify_rm_watch failed")
	}
	return nil
}

// Wait polls the descriptor for at most timeout.
func (s *inotifySource) Wait(timeout time.Duration) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(s.fd), Events: unix.POLLIN}} //nolint:gosec // G115: fd fits in int32
	n, err := unix.Poll(fds, int(timeout.Milliseconds()))
	if err != nil {
		if err == unix.EINTR {
			return false, nil
		}
		return false, fmt.Errorf("poll inotify: %w", err)
	}
	return n > 0 && fds[0].Revents&unix.POLLIN != 0, nil
}

// Read decodes every record currently queued.
func (s *inotifySource) Read() ([]Record, error) {
	n, err := unix.Read(s.fd, s.buf)
	if err != nil {
		if err == unix.EINTR || err == unix.EAGAIN {
			return nil, nil
		}
		return nil, fmt.Errorf("read inotify events: %w", err)
	}
	if n < unix.SizeofInotifyEvent {
		return nil, nil
	}
	return parseRecords(s.buf[:n]), nil
}

// Close closes the inotify descriptor.
func (s *inotifySource) Close() error {
	if s.fd < 0 {
		return nil
	}
	err := unix.Close(s.fd)
	s.fd = -1
	return err
}

// parseRecords decodes raw inotify events. Records with masks movewatch does
// not handle are skipped.
func parseRecords(buf []byte) []Record {
	records := make([]Record, 0, len(buf)/unix.SizeofInotifyEvent)

	offset := 0
	for offset+unix.SizeofInotifyEvent <= len(buf) {
		//nolint:gosec // G103: Legitimate use of unsafe for syscall interface with inotify
		event := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
		offset += unix.SizeofInotifyEvent + int(event.Len)
		if offset > len(buf) {
			break
		}

		kind, ok := kindOf(event.Mask)
		if !ok {
			continue
		}

		name := ""
		if event.Len > 0 {
			nameBytes := buf[offset-int(event.Len) : offset]
			name = string(nameBytes[:clen(nameBytes)])
		}

		records = append(records, Record{
			Kind:    kind,
			WatchID: int(event.Wd),
			Name:    name,
			Cookie:  event.Cookie,
			IsDir:   event.Mask&maskIsDir != 0,
		})
	}

	return records
}

// clen returns the length of a null-terminated byte slice.
func clen(n []byte) int {
	for i := 0; i < len(n); i++ {
		if n[i] == 0 {
			return i
		}
	}
	return len(n)
}

// mapErrno converts a syscall failure into a domain error.
func mapErrno(err error, op, path string) error {
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return errors.Wrapf(err, errors.CodeInternal, "%s %s", op, path)
	}

	switch errno {
	case unix.ENOENT:
		return errors.NotFoundf("%s: %s does not exist", op, path).WithCause(err)
	case unix.EACCES, unix.EPERM:
		return errors.PermissionDeniedf("%s: access to %s denied", op, path).WithCause(err)
	case unix.ENOSPC, unix.EMFILE, unix.ENFILE, unix.ENOMEM:
		return errors.ResourceExhaustedf("%s %s: %v", op, path, errno).WithCause(err)
	case unix.ENOTDIR:
		return errors.InvalidTargetf("%s: %s is not a directory", op, path).WithCause(err)
	default:
		return errors.Wrapf(err, errors.CodeInternal, "%s %s", op, path)
	}
}
