// Package movestore pairs inotify moved-from and moved-to records by cookie.
//
// A Store holds every moved-from record that has not yet been matched by a
// moved-to record. Entries live in a slot arena and are threaded through two
// index-linked lists: a FIFO per cookie, used for matching, and one global
// list in insertion order, used for expiry. Both links are cut in the same
// call, so an entry is always reachable from both views or from neither.
//
// A Store is not safe for concurrent use. The watcher's worker goroutine is
// its only owner.
package movestore

import (
	"time"
	"unicode/utf8"

	"github.com/benbjohnson/clock"

	"github.com/movewatch/movewatch/internal/errors"
)

// MaxNameLen is the longest name, in bytes, a PendingMove keeps.
const MaxNameLen = 1023

// none marks the end of an index-linked list.
const none = -1

// PendingMove is one moved-from record waiting for its moved-to half.
type PendingMove struct {
	InsertedAt time.Time
	Name       string
	WatchID    int
	Token      uint32
}

type slot struct {
	move PendingMove

	// Global insertion-order list.
	prev, next int

	// Per-token FIFO.
	tokenNext int
}

type tokenQueue struct {
	head, tail int
}

// Store is a keyed, time-ordered set of pending moves.
type Store struct {
	clock    clock.Clock
	tokens   map[uint32]tokenQueue
	last     time.Time
	slots    []slot
	free     []int
	capacity int
	size     int
	head     int
	tail     int
}

// New creates a Store reading insertion times from clk.
// A capacity of zero or less means unbounded.
func New(clk clock.Clock, capacity int) *Store {
	if clk == nil {
		clk = clock.New()
	}
	if capacity < 0 {
		capacity = 0
	}
	return &Store{
		clock:    clk,
		capacity: capacity,
		tokens:   make(map[uint32]tokenQueue),
		head:     none,
		tail:     none,
	}
}

// Track records a moved-from event. Entries sharing a token coexist and are
// matched oldest first. When the store is full Track returns an error
// matching errors.ErrCapacityExceeded and leaves the store untouched.
func (s *Store) Track(watchID int, token uint32, name string) error {
	if s.capacity > 0 && s.size >= s.capacity {
		return errors.CapacityExceededf("move store full: %d pending", s.size)
	}

	// Keep the time list sorted even if the clock steps backwards.
	now := s.clock.Now()
	if now.Before(s.last) {
		now = s.last
	}
	s.last = now

	idx := s.alloc()
	sl := &s.slots[idx]
	sl.move = PendingMove{
		Token:      token,
		WatchID:    watchID,
		Name:       truncateName(name),
		InsertedAt: now,
	}

	sl.prev, sl.next = s.tail, none
	if s.tail != none {
		s.slots[s.tail].next = idx
	} else {
		s.head = idx
	}
	s.tail = idx

	sl.tokenNext = none
	if q, ok := s.tokens[token]; ok {
		s.slots[q.tail].tokenNext = idx
		q.tail = idx
		s.tokens[token] = q
	} else {
		s.tokens[token] = tokenQueue{head: idx, tail: idx}
	}

	s.size++
	return nil
}

// FindAndRemove removes and returns the oldest pending move for token.
func (s *Store) FindAndRemove(token uint32) (PendingMove, bool) {
	q, ok := s.tokens[token]
	if !ok {
		return PendingMove{}, false
	}
	return s.remove(q.head), true
}

// ExpireOlderThan removes and returns, oldest first, every entry whose age at
// now exceeds threshold. It stops at the first entry still inside the
// threshold, so its cost is proportional to the number of entries returned.
func (s *Store) ExpireOlderThan(threshold time.Duration, now time.Time) []PendingMove {
	var expired []PendingMove
	for s.head != none && now.Sub(s.slots[s.head].move.InsertedAt) > threshold {
		expired = append(expired, s.remove(s.head))
	}
	return expired
}

// EvictOldest removes and returns the globally oldest pending move.
func (s *Store) EvictOldest() (PendingMove, bool) {
	if s.head == none {
		return PendingMove{}, false
	}
	return s.remove(s.head), true
}

// Drain discards every pending move and returns how many were dropped.
func (s *Store) Drain() int {
	n := s.size
	clear(s.tokens)
	s.slots = nil
	s.free = nil
	s.head, s.tail = none, none
	s.size = 0
	return n
}

// Len returns the number of pending moves.
func (s *Store) Len() int {
	return s.size
}

// Capacity returns the configured bound, or zero when unbounded.
func (s *Store) Capacity() int {
	return s.capacity
}

func (s *Store) alloc() int {
	if n := len(s.free); n > 0 {
		idx := s.free[n-1]
		s.free = s.free[:n-1]
		return idx
	}
	s.slots = append(s.slots, slot{})
	return len(s.slots) - 1
}

// remove unlinks idx from both lists and returns its slot to the free list.
func (s *Store) remove(idx int) PendingMove {
	sl := &s.slots[idx]

	if sl.prev != none {
		s.slots[sl.prev].next = sl.next
	} else {
		s.head = sl.next
	}
	if sl.next != none {
		s.slots[sl.next].prev = sl.prev
	} else {
		s.tail = sl.prev
	}

	s.unlinkToken(idx)

	move := sl.move
	*sl = slot{prev: none, next: none, tokenNext: none}
	s.free = append(s.free, idx)
	s.size--
	return move
}

// unlinkToken drops idx from its token FIFO. Both removal paths take the
// oldest entry of a token, so idx is the queue head in practice and the walk
// below never runs.
func (s *Store) unlinkToken(idx int) {
	token := s.slots[idx].move.Token
	q := s.tokens[token]

	if q.head == idx {
		if s.slots[idx].tokenNext == none {
			delete(s.tokens, token)
			return
		}
		q.head = s.slots[idx].tokenNext
		s.tokens[token] = q
		return
	}

	prev := q.head
	for s.slots[prev].tokenNext != idx {
		prev = s.slots[prev].tokenNext
	}
	s.slots[prev].tokenNext = s.slots[idx].tokenNext
	if q.tail == idx {
		q.tail = prev
	}
	s.tokens[token] = q
}

// truncateName caps name at MaxNameLen bytes without splitting a rune.
func truncateName(name string) string {
	if len(name) <= MaxNameLen {
		return name
	}
	cut := MaxNameLen
	for cut > 0 && !utf8.RuneStart(name[cut]) {
		cut--
	}
	return name[:cut]
}
