package sse

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movewatch/movewatch/internal/errors"
	"github.com/movewatch/movewatch/internal/watcher"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func startManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go m.Start(ctx)
	t.Cleanup(func() {
		cancel()
		_ = m.Shutdown(context.Background())
	})
	return m
}

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case ev := <-c.Outbox:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
		return Event{}
	}
}

func TestManager_Broadcast(t *testing.T) {
	m := startManager(t)

	all, err := m.Connect()
	require.NoError(t, err)
	renames, err := m.Connect(watcher.EventRenamed)
	require.NoError(t, err)
	assert.Equal(t, 2, m.ClientCount())
	assert.True(t, strings.HasPrefix(all.ID, "sse-"))

	m.Handle(watcher.Event{Type: watcher.EventCreated, Name: "a"})
	m.Handle(watcher.Event{Type: watcher.EventRenamed, Name: "b", OldName: "a"})
	m.Emit(NewWatchAddedEvent(watcher.Watch{Path: "/srv", ID: 1, Ops: watcher.OpAll}))

	assert.Equal(t, NotificationType(watcher.EventCreated), receive(t, all).Type)
	assert.Equal(t, EventType("fs.renamed"), receive(t, all).Type)
	assert.Equal(t, EventWatchAdded, receive(t, all).Type)

	// The filtered client skips the create but still gets non-notification events.
	got := receive(t, renames)
	assert.Equal(t, EventType("fs.renamed"), got.Type)
	assert.Equal(t, "b", got.Data.(watcher.Event).Name)
	assert.Equal(t, EventWatchAdded, receive(t, renames).Type)
}

func TestManager_Disconnect(t *testing.T) {
	m := NewManager(testLogger())

	var count atomic.Int64
	m.SetClientCountHook(func(n int) { count.Store(int64(n)) })

	c, err := m.Connect()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count.Load())

	m.Disconnect(c.ID)
	m.Disconnect(c.ID)
	assert.Equal(t, int64(0), count.Load())
	assert.Zero(t, m.ClientCount())

	_, ok := <-c.Outbox
	assert.False(t, ok)
}

func TestManager_ShutdownClosesClients(t *testing.T) {
	m := NewManager(testLogger())
	go m.Start(context.Background())

	c, err := m.Connect()
	require.NoError(t, err)
	m.Handle(watcher.Event{Type: watcher.EventDeleted, Name: "x"})

	require.NoError(t, m.Shutdown(context.Background()))
	require.NoError(t, m.Shutdown(context.Background()), "second shutdown is a no-op")

	select {
	case <-c.Done:
	case <-time.After(2 * time.Second):
		t.Fatal("client not closed")
	}

	// Emitting after shutdown is dropped silently.
	assert.NotPanics(t, func() { m.Handle(watcher.Event{Type: watcher.EventCreated}) })
}

func TestParseKinds(t *testing.T) {
	kinds, err := parseKinds([]string{"renamed, moved_in", "deleted"})
	require.NoError(t, err)
	assert.Equal(t, []watcher.EventType{watcher.EventRenamed, watcher.EventMovedIn, watcher.EventDeleted}, kinds)

	kinds, err = parseKinds(nil)
	require.NoError(t, err)
	assert.Empty(t, kinds)

	_, err = parseKinds([]string{"chmod"})
	assert.Error(t, err)
}

func TestHandler_Stream(t *testing.T) {
	m := startManager(t)
	h := NewHandler(m, testLogger())
	h.SetHeartbeatInterval(time.Hour)

	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?kind=moved_away", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	frames := make(chan [2]string, 10)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		var name string
		for scanner.Scan() {
			line := scanner.Text()
			if v, ok := strings.CutPrefix(line, "event: "); ok {
				name = v
			}
			if v, ok := strings.CutPrefix(line, "data: "); ok {
				frames <- [2]string{name, v}
			}
		}
	}()

	next := func() [2]string {
		select {
		case f := <-frames:
			return f
		case <-time.After(2 * time.Second):
			t.Fatal("no frame received")
			return [2]string{}
		}
	}

	assert.Equal(t, "connected", next()[0])

	require.Eventually(t, func() bool { return m.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	m.Handle(watcher.Event{Type: watcher.EventCreated, Name: "skipped"})
	m.Handle(watcher.Event{Type: watcher.EventMovedAway, Name: "gone.txt", WatchID: 4})

	f := next()
	assert.Equal(t, "fs.moved_away", f[0])

	var payload struct {
		Type string        `json:"type"`
		Data watcher.Event `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(f[1]), &payload))
	assert.Equal(t, "fs.moved_away", payload.Type)
	assert.Equal(t, "gone.txt", payload.Data.Name)
	assert.Equal(t, watcher.EventMovedAway, payload.Data.Type)
	assert.Equal(t, 4, payload.Data.WatchID)

	cancel()
	require.Eventually(t, func() bool { return m.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHandler_BadRequest(t *testing.T) {
	h := NewHandler(NewManager(testLogger()), testLogger())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?kind=bogus", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestManager_ConnectAfterShutdown(t *testing.T) {
	m := NewManager(testLogger())
	go m.Start(context.Background())
	require.NoError(t, m.Shutdown(context.Background()))

	c, err := m.Connect()
	assert.Nil(t, c)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotRunning))
	assert.Zero(t, m.ClientCount())
}

func TestHandler_AfterShutdown(t *testing.T) {
	m := NewManager(testLogger())
	require.NoError(t, m.Shutdown(context.Background()))
	h := NewHandler(m, testLogger())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.NotEqual(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Zero(t, m.ClientCount())
}
