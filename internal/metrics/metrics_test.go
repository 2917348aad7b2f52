package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movewatch/movewatch/internal/watcher"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.Notified(watcher.EventRenamed)
	m.Notified(watcher.EventRenamed)
	m.Notified(watcher.EventMovedAway)
	m.Dropped(watcher.DropCapacity, 3)
	m.Pending(7)
	m.Watches(2)
	m.SetStreamClients(1)
	m.JournalError()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.notifications.WithLabelValues("renamed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("moved_away")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.notifications.WithLabelValues("created")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.dropped.WithLabelValues("capacity")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.pending))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.watches))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.streamClients))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.journalErrors))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Notified(watcher.EventCreated)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `movewatch_notifications_total{kind="created"} 1`)
	assert.Contains(t, string(body), `movewatch_dropped_records_total{reason="queue_overflow"} 0`)
	assert.Contains(t, string(body), "movewatch_pending_moves 0")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestMetrics_Independent(t *testing.T) {
	// Each instance has its own registry, so two can coexist.
	a, b := New(), New()
	a.Pending(1)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.pending))
}
