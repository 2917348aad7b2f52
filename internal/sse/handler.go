package sse

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/movewatch/movewatch/internal/errors"
	"github.com/movewatch/movewatch/internal/watcher"
)

// DefaultHeartbeatInterval is how often idle streams get a heartbeat.
const DefaultHeartbeatInterval = 30 * time.Second

// Handler serves the notification stream. The optional "kind" query
// parameter, repeated or comma separated, restricts the notification kinds.
type Handler struct {
	manager   *Manager
	logger    *slog.Logger
	heartbeat time.Duration
}

// NewHandler returns a Handler for streams registered with manager.
func NewHandler(manager *Manager, logger *slog.Logger) *Handler {
	return &Handler{
		manager:   manager,
		logger:    logger,
		heartbeat: DefaultHeartbeatInterval,
	}
}

// SetHeartbeatInterval overrides DefaultHeartbeatInterval.
func (h *Handler) SetHeartbeatInterval(d time.Duration) {
	if d > 0 {
		h.heartbeat = d
	}
}

// ServeHTTP opens a stream and holds it until the client goes away or the
// manager closes it.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "stream only supports GET", http.StatusMethodNotAllowed)
		return
	}

	kinds, err := parseKinds(r.URL.Query()["kind"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if r.Context().Err() != nil {
		return
	}

	client, err := h.manager.Connect(kinds...)
	if err != nil {
		h.logger.Warn("stream registration failed", "error", err)
		http.Error(w, err.Error(), errors.CodeOf(err).HTTPStatus())
		return
	}
	defer h.manager.Disconnect(client.ID)

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")

	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		h.logger.Error("response does not support streaming", "error", err)
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	reason := h.stream(r, w, rc, client)
	h.logger.Debug("stream ended", "client_id", client.ID, "reason", reason)
}

// stream writes events to the client and returns why it stopped.
func (h *Handler) stream(r *http.Request, w http.ResponseWriter, rc *http.ResponseController, client *Client) string {
	hello := Event{
		Type:      EventConnected,
		Timestamp: time.Now(),
		Data:      map[string]string{"client_id": client.ID},
	}
	if err := h.sendEvent(w, rc, hello); err != nil {
		return "write failed: " + err.Error()
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case event, ok := <-client.Outbox:
			if !ok {
				return "closed by manager"
			}
			if err := h.sendEvent(w, rc, event); err != nil {
				return "write failed: " + err.Error()
			}
		case <-heartbeat.C:
			if err := h.sendEvent(w, rc, NewHeartbeatEvent()); err != nil {
				return "heartbeat failed: " + err.Error()
			}
		case <-client.Done:
			return "closed by manager"
		case <-r.Context().Done():
			return "client gone"
		}
	}
}

// sendEvent writes one "event:"/"data:" frame and flushes it.
func (h *Handler) sendEvent(w http.ResponseWriter, rc *http.ResponseController, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Type, err)
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		return err
	}

	if err := rc.Flush(); err != nil {
		return err
	}

	// A stream that cannot take two heartbeats in a row is dead.
	if err := rc.SetWriteDeadline(time.Now().Add(2 * h.heartbeat)); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.logger.Debug("write deadline not set", "error", err)
	}

	return nil
}

// parseKinds accepts repeated and comma-separated kind names.
func parseKinds(values []string) ([]watcher.EventType, error) {
	var kinds []watcher.EventType
	for _, v := range values {
		for part := range strings.SplitSeq(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			k, err := watcher.ParseEventType(part)
			if err != nil {
				return nil, err
			}
			kinds = append(kinds, k)
		}
	}
	return kinds, nil
}
