package sse

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/movewatch/movewatch/internal/errors"
	"github.com/movewatch/movewatch/internal/id"
	"github.com/movewatch/movewatch/internal/watcher"
)

const (
	eventBuffer  = 1000
	clientBuffer = 100
)

// Client is one open notification stream.
type Client struct {
	ConnectedAt time.Time
	Outbox      chan Event
	Done        chan struct{}
	ID          string
	// Kinds limits notifications to these watcher kinds. Empty means all.
	Kinds map[watcher.EventType]bool
}

// wants reports whether the client receives event.
func (c *Client) wants(event Event) bool {
	if !event.notify || len(c.Kinds) == 0 {
		return true
	}
	return c.Kinds[event.kind]
}

// Manager fans events out to connected clients.
type Manager struct {
	clients map[string]*Client
	queue   chan Event
	log     *slog.Logger
	onCount func(int)
	loops   sync.WaitGroup
	mu      sync.RWMutex

	// closeMu guards closed and the close of queue.
	closeMu sync.RWMutex
	closed  bool
}

// NewManager creates a Manager. Call Start to begin delivery.
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		clients: make(map[string]*Client),
		queue:   make(chan Event, eventBuffer),
		log:     logger,
		onCount: func(int) {},
	}
}

// SetClientCountHook registers fn to be called with the client count after
// every connect and disconnect.
func (m *Manager) SetClientCountHook(fn func(int)) {
	if fn != nil {
		m.onCount = fn
	}
}

// Start runs the broadcast loop until ctx is done or Shutdown is called.
func (m *Manager) Start(ctx context.Context) {
	m.loops.Add(1)
	defer m.loops.Done()

	m.log.Debug("stream delivery started")

	for {
		select {
		case event, ok := <-m.queue:
			if !ok {
				m.closeAllClients()
				return
			}
			m.broadcast(event)

		case <-ctx.Done():
			m.log.Debug("stream delivery canceled")
			m.closeAllClients()
			return
		}
	}
}

// Shutdown stops accepting events, delivers the queued ones and closes all
// clients.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.closeMu.Lock()
	if m.closed {
		m.closeMu.Unlock()
		return nil
	}
	m.closed = true
	close(m.queue)
	m.closeMu.Unlock()

	// Start drains the closed queue and then closes the clients.
	drained := make(chan struct{})
	go func() {
		m.loops.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		// Start may never have run.
		if m.ClientCount() > 0 {
			m.closeAllClients()
		}
		m.log.Info("Notification stream stopped")
		return nil
	case <-ctx.Done():
		m.log.Warn("Notification stream stopped before the queue drained", "queued", len(m.queue))
		return ctx.Err()
	}
}

// broadcast sends an event to every interested client without blocking.
func (m *Manager) broadcast(event Event) {
	var sent, skipped, lagging int

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, client := range m.clients {
		if !client.wants(event) {
			skipped++
			continue
		}

		select {
		case client.Outbox <- event:
			sent++
		default:
			lagging++
			m.log.Warn("client outbox full, event not delivered",
				slog.String("client_id", client.ID),
				slog.String("type", string(event.Type)))
		}
	}

	m.log.Debug("delivered",
		slog.String("type", string(event.Type)),
		slog.Int("sent", sent),
		slog.Int("skipped", skipped),
		slog.Int("lagging", lagging))
}

// Connect registers a client that receives the given kinds, or every kind
// when none are given. After Shutdown it fails with a NotRunning error.
func (m *Manager) Connect(kinds ...watcher.EventType) (*Client, error) {
	// Held until the client is registered so Shutdown closes it.
	m.closeMu.RLock()
	defer m.closeMu.RUnlock()
	if m.closed {
		return nil, errors.NotRunning("notification stream is shut down")
	}

	clientID, err := id.Generate(id.PrefixStreamClient)
	if err != nil {
		return nil, err
	}

	client := &Client{
		ConnectedAt: time.Now(),
		Outbox:      make(chan Event, clientBuffer),
		Done:        make(chan struct{}),
		ID:          clientID,
	}
	if len(kinds) > 0 {
		client.Kinds = make(map[watcher.EventType]bool, len(kinds))
		for _, k := range kinds {
			client.Kinds[k] = true
		}
	}

	m.mu.Lock()
	m.clients[client.ID] = client
	n := len(m.clients)
	m.mu.Unlock()

	m.onCount(n)
	m.log.Info("Stream client connected", "client_id", clientID, "kinds", len(kinds), "clients", n)
	return client, nil
}

// Disconnect forgets a client and closes its Done and Outbox channels.
// Unknown ids are ignored.
func (m *Manager) Disconnect(clientID string) {
	m.mu.Lock()
	client, ok := m.clients[clientID]
	if ok {
		delete(m.clients, clientID)
	}
	n := len(m.clients)
	m.mu.Unlock()
	if !ok {
		return
	}

	close(client.Done)
	close(client.Outbox)

	m.onCount(n)
	m.log.Info("Stream client disconnected",
		"client_id", clientID,
		"connected_for", time.Since(client.ConnectedAt).Round(time.Millisecond),
		"clients", n)
}

// Emit queues an event for broadcasting. Events are dropped after Shutdown
// and when the queue is full.
func (m *Manager) Emit(event Event) {
	// The read lock is held through the send so Shutdown cannot close the
	// channel underneath it.
	m.closeMu.RLock()
	defer m.closeMu.RUnlock()

	if m.closed {
		return
	}

	select {
	case m.queue <- event:
	default:
		m.log.Error("stream queue full, event dropped", "type", string(event.Type))
	}
}

// Handle emits a watcher notification. Its signature matches
// watcher.EventFunc.
func (m *Manager) Handle(ev watcher.Event) {
	m.Emit(NewNotificationEvent(ev))
}

// ClientCount reports how many streams are open.
func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

func (m *Manager) closeAllClients() {
	m.mu.Lock()
	n := len(m.clients)
	for _, c := range m.clients {
		close(c.Done)
		close(c.Outbox)
	}
	m.clients = make(map[string]*Client)
	m.mu.Unlock()

	m.onCount(0)
	if n > 0 {
		m.log.Info("Closed stream clients", "clients", n)
	}
}
