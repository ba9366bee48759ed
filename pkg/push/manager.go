package push

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/flowpulse/flowpulse/pkg/events"
)

// ErrClosed is returned by operations on a manager whose Close was called.
var ErrClosed = errors.New("push manager closed")

// ErrNotConnected is returned when an operation needs an open connection.
var ErrNotConnected = errors.New("push channel not connected")

// FrameHandler receives raw inbound frames for one subscription. Decoding
// and execution-id filtering happen downstream on the merge path.
type FrameHandler func(payload []byte)

// DisconnectHandler is invoked once per connection when the read loop exits
// for any reason other than Close.
type DisconnectHandler func(err error)

type subscription struct {
	workflowID  string
	executionID string
	handler     FrameHandler
}

// Manager owns one shared push connection and the workflow subscriptions
// multiplexed onto it. All workflow subscriptions funnel through the one
// socket; on (re)open every registered subscription is re-announced.
type Manager struct {
	url    string
	dial   Dialer
	logger *slog.Logger

	mu           sync.Mutex
	conn         Conn
	generation   int
	subs         map[string]*subscription
	onDisconnect map[int]DisconnectHandler
	handlerSeq   int
	closed       bool
}

// NewManager creates a manager dialing the given endpoint. It does not
// connect until Open is called.
func NewManager(url string, dial Dialer, logger *slog.Logger) *Manager {
	return &Manager{
		url:          url,
		dial:         dial,
		logger:       logger.With("module", "push_manager"),
		subs:         make(map[string]*subscription),
		onDisconnect: make(map[int]DisconnectHandler),
	}
}

// OnDisconnect registers a callback notified of unexpected connection loss.
// Every monitoring session sharing this connection registers its own; the
// returned func deregisters it and must be called on session teardown.
func (m *Manager) OnDisconnect(h DisconnectHandler) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.handlerSeq++
	id := m.handlerSeq
	m.onDisconnect[id] = h

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()

		delete(m.onDisconnect, id)
	}
}

// Open dials the endpoint, announces every registered subscription and
// starts the read loop. Calling Open while connected is a no-op.
func (m *Manager) Open(ctx context.Context) error {
	m.mu.Lock()

	if m.closed {
		m.mu.Unlock()

		return ErrClosed
	}

	if m.conn != nil {
		m.mu.Unlock()

		return nil
	}

	m.mu.Unlock()

	// Dial outside the lock; a slow handshake must not block Subscribe
	// or Close on an old connection.
	conn, err := m.dial(ctx, m.url)
	if err != nil {
		return err
	}

	m.mu.Lock()

	if m.closed {
		m.mu.Unlock()
		_ = conn.Close()

		return ErrClosed
	}

	m.conn = conn
	m.generation++
	generation := m.generation

	for _, sub := range m.subs {
		if err := conn.WriteJSON(events.NewSubscribe(sub.workflowID, sub.executionID)); err != nil {
			m.logger.Warn("Failed to announce subscription", "workflow_id", sub.workflowID, "error", err)
		}
	}
	m.mu.Unlock()

	go m.readLoop(conn, generation)

	return nil
}

// Connected reports whether a connection is currently open.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.conn != nil
}

// Subscribe registers a handler for one workflow (optionally narrowed to one
// execution) and announces it if the connection is open. Re-subscribing a
// workflow replaces its handler.
func (m *Manager) Subscribe(workflowID, executionID string, handler FrameHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	m.subs[workflowID] = &subscription{
		workflowID:  workflowID,
		executionID: executionID,
		handler:     handler,
	}

	if m.conn == nil {
		return nil
	}

	return m.conn.WriteJSON(events.NewSubscribe(workflowID, executionID))
}

// Unsubscribe removes a workflow's subscription. Frames already in flight
// may still reach the old handler; downstream dedup absorbs that.
func (m *Manager) Unsubscribe(workflowID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.subs, workflowID)
}

// Close tears down the connection and drops all subscriptions. The manager
// cannot be reused afterwards.
func (m *Manager) Close() error {
	m.mu.Lock()

	if m.closed {
		m.mu.Unlock()

		return nil
	}

	m.closed = true
	conn := m.conn
	m.conn = nil
	m.subs = make(map[string]*subscription)
	m.onDisconnect = make(map[int]DisconnectHandler)
	m.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}

	return nil
}

// readLoop drains one connection, fanning frames out to every live
// subscription. Exit notifies the disconnect handler unless the manager was
// closed or a newer connection replaced this one.
func (m *Manager) readLoop(conn Conn, generation int) {
	for {
		payload, err := conn.ReadMessage()
		if err != nil {
			m.mu.Lock()

			stale := m.closed || m.generation != generation
			if !stale {
				m.conn = nil
			}

			handlers := make([]DisconnectHandler, 0, len(m.onDisconnect))
			for _, h := range m.onDisconnect {
				handlers = append(handlers, h)
			}
			m.mu.Unlock()

			if !stale {
				for _, handler := range handlers {
					handler(err)
				}
			}

			return
		}

		m.dispatch(payload)
	}
}

func (m *Manager) dispatch(payload []byte) {
	m.mu.Lock()
	handlers := make([]FrameHandler, 0, len(m.subs))

	for _, sub := range m.subs {
		handlers = append(handlers, sub.handler)
	}
	m.mu.Unlock()

	for _, handler := range handlers {
		handler(payload)
	}
}
