package push

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/flowpulse/flowpulse/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn is an in-memory Conn fed by the test.
type fakeConn struct {
	mu      sync.Mutex
	inbound chan []byte
	written []any
	closed  bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbound: make(chan []byte, 16)}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	payload, ok := <-c.inbound
	if !ok {
		return nil, io.ErrUnexpectedEOF
	}

	return payload, nil
}

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.New("write on closed conn")
	}

	c.written = append(c.written, v)

	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.inbound)
	}

	return nil
}

func (c *fakeConn) writtenFrames() []any {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]any(nil), c.written...)
}

func dialerFor(conns ...*fakeConn) (Dialer, *int) {
	calls := 0

	return func(context.Context, string) (Conn, error) {
		if calls >= len(conns) {
			return nil, errors.New("dial refused")
		}

		conn := conns[calls]
		calls++

		return conn, nil
	}, &calls
}

func testManager(t *testing.T, conns ...*fakeConn) *Manager {
	t.Helper()

	dial, _ := dialerFor(conns...)

	return NewManager("ws://execution.test/updates", dial, slog.Default())
}

func TestManager_OpenAnnouncesSubscriptions(t *testing.T) {
	conn := newFakeConn()
	manager := testManager(t, conn)
	defer func() { _ = manager.Close() }()

	require.NoError(t, manager.Subscribe("wf-1", "exec-1", func([]byte) {}))
	require.NoError(t, manager.Open(context.Background()))
	assert.True(t, manager.Connected())

	frames := conn.writtenFrames()
	require.Len(t, frames, 1)

	subscribe, ok := frames[0].(events.Subscribe)
	require.True(t, ok)
	assert.Equal(t, events.SubscribeEvent, subscribe.Type)
	assert.Equal(t, "wf-1", subscribe.WorkflowID)
	assert.Equal(t, "exec-1", subscribe.ExecutionID)
}

func TestManager_SubscribeAfterOpenAnnouncesImmediately(t *testing.T) {
	conn := newFakeConn()
	manager := testManager(t, conn)
	defer func() { _ = manager.Close() }()

	require.NoError(t, manager.Open(context.Background()))
	require.NoError(t, manager.Subscribe("wf-2", "", func([]byte) {}))

	frames := conn.writtenFrames()
	require.Len(t, frames, 1)
	assert.Equal(t, "wf-2", frames[0].(events.Subscribe).WorkflowID)
}

func TestManager_DispatchesInboundFrames(t *testing.T) {
	conn := newFakeConn()
	manager := testManager(t, conn)
	defer func() { _ = manager.Close() }()

	received := make(chan []byte, 1)
	require.NoError(t, manager.Subscribe("wf-1", "", func(payload []byte) {
		received <- payload
	}))
	require.NoError(t, manager.Open(context.Background()))

	frame, _ := json.Marshal(map[string]any{"type": "status_update", "execution_id": "exec-1", "status": "running"})
	conn.inbound <- frame

	select {
	case payload := <-received:
		assert.JSONEq(t, string(frame), string(payload))
	case <-time.After(time.Second):
		t.Fatal("frame was not dispatched")
	}
}

func TestManager_DisconnectHandlerFiresOnConnectionLoss(t *testing.T) {
	conn := newFakeConn()
	manager := testManager(t, conn)
	defer func() { _ = manager.Close() }()

	disconnected := make(chan error, 1)
	manager.OnDisconnect(func(err error) {
		disconnected <- err
	})

	require.NoError(t, manager.Open(context.Background()))

	// Remote side drops the connection.
	_ = conn.Close()

	select {
	case err := <-disconnected:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("disconnect handler did not fire")
	}

	assert.False(t, manager.Connected())
}

func TestManager_OnDisconnectDeregisters(t *testing.T) {
	conn := newFakeConn()
	manager := testManager(t, conn)
	defer func() { _ = manager.Close() }()

	removed := make(chan error, 1)
	kept := make(chan error, 1)

	off := manager.OnDisconnect(func(err error) { removed <- err })
	manager.OnDisconnect(func(err error) { kept <- err })
	off()

	require.NoError(t, manager.Open(context.Background()))
	_ = conn.Close()

	select {
	case err := <-kept:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("remaining disconnect handler did not fire")
	}

	select {
	case <-removed:
		t.Fatal("deregistered disconnect handler must not fire")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestManager_CloseSuppressesDisconnectHandler(t *testing.T) {
	conn := newFakeConn()
	manager := testManager(t, conn)

	fired := make(chan error, 1)
	manager.OnDisconnect(func(err error) {
		fired <- err
	})

	require.NoError(t, manager.Open(context.Background()))
	require.NoError(t, manager.Close())

	select {
	case <-fired:
		t.Fatal("disconnect handler must not fire on explicit Close")
	case <-time.After(50 * time.Millisecond):
	}

	assert.ErrorIs(t, manager.Open(context.Background()), ErrClosed)
	assert.ErrorIs(t, manager.Subscribe("wf-1", "", func([]byte) {}), ErrClosed)
}

func TestManager_UnsubscribeStopsDelivery(t *testing.T) {
	conn := newFakeConn()
	manager := testManager(t, conn)
	defer func() { _ = manager.Close() }()

	var count int

	done := make(chan struct{}, 2)
	require.NoError(t, manager.Subscribe("wf-1", "", func([]byte) {
		count++
		done <- struct{}{}
	}))
	require.NoError(t, manager.Open(context.Background()))

	conn.inbound <- []byte(`{"type":"log_update","execution_id":"exec-1"}`)
	<-done

	manager.Unsubscribe("wf-1")
	conn.inbound <- []byte(`{"type":"log_update","execution_id":"exec-1"}`)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, count)
}

func TestManager_ReopenAfterLossResubscribes(t *testing.T) {
	first := newFakeConn()
	second := newFakeConn()
	manager := testManager(t, first, second)
	defer func() { _ = manager.Close() }()

	disconnected := make(chan error, 1)
	manager.OnDisconnect(func(err error) { disconnected <- err })

	require.NoError(t, manager.Subscribe("wf-1", "exec-1", func([]byte) {}))
	require.NoError(t, manager.Open(context.Background()))

	_ = first.Close()
	<-disconnected

	require.NoError(t, manager.Open(context.Background()))
	assert.True(t, manager.Connected())

	frames := second.writtenFrames()
	require.Len(t, frames, 1)
	assert.Equal(t, "wf-1", frames[0].(events.Subscribe).WorkflowID)
}
