package channel

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/flowpulse/flowpulse/pkg/events"
	"github.com/flowpulse/flowpulse/pkg/models"
	"github.com/flowpulse/flowpulse/pkg/push"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedConn acts as the remote end of the push channel.
type scriptedConn struct {
	mu      sync.Mutex
	inbound chan []byte
	closed  bool
}

func newScriptedConn() *scriptedConn {
	return &scriptedConn{inbound: make(chan []byte, 16)}
}

func (c *scriptedConn) ReadMessage() ([]byte, error) {
	payload, ok := <-c.inbound
	if !ok {
		return nil, io.ErrUnexpectedEOF
	}

	return payload, nil
}

func (c *scriptedConn) WriteJSON(any) error { return nil }

func (c *scriptedConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.inbound)
	}

	return nil
}

// scriptedDialer fails dials until failures is exhausted, then hands out
// fresh connections.
type scriptedDialer struct {
	mu       sync.Mutex
	failures int
	dials    int
	conns    []*scriptedConn
}

func (d *scriptedDialer) dial(context.Context, string) (push.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.dials++

	if d.failures > 0 {
		d.failures--

		return nil, errors.New("connection refused")
	}

	conn := newScriptedConn()
	d.conns = append(d.conns, conn)

	return conn, nil
}

func (d *scriptedDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.dials
}

// fakeFetcher serves polling fetches.
type fakeFetcher struct {
	mu        sync.Mutex
	execution *models.Execution
	err       error
	calls     int
}

func (f *fakeFetcher) GetExecution(context.Context, string) (*models.Execution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++

	if f.err != nil {
		return nil, f.err
	}

	return f.execution.Clone(), nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls
}

type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) sink(event events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, event)
}

func (r *eventRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.events)
}

func (r *eventRecorder) at(i int) events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.events[i]
}

// delayCapture replaces the backoff timer, recording requested delays and
// firing synchronously on demand.
type delayCapture struct {
	mu      sync.Mutex
	delays  []time.Duration
	pending []func()
}

func (d *delayCapture) afterFunc(delay time.Duration, fn func()) *time.Timer {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.delays = append(d.delays, delay)
	d.pending = append(d.pending, fn)

	// Never fires on its own; the test drives it.
	return time.NewTimer(time.Hour)
}

func (d *delayCapture) fireNext(t *testing.T) {
	t.Helper()

	d.mu.Lock()
	require.NotEmpty(t, d.pending, "no pending reconnect timer")
	fn := d.pending[0]
	d.pending = d.pending[1:]
	d.mu.Unlock()

	fn()
}

func (d *delayCapture) captured() []time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]time.Duration(nil), d.delays...)
}

func testSetup(cfg Config, dialer *scriptedDialer, fetcher *fakeFetcher) (*Manager, *eventRecorder, *delayCapture) {
	recorder := &eventRecorder{}
	capture := &delayCapture{}

	pushManager := push.NewManager("ws://execution.test/updates", dialer.dial, slog.Default())
	manager := NewManager(cfg, pushManager, fetcher, recorder.sink, slog.Default())
	manager.afterFunc = capture.afterFunc

	return manager, recorder, capture
}

func baseConfig() Config {
	return Config{
		WorkflowID:         "wf-1",
		ExecutionID:        "exec-1",
		PollInterval:       10 * time.Millisecond,
		BaseReconnectDelay: 100 * time.Millisecond,
		OwnsPush:           true,
	}
}

func TestManager_StartConnects(t *testing.T) {
	dialer := &scriptedDialer{}
	manager, _, _ := testSetup(baseConfig(), dialer, &fakeFetcher{})
	defer manager.Stop()

	require.NoError(t, manager.Start(context.Background()))

	assert.Equal(t, models.ConnectionConnected, manager.ConnectionStatus())
	assert.False(t, manager.IsPolling())
	assert.Zero(t, manager.ReconnectAttempts())
}

func TestManager_PushEventsReachSink(t *testing.T) {
	dialer := &scriptedDialer{}
	manager, recorder, _ := testSetup(baseConfig(), dialer, &fakeFetcher{})
	defer manager.Stop()

	require.NoError(t, manager.Start(context.Background()))
	require.Len(t, dialer.conns, 1)

	dialer.conns[0].inbound <- []byte(`{"type":"status_update","execution_id":"exec-1","status":"running"}`)

	require.Eventually(t, func() bool { return recorder.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestManager_FiltersOtherExecutions(t *testing.T) {
	dialer := &scriptedDialer{}
	manager, recorder, _ := testSetup(baseConfig(), dialer, &fakeFetcher{})
	defer manager.Stop()

	require.NoError(t, manager.Start(context.Background()))

	dialer.conns[0].inbound <- []byte(`{"type":"status_update","execution_id":"someone-else","status":"running"}`)
	dialer.conns[0].inbound <- []byte(`{"type":"status_update","execution_id":"exec-1","status":"running"}`)

	require.Eventually(t, func() bool { return recorder.count() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, recorder.count())
}

func TestManager_UnknownFramesIgnored(t *testing.T) {
	dialer := &scriptedDialer{}
	manager, recorder, _ := testSetup(baseConfig(), dialer, &fakeFetcher{})
	defer manager.Stop()

	require.NoError(t, manager.Start(context.Background()))

	dialer.conns[0].inbound <- []byte(`{"type":"presence_update"}`)
	dialer.conns[0].inbound <- []byte(`not json at all`)
	dialer.conns[0].inbound <- []byte(`{"type":"log_update","execution_id":"exec-1","entries":[]}`)

	require.Eventually(t, func() bool { return recorder.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, events.LogUpdateEvent, recorder.at(0).GetType())
}

func TestManager_LinearBackoffThenPollingFallback(t *testing.T) {
	// Every dial fails: the initial open plus all five reconnect attempts.
	dialer := &scriptedDialer{failures: 10}
	fetcher := &fakeFetcher{execution: &models.Execution{ID: "exec-1", Status: models.ExecutionStatusRunning}}
	cfg := baseConfig()
	manager, recorder, capture := testSetup(cfg, dialer, fetcher)
	defer manager.Stop()

	require.NoError(t, manager.Start(context.Background()))
	assert.Equal(t, models.ConnectionReconnecting, manager.ConnectionStatus())

	for i := range 5 {
		assert.Equal(t, i+1, manager.ReconnectAttempts())
		capture.fireNext(t)
	}

	// Linear shape: d, 2d, 3d, 4d, 5d.
	d := cfg.BaseReconnectDelay
	assert.Equal(t, []time.Duration{d, 2 * d, 3 * d, 4 * d, 5 * d}, capture.captured())

	// Attempts exhausted: permanent polling fallback.
	assert.True(t, manager.IsPolling())
	assert.Equal(t, models.ConnectionDisconnected, manager.ConnectionStatus())

	// Poll results flow through the sink.
	require.Eventually(t, func() bool { return recorder.count() >= 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, events.ExecutionUpdateEvent, recorder.at(0).GetType())

	// No further reconnects are scheduled on their own.
	assert.Empty(t, capture.pending)
}

func TestManager_ManualReconnectLeavesPolling(t *testing.T) {
	// 6 failures: initial + 5 attempts; then dials succeed.
	dialer := &scriptedDialer{failures: 6}
	fetcher := &fakeFetcher{execution: &models.Execution{ID: "exec-1", Status: models.ExecutionStatusRunning}}
	manager, _, capture := testSetup(baseConfig(), dialer, fetcher)
	defer manager.Stop()

	require.NoError(t, manager.Start(context.Background()))

	for range 5 {
		capture.fireNext(t)
	}

	require.True(t, manager.IsPolling())

	require.NoError(t, manager.Reconnect())
	assert.False(t, manager.IsPolling())
	assert.Equal(t, models.ConnectionConnected, manager.ConnectionStatus())
	assert.Zero(t, manager.ReconnectAttempts())
}

func TestManager_ReconnectAttemptCounterResetsOnSuccess(t *testing.T) {
	// Initial dial fails, first retry succeeds.
	dialer := &scriptedDialer{failures: 1}
	manager, _, capture := testSetup(baseConfig(), dialer, &fakeFetcher{})
	defer manager.Stop()

	require.NoError(t, manager.Start(context.Background()))
	require.Equal(t, 1, manager.ReconnectAttempts())

	capture.fireNext(t)

	assert.Equal(t, models.ConnectionConnected, manager.ConnectionStatus())
	assert.Zero(t, manager.ReconnectAttempts())
}

func TestManager_PollingSurvivesFetchErrors(t *testing.T) {
	dialer := &scriptedDialer{failures: 10}
	fetcher := &fakeFetcher{err: errors.New("boom")}
	manager, recorder, capture := testSetup(baseConfig(), dialer, fetcher)
	defer manager.Stop()

	require.NoError(t, manager.Start(context.Background()))

	for range 5 {
		capture.fireNext(t)
	}

	require.True(t, manager.IsPolling())

	// Several ticks fail, the loop keeps going.
	require.Eventually(t, func() bool { return fetcher.callCount() >= 3 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, recorder.count())
	assert.True(t, manager.IsPolling())
}

func TestManager_SetPollIntervalRestartsTicker(t *testing.T) {
	dialer := &scriptedDialer{failures: 10}
	fetcher := &fakeFetcher{execution: &models.Execution{ID: "exec-1", Status: models.ExecutionStatusRunning}}
	cfg := baseConfig()
	cfg.PollInterval = time.Hour // effectively never fires
	manager, recorder, capture := testSetup(cfg, dialer, fetcher)
	defer manager.Stop()

	require.NoError(t, manager.Start(context.Background()))

	for range 5 {
		capture.fireNext(t)
	}

	require.True(t, manager.IsPolling())
	assert.Zero(t, fetcher.callCount())

	manager.SetPollInterval(5 * time.Millisecond)

	require.Eventually(t, func() bool { return fetcher.callCount() >= 2 }, time.Second, time.Millisecond)
	assert.True(t, manager.IsPolling())
	assert.Positive(t, recorder.count())
	assert.Equal(t, 5*time.Millisecond, manager.State().PollInterval)
}

func TestManager_DisconnectTriggersReconnect(t *testing.T) {
	dialer := &scriptedDialer{}
	manager, _, capture := testSetup(baseConfig(), dialer, &fakeFetcher{})
	defer manager.Stop()

	require.NoError(t, manager.Start(context.Background()))
	require.Len(t, dialer.conns, 1)

	// Remote closes the connection.
	_ = dialer.conns[0].Close()

	require.Eventually(t, func() bool {
		return manager.ConnectionStatus() == models.ConnectionReconnecting
	}, time.Second, 5*time.Millisecond)

	capture.fireNext(t)

	require.Eventually(t, func() bool {
		return manager.ConnectionStatus() == models.ConnectionConnected
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, dialer.dialCount())
}

func TestManager_StopReleasesEverything(t *testing.T) {
	dialer := &scriptedDialer{failures: 10}
	fetcher := &fakeFetcher{execution: &models.Execution{ID: "exec-1"}}
	manager, _, capture := testSetup(baseConfig(), dialer, fetcher)

	require.NoError(t, manager.Start(context.Background()))

	// Mid-reconnect with a pending timer.
	require.Equal(t, models.ConnectionReconnecting, manager.ConnectionStatus())

	manager.Stop()

	assert.Equal(t, models.ConnectionDisconnected, manager.ConnectionStatus())
	assert.False(t, manager.IsPolling())

	// A stale timer firing after Stop must not dial again.
	dialed := dialer.dialCount()
	capture.fireNext(t)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, dialed, dialer.dialCount())

	// Stop is idempotent.
	manager.Stop()
}

func TestManager_StatusListenerObservesTransitions(t *testing.T) {
	dialer := &scriptedDialer{failures: 10}
	manager, _, capture := testSetup(baseConfig(), dialer, &fakeFetcher{execution: &models.Execution{ID: "exec-1"}})
	defer manager.Stop()

	var (
		mu     sync.Mutex
		states []models.ChannelState
	)

	manager.OnStatusChange(func(state models.ChannelState) {
		mu.Lock()
		defer mu.Unlock()

		states = append(states, state)
	})

	require.NoError(t, manager.Start(context.Background()))

	for range 5 {
		capture.fireNext(t)
	}

	mu.Lock()
	defer mu.Unlock()

	require.NotEmpty(t, states)
	final := states[len(states)-1]
	assert.True(t, final.IsPolling)
	assert.Equal(t, models.ConnectionDisconnected, final.Status)
}
