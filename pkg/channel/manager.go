// Package channel owns the dual-channel delivery of execution status events:
// a push connection first, timed polling as the fallback. Callers never see
// transport errors; only the connectivity status signal changes.
package channel

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/flowpulse/flowpulse/pkg/events"
	"github.com/flowpulse/flowpulse/pkg/models"
	"github.com/flowpulse/flowpulse/pkg/push"
)

const (
	// DefaultPollInterval is the fallback polling cadence.
	DefaultPollInterval = 2 * time.Second

	// DefaultBaseReconnectDelay seeds the linear backoff: the n-th
	// reconnect attempt waits n * base. Linear, not exponential; tests
	// assert the exact delay values.
	DefaultBaseReconnectDelay = time.Second

	// DefaultMaxReconnectAttempts is how many reconnects are tried before
	// the session permanently falls back to polling.
	DefaultMaxReconnectAttempts = 5
)

// ErrAlreadyStarted is returned by Start on a running manager.
var ErrAlreadyStarted = errors.New("channel manager already started")

// Fetcher is the polling path: a point-in-time execution status fetch.
type Fetcher interface {
	GetExecution(ctx context.Context, executionID string) (*models.Execution, error)
}

// Sink receives every event from whichever channel is active. Delivery may
// overlap during a push/poll handover; the coordinator's merge is idempotent
// on purpose.
type Sink func(events.Event)

// StatusListener observes channel state transitions.
type StatusListener func(models.ChannelState)

// Config scopes a manager to one monitored workflow/execution.
type Config struct {
	WorkflowID           string
	ExecutionID          string
	PollInterval         time.Duration
	BaseReconnectDelay   time.Duration
	MaxReconnectAttempts int

	// OwnsPush makes Stop close the push manager too, for sessions that
	// created their own connection rather than sharing one.
	OwnsPush bool
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}

	if c.BaseReconnectDelay <= 0 {
		c.BaseReconnectDelay = DefaultBaseReconnectDelay
	}

	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
}

// Manager drives the dual-channel protocol for one workflow/execution. It is
// the sole owner of the push subscription, the reconnect timer and the
// polling loop; transitions between them are serialized under one mutex.
type Manager struct {
	cfg    Config
	push   *push.Manager
	fetch  Fetcher
	sink   Sink
	logger *slog.Logger

	// afterFunc schedules the reconnect timer; replaced in tests to
	// capture backoff delays.
	afterFunc func(time.Duration, func()) *time.Timer

	mu             sync.Mutex
	started        bool
	stopped        bool
	offDisconnect  func()
	status         models.ConnectionStatus
	attempts       int
	polling        bool
	pollInterval   time.Duration
	reconnectTimer *time.Timer
	pollCancel     context.CancelFunc
	ctx            context.Context
	cancel         context.CancelFunc
	listeners      []StatusListener
}

// NewManager wires a manager around an existing push manager and the polling
// fetcher. Nothing runs until Start.
func NewManager(cfg Config, pushManager *push.Manager, fetch Fetcher, sink Sink, logger *slog.Logger) *Manager {
	cfg.applyDefaults()

	return &Manager{
		cfg:          cfg,
		push:         pushManager,
		fetch:        fetch,
		sink:         sink,
		logger:       logger.With("module", "update_channel", "workflow_id", cfg.WorkflowID),
		afterFunc:    time.AfterFunc,
		status:       models.ConnectionDisconnected,
		pollInterval: cfg.PollInterval,
	}
}

// OnStatusChange registers a listener for channel state transitions. Must be
// called before Start. Listeners run with the manager lock held and must not
// call back into it.
func (m *Manager) OnStatusChange(listener StatusListener) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.listeners = append(m.listeners, listener)
}

// Start subscribes to the push channel and opens it. An initial open failure
// is not surfaced: it enters the reconnect/fallback policy like any later
// connection loss.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()

	if m.started {
		m.mu.Unlock()

		return ErrAlreadyStarted
	}

	m.started = true
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	off := m.push.OnDisconnect(m.handleDisconnect)

	m.mu.Lock()
	m.offDisconnect = off
	m.mu.Unlock()

	if err := m.push.Subscribe(m.cfg.WorkflowID, m.cfg.ExecutionID, m.handleFrame); err != nil {
		return err
	}

	if err := m.push.Open(m.ctx); err != nil {
		m.logger.Warn("Push channel failed to open, entering reconnect policy", "error", err)

		m.mu.Lock()
		m.scheduleReconnectLocked()
		m.mu.Unlock()

		return nil
	}

	m.mu.Lock()
	m.attempts = 0
	m.setStatusLocked(models.ConnectionConnected)
	m.mu.Unlock()

	return nil
}

// Stop tears the session down: push subscription, pending reconnect timer
// and polling loop are three independent resources, and all three are
// released regardless of which was active.
func (m *Manager) Stop() {
	m.mu.Lock()

	if m.stopped {
		m.mu.Unlock()

		return
	}

	m.stopped = true

	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}

	m.stopPollingLocked()

	if m.cancel != nil {
		m.cancel()
	}

	off := m.offDisconnect
	m.offDisconnect = nil

	m.setStatusLocked(models.ConnectionDisconnected)
	m.mu.Unlock()

	if off != nil {
		off()
	}

	m.push.Unsubscribe(m.cfg.WorkflowID)

	if m.cfg.OwnsPush {
		if err := m.push.Close(); err != nil {
			m.logger.Warn("Failed to close push connection", "error", err)
		}
	}
}

// Reconnect manually retries the push channel after fallback, resetting the
// attempt counter. On success the polling loop stops.
func (m *Manager) Reconnect() error {
	m.mu.Lock()

	if m.stopped || !m.started {
		m.mu.Unlock()

		return push.ErrClosed
	}

	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}

	m.attempts = 0
	ctx := m.ctx
	m.mu.Unlock()

	if err := m.push.Open(ctx); err != nil {
		m.mu.Lock()
		m.scheduleReconnectLocked()
		m.mu.Unlock()

		return err
	}

	m.mu.Lock()
	m.attempts = 0
	m.stopPollingLocked()
	m.setStatusLocked(models.ConnectionConnected)
	m.mu.Unlock()

	return nil
}

// State returns a snapshot of the channel's session state.
func (m *Manager) State() models.ChannelState {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.stateLocked()
}

// ConnectionStatus returns the externally observable connectivity state.
func (m *Manager) ConnectionStatus() models.ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.status
}

// IsPolling reports whether the fallback poller is driving updates.
func (m *Manager) IsPolling() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.polling
}

// ReconnectAttempts returns the current reconnect attempt counter.
func (m *Manager) ReconnectAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.attempts
}

// SetPollInterval changes the polling cadence at runtime. An active polling
// loop is restarted with the new interval; nothing else about the session
// changes.
func (m *Manager) SetPollInterval(interval time.Duration) {
	if interval <= 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.pollInterval = interval

	if m.polling {
		m.stopPollingLocked()
		m.startPollingLocked()
	} else {
		m.notifyLocked()
	}
}

// handleFrame decodes one inbound push frame and forwards it to the sink.
// Unrecognized tags are logged and dropped; frames for other executions are
// ignored when the session is scoped to one.
func (m *Manager) handleFrame(payload []byte) {
	event, err := events.Decode(payload)
	if err != nil {
		if errors.Is(err, events.ErrUnknownFrameType) {
			m.logger.Debug("Ignoring unrecognized frame", "error", err)
		} else {
			m.logger.Warn("Dropping malformed frame", "error", err)
		}

		return
	}

	if m.cfg.ExecutionID != "" && event.GetExecutionID() != "" && event.GetExecutionID() != m.cfg.ExecutionID {
		return
	}

	m.sink(event)
}

// handleDisconnect is invoked by the push manager on unexpected connection
// loss. The error is swallowed; only the status signal changes.
func (m *Manager) handleDisconnect(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}

	m.logger.Warn("Push channel lost", "error", err)
	m.scheduleReconnectLocked()
}

// scheduleReconnectLocked arms the next reconnect attempt with linear
// backoff, or falls back to polling for the rest of the session once
// attempts are exhausted. Caller holds the lock.
func (m *Manager) scheduleReconnectLocked() {
	if m.stopped {
		return
	}

	if m.attempts >= m.cfg.MaxReconnectAttempts {
		m.logger.Warn("Reconnect attempts exhausted, falling back to polling",
			"attempts", m.attempts)
		m.setStatusLocked(models.ConnectionDisconnected)
		m.startPollingLocked()

		return
	}

	m.attempts++
	delay := m.cfg.BaseReconnectDelay * time.Duration(m.attempts)

	m.setStatusLocked(models.ConnectionReconnecting)
	m.logger.Info("Scheduling push reconnect", "attempt", m.attempts, "delay", delay)

	m.reconnectTimer = m.afterFunc(delay, m.attemptReconnect)
}

// attemptReconnect runs when the backoff timer fires.
func (m *Manager) attemptReconnect() {
	m.mu.Lock()

	if m.stopped {
		m.mu.Unlock()

		return
	}

	m.reconnectTimer = nil
	ctx := m.ctx
	m.mu.Unlock()

	if err := m.push.Open(ctx); err != nil {
		m.mu.Lock()
		m.logger.Warn("Push reconnect failed", "attempt", m.attempts, "error", err)
		m.scheduleReconnectLocked()
		m.mu.Unlock()

		return
	}

	m.mu.Lock()
	// The connection may already be gone again; in that case the disconnect
	// handler has taken over and this attempt must not claim success.
	if m.push.Connected() {
		m.attempts = 0
		m.stopPollingLocked()
		m.setStatusLocked(models.ConnectionConnected)
	}
	m.mu.Unlock()
}

// startPollingLocked launches the fallback polling loop. Caller holds the
// lock. Fetch errors are transient-fault tolerant: logged, loop continues.
func (m *Manager) startPollingLocked() {
	if m.polling || m.stopped || m.cfg.ExecutionID == "" {
		if m.cfg.ExecutionID == "" {
			m.logger.Warn("No execution scoped, polling fallback unavailable")
		}

		m.notifyLocked()

		return
	}

	pollCtx, cancel := context.WithCancel(m.ctx)
	m.pollCancel = cancel
	m.polling = true
	interval := m.pollInterval

	m.notifyLocked()

	go m.pollLoop(pollCtx, interval)
}

func (m *Manager) stopPollingLocked() {
	if m.pollCancel != nil {
		m.pollCancel()
		m.pollCancel = nil
	}

	m.polling = false
}

func (m *Manager) pollLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}

			execution, err := m.fetch.GetExecution(ctx, m.cfg.ExecutionID)
			if err != nil {
				if ctx.Err() != nil {
					return
				}

				m.logger.Warn("Polling fetch failed", "error", err)

				continue
			}

			// Poll results ride the same merge path as push events.
			m.sink(events.ExecutionUpdate{
				Type:      events.ExecutionUpdateEvent,
				Execution: execution,
			})
		}
	}
}

func (m *Manager) setStatusLocked(status models.ConnectionStatus) {
	if m.status == status {
		return
	}

	m.status = status
	m.notifyLocked()
}

func (m *Manager) stateLocked() models.ChannelState {
	return models.ChannelState{
		Status:            m.status,
		ReconnectAttempts: m.attempts,
		IsPolling:         m.polling,
		PollInterval:      m.pollInterval,
	}
}

func (m *Manager) notifyLocked() {
	state := m.stateLocked()

	for _, listener := range m.listeners {
		listener(state)
	}
}
