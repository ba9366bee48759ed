package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/flowpulse/flowpulse/pkg/channel"
	"github.com/flowpulse/flowpulse/pkg/events"
	"github.com/flowpulse/flowpulse/pkg/logbuffer"
	"github.com/flowpulse/flowpulse/pkg/models"
	"github.com/flowpulse/flowpulse/pkg/push"
	"github.com/flowpulse/flowpulse/pkg/validation"
)

// ExecutionService is what the coordinator needs from the remote execution
// service: submit, cancel and the polling fetch.
type ExecutionService interface {
	Execute(ctx context.Context, workflowID string, params map[string]any) (*models.Execution, error)
	Cancel(ctx context.Context, executionID string) error
	GetExecution(ctx context.Context, executionID string) (*models.Execution, error)
}

// statusRank orders the lifecycle for the monotonic transition guard.
func statusRank(s models.ExecutionStatus) int {
	switch s {
	case models.ExecutionStatusPending:
		return 0
	case models.ExecutionStatusRunning:
		return 1
	default:
		return 2
	}
}

// ValidationListener observes settled revalidation results after graph
// mutations.
type ValidationListener func(validation.Result)

// Coordinator owns one monitored execution. All state mutation happens on
// the merge path under one mutex; external callers read snapshots or request
// actions that indirectly cause transitions.
type Coordinator struct {
	service  ExecutionService
	push     *push.Manager
	logger   *slog.Logger
	notifier *Notifier

	channelCfg    channel.Config
	logCap        int
	configs       *validation.ConfigValidator
	debounceDelay time.Duration
	debounce      *validation.Debouncer

	mu        sync.Mutex
	workflow  *models.Workflow
	execution *models.Execution
	// optimistic marks a locally applied cancel awaiting the server;
	// revertTo is the last confirmed status to fall back to.
	optimistic   bool
	revertTo     models.ExecutionStatus
	updates      *channel.Manager
	logs         *logbuffer.Buffer
	onValidation []ValidationListener
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogCapacity bounds the log aggregator.
func WithLogCapacity(capacity int) Option {
	return func(c *Coordinator) {
		c.logCap = capacity
	}
}

// WithNotifier publishes every merged update for external observers.
func WithNotifier(notifier *Notifier) Option {
	return func(c *Coordinator) {
		c.notifier = notifier
	}
}

// WithChannelConfig overrides the update channel tuning (poll interval,
// backoff). Workflow/execution scoping is always set by the coordinator.
func WithChannelConfig(cfg channel.Config) Option {
	return func(c *Coordinator) {
		c.channelCfg = cfg
	}
}

// WithConfigValidator adds per-kind node config schema checks to graph
// validation. Schema findings gate execution like structural ones.
func WithConfigValidator(configs *validation.ConfigValidator) Option {
	return func(c *Coordinator) {
		c.configs = configs
	}
}

// WithDebounceDelay tunes how long graph edits are allowed to settle before
// revalidation runs.
func WithDebounceDelay(delay time.Duration) Option {
	return func(c *Coordinator) {
		c.debounceDelay = delay
	}
}

// NewCoordinator creates a coordinator for one workflow snapshot.
func NewCoordinator(
	workflow *models.Workflow,
	service ExecutionService,
	pushManager *push.Manager,
	logger *slog.Logger,
	opts ...Option,
) *Coordinator {
	c := &Coordinator{
		workflow: workflow,
		service:  service,
		push:     pushManager,
		logger:   logger.With("module", "execution_coordinator", "workflow_id", workflow.ID),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.logs = logbuffer.New(c.logCap)
	c.debounce = validation.NewDebouncer(c.debounceDelay, c.settleValidation)

	return c
}

// Validate runs graph validation on the coordinator's workflow snapshot.
func (c *Coordinator) Validate() validation.Result {
	c.mu.Lock()
	workflow := c.workflow
	c.mu.Unlock()

	return c.withConfigIssues(workflow, validation.Validate(workflow))
}

// OnValidation registers a listener for settled revalidation results.
func (c *Coordinator) OnValidation(listener ValidationListener) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.onValidation = append(c.onValidation, listener)
}

// UpdateGraph replaces the workflow snapshot after a graph mutation and
// arms a debounced revalidation, so rapid edits do not thrash the check.
// Only the last snapshot in a burst is validated.
func (c *Coordinator) UpdateGraph(workflow *models.Workflow) {
	c.mu.Lock()
	c.workflow = workflow
	c.mu.Unlock()

	c.debounce.Trigger(workflow)
}

// settleValidation receives the debouncer's graph result, folds in node
// config schema findings and fans the result out to listeners.
func (c *Coordinator) settleValidation(result validation.Result) {
	c.mu.Lock()
	workflow := c.workflow
	listeners := append([]ValidationListener(nil), c.onValidation...)
	c.mu.Unlock()

	result = c.withConfigIssues(workflow, result)

	for _, listener := range listeners {
		listener(result)
	}
}

func (c *Coordinator) withConfigIssues(workflow *models.Workflow, result validation.Result) validation.Result {
	if c.configs == nil {
		return result
	}

	issues := c.configs.ValidateGraphConfigs(workflow)
	if len(issues) == 0 {
		return result
	}

	result.Valid = false
	result.Errors = append(result.Errors, issues...)

	return result
}

// Execute validates the graph, submits it and begins monitoring. The
// execution is pending immediately on submission; running only once the
// remote service says so. A graph that fails validation is never submitted.
func (c *Coordinator) Execute(ctx context.Context, params map[string]any) (*models.Execution, error) {
	c.mu.Lock()
	if c.execution != nil && !c.statusLocked().Terminal() {
		c.mu.Unlock()

		return nil, ErrExecutionActive
	}
	workflow := c.workflow
	c.mu.Unlock()

	if result := c.Validate(); !result.Valid {
		return nil, &GraphValidationError{Result: result}
	}

	execution, err := c.service.Execute(ctx, workflow.ID, params)
	if err != nil {
		return nil, fmt.Errorf("execute workflow %s: %w", workflow.ID, err)
	}

	c.mu.Lock()
	c.logs.Clear()
	c.optimistic = false

	// Pending until the remote says otherwise; the create response may
	// already report running.
	if !execution.Status.Valid() {
		execution.Status = models.ExecutionStatusPending
	}

	if execution.StartedAt.IsZero() {
		execution.StartedAt = time.Now().UTC()
	}

	c.execution = execution.Clone()
	c.logs.Append(execution.Logs...)

	cfg := c.channelCfg
	cfg.WorkflowID = workflow.ID
	cfg.ExecutionID = execution.ID

	old := c.updates
	c.updates = channel.NewManager(cfg, c.push, c.service, c.apply, c.logger)
	updates := c.updates
	c.mu.Unlock()

	// The previous session's channel must be fully torn down before the new
	// subscription is announced; both use the same workflow key.
	if old != nil {
		old.Stop()
	}

	if err := updates.Start(ctx); err != nil {
		c.logger.Warn("Update channel failed to start", "error", err)
	}

	c.publish()

	return c.Snapshot(), nil
}

// Attach begins monitoring an already-created execution, e.g. one found via
// the execution history listing.
func (c *Coordinator) Attach(ctx context.Context, executionID string) (*models.Execution, error) {
	c.mu.Lock()
	if c.execution != nil && !c.statusLocked().Terminal() {
		c.mu.Unlock()

		return nil, ErrExecutionActive
	}
	c.mu.Unlock()

	execution, err := c.service.GetExecution(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("attach to execution %s: %w", executionID, err)
	}

	c.mu.Lock()
	c.logs.Clear()
	c.optimistic = false
	c.execution = execution.Clone()
	c.logs.Append(execution.Logs...)

	old := c.updates
	c.updates = nil
	terminal := execution.Status.Terminal()

	var updates *channel.Manager

	// A terminal execution gets no update channel; there is nothing left
	// to deliver.
	if !terminal {
		cfg := c.channelCfg
		cfg.WorkflowID = c.workflow.ID
		cfg.ExecutionID = execution.ID

		c.updates = channel.NewManager(cfg, c.push, c.service, c.apply, c.logger)
		updates = c.updates
	}
	c.mu.Unlock()

	if old != nil {
		old.Stop()
	}

	if updates != nil {
		if err := updates.Start(ctx); err != nil {
			c.logger.Warn("Update channel failed to start", "error", err)
		}
	}

	return c.Snapshot(), nil
}

// Cancel requests cancellation of the monitored execution. The local status
// flips to cancelled before the server answers, keeping the UI responsive;
// if the server refuses, the flip is reverted to the last confirmed status.
func (c *Coordinator) Cancel(ctx context.Context) error {
	c.mu.Lock()

	if c.execution == nil {
		c.mu.Unlock()

		return ErrNoExecution
	}

	status := c.execution.Status
	if status != models.ExecutionStatusPending && status != models.ExecutionStatusRunning {
		c.mu.Unlock()

		return fmt.Errorf("%w: status is %s", ErrNotCancellable, status)
	}

	executionID := c.execution.ID
	c.revertTo = status
	c.optimistic = true
	c.execution.Status = models.ExecutionStatusCancelled
	c.mu.Unlock()

	c.publish()

	if err := c.service.Cancel(ctx, executionID); err != nil {
		c.mu.Lock()
		if c.optimistic {
			c.execution.Status = c.revertTo
			c.optimistic = false
		}
		c.mu.Unlock()

		c.publish()

		return fmt.Errorf("cancel execution %s: %w", executionID, err)
	}

	c.mu.Lock()
	if c.optimistic {
		c.optimistic = false

		if c.execution.CompletedAt == nil {
			now := time.Now().UTC()
			c.execution.CompletedAt = &now
		}
	}

	var stale *channel.Manager

	if c.statusLocked().Terminal() {
		stale = c.updates
		c.updates = nil
	}
	c.mu.Unlock()

	if stale != nil {
		stale.Stop()
	}

	c.publish()

	return nil
}

// Snapshot returns a copy of the monitored execution with the merged log
// sequence, or nil before Execute/Attach.
func (c *Coordinator) Snapshot() *models.Execution {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.execution == nil {
		return nil
	}

	snapshot := c.execution.Clone()
	snapshot.Logs = c.logs.All()

	return snapshot
}

// Logs returns the merged log entries, optionally filtered by level.
func (c *Coordinator) Logs(level models.LogLevel) []*models.LogEntry {
	return c.logs.Filter(level)
}

// ClearLogs drops the aggregated log history.
func (c *Coordinator) ClearLogs() {
	c.logs.Clear()
}

// Stats summarizes the monitored execution for dashboard views.
type Stats struct {
	Status     models.ExecutionStatus  `json:"status"`
	LogCounts  map[models.LogLevel]int `json:"log_counts"`
	NodesSeen  int                     `json:"nodes_seen"`
	Duration   time.Duration           `json:"duration"`
	IsPolling  bool                    `json:"is_polling"`
	Connection models.ConnectionStatus `json:"connection"`
}

// Stats derives aggregate numbers from the current state.
func (c *Coordinator) Stats() Stats {
	snapshot := c.Snapshot()
	state := c.ChannelState()

	stats := Stats{
		LogCounts:  make(map[models.LogLevel]int),
		IsPolling:  state.IsPolling,
		Connection: state.Status,
	}

	if snapshot == nil {
		return stats
	}

	stats.Status = snapshot.Status

	nodes := make(map[string]struct{})

	for _, entry := range snapshot.Logs {
		stats.LogCounts[entry.Level]++

		if entry.NodeID != "" {
			nodes[entry.NodeID] = struct{}{}
		}
	}

	stats.NodesSeen = len(nodes)

	end := time.Now().UTC()
	if snapshot.CompletedAt != nil {
		end = *snapshot.CompletedAt
	}

	if !snapshot.StartedAt.IsZero() && end.After(snapshot.StartedAt) {
		stats.Duration = end.Sub(snapshot.StartedAt)
	}

	return stats
}

// ChannelState reports the update channel's connectivity snapshot.
func (c *Coordinator) ChannelState() models.ChannelState {
	c.mu.Lock()
	updates := c.updates
	c.mu.Unlock()

	if updates == nil {
		return models.ChannelState{Status: models.ConnectionDisconnected}
	}

	return updates.State()
}

// SetPollInterval adjusts the fallback polling cadence at runtime.
func (c *Coordinator) SetPollInterval(interval time.Duration) {
	c.mu.Lock()
	updates := c.updates
	c.mu.Unlock()

	if updates != nil {
		updates.SetPollInterval(interval)
	}
}

// Reconnect manually retries the push channel after polling fallback.
func (c *Coordinator) Reconnect() error {
	c.mu.Lock()
	updates := c.updates
	c.mu.Unlock()

	if updates == nil {
		return ErrNoExecution
	}

	return updates.Reconnect()
}

// Close tears down the monitoring session. The execution state is dropped;
// the remote execution itself is untouched.
func (c *Coordinator) Close() {
	c.mu.Lock()
	updates := c.updates
	c.updates = nil
	c.execution = nil
	c.mu.Unlock()

	c.logs.Clear()
	c.debounce.Stop()

	if updates != nil {
		updates.Stop()
	}
}

// apply is the single merge path for events from either delivery channel.
// It is commutative and idempotent: the push and polling paths may race
// during a handover and replay is harmless.
func (c *Coordinator) apply(event events.Event) {
	c.mu.Lock()

	if c.execution == nil || (event.GetExecutionID() != "" && event.GetExecutionID() != c.execution.ID) {
		c.mu.Unlock()

		return
	}

	switch e := event.(type) {
	case events.ExecutionUpdate:
		c.mergeExecutionLocked(e.Execution)
	case events.LogUpdate:
		c.logs.Append(e.Entries...)
	case events.StatusUpdate:
		c.transitionLocked(e.Status, e.CompletedAt, e.Error)
	default:
		c.logger.Debug("Ignoring unhandled event", "type", event.GetType())
	}

	// A terminal execution retires its update channel: push subscription,
	// reconnect timer and polling loop all come down with it.
	var stale *channel.Manager

	if c.statusLocked().Terminal() && c.updates != nil {
		stale = c.updates
		c.updates = nil
	}
	c.mu.Unlock()

	if stale != nil {
		stale.Stop()
	}

	c.publish()
}

// mergeExecutionLocked folds a full snapshot (push frame or poll result)
// into local state: status via the transition guard, logs via the dedupe
// buffer, results last-writer-wins.
func (c *Coordinator) mergeExecutionLocked(incoming *models.Execution) {
	if incoming == nil {
		return
	}

	c.transitionLocked(incoming.Status, incoming.CompletedAt, incoming.Error)
	c.logs.Append(incoming.Logs...)

	if incoming.Results != nil {
		c.execution.Results = incoming.Results
	}

	if !incoming.StartedAt.IsZero() {
		c.execution.StartedAt = incoming.StartedAt
	}
}

// transitionLocked applies the monotonic status guard: pending → running →
// terminal, terminal absorbs everything. An authoritative event always
// collapses an optimistic cancel to the confirmed value.
func (c *Coordinator) transitionLocked(status models.ExecutionStatus, completedAt *time.Time, errMsg string) {
	if !status.Valid() {
		return
	}

	current := c.statusLocked()

	if c.optimistic {
		// Server answered through the event stream; whatever it says is
		// the confirmed truth, replacing the local guess.
		if status.Terminal() {
			c.optimistic = false
			c.setStatusLocked(status, completedAt, errMsg)
		}

		return
	}

	if current.Terminal() {
		// Late or duplicate events only ever append logs, never move
		// status backward.
		return
	}

	if status == current || statusRank(status) < statusRank(current) {
		return
	}

	c.setStatusLocked(status, completedAt, errMsg)
}

func (c *Coordinator) setStatusLocked(status models.ExecutionStatus, completedAt *time.Time, errMsg string) {
	c.execution.Status = status

	if completedAt != nil {
		at := *completedAt
		c.execution.CompletedAt = &at
	} else if status.Terminal() && c.execution.CompletedAt == nil {
		now := time.Now().UTC()
		c.execution.CompletedAt = &now
	}

	if errMsg != "" {
		c.execution.Error = errMsg
	}

	c.logger.Info("Execution status changed", "execution_id", c.execution.ID, "status", status)
}

func (c *Coordinator) statusLocked() models.ExecutionStatus {
	if c.execution == nil {
		return ""
	}

	return c.execution.Status
}

// publish pushes the current snapshot to the notifier, when one is wired.
func (c *Coordinator) publish() {
	if c.notifier == nil {
		return
	}

	snapshot := c.Snapshot()
	if snapshot == nil {
		return
	}

	if err := c.notifier.Publish(snapshot); err != nil {
		c.logger.Warn("Failed to publish execution update", "error", err)
	}
}
