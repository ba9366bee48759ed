package models

import "time"

// ExecutionStatus represents the lifecycle state of one workflow execution.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"   // Submitted, no status event yet
	ExecutionStatusRunning   ExecutionStatus = "running"   // Remote service reported progress
	ExecutionStatusCompleted ExecutionStatus = "completed" // Terminal
	ExecutionStatusFailed    ExecutionStatus = "failed"    // Terminal, carries Error
	ExecutionStatusCancelled ExecutionStatus = "cancelled" // Terminal
)

// Terminal reports whether no further status transition can occur.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCancelled:
		return true
	}

	return false
}

// Valid reports whether the status is one of the known lifecycle states.
func (s ExecutionStatus) Valid() bool {
	switch s {
	case ExecutionStatusPending, ExecutionStatusRunning,
		ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCancelled:
		return true
	}

	return false
}

// Execution represents one run of a workflow, identified separately from the
// workflow itself. The id is assigned by the remote execution service.
type Execution struct {
	ID          string          `json:"id"`
	WorkflowID  string          `json:"workflow_id"`
	Status      ExecutionStatus `json:"status"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Error       string          `json:"error,omitempty"`
	Results     map[string]any  `json:"results,omitempty"`
	Logs        []*LogEntry     `json:"logs,omitempty"`
}

// Clone returns a deep-enough copy for handing out snapshots: the log slice
// and results map are copied, entries themselves are immutable.
func (e *Execution) Clone() *Execution {
	if e == nil {
		return nil
	}

	clone := *e

	if e.CompletedAt != nil {
		at := *e.CompletedAt
		clone.CompletedAt = &at
	}

	if e.Results != nil {
		clone.Results = make(map[string]any, len(e.Results))
		for k, v := range e.Results {
			clone.Results[k] = v
		}
	}

	if e.Logs != nil {
		clone.Logs = make([]*LogEntry, len(e.Logs))
		copy(clone.Logs, e.Logs)
	}

	return &clone
}
