// Package client provides the stateless request/response wrapper around the
// remote execution service.
package client

import "errors"

// Sentinel errors callers branch on with errors.Is. They are propagated to
// the caller of Execute/Cancel and never retried automatically here; retry
// policy, if any, belongs to the caller.
var (
	// ErrRemoteUnavailable indicates the execution service could not be
	// reached at the transport level.
	ErrRemoteUnavailable = errors.New("execution service unavailable")

	// ErrValidationRejected indicates the remote service rejected the graph
	// even though it passed local validation.
	ErrValidationRejected = errors.New("workflow rejected by execution service")

	// ErrNotCancellable indicates the execution is not in a cancellable
	// state (already terminal on the remote side).
	ErrNotCancellable = errors.New("execution is not cancellable")

	// ErrExecutionNotFound indicates the execution id is unknown to the
	// remote service.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrWorkflowNotFound indicates the workflow id is unknown to the
	// remote service.
	ErrWorkflowNotFound = errors.New("workflow not found")
)
