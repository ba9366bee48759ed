// Package monitor owns the authoritative in-memory execution state machine
// for one monitoring session, merging events from the update channel and
// exposing derived views to the UI layer.
package monitor

import (
	"errors"
	"fmt"

	"github.com/flowpulse/flowpulse/pkg/validation"
)

var (
	// ErrGraphInvalid gates Execute: the graph failed local validation and
	// was not submitted.
	ErrGraphInvalid = errors.New("workflow graph failed validation")

	// ErrNotCancellable is returned by Cancel when the execution is not in
	// a cancellable state.
	ErrNotCancellable = errors.New("execution is not cancellable")

	// ErrNoExecution indicates no execution is being monitored yet.
	ErrNoExecution = errors.New("no execution in progress")

	// ErrExecutionActive indicates Execute was called while an earlier
	// execution is still being monitored.
	ErrExecutionActive = errors.New("an execution is already being monitored")
)

// GraphValidationError carries the validation findings that blocked
// submission.
type GraphValidationError struct {
	Result validation.Result
}

func (e *GraphValidationError) Error() string {
	return fmt.Sprintf("workflow graph failed validation with %d issue(s)", len(e.Result.Errors))
}

func (e *GraphValidationError) Is(target error) bool {
	return target == ErrGraphInvalid
}
