// Package events defines the tagged frames exchanged with the execution
// service over the push channel, and the decoder shared by both delivery
// channels.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/flowpulse/flowpulse/pkg/models"
)

// EventType tags a frame on the wire.
type EventType string

const (
	// Outbound.
	SubscribeEvent EventType = "subscribe"

	// Inbound.
	ExecutionUpdateEvent EventType = "execution_update"
	LogUpdateEvent       EventType = "log_update"
	StatusUpdateEvent    EventType = "status_update"
)

// ErrUnknownFrameType is returned for frame tags this client does not
// recognize. Callers log and drop these, keeping the protocol forward
// compatible.
var ErrUnknownFrameType = errors.New("unknown frame type")

// Event is any inbound update applied to the coordinator's merge path.
type Event interface {
	GetType() EventType
	GetExecutionID() string
}

// Subscribe is the first outbound frame on a freshly opened push channel.
type Subscribe struct {
	Type        EventType `json:"type"`
	WorkflowID  string    `json:"workflow_id"`
	ExecutionID string    `json:"execution_id,omitempty"`
}

// NewSubscribe builds the subscription frame for one workflow and,
// optionally, one specific execution.
func NewSubscribe(workflowID, executionID string) Subscribe {
	return Subscribe{
		Type:        SubscribeEvent,
		WorkflowID:  workflowID,
		ExecutionID: executionID,
	}
}

// ExecutionUpdate carries a full execution snapshot, as delivered by the push
// channel or synthesized from a polling fetch.
type ExecutionUpdate struct {
	Type      EventType         `json:"type"`
	Execution *models.Execution `json:"execution"`
}

func (e ExecutionUpdate) GetType() EventType { return ExecutionUpdateEvent }

func (e ExecutionUpdate) GetExecutionID() string {
	if e.Execution == nil {
		return ""
	}

	return e.Execution.ID
}

// LogUpdate carries newly produced log entries for one execution.
type LogUpdate struct {
	Type        EventType          `json:"type"`
	ExecutionID string             `json:"execution_id"`
	Entries     []*models.LogEntry `json:"entries"`
}

func (e LogUpdate) GetType() EventType { return LogUpdateEvent }

func (e LogUpdate) GetExecutionID() string { return e.ExecutionID }

// StatusUpdate carries an authoritative status transition for one execution.
type StatusUpdate struct {
	Type        EventType              `json:"type"`
	ExecutionID string                 `json:"execution_id"`
	Status      models.ExecutionStatus `json:"status"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

func (e StatusUpdate) GetType() EventType { return StatusUpdateEvent }

func (e StatusUpdate) GetExecutionID() string { return e.ExecutionID }

// envelope is used to sniff the tag before decoding the full payload.
type envelope struct {
	Type EventType `json:"type"`
}

// Decode parses one inbound frame into its typed event.
func Decode(payload []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}

	switch env.Type {
	case ExecutionUpdateEvent:
		var event ExecutionUpdate
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, fmt.Errorf("malformed execution_update frame: %w", err)
		}

		if event.Execution == nil {
			return nil, fmt.Errorf("execution_update frame without execution")
		}

		return event, nil
	case LogUpdateEvent:
		var event LogUpdate
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, fmt.Errorf("malformed log_update frame: %w", err)
		}

		return event, nil
	case StatusUpdateEvent:
		var event StatusUpdate
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, fmt.Errorf("malformed status_update frame: %w", err)
		}

		return event, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrameType, env.Type)
	}
}
