// Package web provides the HTTP gateway over live execution monitoring.
package web

import (
	"time"

	"github.com/flowpulse/flowpulse/pkg/models"
)

// ExecuteWorkflowRequest is the request body for starting an execution.
type ExecuteWorkflowRequest struct {
	Params map[string]any `json:"params"`
}

// UpdateConnectionRequest adjusts the update channel of a monitored
// execution. Both fields are optional; Reconnect wins when both are set.
type UpdateConnectionRequest struct {
	PollIntervalMS *int `json:"poll_interval_ms,omitempty" validate:"omitempty,min=100"`
	Reconnect      bool `json:"reconnect,omitempty"`
}

// ConnectionResponse reports the channel state of a monitored execution.
type ConnectionResponse struct {
	Status            models.ConnectionStatus `json:"status"`
	ReconnectAttempts int                     `json:"reconnect_attempts"`
	IsPolling         bool                    `json:"is_polling"`
	PollIntervalMS    int                     `json:"poll_interval_ms"`
}

// TransformConnectionResponse converts a channel state snapshot.
func TransformConnectionResponse(state models.ChannelState) ConnectionResponse {
	return ConnectionResponse{
		Status:            state.Status,
		ReconnectAttempts: state.ReconnectAttempts,
		IsPolling:         state.IsPolling,
		PollIntervalMS:    int(state.PollInterval / time.Millisecond),
	}
}

// LogsResponse wraps the filtered log listing.
type LogsResponse struct {
	ExecutionID string             `json:"execution_id"`
	Level       models.LogLevel    `json:"level,omitempty"`
	Count       int                `json:"count"`
	Entries     []*models.LogEntry `json:"entries"`
}
