package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/flowpulse/flowpulse/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_ExecutionUpdate(t *testing.T) {
	payload := []byte(`{
		"type": "execution_update",
		"execution": {
			"id": "exec-1",
			"workflow_id": "wf-1",
			"status": "running",
			"started_at": "2026-03-01T10:00:00Z"
		}
	}`)

	event, err := Decode(payload)
	require.NoError(t, err)
	require.Equal(t, ExecutionUpdateEvent, event.GetType())
	assert.Equal(t, "exec-1", event.GetExecutionID())

	update, ok := event.(ExecutionUpdate)
	require.True(t, ok)
	assert.Equal(t, models.ExecutionStatusRunning, update.Execution.Status)
}

func TestDecode_ExecutionUpdate_MissingExecution(t *testing.T) {
	_, err := Decode([]byte(`{"type":"execution_update"}`))
	assert.Error(t, err)
}

func TestDecode_LogUpdate(t *testing.T) {
	payload := []byte(`{
		"type": "log_update",
		"execution_id": "exec-2",
		"entries": [
			{"id": "l1", "level": "error", "message": "boom", "node_id": "n3"}
		]
	}`)

	event, err := Decode(payload)
	require.NoError(t, err)

	update, ok := event.(LogUpdate)
	require.True(t, ok)
	assert.Equal(t, "exec-2", update.GetExecutionID())
	require.Len(t, update.Entries, 1)
	assert.Equal(t, models.LogLevelError, update.Entries[0].Level)
}

func TestDecode_StatusUpdate(t *testing.T) {
	completedAt := time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC)
	frame := StatusUpdate{
		Type:        StatusUpdateEvent,
		ExecutionID: "exec-3",
		Status:      models.ExecutionStatusFailed,
		CompletedAt: &completedAt,
		Error:       "node n2 timed out",
	}

	payload, err := json.Marshal(frame)
	require.NoError(t, err)

	event, err := Decode(payload)
	require.NoError(t, err)

	update, ok := event.(StatusUpdate)
	require.True(t, ok)
	assert.Equal(t, models.ExecutionStatusFailed, update.Status)
	assert.Equal(t, "node n2 timed out", update.Error)
	require.NotNil(t, update.CompletedAt)
	assert.Equal(t, completedAt, *update.CompletedAt)
}

func TestDecode_UnknownFrameType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"presence_update","users":3}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownFrameType)
}

func TestDecode_MalformedJSON(t *testing.T) {
	_, err := Decode([]byte(`{"type":`))
	assert.Error(t, err)
}
