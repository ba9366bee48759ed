package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflow_Validation_ValidGraph(t *testing.T) {
	workflow := &Workflow{
		ID:   "wf-123",
		Name: "User Registration Flow",
		Nodes: []*Node{
			{ID: "start", Kind: NodeKindTrigger, Name: "Webhook"},
			{ID: "create-user", Kind: NodeKindAction, Name: "Create User",
				Config: map[string]any{"url": "https://api.example.com/users", "method": "POST"}},
		},
		Edges: []*Edge{
			{ID: "e1", Source: "start", Target: "create-user"},
		},
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	require.NoError(t, validate.Struct(workflow))
}

func TestNode_Validation_UnknownKind(t *testing.T) {
	node := &Node{ID: "n1", Kind: "teleport", Name: "Nope"}

	validate := validator.New(validator.WithRequiredStructEnabled())
	assert.Error(t, validate.Struct(node))
	assert.False(t, node.Kind.Valid())
}

func TestNodeKind_Valid(t *testing.T) {
	for _, kind := range []NodeKind{
		NodeKindTrigger, NodeKindAction, NodeKindCondition, NodeKindDelay, NodeKindIntegration,
	} {
		assert.True(t, kind.Valid(), "kind %q should be valid", kind)
	}

	assert.False(t, NodeKind("").Valid())
}

func TestWorkflow_NodeByID(t *testing.T) {
	workflow := &Workflow{
		Name: "lookup",
		Nodes: []*Node{
			{ID: "a", Kind: NodeKindTrigger},
			{ID: "b", Kind: NodeKindAction},
		},
	}

	require.NotNil(t, workflow.NodeByID("b"))
	assert.Equal(t, NodeKindAction, workflow.NodeByID("b").Kind)
	assert.Nil(t, workflow.NodeByID("missing"))
}

func TestExecutionStatus_Terminal(t *testing.T) {
	testCases := []struct {
		status   ExecutionStatus
		terminal bool
	}{
		{ExecutionStatusPending, false},
		{ExecutionStatusRunning, false},
		{ExecutionStatusCompleted, true},
		{ExecutionStatusFailed, true},
		{ExecutionStatusCancelled, true},
	}

	for _, tc := range testCases {
		t.Run(string(tc.status), func(t *testing.T) {
			assert.Equal(t, tc.terminal, tc.status.Terminal())
			assert.True(t, tc.status.Valid())
		})
	}
}

func TestExecution_Clone_Isolation(t *testing.T) {
	completed := time.Now().UTC()
	execution := &Execution{
		ID:          "exec-1",
		WorkflowID:  "wf-1",
		Status:      ExecutionStatusCompleted,
		StartedAt:   completed.Add(-time.Minute),
		CompletedAt: &completed,
		Results:     map[string]any{"count": 3},
		Logs: []*LogEntry{
			{ID: "log-1", Level: LogLevelInfo, Message: "done"},
		},
	}

	clone := execution.Clone()
	require.NotNil(t, clone)

	clone.Results["count"] = 99
	clone.Logs[0] = &LogEntry{ID: "log-2"}
	*clone.CompletedAt = completed.Add(time.Hour)

	assert.Equal(t, 3, execution.Results["count"])
	assert.Equal(t, "log-1", execution.Logs[0].ID)
	assert.Equal(t, completed, *execution.CompletedAt)
}

func TestExecution_JSONRoundTrip(t *testing.T) {
	execution := &Execution{
		ID:         "exec-9",
		WorkflowID: "wf-9",
		Status:     ExecutionStatusRunning,
		StartedAt:  time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Logs: []*LogEntry{
			{ID: "l1", Level: LogLevelWarning, Message: "slow node", NodeID: "n2"},
		},
	}

	payload, err := json.Marshal(execution)
	require.NoError(t, err)

	var decoded Execution
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, execution.Status, decoded.Status)
	require.Len(t, decoded.Logs, 1)
	assert.Equal(t, LogLevelWarning, decoded.Logs[0].Level)
}
