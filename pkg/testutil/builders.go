// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/flowpulse/flowpulse/pkg/models"
)

// CreateTestNode creates a test Node with default values that can be overridden.
func CreateTestNode(overrides ...func(*models.Node)) *models.Node {
	node := &models.Node{
		ID:     uuid.New().String(),
		Kind:   models.NodeKindAction,
		Name:   "Test Node",
		Config: map[string]any{"message": "test"},
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// WithNodeID sets the node id.
func WithNodeID(id string) func(*models.Node) {
	return func(n *models.Node) {
		n.ID = id
	}
}

// WithKind sets the node kind.
func WithKind(kind models.NodeKind) func(*models.Node) {
	return func(n *models.Node) {
		n.Kind = kind
	}
}

// WithConfig sets the node configuration.
func WithConfig(config map[string]any) func(*models.Node) {
	return func(n *models.Node) {
		n.Config = config
	}
}

// CreateTestWorkflow creates a minimal valid workflow: one trigger feeding
// one action.
func CreateTestWorkflow(overrides ...func(*models.Workflow)) *models.Workflow {
	trigger := CreateTestNode(WithKind(models.NodeKindTrigger))
	action := CreateTestNode()

	workflow := &models.Workflow{
		ID:    uuid.New().String(),
		Name:  "Test Workflow",
		Nodes: []*models.Node{trigger, action},
		Edges: []*models.Edge{
			{ID: uuid.New().String(), Source: trigger.ID, Target: action.ID},
		},
	}

	for _, override := range overrides {
		override(workflow)
	}

	return workflow
}

// WithNodes replaces the workflow's nodes.
func WithNodes(nodes ...*models.Node) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Nodes = nodes
	}
}

// WithEdges replaces the workflow's edges.
func WithEdges(edges ...*models.Edge) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Edges = edges
	}
}

// CreateTestExecution creates a running execution for a workflow.
func CreateTestExecution(workflowID string, overrides ...func(*models.Execution)) *models.Execution {
	execution := &models.Execution{
		ID:         uuid.New().String(),
		WorkflowID: workflowID,
		Status:     models.ExecutionStatusRunning,
		StartedAt:  time.Now().UTC(),
		Results:    map[string]any{},
	}

	for _, override := range overrides {
		override(execution)
	}

	return execution
}

// WithStatus sets the execution status, filling CompletedAt for terminal
// states.
func WithStatus(status models.ExecutionStatus) func(*models.Execution) {
	return func(e *models.Execution) {
		e.Status = status

		if status.Terminal() && e.CompletedAt == nil {
			now := time.Now().UTC()
			e.CompletedAt = &now
		}
	}
}

// CreateTestLogEntry creates a log entry with default values.
func CreateTestLogEntry(overrides ...func(*models.LogEntry)) *models.LogEntry {
	entry := &models.LogEntry{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Level:     models.LogLevelInfo,
		Message:   "test log entry",
	}

	for _, override := range overrides {
		override(entry)
	}

	return entry
}

// WithLevel sets the log entry level.
func WithLevel(level models.LogLevel) func(*models.LogEntry) {
	return func(e *models.LogEntry) {
		e.Level = level
	}
}
