package web

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/flowpulse/flowpulse/pkg/client"
	"github.com/flowpulse/flowpulse/pkg/models"
	"github.com/flowpulse/flowpulse/pkg/monitor"
	"github.com/flowpulse/flowpulse/pkg/push"
)

// Sessions tracks the live monitoring coordinators behind the gateway, one
// per execution. All sessions share one push connection.
type Sessions struct {
	store   client.WorkflowStore
	service monitor.ExecutionService
	push    *push.Manager
	logger  *slog.Logger
	opts    []monitor.Option

	mu          sync.Mutex
	byExecution map[string]*monitor.Coordinator
	byWorkflow  map[string]*monitor.Coordinator
}

// NewSessions creates the session registry.
func NewSessions(
	store client.WorkflowStore,
	service monitor.ExecutionService,
	pushManager *push.Manager,
	logger *slog.Logger,
	opts ...monitor.Option,
) *Sessions {
	return &Sessions{
		store:       store,
		service:     service,
		push:        pushManager,
		logger:      logger.With("module", "sessions"),
		opts:        opts,
		byExecution: make(map[string]*monitor.Coordinator),
		byWorkflow:  make(map[string]*monitor.Coordinator),
	}
}

// Execute fetches the workflow snapshot, validates and submits it, and
// registers a coordinator monitoring the new execution.
func (s *Sessions) Execute(ctx context.Context, workflowID string, params map[string]any) (*models.Execution, error) {
	s.mu.Lock()
	if existing, ok := s.byWorkflow[workflowID]; ok {
		if snapshot := existing.Snapshot(); snapshot != nil && !snapshot.Status.Terminal() {
			s.mu.Unlock()

			return nil, monitor.ErrExecutionActive
		}
	}
	s.mu.Unlock()

	workflow, err := s.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("fetch workflow %s: %w", workflowID, err)
	}

	coordinator := monitor.NewCoordinator(workflow, s.service, s.push, s.logger, s.opts...)

	execution, err := coordinator.Execute(ctx, params)
	if err != nil {
		coordinator.Close()

		return nil, err
	}

	s.mu.Lock()
	if old, ok := s.byWorkflow[workflowID]; ok && old != coordinator {
		delete(s.byExecution, findExecutionID(s.byExecution, old))
		old.Close()
	}

	s.byExecution[execution.ID] = coordinator
	s.byWorkflow[workflowID] = coordinator
	s.mu.Unlock()

	return execution, nil
}

func findExecutionID(index map[string]*monitor.Coordinator, target *monitor.Coordinator) string {
	for id, coordinator := range index {
		if coordinator == target {
			return id
		}
	}

	return ""
}

// Get returns the coordinator monitoring one execution.
func (s *Sessions) Get(executionID string) (*monitor.Coordinator, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	coordinator, ok := s.byExecution[executionID]

	return coordinator, ok
}

// ByWorkflow returns the coordinator for a workflow's most recent execution.
func (s *Sessions) ByWorkflow(workflowID string) (*monitor.Coordinator, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	coordinator, ok := s.byWorkflow[workflowID]

	return coordinator, ok
}

// Release closes one execution's monitoring session and drops it from the
// registry. It reports whether a session existed.
func (s *Sessions) Release(executionID string) bool {
	s.mu.Lock()
	coordinator, ok := s.byExecution[executionID]

	if ok {
		delete(s.byExecution, executionID)

		for workflowID, candidate := range s.byWorkflow {
			if candidate == coordinator {
				delete(s.byWorkflow, workflowID)
			}
		}
	}
	s.mu.Unlock()

	if ok {
		coordinator.Close()
	}

	return ok
}

// Validate loads a workflow and runs graph validation without executing it.
func (s *Sessions) Validate(ctx context.Context, workflowID string) (*models.Workflow, error) {
	return s.store.GetWorkflow(ctx, workflowID)
}

// Close tears down every live session.
func (s *Sessions) Close() {
	s.mu.Lock()
	coordinators := make([]*monitor.Coordinator, 0, len(s.byExecution))

	for _, coordinator := range s.byExecution {
		coordinators = append(coordinators, coordinator)
	}

	s.byExecution = make(map[string]*monitor.Coordinator)
	s.byWorkflow = make(map[string]*monitor.Coordinator)
	s.mu.Unlock()

	for _, coordinator := range coordinators {
		coordinator.Close()
	}
}
