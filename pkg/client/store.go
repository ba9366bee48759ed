package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/flowpulse/flowpulse/pkg/models"
)

// WorkflowStore is the persistence/CRUD layer this subsystem consumes to
// obtain graph snapshots. It is external: the monitor only ever reads from
// it, the builder UI owns mutation.
type WorkflowStore interface {
	GetWorkflow(ctx context.Context, id string) (*models.Workflow, error)
	CreateWorkflow(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error)
	UpdateWorkflow(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error)
	DeleteWorkflow(ctx context.Context, id string) error
}

// HTTPWorkflowStore implements WorkflowStore against the workflow CRUD API,
// sharing the execution client's transport configuration.
type HTTPWorkflowStore struct {
	client *Client
}

// NewWorkflowStore creates a store sharing the given client's transport.
func NewWorkflowStore(c *Client) *HTTPWorkflowStore {
	return &HTTPWorkflowStore{client: c}
}

func (s *HTTPWorkflowStore) GetWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	endpoint := fmt.Sprintf("%s/workflows/%s", s.client.baseURL, url.PathEscape(id))

	resp, err := s.client.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}
	defer closeBody(resp, s.client.logger)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		workflow := &models.Workflow{}
		if err := json.NewDecoder(resp.Body).Decode(workflow); err != nil {
			return nil, fmt.Errorf("failed to decode workflow: %w", err)
		}

		return workflow, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
	default:
		return nil, fmt.Errorf("workflow store returned %d: %s", resp.StatusCode, problemDetail(resp))
	}
}

func (s *HTTPWorkflowStore) CreateWorkflow(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	return s.save(ctx, http.MethodPost, s.client.baseURL+"/workflows", workflow)
}

func (s *HTTPWorkflowStore) UpdateWorkflow(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	endpoint := fmt.Sprintf("%s/workflows/%s", s.client.baseURL, url.PathEscape(workflow.ID))

	return s.save(ctx, http.MethodPut, endpoint, workflow)
}

func (s *HTTPWorkflowStore) DeleteWorkflow(ctx context.Context, id string) error {
	endpoint := fmt.Sprintf("%s/workflows/%s", s.client.baseURL, url.PathEscape(id))

	resp, err := s.client.do(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}
	defer closeBody(resp, s.client.logger)

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
	}

	if resp.StatusCode >= 300 {
		return fmt.Errorf("workflow store returned %d: %s", resp.StatusCode, problemDetail(resp))
	}

	return nil
}

func (s *HTTPWorkflowStore) save(ctx context.Context, method, endpoint string, workflow *models.Workflow) (*models.Workflow, error) {
	payload, err := json.Marshal(workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to encode workflow: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}
	defer closeBody(resp, s.client.logger)

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("workflow store returned %d: %s", resp.StatusCode, problemDetail(resp))
	}

	saved := &models.Workflow{}
	if err := json.NewDecoder(resp.Body).Decode(saved); err != nil {
		return nil, fmt.Errorf("failed to decode workflow: %w", err)
	}

	return saved, nil
}
