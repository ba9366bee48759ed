package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/flowpulse/flowpulse/pkg/models"
	"github.com/flowpulse/flowpulse/pkg/otelhelper"
	"github.com/moogar0880/problems"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const defaultTimeout = 30 * time.Second

// Client issues execute/cancel/query requests against the remote execution
// service. It holds no execution state; the coordinator owns that.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger.With("module", "execution_client")
	}
}

// WithTracer enables span emission around remote calls.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) {
		c.tracer = tracer
	}
}

// New creates a client for the execution service at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default().With("module", "execution_client"),
		tracer:     noop.NewTracerProvider().Tracer("execution_client"),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Execute submits a workflow for execution. A transport failure is reported
// as ErrRemoteUnavailable; a remote rejection of a locally valid graph as
// ErrValidationRejected. No fake execution is ever synthesized.
func (c *Client) Execute(ctx context.Context, workflowID string, params map[string]any) (*models.Execution, error) {
	ctx, span := otelhelper.StartSpan(ctx, c.tracer, "execution.execute",
		attribute.String(otelhelper.WorkflowIDKey, workflowID))
	defer span.End()

	body := map[string]any{}
	if params != nil {
		body["parameters"] = params
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode parameters: %w", err)
	}

	endpoint := fmt.Sprintf("%s/workflows/%s/execute", c.baseURL, url.PathEscape(workflowID))

	resp, err := c.do(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}
	defer closeBody(resp, c.logger)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		execution := &models.Execution{}
		if err := json.NewDecoder(resp.Body).Decode(execution); err != nil {
			return nil, fmt.Errorf("failed to decode execution: %w", err)
		}

		span.SetAttributes(attribute.String(otelhelper.ExecutionIDKey, execution.ID))

		return execution, nil
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		err := fmt.Errorf("%w: %s", ErrValidationRejected, problemDetail(resp))
		otelhelper.SetError(span, err)

		return nil, err
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, workflowID)
	default:
		err := fmt.Errorf("execution service returned %d: %s", resp.StatusCode, problemDetail(resp))
		otelhelper.SetError(span, err)

		return nil, err
	}
}

// Cancel requests cancellation of a pending or running execution.
func (c *Client) Cancel(ctx context.Context, executionID string) error {
	ctx, span := otelhelper.StartSpan(ctx, c.tracer, "execution.cancel",
		attribute.String(otelhelper.ExecutionIDKey, executionID))
	defer span.End()

	endpoint := fmt.Sprintf("%s/executions/%s/cancel", c.baseURL, url.PathEscape(executionID))

	resp, err := c.do(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		otelhelper.SetError(span, err)

		return fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}
	defer closeBody(resp, c.logger)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrNotCancellable, executionID)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
	default:
		err := fmt.Errorf("cancel returned %d: %s", resp.StatusCode, problemDetail(resp))
		otelhelper.SetError(span, err)

		return err
	}
}

// GetExecution fetches a point-in-time execution snapshot. This is the
// polling path and the on-demand refresh.
func (c *Client) GetExecution(ctx context.Context, executionID string) (*models.Execution, error) {
	ctx, span := otelhelper.StartSpan(ctx, c.tracer, "execution.fetch",
		attribute.String(otelhelper.ExecutionIDKey, executionID))
	defer span.End()

	endpoint := fmt.Sprintf("%s/executions/%s", c.baseURL, url.PathEscape(executionID))

	resp, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}
	defer closeBody(resp, c.logger)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		execution := &models.Execution{}
		if err := json.NewDecoder(resp.Body).Decode(execution); err != nil {
			return nil, fmt.Errorf("failed to decode execution: %w", err)
		}

		return execution, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
	default:
		return nil, fmt.Errorf("execution service returned %d: %s", resp.StatusCode, problemDetail(resp))
	}
}

// ListExecutions fetches recent executions of a workflow, newest first.
func (c *Client) ListExecutions(ctx context.Context, workflowID string, limit int) ([]*models.Execution, error) {
	endpoint := fmt.Sprintf("%s/workflows/%s/executions", c.baseURL, url.PathEscape(workflowID))
	if limit > 0 {
		endpoint += "?limit=" + strconv.Itoa(limit)
	}

	resp, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}
	defer closeBody(resp, c.logger)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var executions []*models.Execution
		if err := json.NewDecoder(resp.Body).Decode(&executions); err != nil {
			return nil, fmt.Errorf("failed to decode executions: %w", err)
		}

		return executions, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, workflowID)
	default:
		return nil, fmt.Errorf("execution service returned %d: %s", resp.StatusCode, problemDetail(resp))
	}
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload []byte) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

// problemDetail extracts a human-readable detail from an RFC 7807 error
// body, falling back to the raw body.
func problemDetail(resp *http.Response) string {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil || len(raw) == 0 {
		return resp.Status
	}

	var problem problems.Problem
	if err := json.Unmarshal(raw, &problem); err == nil {
		if problem.Detail != "" {
			return problem.Detail
		}

		if problem.Title != "" {
			return problem.Title
		}
	}

	return string(raw)
}

func closeBody(resp *http.Response, logger *slog.Logger) {
	if err := resp.Body.Close(); err != nil {
		logger.Warn("Failed to close response body", "error", err)
	}
}
