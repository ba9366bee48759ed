package web

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/flowpulse/flowpulse/pkg/models"
	"github.com/flowpulse/flowpulse/pkg/validation"
)

// SnapshotSource serves persisted execution snapshots for executions this
// gateway instance is not (or no longer) monitoring live.
type SnapshotSource interface {
	Load(ctx context.Context, executionID string) (*models.Execution, error)
	LoadLatest(ctx context.Context, workflowID string) (*models.Execution, error)
	Delete(ctx context.Context, executionID string) error
}

// APIHandlers exposes live execution monitoring over HTTP.
type APIHandlers struct {
	sessions  *Sessions
	validator *validator.Validate
	snapshots SnapshotSource
}

// NewAPIHandlers creates the handler set for a session registry. snapshots
// may be nil; reads then only cover live sessions.
func NewAPIHandlers(sessions *Sessions, validator *validator.Validate, snapshots SnapshotSource) *APIHandlers {
	return &APIHandlers{
		sessions:  sessions,
		validator: validator,
		snapshots: snapshots,
	}
}

// Register mounts all routes on the app.
func (h *APIHandlers) Register(app *fiber.App) {
	app.Get("/health", h.HealthCheck)

	w := app.Group("/workflows")
	w.Post("/:id/execute", h.ExecuteWorkflow)
	w.Post("/:id/validate", h.ValidateWorkflow)
	w.Get("/:id/executions/latest", h.GetLatestExecution)

	e := app.Group("/executions")
	e.Get("/:id", h.GetExecution)
	e.Delete("/:id", h.DeleteExecution)
	e.Post("/:id/cancel", h.CancelExecution)
	e.Get("/:id/logs", h.GetExecutionLogs)
	e.Get("/:id/stats", h.GetExecutionStats)
	e.Get("/:id/connection", h.GetConnection)
	e.Put("/:id/connection", h.UpdateConnection)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) ExecuteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req ExecuteWorkflowRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	execution, err := h.sessions.Execute(c.Context(), id, req.Params)
	if err != nil {
		return handleMonitorError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(execution)
}

func (h *APIHandlers) ValidateWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, err := h.sessions.Validate(c.Context(), id)
	if err != nil {
		return handleMonitorError(c, err)
	}

	return c.JSON(validation.Validate(workflow))
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	id := c.Params("id")

	if coordinator, ok := h.sessions.Get(id); ok {
		if snapshot := coordinator.Snapshot(); snapshot != nil {
			return c.JSON(snapshot)
		}
	}

	// No live session; fall back to the persisted snapshot, which survives
	// gateway restarts.
	if h.snapshots == nil {
		return notFound(c, "execution not found")
	}

	execution, err := h.snapshots.Load(c.Context(), id)
	if err != nil {
		return handleSnapshotError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) GetLatestExecution(c fiber.Ctx) error {
	id := c.Params("id")

	if coordinator, ok := h.sessions.ByWorkflow(id); ok {
		if snapshot := coordinator.Snapshot(); snapshot != nil {
			return c.JSON(snapshot)
		}
	}

	if h.snapshots == nil {
		return notFound(c, "no execution recorded for this workflow")
	}

	execution, err := h.snapshots.LoadLatest(c.Context(), id)
	if err != nil {
		return handleSnapshotError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) DeleteExecution(c fiber.Ctx) error {
	id := c.Params("id")
	released := h.sessions.Release(id)

	if h.snapshots != nil {
		if err := h.snapshots.Delete(c.Context(), id); err != nil {
			return internalError(c, err)
		}
	} else if !released {
		return notFound(c, "execution not found")
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	coordinator, ok := h.sessions.Get(c.Params("id"))
	if !ok {
		return notFound(c, "execution not found")
	}

	if err := coordinator.Cancel(c.Context()); err != nil {
		return handleMonitorError(c, err)
	}

	return c.JSON(coordinator.Snapshot())
}

func (h *APIHandlers) GetExecutionLogs(c fiber.Ctx) error {
	id := c.Params("id")

	coordinator, ok := h.sessions.Get(id)
	if !ok {
		return notFound(c, "execution not found")
	}

	level := models.LogLevel(c.Query("level"))
	if level != "" && !level.Valid() {
		return badRequest(c, "Unknown log level '"+string(level)+"'")
	}

	entries := coordinator.Logs(level)

	return c.JSON(LogsResponse{
		ExecutionID: id,
		Level:       level,
		Count:       len(entries),
		Entries:     entries,
	})
}

func (h *APIHandlers) GetExecutionStats(c fiber.Ctx) error {
	coordinator, ok := h.sessions.Get(c.Params("id"))
	if !ok {
		return notFound(c, "execution not found")
	}

	return c.JSON(coordinator.Stats())
}

func (h *APIHandlers) GetConnection(c fiber.Ctx) error {
	coordinator, ok := h.sessions.Get(c.Params("id"))
	if !ok {
		return notFound(c, "execution not found")
	}

	return c.JSON(TransformConnectionResponse(coordinator.ChannelState()))
}

func (h *APIHandlers) UpdateConnection(c fiber.Ctx) error {
	coordinator, ok := h.sessions.Get(c.Params("id"))
	if !ok {
		return notFound(c, "execution not found")
	}

	var req UpdateConnectionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if req.Reconnect {
		if err := coordinator.Reconnect(); err != nil {
			return handleMonitorError(c, err)
		}
	} else if req.PollIntervalMS != nil {
		coordinator.SetPollInterval(time.Duration(*req.PollIntervalMS) * time.Millisecond)
	}

	return c.JSON(TransformConnectionResponse(coordinator.ChannelState()))
}
