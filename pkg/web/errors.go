package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/flowpulse/flowpulse/pkg/client"
	"github.com/flowpulse/flowpulse/pkg/monitor"
	"github.com/flowpulse/flowpulse/pkg/snapshots"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType("conflict").
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleSnapshotError maps snapshot store errors to HTTP problems.
func handleSnapshotError(c fiber.Ctx, err error) error {
	if errors.Is(err, snapshots.ErrSnapshotNotFound) {
		return notFound(c, "execution not found")
	}

	return internalError(c, err)
}

// handleMonitorError maps monitor and client layer errors to HTTP problems.
func handleMonitorError(c fiber.Ctx, err error) error {
	var validationErr *monitor.GraphValidationError

	switch {
	case errors.As(err, &validationErr):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"title":  "Workflow graph is invalid",
			"status": fiber.StatusUnprocessableEntity,
			"type":   "graph_invalid",
			"errors": validationErr.Result.Errors,
		})

	case errors.Is(err, monitor.ErrExecutionActive):
		return conflict(c, "an execution is already being monitored for this workflow")

	case errors.Is(err, monitor.ErrNotCancellable) || errors.Is(err, client.ErrNotCancellable):
		return conflict(c, err.Error())

	case errors.Is(err, monitor.ErrNoExecution) || errors.Is(err, client.ErrExecutionNotFound):
		return notFound(c, "execution not found")

	case errors.Is(err, client.ErrWorkflowNotFound):
		return notFound(c, "workflow not found")

	case errors.Is(err, client.ErrValidationRejected):
		return badRequest(c, err.Error())

	case errors.Is(err, client.ErrRemoteUnavailable):
		problem := problems.NewStatusProblem(502).
			WithInstance(c.Path()).
			WithType("upstream_unavailable").
			WithDetail("execution service unavailable")

		return c.Status(fiber.StatusBadGateway).JSON(problem)

	default:
		return internalError(c, err)
	}
}
