package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/classroom/internal/adapters/device"
	"github.com/samirrijal/classroom/internal/core/domain"
	"github.com/samirrijal/classroom/internal/pkg/logging"
)

// APIError is a structured error response.
type APIError struct {
	Status    int               `json:"status"`
	Code      string            `json:"code"`    // bad_request, not_found, submission_blocked, ...
	Message   string            `json:"message"` // Human-readable message
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// newError builds a JSON error response with a request ID.
func newError(c *fiber.Ctx, status int, code string, message string) error {
	return writeError(c, APIError{Status: status, Code: code, Message: message})
}

func writeError(c *fiber.Ctx, e APIError) error {
	e.RequestID, _ = c.Locals("requestid").(string)
	return c.Status(e.Status).JSON(e)
}

func errBadRequest(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusBadRequest, "bad_request", msg)
}

func errUnauthorized(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusUnauthorized, "unauthorized", msg)
}

func errInternal(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusInternalServerError, "internal_error", msg)
}

// errFrom maps a service error onto an HTTP response.
func errFrom(c *fiber.Ctx, err error) error {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return writeError(c, APIError{
			Status:  fiber.StatusBadRequest,
			Code:    "validation_failed",
			Message: "request validation failed",
			Fields:  verr.Fields,
		})
	case errors.Is(err, domain.ErrValidation):
		return errBadRequest(c, err.Error())
	case errors.Is(err, domain.ErrSessionNotFound):
		return newError(c, fiber.StatusNotFound, "session_not_found", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return newError(c, fiber.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrSubmissionBlocked):
		return newError(c, fiber.StatusForbidden, "submission_blocked", err.Error())
	case errors.Is(err, domain.ErrAlreadySubmitted):
		return newError(c, fiber.StatusConflict, "already_submitted", err.Error())
	case errors.Is(err, device.ErrNoPendingRequest), errors.Is(err, device.ErrBusy):
		return newError(c, fiber.StatusConflict, "no_pending_request", err.Error())
	case errors.Is(err, device.ErrStaleFix):
		return newError(c, fiber.StatusConflict, "stale_fix", err.Error())
	}
	logging.FromContext(c.UserContext()).Error("request failed", "path", c.Path(), "error", err)
	return errInternal(c, "internal server error")
}
