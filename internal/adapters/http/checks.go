package http

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	natsadapter "github.com/samirrijal/classroom/internal/adapters/nats"
	"github.com/samirrijal/classroom/internal/core/domain"
	"github.com/samirrijal/classroom/internal/core/eligibility"
	"github.com/samirrijal/classroom/internal/core/usecases"
)

// checkResponse is a session view plus display addresses for its points.
type checkResponse struct {
	*usecases.CheckView
	Address         *domain.Address `json:"address,omitempty"`
	PreviousAddress *domain.Address `json:"previous_address,omitempty"`
}

func describeCheck(c *fiber.Ctx, deps *Dependencies, v *usecases.CheckView) checkResponse {
	resp := checkResponse{CheckView: v}
	if deps.Addresses == nil {
		return resp
	}
	if v.Gate.Sample != nil {
		a := deps.Addresses.Describe(c.UserContext(), v.Gate.Sample.Point)
		resp.Address = &a
	}
	if v.PreviouslyVerified != nil {
		a := deps.Addresses.Describe(c.UserContext(), *v.PreviouslyVerified)
		resp.PreviousAddress = &a
	}
	return resp
}

// OpenCheckHandler opens the caller's answer form for a task. Internship
// tasks start checking the device location right away.
func OpenCheckHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		student := userID(c)
		if student == "" {
			return errUnauthorized(c, HeaderUserID+" header is required")
		}
		v, err := deps.Checks.Open(c.UserContext(), c.Params("id"), student)
		if err != nil {
			return errFrom(c, err)
		}
		c.Location("/v1/checks/" + v.SessionID)
		return c.Status(fiber.StatusCreated).JSON(v)
	}
}

func GetCheckHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		v, err := deps.Checks.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return errFrom(c, err)
		}
		return c.JSON(describeCheck(c, deps, v))
	}
}

// RetryCheckHandler starts a new check. While one is in flight nothing
// happens and started is false.
func RetryCheckHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		v, started, err := deps.Checks.Retry(c.UserContext(), c.Params("id"))
		if err != nil {
			return errFrom(c, err)
		}
		return c.JSON(fiber.Map{"started": started, "check": v})
	}
}

// PendingRequestHandler tells the device which position request to answer.
// 204 means nothing is waiting.
func PendingRequestHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		opts, ok, err := deps.Checks.Pending(c.UserContext(), c.Params("id"))
		if err != nil {
			return errFrom(c, err)
		}
		if !ok {
			return c.SendStatus(fiber.StatusNoContent)
		}
		return c.JSON(opts)
	}
}

// ReportPositionHandler accepts the device's answer to the pending request:
// a fix or a geolocation error code.
func ReportPositionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var msg natsadapter.FixMessage
		if err := bindBody(c, &msg); err != nil {
			return errFrom(c, err)
		}
		v, err := reportPosition(c, deps, c.Params("id"), msg)
		if err != nil {
			return errFrom(c, err)
		}
		return c.JSON(describeCheck(c, deps, v))
	}
}

func reportPosition(c *fiber.Ctx, deps *Dependencies, sessionID string, msg natsadapter.FixMessage) (*usecases.CheckView, error) {
	report, err := msg.Report(sessionID)
	if err != nil {
		return nil, err
	}
	if report.Error != nil {
		return deps.Checks.ReportError(c.UserContext(), sessionID, report.Error)
	}
	return deps.Checks.ReportFix(c.UserContext(), sessionID, *report.Sample)
}

// CloseCheckHandler disposes a session when the form closes.
func CloseCheckHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := deps.Checks.Close(c.UserContext(), c.Params("id")); err != nil {
			return errFrom(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// evaluateRequest runs the rules against an explicit window or a task's.
type evaluateRequest struct {
	TaskID string                 `json:"task_id,omitempty"`
	Window *domain.TaskWindow     `json:"window,omitempty"`
	Sample *domain.PositionSample `json:"sample,omitempty"`
	Today  *domain.Date           `json:"today,omitempty"`
}

// EvaluateHandler evaluates eligibility once, without a session.
func EvaluateHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req evaluateRequest
		if err := bindBody(c, &req); err != nil {
			return errFrom(c, err)
		}

		var window domain.TaskWindow
		switch {
		case req.TaskID != "":
			_, w, err := deps.Tasks.Window(c.UserContext(), req.TaskID)
			if err != nil {
				return errFrom(c, err)
			}
			window = w
		case req.Window != nil:
			window = *req.Window
			if !window.Kind.Valid() {
				return errFrom(c, &domain.ValidationError{Fields: map[string]string{
					"window.kind": fmt.Sprintf("kind must be one of [%s %s]", domain.TaskKindHomework, domain.TaskKindInternship),
				}})
			}
			if window.Target != nil {
				if err := window.Target.Validate(); err != nil {
					return errFrom(c, &domain.ValidationError{Fields: map[string]string{"window.target": err.Error()}})
				}
			}
		default:
			return errBadRequest(c, "task_id or window is required")
		}
		if req.Sample != nil {
			if err := req.Sample.Validate(); err != nil {
				return errFrom(c, err)
			}
		}

		v := deps.Checks.Evaluate(window, req.Sample, req.Today)
		return c.JSON(fiber.Map{
			"window":  window,
			"verdict": v,
			"message": eligibility.Message(v, window),
		})
	}
}
