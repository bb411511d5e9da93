package http

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/classroom/internal/core/domain"
	"github.com/samirrijal/classroom/internal/core/usecases"
	"github.com/samirrijal/classroom/internal/pkg/geospatial"
)

// HeaderUserID carries the caller's identity. Authentication happens
// upstream; the API trusts the header.
const HeaderUserID = "X-User-ID"

func userID(c *fiber.Ctx) string { return c.Get(HeaderUserID) }

// bindBody decodes a JSON body. Decoding failures that are really
// validation failures (bad dates, for one) keep their detail.
func bindBody(c *fiber.Ctx, v any) error {
	if err := c.BodyParser(v); err != nil {
		if errors.Is(err, domain.ErrValidation) {
			return err
		}
		return fmt.Errorf("%w: invalid request body", domain.ErrValidation)
	}
	return nil
}

// CreateGroupHandler creates a group. The teacher defaults to the caller.
func CreateGroupHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var g domain.Group
		if err := bindBody(c, &g); err != nil {
			return errFrom(c, err)
		}
		if g.TeacherID == "" {
			g.TeacherID = userID(c)
		}
		created, err := deps.Groups.Create(c.UserContext(), &g)
		if err != nil {
			return errFrom(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(created)
	}
}

// GetGroupHandler returns a group by ID.
func GetGroupHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		g, err := deps.Groups.GetByID(c.UserContext(), c.Params("id"))
		if err != nil {
			return errFrom(c, err)
		}
		return c.JSON(g)
	}
}

// GroupTasksHandler lists a group's tasks, newest first.
func GroupTasksHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		offset, limit := pageParams(c)
		tasks, total, err := deps.Tasks.ListByGroup(c.UserContext(), c.Params("id"), offset, limit)
		if err != nil {
			return errFrom(c, err)
		}
		if tasks == nil {
			tasks = []domain.Task{}
		}
		pg := Pagination{Offset: offset, Limit: limit, Total: total}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: tasks, Pagination: pg})
	}
}

func CreateTaskHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var t domain.Task
		if err := bindBody(c, &t); err != nil {
			return errFrom(c, err)
		}
		created, err := deps.Tasks.Create(c.UserContext(), &t)
		if err != nil {
			return errFrom(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(created)
	}
}

func GetTaskHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		t, err := deps.Tasks.GetByID(c.UserContext(), c.Params("id"))
		if err != nil {
			return errFrom(c, err)
		}
		return c.JSON(t)
	}
}

// TaskWindowHandler returns the date and location constraint of a task.
func TaskWindowHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		t, w, err := deps.Tasks.Window(c.UserContext(), c.Params("id"))
		if err != nil {
			return errFrom(c, err)
		}
		return c.JSON(fiber.Map{"task": t, "window": w})
	}
}

// SubmitAnswerHandler stores the caller's answer to a task. Internship
// answers must name the check session whose gate allows them.
func SubmitAnswerHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		student := userID(c)
		if student == "" {
			return errUnauthorized(c, HeaderUserID+" header is required")
		}
		var req usecases.SubmitRequest
		if err := bindBody(c, &req); err != nil {
			return errFrom(c, err)
		}
		req.TaskID = c.Params("id")
		req.StudentID = student

		a, err := deps.Answers.Submit(c.UserContext(), req)
		if err != nil {
			return errFrom(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(a)
	}
}

func GetAnswerHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		a, err := deps.Answers.GetByID(c.UserContext(), c.Params("id"))
		if err != nil {
			return errFrom(c, err)
		}
		return c.JSON(a)
	}
}

// GradeAnswerHandler grades an answer. A grade handed to the workflow
// engine answers 202 with the workflow ID.
func GradeAnswerHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req usecases.GradeRequest
		if err := bindBody(c, &req); err != nil {
			return errFrom(c, err)
		}
		res, err := deps.Answers.Grade(c.UserContext(), c.Params("id"), req)
		if err != nil {
			return errFrom(c, err)
		}
		if res.WorkflowID != "" {
			return c.Status(fiber.StatusAccepted).JSON(res)
		}
		return c.JSON(res)
	}
}

// queryPoint reads a point from two query parameters.
func queryPoint(c *fiber.Ctx, latKey, lonKey string) (domain.GeoPoint, error) {
	if c.Query(latKey) == "" || c.Query(lonKey) == "" {
		return domain.GeoPoint{}, &domain.ValidationError{Fields: map[string]string{
			latKey: "this field is required", lonKey: "this field is required",
		}}
	}
	p := domain.GeoPoint{Lat: c.QueryFloat(latKey), Lon: c.QueryFloat(lonKey)}
	return p, p.Validate()
}

// DistanceHandler returns the great-circle distance between two points.
func DistanceHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		from, err := queryPoint(c, "from_lat", "from_lon")
		if err != nil {
			return errFrom(c, err)
		}
		to, err := queryPoint(c, "to_lat", "to_lon")
		if err != nil {
			return errFrom(c, err)
		}
		return c.JSON(fiber.Map{
			"from":            from,
			"to":              to,
			"distance_meters": geospatial.Distance(from, to),
		})
	}
}

// ReverseHandler describes a point as an address. Lookup failures still
// answer 200 with the coordinate fallback.
func ReverseHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := queryPoint(c, "lat", "lon")
		if err != nil {
			return errFrom(c, err)
		}
		return c.JSON(deps.Addresses.Describe(c.UserContext(), p))
	}
}
