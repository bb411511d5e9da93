package http

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/classroom/internal/pkg/logging"
)

// RequestIDLogMiddleware puts a request-scoped logger carrying the Fiber
// request ID (and the caller, when known) into the user context.
func RequestIDLogMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		rid, _ := c.Locals("requestid").(string)
		if rid == "" {
			return c.Next()
		}

		l := slog.Default().With("request_id", rid)
		if user := c.Get(HeaderUserID); user != "" {
			l = l.With("user", user)
		}
		c.SetUserContext(logging.WithLogger(c.UserContext(), l))
		return c.Next()
	}
}
