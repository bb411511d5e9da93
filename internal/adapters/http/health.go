package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

var version = "dev"

// HealthHandler returns a basic liveness check.
func HealthHandler(deps *Dependencies) fiber.Handler {
	startedAt := time.Now()

	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"uptime":  time.Since(startedAt).Round(time.Second).String(),
			"version": version,
		})
	}
}

// ReadyHandler checks the database, the cache and the broker. The database
// is required; the cache and NATS only fail readiness when configured.
func ReadyHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
		defer cancel()

		checks := make(map[string]string)
		ok := true

		probe := func(name string, p Pinger, required bool) {
			if p == nil {
				checks[name] = "not configured"
				if required {
					ok = false
				}
				return
			}
			if err := p.Ping(ctx); err != nil {
				checks[name] = "error: " + err.Error()
				ok = false
				return
			}
			checks[name] = "ok"
		}
		probe("database", deps.DB, true)
		probe("cache", deps.Cache, false)

		switch {
		case deps.NATS == nil:
			checks["nats"] = "not configured"
		case deps.NATS.IsConnected():
			checks["nats"] = "ok"
		default:
			checks["nats"] = "disconnected"
			ok = false
		}

		status, code := "ready", fiber.StatusOK
		if !ok {
			status, code = "not ready", fiber.StatusServiceUnavailable
		}
		return c.Status(code).JSON(fiber.Map{"status": status, "checks": checks})
	}
}
