package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/classroom/internal/pkg/metrics"
)

const requestTimeout = 15 * time.Second

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	app.Use(compress.New(compress.Config{Level: compress.LevelBestSpeed}))
	app.Use(requestid.New())
	app.Use(RequestIDLogMiddleware())
	app.Use(TracingMiddleware())
	app.Use(AccessLogMiddleware())

	// 300 requests per minute per caller (user when known, else IP).
	app.Use(limiter.New(limiter.Config{
		Max:        300,
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			if u := userID(c); u != "" {
				return "user:" + u
			}
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return newError(c, fiber.StatusTooManyRequests, "rate_limited", "too many requests, please try again later")
		},
	}))

	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})
	app.Use(ETagMiddleware())
	app.Use(CachingMiddleware())

	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	with := func(h fiber.Handler) fiber.Handler { return timeout.NewWithContext(h, requestTimeout) }

	v1 := app.Group("/v1")
	v1.Post("/groups", with(CreateGroupHandler(deps)))
	v1.Get("/groups/:id", with(GetGroupHandler(deps)))
	v1.Get("/groups/:id/tasks", with(GroupTasksHandler(deps)))

	v1.Post("/tasks", with(CreateTaskHandler(deps)))
	v1.Get("/tasks/:id", with(GetTaskHandler(deps)))
	v1.Get("/tasks/:id/window", with(TaskWindowHandler(deps)))
	v1.Post("/tasks/:id/answers", with(SubmitAnswerHandler(deps)))

	// Check sessions back the answer form of one student.
	v1.Post("/tasks/:id/checks", with(OpenCheckHandler(deps)))
	v1.Get("/checks/:id", with(GetCheckHandler(deps)))
	v1.Post("/checks/:id/retry", with(RetryCheckHandler(deps)))
	v1.Get("/checks/:id/request", with(PendingRequestHandler(deps)))
	v1.Post("/checks/:id/position", with(ReportPositionHandler(deps)))
	v1.Delete("/checks/:id", with(CloseCheckHandler(deps)))

	v1.Get("/answers/:id", with(GetAnswerHandler(deps)))
	v1.Put("/answers/:id/grade", with(GradeAnswerHandler(deps)))

	v1.Post("/eligibility/evaluate", with(EvaluateHandler(deps)))
	v1.Get("/distance", DistanceHandler())
	v1.Get("/reverse", with(ReverseHandler(deps)))

	app.Post("/graphql", GraphQLHandler(deps))

	SetupDocs(app)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(WebSocketHandler(deps)))
}
