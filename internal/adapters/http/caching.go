package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// CachingMiddleware sets a default Cache-Control on GET responses that do
// not carry one. Check sessions change with every fix and are never cached.
func CachingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		if c.Method() != fiber.MethodGet || c.Get(fiber.HeaderCacheControl) != "" {
			return err
		}
		if v := cacheControlFor(c.Path()); v != "" {
			c.Set(fiber.HeaderCacheControl, v)
		}
		return err
	}
}

func cacheControlFor(path string) string {
	switch {
	case path == "/v1/health" || path == "/v1/ready":
		return "no-cache"
	case path == "/metrics":
		return "no-cache"
	case strings.HasPrefix(path, "/v1/checks"):
		return "no-store"
	case strings.HasPrefix(path, "/v1/answers"):
		return "private, no-cache"
	case path == "/v1/distance":
		return "public, max-age=86400"
	case path == "/v1/reverse":
		return "public, max-age=3600"
	case strings.HasSuffix(path, "/window"):
		return "private, max-age=60"
	case strings.HasPrefix(path, "/v1/tasks") || strings.HasPrefix(path, "/v1/groups"):
		return "private, max-age=60"
	case strings.HasPrefix(path, "/v1/"):
		return "no-cache"
	}
	return ""
}
