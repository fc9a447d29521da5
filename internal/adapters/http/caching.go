package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// CachingMiddleware sets a Cache-Control default on GET responses whose
// handler did not choose one.
func CachingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		if c.Method() != fiber.MethodGet || c.Get(fiber.HeaderCacheControl) != "" {
			return err
		}
		if ttl := cacheControlFor(c.Path()); ttl != "" {
			c.Set(fiber.HeaderCacheControl, ttl)
		}
		return err
	}
}

func cacheControlFor(path string) string {
	switch {
	case path == "/v1/health" || path == "/v1/ready":
		return "public, max-age=10"
	case path == "/metrics" || path == "/v1/resolver/stats":
		return "no-cache"
	case strings.HasPrefix(path, "/v1/places/resolve"):
		return "public, max-age=3600" // coordinates of a named place rarely move
	case path == "/v1/transport/estimate":
		return "public, max-age=86400"
	case strings.HasPrefix(path, "/v1/days/"), strings.HasPrefix(path, "/v1/itinerary"):
		return "private, no-cache" // edited by suggestions and repairs
	case strings.HasPrefix(path, "/docs"):
		return "public, max-age=300"
	}
	return ""
}
