package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/tripgaps/internal/pkg/metrics"
)

const (
	requestTimeout = 15 * time.Second
	// Batch repair is throttled per activity.
	repairTimeout = 2 * time.Minute
)

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	app.Use(requestid.New())
	app.Use(RequestIDLogMiddleware(deps.Logger))
	app.Use(AccessLogMiddleware(deps.Logger))

	// 120 requests per minute per IP; provider quotas are the real constraint.
	app.Use(limiter.New(limiter.Config{
		Max:        120,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return newError(c, fiber.StatusTooManyRequests, "rate_limited", "too many requests, please try again later")
		},
	}))

	// Security headers + API version
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	app.Use(ETagMiddleware("/v1/days/:day/report", "/v1/health", "/v1/ready", "/metrics"))
	app.Use(CachingMiddleware())

	// Health & readiness (no timeout)
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	v1 := app.Group("/v1")

	// Place resolution
	v1.Get("/places/resolve", timeout.NewWithContext(ResolvePlaceHandler(deps), requestTimeout))
	v1.Get("/resolver/stats", ResolverStatsHandler(deps))
	v1.Post("/resolver/reset", ResolverResetHandler(deps))
	v1.Get("/transport/estimate", TransportEstimateHandler(deps))

	// Itinerary
	v1.Get("/itinerary", timeout.NewWithContext(GetItineraryHandler(deps), requestTimeout))
	v1.Post("/itinerary/resolve", timeout.NewWithContext(ResolveItineraryHandler(deps), repairTimeout))
	v1.Post("/itinerary/repair", timeout.NewWithContext(RequestRepairHandler(deps), requestTimeout))

	// Days and suggestions
	v1.Get("/days/:day/activities", timeout.NewWithContext(DayActivitiesHandler(deps), requestTimeout))
	v1.Get("/days/:day/report", timeout.NewWithContext(DayReportHandler(deps), requestTimeout))
	v1.Post("/days/:day/suggestions", timeout.NewWithContext(CommitSuggestionHandler(deps), requestTimeout))
	v1.Post("/suggestions/apply", ApplySuggestionHandler(deps))

	app.Post("/graphql", timeout.NewWithContext(GraphQLHandler(deps), requestTimeout))

	SetupDocs(app, deps.DocsPath, deps.Logger)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/itinerary", websocket.New(WebSocketHandler(deps.NATS, deps.Logger)))
}
