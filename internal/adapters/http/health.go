package http

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/tripgaps/internal/adapters/valkey"
	"github.com/samirrijal/tripgaps/internal/core/domain"
)

// HealthHandler reports liveness and how many places the resolver has cached.
func HealthHandler(deps *Dependencies) fiber.Handler {
	startedAt := time.Now()

	return func(c *fiber.Ctx) error {
		body := fiber.Map{
			"status": "healthy",
			"uptime": time.Since(startedAt).Round(time.Second).String(),
		}
		if deps.Resolver != nil {
			body["cached_places"] = deps.Resolver.Stats().CacheSize
		}
		return c.JSON(body)
	}
}

// readinessCheck is one dependency check. A nil run means it is not wired;
// required checks fail readiness in that case.
type readinessCheck struct {
	name     string
	required bool
	run      func(ctx context.Context) error
}

func readinessChecks(deps *Dependencies) []readinessCheck {
	list := []readinessCheck{{name: "services", required: true}}
	if deps.Resolver != nil && deps.Suggestions != nil {
		list[0].run = func(context.Context) error { return nil }
	}

	db := readinessCheck{name: "database"}
	if deps.DB != nil {
		db.run = deps.DB.Ping
	}

	nats := readinessCheck{name: "nats"}
	if deps.NATS != nil {
		nats.run = func(context.Context) error {
			if !deps.NATS.IsConnected() {
				return errors.New("disconnected")
			}
			return nil
		}
	}

	cache := readinessCheck{name: "cache"}
	if deps.Cache != nil {
		cache.run = func(ctx context.Context) error {
			_, err := deps.Cache.Get(ctx, "__health_check__")
			if errors.Is(err, valkey.ErrMiss) {
				return nil
			}
			return err
		}
	}

	itinerary := readinessCheck{name: "itinerary"}
	if deps.Store != nil && deps.ItineraryID != "" {
		itinerary.run = func(ctx context.Context) error {
			_, err := deps.Store.GetItinerary(ctx, deps.ItineraryID)
			if errors.Is(err, domain.ErrNotFound) {
				return nil
			}
			return err
		}
	}

	return append(list, db, nats, cache, itinerary)
}

// ReadyHandler runs every readiness check and answers 503 when one fails.
func ReadyHandler(deps *Dependencies) fiber.Handler {
	checkList := readinessChecks(deps)

	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
		defer cancel()

		checks := make(map[string]string, len(checkList))
		ready := true
		for _, p := range checkList {
			switch {
			case p.run == nil:
				checks[p.name] = "not configured"
				if p.required {
					ready = false
				}
			default:
				if err := p.run(ctx); err != nil {
					checks[p.name] = "error: " + err.Error()
					ready = false
				} else {
					checks[p.name] = "ok"
				}
			}
		}

		if !ready {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "not ready", "checks": checks})
		}
		return c.JSON(fiber.Map{"status": "ready", "checks": checks})
	}
}
