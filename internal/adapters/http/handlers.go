package http

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/samirrijal/tripgaps/internal/core/domain"
	"github.com/samirrijal/tripgaps/internal/core/usecases"
	"github.com/samirrijal/tripgaps/internal/pkg/geospatial"
)

const maxQueryLength = 200

// ResolvePlaceHandler resolves a free-text place name to a coordinate.
func ResolvePlaceHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Resolver == nil {
			return errUnavailable(c, "resolver not configured")
		}
		query := strings.TrimSpace(c.Query("q"))
		if query == "" {
			return errBadRequest(c, "q query parameter is required")
		}
		if len(query) > maxQueryLength {
			return errBadRequest(c, "query too long (max 200 characters)")
		}

		place, err := deps.Resolver.Resolve(c.UserContext(), query, domain.ResolveContext{City: c.Query("city")})
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(place)
	}
}

// ResolverStatsHandler returns the cumulative resolution counters.
func ResolverStatsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Resolver == nil {
			return errUnavailable(c, "resolver not configured")
		}
		return c.JSON(deps.Resolver.Stats())
	}
}

// ResolverResetHandler clears the resolver cache and counters.
func ResolverResetHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Resolver == nil {
			return errUnavailable(c, "resolver not configured")
		}
		deps.Resolver.Reset()
		LoggerFromCtx(c.UserContext()).Info("resolver cache reset")
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// TransportEstimateResponse is the distance and travel estimate between two points.
type TransportEstimateResponse struct {
	DistanceKm float64 `json:"distance_km"`
	geospatial.TransportEstimate
}

// TransportEstimateHandler estimates travel between from_lat/from_lng and to_lat/to_lng.
func TransportEstimateHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var vals [4]float64
		for i, name := range []string{"from_lat", "from_lng", "to_lat", "to_lng"} {
			raw := c.Query(name)
			if raw == "" {
				return errBadRequest(c, "from_lat, from_lng, to_lat and to_lng are required")
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return errBadRequest(c, name+" must be a number")
			}
			vals[i] = v
		}

		from := domain.Coordinate{Lat: vals[0], Lng: vals[1]}
		to := domain.Coordinate{Lat: vals[2], Lng: vals[3]}
		km, err := geospatial.DistanceKm(from, to)
		if err != nil {
			return writeError(c, err)
		}

		return c.JSON(TransportEstimateResponse{
			DistanceKm:        geospatial.RoundKm(km),
			TransportEstimate: deps.Transport.Estimate(km),
		})
	}
}

// GetItineraryHandler returns the active itinerary.
func GetItineraryHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Store == nil {
			return errUnavailable(c, "itinerary store not configured")
		}
		it, err := deps.Store.GetItinerary(c.UserContext(), deps.ItineraryID)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(it)
	}
}

// ResolveItineraryResponse reports a batch repair. Errors lists invalid
// geometry met along the way; those activities are counted as failed.
type ResolveItineraryResponse struct {
	Result    domain.RepairResult `json:"result"`
	Itinerary *domain.Itinerary   `json:"itinerary"`
	Errors    []string            `json:"errors,omitempty"`
}

// ResolveItineraryHandler fills in missing coordinates. With a request body the
// posted itinerary is repaired and returned without being stored; without one
// the active itinerary is repaired and saved.
func ResolveItineraryHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Resolver == nil {
			return errUnavailable(c, "resolver not configured")
		}
		ctx := c.UserContext()

		stored := len(c.Body()) == 0
		var it *domain.Itinerary
		if stored {
			if deps.Store == nil {
				return errUnavailable(c, "itinerary store not configured")
			}
			loaded, err := deps.Store.GetItinerary(ctx, deps.ItineraryID)
			if err != nil {
				return writeError(c, err)
			}
			it = loaded
		} else {
			it = &domain.Itinerary{}
			if err := c.BodyParser(it); err != nil {
				return errBadRequest(c, "invalid itinerary body")
			}
		}

		pending := usecases.UnlocatedIDs(it)
		result, err := deps.Resolver.ResolveItinerary(ctx, it, deps.Repair)
		resp := ResolveItineraryResponse{Result: result, Itinerary: it}
		if err != nil {
			if !errors.Is(err, domain.ErrInvalidCoordinate) {
				return writeError(c, err)
			}
			resp.Errors = splitErrors(err)
		}

		if stored && result.Fixed > 0 {
			if _, err := deps.Store.SaveLocations(ctx, it.ID, usecases.NewlyLocated(it, pending)); err != nil {
				return writeError(c, err)
			}
		}
		return c.JSON(resp)
	}
}

// RequestRepairHandler queues a background repair of the active itinerary.
func RequestRepairHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Publisher == nil {
			return errUnavailable(c, "event publisher not configured")
		}
		event := &domain.RepairRequested{
			EventID:     uuid.NewString(),
			ItineraryID: deps.ItineraryID,
			Timestamp:   time.Now().UTC(),
		}
		if err := deps.Publisher.PublishRepairRequested(c.UserContext(), event); err != nil {
			return writeError(c, err)
		}
		return c.Status(fiber.StatusAccepted).JSON(event)
	}
}

// DayActivitiesHandler returns the ordered activities of a day.
func DayActivitiesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Store == nil {
			return errUnavailable(c, "itinerary store not configured")
		}
		day, err := dayParam(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		activities, err := deps.Store.GetDayActivities(c.UserContext(), day)
		if err != nil {
			return writeError(c, err)
		}
		if activities == nil {
			activities = []domain.Activity{}
		}
		return c.JSON(activities)
	}
}

// DayReportHandler returns gaps, nearby opportunities and alerts for a day.
func DayReportHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Suggestions == nil {
			return errUnavailable(c, "suggestions not configured")
		}
		day, err := dayParam(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		report, err := deps.Suggestions.BuildDayReport(c.UserContext(), day)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(report)
	}
}

// CommitSuggestionRequest picks a suggestion and where it came from.
type CommitSuggestionRequest struct {
	Suggestion domain.Suggestion       `json:"suggestion"`
	Context    domain.InsertionContext `json:"context"`
}

// CommitSuggestionHandler turns a suggestion into an activity of the stored day.
func CommitSuggestionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Suggestions == nil {
			return errUnavailable(c, "suggestions not configured")
		}
		day, err := dayParam(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		var req CommitSuggestionRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if msg := checkSuggestion(req.Suggestion, req.Context); msg != "" {
			return errBadRequest(c, msg)
		}

		activity, err := deps.Suggestions.CommitSuggestion(c.UserContext(), day, req.Suggestion, req.Context)
		if err != nil {
			return writeError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(activity)
	}
}

// ApplySuggestionRequest carries a day's activities along with the suggestion.
type ApplySuggestionRequest struct {
	Activities []domain.Activity       `json:"activities"`
	Suggestion domain.Suggestion       `json:"suggestion"`
	Context    domain.InsertionContext `json:"context"`
}

// ApplySuggestionResponse is the updated list and where the new activity landed.
type ApplySuggestionResponse struct {
	Activities []domain.Activity `json:"activities"`
	Activity   domain.Activity   `json:"activity"`
	Index      int               `json:"index"`
}

// ApplySuggestionHandler previews an insertion without touching the store.
func ApplySuggestionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req ApplySuggestionRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if msg := checkSuggestion(req.Suggestion, req.Context); msg != "" {
			return errBadRequest(c, msg)
		}

		updated, activity, index, err := usecases.ApplySuggestion(req.Activities, req.Suggestion, req.Context)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(ApplySuggestionResponse{Activities: updated, Activity: activity, Index: index})
	}
}

func dayParam(c *fiber.Ctx) (int, error) {
	day, err := strconv.Atoi(c.Params("day"))
	if err != nil || day < 1 {
		return 0, errors.New("day must be a positive integer")
	}
	return day, nil
}

func checkSuggestion(s domain.Suggestion, ic domain.InsertionContext) string {
	if strings.TrimSpace(s.Name) == "" {
		return "suggestion.name is required"
	}
	switch ic.Kind {
	case domain.InsertAfterGap, domain.InsertNearAnchor:
		return ""
	default:
		return `context.kind must be "gap" or "nearby"`
	}
}

func splitErrors(err error) []string {
	var msgs []string
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			msgs = append(msgs, e.Error())
		}
		return msgs
	}
	return []string{err.Error()}
}
