package workflows

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/samirrijal/tripgaps/internal/core/domain"
	"github.com/samirrijal/tripgaps/internal/core/ports"
	"github.com/samirrijal/tripgaps/internal/core/usecases"
)

// DayRepair is the outcome of repairing one day.
type DayRepair struct {
	Day     domain.Day
	Result  domain.RepairResult
	Located []domain.Activity
}

// RepairActivities holds the activity implementations for the repair workflow.
type RepairActivities struct {
	Resolver  *usecases.PlaceResolver
	Store     ports.ItineraryStore
	Publisher ports.EventPublisher
	Options   usecases.RepairOptions
	Logger    *slog.Logger
}

func (a *RepairActivities) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.Default()
	}
	return a.Logger
}

// LoadItinerary returns the stored itinerary.
func (a *RepairActivities) LoadItinerary(ctx context.Context, itineraryID string) (*domain.Itinerary, error) {
	it, err := a.Store.GetItinerary(ctx, itineraryID)
	if err != nil {
		return nil, fmt.Errorf("load itinerary %s: %w", itineraryID, err)
	}
	return it, nil
}

// RepairDay geocodes the day's activities that have no coordinate. Invalid
// catalog geometry is counted as failed and logged; it does not fail the
// activity because retrying cannot fix it.
func (a *RepairActivities) RepairDay(ctx context.Context, day domain.Day) (DayRepair, error) {
	batch := domain.Itinerary{Days: []domain.Day{day}}
	pending := usecases.UnlocatedIDs(&batch)
	result, err := a.Resolver.ResolveItinerary(ctx, &batch, a.Options)
	if err != nil {
		if !errors.Is(err, domain.ErrInvalidCoordinate) {
			return DayRepair{}, err
		}
		a.logger().WarnContext(ctx, "repair finished with geometry errors", slog.Int("day", day.Number), slog.Any("error", err))
	}
	return DayRepair{Day: batch.Days[0], Result: result, Located: usecases.NewlyLocated(&batch, pending)}, nil
}

// SaveLocations stores the coordinates found by the repair. Rows changed since
// the itinerary was loaded are not overwritten.
func (a *RepairActivities) SaveLocations(ctx context.Context, itineraryID string, located []domain.Activity) (int, error) {
	n, err := a.Store.SaveLocations(ctx, itineraryID, located)
	if err != nil {
		return 0, fmt.Errorf("save locations %s: %w", itineraryID, err)
	}
	if n < len(located) {
		a.logger().InfoContext(ctx, "some repaired activities changed meanwhile and were kept",
			slog.String("itinerary_id", itineraryID),
			slog.Int("saved", n),
			slog.Int("located", len(located)),
		)
	}
	return n, nil
}

// PublishRepaired announces the repair result.
func (a *RepairActivities) PublishRepaired(ctx context.Context, event domain.ItineraryRepaired) error {
	if a.Publisher == nil {
		a.logger().InfoContext(ctx, "repair completed (no publisher)",
			slog.String("itinerary_id", event.ItineraryID),
			slog.Int("fixed", event.Result.Fixed),
			slog.Int("failed", event.Result.Failed),
		)
		return nil
	}
	return a.Publisher.PublishItineraryRepaired(ctx, &event)
}
