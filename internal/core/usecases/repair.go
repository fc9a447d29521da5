package usecases

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/samirrijal/tripgaps/internal/core/domain"
)

// RepairOptions controls ResolveItinerary. The throttle is on unless RateLimit is false.
type RepairOptions struct {
	RateLimit bool
	Delay     time.Duration // zero means the resolver's batch delay
}

// DefaultRepairOptions throttles one resolution per 200ms.
func DefaultRepairOptions() RepairOptions {
	return RepairOptions{RateLimit: true}
}

// ResolveItinerary fills in coordinates for every activity that lacks one,
// mutating itinerary in place. Unresolvable activities, including those without
// a title, are counted as failed and never stop the batch. Invalid catalog
// geometry is counted as failed too and reported through the joined error once
// the batch is done. A cancelled context stops early with the partial result.
func (r *PlaceResolver) ResolveItinerary(ctx context.Context, itinerary *domain.Itinerary, opts RepairOptions) (domain.RepairResult, error) {
	var result domain.RepairResult
	if itinerary == nil {
		return result, nil
	}
	l := r.logger.With(slog.String("method", "ResolveItinerary"), slog.String("itinerary", itinerary.ID))

	var limiter *rate.Limiter
	if opts.RateLimit {
		delay := opts.Delay
		if delay <= 0 {
			delay = r.delay
		}
		limiter = rate.NewLimiter(rate.Every(delay), 1)
	}

	var geometryErrs []error
	for di := range itinerary.Days {
		day := &itinerary.Days[di]
		for ai := range day.Activities {
			a := &day.Activities[ai]
			if a.Coordinate != nil {
				continue
			}
			if strings.TrimSpace(a.Title) == "" {
				result.Failed++
				continue
			}
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					l.WarnContext(ctx, "repair interrupted", slog.Int("fixed", result.Fixed), slog.Int("failed", result.Failed))
					return result, err
				}
			}

			city := a.City
			if city == "" {
				city = day.City
			}
			place, err := r.Resolve(ctx, a.Title, domain.ResolveContext{City: city})
			switch {
			case err == nil:
				coord := place.Coordinate
				a.Coordinate = &coord
				if a.Address == "" {
					a.Address = place.Address
				}
				result.Fixed++
			case errors.Is(err, domain.ErrPlaceNotFound):
				result.Failed++
			case errors.Is(err, domain.ErrInvalidCoordinate):
				result.Failed++
				geometryErrs = append(geometryErrs, err)
				l.ErrorContext(ctx, "invalid geometry while repairing", slog.Int("day", day.Number), slog.String("activity", a.Title), slog.Any("error", err))
			default:
				return result, err
			}
		}
	}

	l.InfoContext(ctx, "itinerary repaired", slog.Int("fixed", result.Fixed), slog.Int("failed", result.Failed))
	return result, errors.Join(geometryErrs...)
}

// UnlocatedIDs returns the ids of activities that have no coordinate yet.
func UnlocatedIDs(itinerary *domain.Itinerary) map[string]bool {
	ids := make(map[string]bool)
	if itinerary == nil {
		return ids
	}
	for _, d := range itinerary.Days {
		for _, a := range d.Activities {
			if a.Coordinate == nil && a.ID != "" {
				ids[a.ID] = true
			}
		}
	}
	return ids
}

// NewlyLocated returns the activities among pending that now have a coordinate.
func NewlyLocated(itinerary *domain.Itinerary, pending map[string]bool) []domain.Activity {
	var located []domain.Activity
	if itinerary == nil {
		return located
	}
	for _, d := range itinerary.Days {
		for _, a := range d.Activities {
			if a.Coordinate != nil && pending[a.ID] {
				located = append(located, a)
			}
		}
	}
	return located
}
