package ports

import (
	"context"

	"github.com/samirrijal/tripgaps/internal/core/domain"
)

// ItineraryStore owns itinerary days and their activities.
type ItineraryStore interface {
	GetDayActivities(ctx context.Context, day int) ([]domain.Activity, error)
	// CommitActivity inserts activity at index within the day's ordered list.
	CommitActivity(ctx context.Context, day int, activity domain.Activity, index int) error
	GetItinerary(ctx context.Context, id string) (*domain.Itinerary, error)
	SaveItinerary(ctx context.Context, itinerary *domain.Itinerary) error
	// SaveLocations stores the coordinate and address of activities that are
	// still unlocated. Activities added or located meanwhile are left as they are.
	SaveLocations(ctx context.Context, itineraryID string, located []domain.Activity) (int, error)
}

// DayCityResolver reports the city a day is planned in, or "" when unknown.
type DayCityResolver interface {
	DayCity(ctx context.Context, day int) (string, error)
}

// PlaceCatalog is the curated local point-of-interest catalog.
type PlaceCatalog interface {
	LookupByCity(ctx context.Context, city string) ([]domain.CatalogEntry, error)
}

// HomeBaseResolver finds the traveler's lodging for a city on a given day.
// It returns nil, nil when no lodging is known.
type HomeBaseResolver interface {
	HomeBaseForCity(ctx context.Context, city string, day int) (*domain.HomeBase, error)
}
