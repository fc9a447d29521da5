package ports

import (
	"context"

	"github.com/samirrijal/tripgaps/internal/core/domain"
)

// Geocoder is an external place-search provider.
// Search returns nil, nil when the provider has no result.
type Geocoder interface {
	Name() string
	Search(ctx context.Context, text string, rc domain.ResolveContext) (*domain.GeocodeHit, error)
}

// NearbySearcher lists points of interest around a coordinate.
type NearbySearcher interface {
	SearchNearby(ctx context.Context, center domain.Coordinate, radiusMeters int, types []string) ([]domain.Place, error)
}

// EventPublisher publishes itinerary events to a message broker.
type EventPublisher interface {
	PublishSuggestionApplied(ctx context.Context, event *domain.SuggestionApplied) error
	PublishRepairRequested(ctx context.Context, event *domain.RepairRequested) error
	PublishItineraryRepaired(ctx context.Context, event *domain.ItineraryRepaired) error
}

// EventSubscriber subscribes to itinerary events from a message broker.
type EventSubscriber interface {
	SubscribeRepairRequests(ctx context.Context, handler func(ctx context.Context, event *domain.RepairRequested) error) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
