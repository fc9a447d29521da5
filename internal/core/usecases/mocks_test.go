package usecases_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/samirrijal/tripgaps/internal/core/domain"
)

// kmNorth returns a point distKm due north of c.
func kmNorth(c domain.Coordinate, distKm float64) domain.Coordinate {
	return domain.Coordinate{Lat: c.Lat + distKm/111.19492664455873, Lng: c.Lng}
}

func ptr[T any](v T) *T { return &v }

var tokyoStation = domain.Coordinate{Lat: 35.6812, Lng: 139.7671}

// --- Mock PlaceCatalog ---

type mockCatalog struct {
	lookupFn func(ctx context.Context, city string) ([]domain.CatalogEntry, error)
	calls    atomic.Int32
}

func (m *mockCatalog) LookupByCity(ctx context.Context, city string) ([]domain.CatalogEntry, error) {
	m.calls.Add(1)
	if m.lookupFn != nil {
		return m.lookupFn(ctx, city)
	}
	return nil, nil
}

func staticCatalog(entries ...domain.CatalogEntry) *mockCatalog {
	return &mockCatalog{lookupFn: func(ctx context.Context, city string) ([]domain.CatalogEntry, error) {
		return entries, nil
	}}
}

// --- Mock Geocoder ---

type mockGeocoder struct {
	name     string
	searchFn func(ctx context.Context, text string, rc domain.ResolveContext) (*domain.GeocodeHit, error)
	calls    atomic.Int32
}

func (m *mockGeocoder) Name() string { return m.name }

func (m *mockGeocoder) Search(ctx context.Context, text string, rc domain.ResolveContext) (*domain.GeocodeHit, error) {
	m.calls.Add(1)
	if m.searchFn != nil {
		return m.searchFn(ctx, text, rc)
	}
	return nil, nil
}

func hitGeocoder(name string, c domain.Coordinate) *mockGeocoder {
	return &mockGeocoder{name: name, searchFn: func(ctx context.Context, text string, rc domain.ResolveContext) (*domain.GeocodeHit, error) {
		return &domain.GeocodeHit{Coordinate: c, DisplayName: text + " (" + name + ")"}, nil
	}}
}

func failingGeocoder(name string) *mockGeocoder {
	return &mockGeocoder{name: name, searchFn: func(ctx context.Context, text string, rc domain.ResolveContext) (*domain.GeocodeHit, error) {
		return nil, errors.New("upstream 503")
	}}
}

// --- Mock NearbySearcher ---

type mockNearby struct {
	searchFn func(ctx context.Context, center domain.Coordinate, radiusMeters int, types []string) ([]domain.Place, error)
	mu       sync.Mutex
	types    [][]string
}

func (m *mockNearby) SearchNearby(ctx context.Context, center domain.Coordinate, radiusMeters int, types []string) ([]domain.Place, error) {
	m.mu.Lock()
	m.types = append(m.types, types)
	m.mu.Unlock()
	if m.searchFn != nil {
		return m.searchFn(ctx, center, radiusMeters, types)
	}
	return nil, nil
}

// --- Mock HomeBaseResolver ---

type mockHomes struct {
	home *domain.HomeBase
}

func (m *mockHomes) HomeBaseForCity(ctx context.Context, city string, day int) (*domain.HomeBase, error) {
	return m.home, nil
}

// --- Mock DayCityResolver ---

type mockDayCities map[int]string

func (m mockDayCities) DayCity(ctx context.Context, day int) (string, error) {
	return m[day], nil
}

// --- Mock ItineraryStore ---

type mockStore struct {
	days      map[int][]domain.Activity
	getErr    error
	committed []committedActivity
}

type committedActivity struct {
	day      int
	activity domain.Activity
	index    int
}

func (m *mockStore) GetDayActivities(ctx context.Context, day int) ([]domain.Activity, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.days[day], nil
}

func (m *mockStore) CommitActivity(ctx context.Context, day int, activity domain.Activity, index int) error {
	m.committed = append(m.committed, committedActivity{day: day, activity: activity, index: index})
	return nil
}

func (m *mockStore) GetItinerary(ctx context.Context, id string) (*domain.Itinerary, error) {
	return nil, domain.ErrNotFound
}

func (m *mockStore) SaveItinerary(ctx context.Context, itinerary *domain.Itinerary) error { return nil }

func (m *mockStore) SaveLocations(ctx context.Context, id string, located []domain.Activity) (int, error) {
	return len(located), nil
}

// --- Mock EventPublisher ---

type mockPublisher struct {
	applied  []*domain.SuggestionApplied
	repaired []*domain.ItineraryRepaired
}

func (m *mockPublisher) PublishSuggestionApplied(ctx context.Context, event *domain.SuggestionApplied) error {
	m.applied = append(m.applied, event)
	return nil
}

func (m *mockPublisher) PublishRepairRequested(ctx context.Context, event *domain.RepairRequested) error {
	return nil
}

func (m *mockPublisher) PublishItineraryRepaired(ctx context.Context, event *domain.ItineraryRepaired) error {
	m.repaired = append(m.repaired, event)
	return nil
}

// --- Mock CacheService ---

type mockCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMockCache() *mockCache { return &mockCache{data: make(map[string][]byte)} }

func (m *mockCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, errors.New("miss")
	}
	return v, nil
}

func (m *mockCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *mockCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
