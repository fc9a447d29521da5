package usecases_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/samirrijal/tripgaps/internal/core/domain"
	"github.com/samirrijal/tripgaps/internal/core/usecases"
	"github.com/samirrijal/tripgaps/internal/pkg/logging"
)

var sensoji = domain.Coordinate{Lat: 35.7148, Lng: 139.7967}

func untouchable(t *testing.T, name string) *mockGeocoder {
	return &mockGeocoder{name: name, searchFn: func(ctx context.Context, text string, rc domain.ResolveContext) (*domain.GeocodeHit, error) {
		t.Errorf("provider %s should not be called for %q", name, text)
		return nil, nil
	}}
}

func TestPlaceResolver_LocalCatalogHit(t *testing.T) {
	catalog := staticCatalog(domain.CatalogEntry{Name: "Senso-ji Temple", City: "Tokyo", Coordinate: &sensoji, Category: "temple"})
	r := usecases.NewPlaceResolver(catalog, usecases.ResolverProviders{
		A: untouchable(t, "google-places"),
		B: untouchable(t, "locationiq"),
		C: untouchable(t, "nominatim"),
	}, logging.Discard())

	place, err := r.Resolve(context.Background(), "Senso-ji Temple", domain.ResolveContext{City: "Tokyo"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if place.SourceProvider != domain.SourceLocalCatalog {
		t.Errorf("expected local-catalog, got %s", place.SourceProvider)
	}
	if place.Confidence != domain.ConfidenceHigh {
		t.Errorf("expected high confidence, got %s", place.Confidence)
	}
	if place.Coordinate != sensoji {
		t.Errorf("expected %v, got %v", sensoji, place.Coordinate)
	}
	if got := r.Stats().LocalCatalog; got != 1 {
		t.Errorf("expected localCatalog=1, got %d", got)
	}
}

func TestPlaceResolver_SecondLookupIsCachedIdentity(t *testing.T) {
	catalog := staticCatalog(domain.CatalogEntry{Name: "Senso-ji Temple", City: "Tokyo", Coordinate: &sensoji})
	a := hitGeocoder("google-places", tokyoStation)
	r := usecases.NewPlaceResolver(catalog, usecases.ResolverProviders{A: a}, logging.Discard())
	ctx := context.Background()

	first, err := r.Resolve(ctx, "Senso-ji Temple", domain.ResolveContext{City: "Tokyo"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	before := r.Stats()

	second, err := r.Resolve(ctx, "  senso-ji TEMPLE ", domain.ResolveContext{City: "tokyo"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Errorf("expected the identical cached object on the second lookup")
	}

	after := r.Stats()
	if after.Cached != before.Cached+1 {
		t.Errorf("expected cached to grow by 1, got %d -> %d", before.Cached, after.Cached)
	}
	if after.LocalCatalog != before.LocalCatalog || after.ProviderA != before.ProviderA || after.Failed != before.Failed {
		t.Errorf("non-cache counters changed: %+v -> %+v", before, after)
	}
	if catalog.calls.Load() != 1 {
		t.Errorf("expected 1 catalog lookup, got %d", catalog.calls.Load())
	}
	if after.CacheSize != 1 {
		t.Errorf("expected cache size 1, got %d", after.CacheSize)
	}
}

func TestPlaceResolver_FallsThroughProvidersInOrder(t *testing.T) {
	a := &mockGeocoder{name: "google-places"}
	b := failingGeocoder("locationiq")
	c := hitGeocoder("nominatim", tokyoStation)
	r := usecases.NewPlaceResolver(staticCatalog(), usecases.ResolverProviders{A: a, B: b, C: c}, logging.Discard())

	place, err := r.Resolve(context.Background(), "Tokyo Station", domain.ResolveContext{City: "Tokyo"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if place.SourceProvider != "nominatim" || place.Confidence != domain.ConfidenceLow {
		t.Errorf("expected nominatim/low, got %s/%s", place.SourceProvider, place.Confidence)
	}
	if a.calls.Load() != 1 || b.calls.Load() != 1 || c.calls.Load() != 1 {
		t.Errorf("expected each provider called once, got %d/%d/%d", a.calls.Load(), b.calls.Load(), c.calls.Load())
	}
	stats := r.Stats()
	if stats.ProviderA != 0 || stats.ProviderB != 0 || stats.ProviderC != 1 {
		t.Errorf("unexpected provider counters: %+v", stats)
	}
}

func TestPlaceResolver_ConfidenceFollowsTierPosition(t *testing.T) {
	r := usecases.NewPlaceResolver(nil, usecases.ResolverProviders{
		A: &mockGeocoder{name: "a"},
		B: hitGeocoder("b", tokyoStation),
	}, logging.Discard())

	place, err := r.Resolve(context.Background(), "somewhere", domain.ResolveContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if place.Confidence != domain.ConfidenceMedium {
		t.Errorf("expected medium confidence from provider B, got %s", place.Confidence)
	}
	if r.Stats().ProviderB != 1 {
		t.Errorf("expected providerB=1, got %d", r.Stats().ProviderB)
	}
}

func TestPlaceResolver_NotFoundIsExplicit(t *testing.T) {
	r := usecases.NewPlaceResolver(staticCatalog(), usecases.ResolverProviders{
		A: failingGeocoder("a"),
		B: &mockGeocoder{name: "b"},
	}, logging.Discard())

	place, err := r.Resolve(context.Background(), "Nowhere Shrine", domain.ResolveContext{City: "Tokyo"})
	if !errors.Is(err, domain.ErrPlaceNotFound) {
		t.Fatalf("expected ErrPlaceNotFound, got %v", err)
	}
	if place != nil {
		t.Errorf("expected nil place, got %+v", place)
	}
	stats := r.Stats()
	if stats.Failed != 1 || stats.CacheSize != 0 {
		t.Errorf("expected failed=1 and empty cache, got %+v", stats)
	}
}

func TestPlaceResolver_EmptyQuery(t *testing.T) {
	a := &mockGeocoder{name: "a"}
	r := usecases.NewPlaceResolver(nil, usecases.ResolverProviders{A: a}, logging.Discard())

	if _, err := r.Resolve(context.Background(), "   ", domain.ResolveContext{}); !errors.Is(err, domain.ErrPlaceNotFound) {
		t.Fatalf("expected ErrPlaceNotFound, got %v", err)
	}
	if a.calls.Load() != 0 {
		t.Errorf("expected no provider call for an empty query")
	}
}

func TestPlaceResolver_ProviderGeometryIsAProviderFailure(t *testing.T) {
	a := hitGeocoder("a", domain.Coordinate{Lat: math.NaN(), Lng: 139})
	b := hitGeocoder("b", tokyoStation)
	r := usecases.NewPlaceResolver(nil, usecases.ResolverProviders{A: a, B: b}, logging.Discard())

	place, err := r.Resolve(context.Background(), "Tokyo Station", domain.ResolveContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if place.SourceProvider != "b" {
		t.Errorf("expected fallback to b, got %s", place.SourceProvider)
	}
}

func TestPlaceResolver_CatalogGeometryFailsLoudly(t *testing.T) {
	bad := domain.Coordinate{Lat: 135, Lng: 35}
	r := usecases.NewPlaceResolver(staticCatalog(domain.CatalogEntry{Name: "Broken", City: "Tokyo", Coordinate: &bad}),
		usecases.ResolverProviders{A: hitGeocoder("a", tokyoStation)}, logging.Discard())

	if _, err := r.Resolve(context.Background(), "Broken", domain.ResolveContext{City: "Tokyo"}); !errors.Is(err, domain.ErrInvalidCoordinate) {
		t.Fatalf("expected ErrInvalidCoordinate, got %v", err)
	}
}

func TestPlaceResolver_CatalogMatching(t *testing.T) {
	skytree := domain.Coordinate{Lat: 35.7101, Lng: 139.8107}
	kinkaku := domain.Coordinate{Lat: 35.0394, Lng: 135.7292}
	catalog := staticCatalog(
		domain.CatalogEntry{Name: "Tokyo Skytree Observation Deck", City: "Tokyo - Sumida", Coordinate: &tokyoStation},
		domain.CatalogEntry{Name: "Tokyo Skytree", City: "Tokyo - Sumida", Coordinate: &skytree},
		domain.CatalogEntry{Name: "Kinkaku-ji", City: "Kyoto", Coordinate: &kinkaku},
		domain.CatalogEntry{Name: "No Coordinates Garden", City: "Tokyo"},
	)
	r := usecases.NewPlaceResolver(catalog, usecases.ResolverProviders{}, logging.Discard())
	ctx := context.Background()

	tests := []struct {
		name  string
		query string
		city  string
		want  *domain.Coordinate
	}{
		{"exact beats earlier partial", "tokyo skytree", "Tokyo", &skytree},
		{"query contains entry name", "Kinkaku-ji golden pavilion", "Kyoto", &kinkaku},
		{"city mismatch", "Kinkaku-ji", "Osaka", nil},
		{"entry without coordinates", "No Coordinates Garden", "Tokyo", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			place, err := r.Resolve(ctx, tt.query, domain.ResolveContext{City: tt.city})
			if tt.want == nil {
				if !errors.Is(err, domain.ErrPlaceNotFound) {
					t.Fatalf("expected not found, got %+v / %v", place, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if place.Coordinate != *tt.want {
				t.Errorf("expected %v, got %v", *tt.want, place.Coordinate)
			}
		})
	}
}

func TestPlaceResolver_Reset(t *testing.T) {
	r := usecases.NewPlaceResolver(nil, usecases.ResolverProviders{A: hitGeocoder("a", tokyoStation)}, logging.Discard())
	ctx := context.Background()
	_, _ = r.Resolve(ctx, "Tokyo Station", domain.ResolveContext{})
	_, _ = r.Resolve(ctx, "Tokyo Station", domain.ResolveContext{})

	r.Reset()

	if stats := r.Stats(); stats != (domain.ResolutionStats{}) {
		t.Errorf("expected zeroed stats after reset, got %+v", stats)
	}
}

func TestPlaceResolver_SharedCacheAcrossInstances(t *testing.T) {
	shared := newMockCache()
	first := usecases.NewPlaceResolver(nil, usecases.ResolverProviders{A: hitGeocoder("a", tokyoStation)},
		logging.Discard(), usecases.WithSharedCache(shared, 60))
	if _, err := first.Resolve(context.Background(), "Tokyo Station", domain.ResolveContext{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second := usecases.NewPlaceResolver(nil, usecases.ResolverProviders{A: untouchable(t, "a")},
		logging.Discard(), usecases.WithSharedCache(shared, 60))
	place, err := second.Resolve(context.Background(), "Tokyo Station", domain.ResolveContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if place.Coordinate != tokyoStation {
		t.Errorf("expected shared coordinate, got %v", place.Coordinate)
	}
	if second.Stats().Cached != 1 {
		t.Errorf("expected a cache hit, got %+v", second.Stats())
	}
}
