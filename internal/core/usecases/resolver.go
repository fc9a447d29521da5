package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/samirrijal/tripgaps/internal/core/domain"
	"github.com/samirrijal/tripgaps/internal/core/ports"
	"github.com/samirrijal/tripgaps/internal/pkg/metrics"
	"github.com/samirrijal/tripgaps/internal/pkg/telemetry"
)

// ResolveStrategy is one tier of the place resolution chain. Resolve returns
// nil, nil when the tier has no answer.
type ResolveStrategy interface {
	Source() string
	Resolve(ctx context.Context, query string, rc domain.ResolveContext) (*domain.ResolvedPlace, error)
}

// ResolverProviders are the external geocoders, highest confidence first.
// Nil entries are skipped.
type ResolverProviders struct {
	A ports.Geocoder
	B ports.Geocoder
	C ports.Geocoder
}

type resolveTier struct {
	strategy ResolveStrategy
	hits     *atomic.Int64
}

// PlaceResolver turns free-text place names into coordinates. One instance is
// shared by the whole process; its cache lives until Reset.
type PlaceResolver struct {
	logger    *slog.Logger
	tiers     []resolveTier
	cache     *cache.Cache
	shared    ports.CacheService
	sharedTTL int
	delay     time.Duration

	cached       atomic.Int64
	localCatalog atomic.Int64
	providerA    atomic.Int64
	providerB    atomic.Int64
	providerC    atomic.Int64
	failed       atomic.Int64
}

// ResolverOption customises a PlaceResolver.
type ResolverOption func(*PlaceResolver)

// WithSharedCache adds a second-level cache consulted after the in-process one.
func WithSharedCache(c ports.CacheService, ttlSeconds int) ResolverOption {
	return func(r *PlaceResolver) {
		r.shared = c
		r.sharedTTL = ttlSeconds
	}
}

// WithBatchDelay sets the pause between resolutions in ResolveItinerary.
func WithBatchDelay(d time.Duration) ResolverOption {
	return func(r *PlaceResolver) { r.delay = d }
}

// NewPlaceResolver builds the chain: local catalog, then providers A, B and C.
func NewPlaceResolver(catalog ports.PlaceCatalog, providers ResolverProviders, logger *slog.Logger, opts ...ResolverOption) *PlaceResolver {
	if logger == nil {
		logger = slog.Default()
	}
	r := &PlaceResolver{
		logger: logger,
		cache:  cache.New(cache.NoExpiration, 0),
		delay:  200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(r)
	}

	if catalog != nil {
		r.tiers = append(r.tiers, resolveTier{strategy: catalogStrategy{catalog: catalog}, hits: &r.localCatalog})
	}
	for _, p := range []struct {
		geocoder   ports.Geocoder
		confidence domain.ConfidenceTier
		hits       *atomic.Int64
	}{
		{providers.A, domain.ConfidenceHigh, &r.providerA},
		{providers.B, domain.ConfidenceMedium, &r.providerB},
		{providers.C, domain.ConfidenceLow, &r.providerC},
	} {
		if p.geocoder == nil {
			continue
		}
		r.tiers = append(r.tiers, resolveTier{
			strategy: geocoderStrategy{geocoder: p.geocoder, confidence: p.confidence},
			hits:     p.hits,
		})
	}
	return r
}

// Resolve returns the coordinate for query, trying each tier in order and
// memoising the first answer. Exhausting every tier yields ErrPlaceNotFound.
// Only invalid catalog geometry surfaces as ErrInvalidCoordinate; provider
// failures are logged and skipped.
func (r *PlaceResolver) Resolve(ctx context.Context, query string, rc domain.ResolveContext) (*domain.ResolvedPlace, error) {
	ctx, span := telemetry.Tracer("resolver").Start(ctx, "PlaceResolver.Resolve", trace.WithAttributes(
		attribute.String("query", query),
		attribute.String("city", rc.City),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", "Resolve"), slog.String("query", query), slog.String("city", rc.City))

	if strings.TrimSpace(query) == "" {
		r.failed.Add(1)
		metrics.Resolutions.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("%w: empty query", domain.ErrPlaceNotFound)
	}

	key := cacheKey(query, rc.City)
	if hit, ok := r.cache.Get(key); ok {
		r.cached.Add(1)
		metrics.Resolutions.WithLabelValues("cache").Inc()
		span.SetAttributes(attribute.String("source", "cache"))
		return hit.(*domain.ResolvedPlace), nil
	}
	if place := r.sharedGet(ctx, key); place != nil {
		r.cache.Set(key, place, cache.NoExpiration)
		r.cached.Add(1)
		metrics.Resolutions.WithLabelValues("cache").Inc()
		span.SetAttributes(attribute.String("source", "shared-cache"))
		return place, nil
	}

	for _, tier := range r.tiers {
		place, err := tier.strategy.Resolve(ctx, query, rc)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidCoordinate) {
				span.RecordError(err)
				span.SetStatus(codes.Error, "invalid geometry")
				return nil, err
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			l.WarnContext(ctx, "resolution tier failed", slog.String("tier", tier.strategy.Source()), slog.Any("error", err))
			span.AddEvent("tier_failed", trace.WithAttributes(attribute.String("tier", tier.strategy.Source())))
			continue
		}
		if place == nil {
			span.AddEvent("fallback", trace.WithAttributes(attribute.String("tier", tier.strategy.Source())))
			continue
		}

		tier.hits.Add(1)
		r.cache.Set(key, place, cache.NoExpiration)
		r.sharedSet(ctx, key, place)
		metrics.Resolutions.WithLabelValues(place.SourceProvider).Inc()
		span.SetAttributes(attribute.String("source", place.SourceProvider))
		span.SetStatus(codes.Ok, "resolved")
		l.DebugContext(ctx, "place resolved", slog.String("source", place.SourceProvider))
		return place, nil
	}

	r.failed.Add(1)
	metrics.Resolutions.WithLabelValues("failed").Inc()
	l.InfoContext(ctx, "place not resolved by any tier")
	return nil, domain.ErrPlaceNotFound
}

// Stats returns the cumulative counters.
func (r *PlaceResolver) Stats() domain.ResolutionStats {
	return domain.ResolutionStats{
		Cached:       r.cached.Load(),
		LocalCatalog: r.localCatalog.Load(),
		ProviderA:    r.providerA.Load(),
		ProviderB:    r.providerB.Load(),
		ProviderC:    r.providerC.Load(),
		Failed:       r.failed.Load(),
		CacheSize:    r.cache.ItemCount(),
	}
}

// Reset empties the in-process cache and zeroes the counters. Entries in the
// shared cache expire on their own TTL.
func (r *PlaceResolver) Reset() {
	r.cache.Flush()
	for _, c := range []*atomic.Int64{&r.cached, &r.localCatalog, &r.providerA, &r.providerB, &r.providerC, &r.failed} {
		c.Store(0)
	}
	r.logger.Info("resolution cache reset")
}

func (r *PlaceResolver) sharedGet(ctx context.Context, key string) *domain.ResolvedPlace {
	if r.shared == nil {
		return nil
	}
	data, err := r.shared.Get(ctx, "geocode:"+key)
	if err != nil {
		metrics.CacheMisses.WithLabelValues("geocode").Inc()
		return nil
	}
	var place domain.ResolvedPlace
	if err := json.Unmarshal(data, &place); err != nil || place.Coordinate.Validate() != nil {
		return nil
	}
	metrics.CacheHits.WithLabelValues("geocode").Inc()
	return &place
}

func (r *PlaceResolver) sharedSet(ctx context.Context, key string, place *domain.ResolvedPlace) {
	if r.shared == nil {
		return
	}
	if data, err := json.Marshal(place); err == nil {
		_ = r.shared.Set(ctx, "geocode:"+key, data, r.sharedTTL)
	}
}

func cacheKey(query, city string) string {
	return strings.ToLower(strings.TrimSpace(query)) + "|" + strings.ToLower(strings.TrimSpace(city))
}

// catalogStrategy matches the query against curated entry names.
type catalogStrategy struct {
	catalog ports.PlaceCatalog
}

func (catalogStrategy) Source() string { return domain.SourceLocalCatalog }

func (s catalogStrategy) Resolve(ctx context.Context, query string, rc domain.ResolveContext) (*domain.ResolvedPlace, error) {
	entries, err := s.catalog.LookupByCity(ctx, rc.City)
	if err != nil {
		return nil, fmt.Errorf("catalog lookup: %w", err)
	}

	q := strings.ToLower(strings.TrimSpace(query))
	var partial *domain.CatalogEntry
	for i := range entries {
		e := &entries[i]
		name := strings.ToLower(strings.TrimSpace(e.Name))
		if e.Coordinate == nil || name == "" {
			continue
		}
		if rc.City != "" && !cityOverlap(e.City, rc.City) {
			continue
		}
		if name == q {
			return catalogPlace(e)
		}
		if partial == nil && (strings.Contains(name, q) || strings.Contains(q, name)) {
			partial = e
		}
	}
	if partial != nil {
		return catalogPlace(partial)
	}
	return nil, nil
}

func catalogPlace(e *domain.CatalogEntry) (*domain.ResolvedPlace, error) {
	if err := e.Coordinate.Validate(); err != nil {
		return nil, fmt.Errorf("catalog entry %q: %w", e.Name, err)
	}
	return &domain.ResolvedPlace{
		Coordinate:     *e.Coordinate,
		DisplayName:    e.Name,
		SourceProvider: domain.SourceLocalCatalog,
		Confidence:     domain.ConfidenceHigh,
		Address:        e.Address,
	}, nil
}

// cityOverlap matches "Tokyo" against "Tokyo - Harajuku" in either direction.
func cityOverlap(a, b string) bool {
	a, b = strings.ToLower(strings.TrimSpace(a)), strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// geocoderStrategy adapts an external provider to the chain.
type geocoderStrategy struct {
	geocoder   ports.Geocoder
	confidence domain.ConfidenceTier
}

func (s geocoderStrategy) Source() string { return s.geocoder.Name() }

func (s geocoderStrategy) Resolve(ctx context.Context, query string, rc domain.ResolveContext) (*domain.ResolvedPlace, error) {
	hit, err := s.geocoder.Search(ctx, query, rc)
	if err != nil {
		return nil, err
	}
	if hit == nil {
		return nil, nil
	}
	// Bad provider geometry is a provider failure, not upstream data corruption.
	if err := hit.Coordinate.Validate(); err != nil {
		return nil, fmt.Errorf("%s returned unusable geometry: %s", s.geocoder.Name(), err.Error())
	}
	name := hit.DisplayName
	if name == "" {
		name = query
	}
	return &domain.ResolvedPlace{
		Coordinate:     hit.Coordinate,
		DisplayName:    name,
		SourceProvider: s.geocoder.Name(),
		Confidence:     s.confidence,
		Address:        hit.Address,
	}, nil
}
