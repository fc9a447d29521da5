// Package app turns configuration into the resolver, detector and stores
// shared by the api and repairer binaries.
package app

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/samirrijal/tripgaps/internal/adapters/memory"
	"github.com/samirrijal/tripgaps/internal/adapters/postgres"
	"github.com/samirrijal/tripgaps/internal/adapters/providers"
	"github.com/samirrijal/tripgaps/internal/adapters/valkey"
	"github.com/samirrijal/tripgaps/internal/core/ports"
	"github.com/samirrijal/tripgaps/internal/core/usecases"
	"github.com/samirrijal/tripgaps/internal/pkg/config"
)

// HTTPClientConfig maps provider settings onto the shared retry and breaker policy.
func HTTPClientConfig(p config.ProvidersConfig) providers.HTTPClientConfig {
	hc := providers.DefaultHTTPClientConfig()
	if p.TimeoutSeconds > 0 {
		hc.Client = &http.Client{Timeout: time.Duration(p.TimeoutSeconds) * time.Second}
	}
	hc.Backoff.MaxRetries = p.MaxRetries
	if p.Breaker.MaxRequests > 0 {
		hc.Breaker.MaxRequests = p.Breaker.MaxRequests
	}
	if p.Breaker.IntervalSeconds > 0 {
		hc.Breaker.Interval = time.Duration(p.Breaker.IntervalSeconds) * time.Second
	}
	if p.Breaker.TimeoutSeconds > 0 {
		hc.Breaker.Timeout = time.Duration(p.Breaker.TimeoutSeconds) * time.Second
	}
	return hc
}

// Providers builds the geocoder chain. Google Places is tier A and also the
// nearby searcher, LocationIQ is tier B and Nominatim tier C. Providers
// without credentials stay nil and are skipped by the resolver.
func Providers(p config.ProvidersConfig) (usecases.ResolverProviders, ports.NearbySearcher) {
	hc := HTTPClientConfig(p)

	var (
		chain  usecases.ResolverProviders
		nearby ports.NearbySearcher
	)
	if p.Google.APIKey != "" {
		google := providers.NewGooglePlaces(providers.GooglePlacesConfig{
			APIKey:          p.Google.APIKey,
			TextSearchURL:   p.Google.TextSearchURL,
			NearbySearchURL: p.Google.NearbySearchURL,
			Language:        p.Google.Language,
			Country:         p.Country,
		}, hc)
		chain.A = google
		nearby = google
	}
	if p.LocationIQ.APIKey != "" {
		chain.B = providers.NewLocationIQ(p.LocationIQ.APIKey, p.LocationIQ.BaseURL, p.Country, hc)
	}
	if p.Nominatim.Enabled {
		chain.C = providers.NewNominatim(p.Nominatim.BaseURL, p.UserAgent, p.Country, hc)
	}
	return chain, nearby
}

// Catalog opens the curated catalog from a JSON file or from Postgres.
func Catalog(cfg config.CatalogConfig, db *postgres.DB) (ports.PlaceCatalog, error) {
	switch cfg.Source {
	case "postgres":
		if db == nil {
			return nil, fmt.Errorf("catalog source postgres needs a database")
		}
		return postgres.NewCatalogRepo(db), nil
	default:
		catalog, err := memory.LoadCatalog(cfg.Path)
		if err != nil {
			return nil, err
		}
		return catalog, nil
	}
}

// Resolver builds the place resolver on top of chain. cache may be nil.
func Resolver(cfg *config.Config, catalog ports.PlaceCatalog, chain usecases.ResolverProviders, cache *valkey.Cache, logger *slog.Logger) *usecases.PlaceResolver {
	opts := []usecases.ResolverOption{
		usecases.WithBatchDelay(cfg.Resolver.BatchDelay()),
	}
	if cache != nil {
		opts = append(opts, usecases.WithSharedCache(cache, cfg.Resolver.CacheTTLSeconds))
	}
	return usecases.NewPlaceResolver(catalog, chain, logger, opts...)
}

// DetectorConfig copies the suggestion thresholds out of the configuration.
func DetectorConfig(cfg *config.Config) usecases.DetectorConfig {
	s := cfg.Suggestions
	return usecases.DetectorConfig{
		DefaultCity:             s.DefaultCity,
		MinGapMinutes:           s.MinGapMinutes,
		MaxGapMinutes:           s.MaxGapMinutes,
		GapRadiusKm:             s.GapRadiusKm,
		NearbyRadiusKm:          s.NearbyRadiusKm,
		BufferMinutes:           s.BufferMinutes,
		MaxPerGap:               s.MaxPerGap,
		MaxNearby:               s.MaxNearby,
		PoolFactor:              s.PoolFactor,
		DefaultActivityMinutes:  s.DefaultActivityMinutes,
		DefaultCandidateMinutes: s.DefaultCandidateMinutes,
		DefaultRating:           s.DefaultRating,
		HomeBaseRadiusKm:        s.HomeBaseRadiusKm,
		HomeBaseBonus:           s.HomeBaseBonus,
		HomeBaseCloseKm:         s.HomeBaseCloseKm,
		HomeBaseCloseBonus:      s.HomeBaseCloseBonus,
		ShortGapMinutes:         s.ShortGapMinutes,
		ShortGapTypes:           s.ShortGapTypes,
		LongGapTypes:            s.LongGapTypes,
		NearbyTypes:             s.NearbyTypes,
		Transport:               cfg.Transport,
	}
}

func AlertConfig(cfg *config.Config) usecases.AlertConfig {
	return usecases.AlertConfig{
		OverloadThreshold:       cfg.Suggestions.OverloadThreshold,
		FatigueThreshold:        cfg.Suggestions.FatigueThreshold,
		TransportWarningMinutes: cfg.Suggestions.TransportWarningMinutes,
		Transport:               cfg.Transport,
	}
}

// Suggestions wires the detector, alerts engine and suggestion service.
// nearby, homes and publisher may be nil.
func Suggestions(cfg *config.Config, store ports.ItineraryStore, catalog ports.PlaceCatalog, nearby ports.NearbySearcher, homes ports.HomeBaseResolver, publisher ports.EventPublisher, logger *slog.Logger) *usecases.SuggestionService {
	var opts []usecases.DetectorOption
	if nearby != nil {
		opts = append(opts, usecases.WithNearbySearcher(nearby))
	}
	if homes != nil {
		opts = append(opts, usecases.WithHomeBases(homes))
	}
	if days, ok := store.(ports.DayCityResolver); ok {
		opts = append(opts, usecases.WithDayCities(days))
	}

	detector := usecases.NewGapDetector(catalog, DetectorConfig(cfg), logger, opts...)
	alerts := usecases.NewAlertsEngine(AlertConfig(cfg))
	return usecases.NewSuggestionService(store, detector, alerts, publisher, logger)
}
