package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/tripgaps/internal/core/domain"
	"github.com/samirrijal/tripgaps/internal/pkg/config"
	"github.com/samirrijal/tripgaps/internal/pkg/logging"
)

func TestProviders_OnlyConfiguredTiers(t *testing.T) {
	chain, nearby := Providers(config.ProvidersConfig{
		Country:        "Japan",
		UserAgent:      "tripgaps-test",
		TimeoutSeconds: 3,
		Nominatim:      config.NominatimConfig{Enabled: true},
	})

	assert.Nil(t, chain.A)
	assert.Nil(t, chain.B)
	require.NotNil(t, chain.C)
	assert.Equal(t, "nominatim", chain.C.Name())
	assert.Nil(t, nearby)
}

func TestProviders_GoogleIsAlsoNearby(t *testing.T) {
	chain, nearby := Providers(config.ProvidersConfig{
		Google:     config.GoogleConfig{APIKey: "k"},
		LocationIQ: config.LocationIQConfig{APIKey: "k"},
	})

	require.NotNil(t, chain.A)
	require.NotNil(t, chain.B)
	assert.Nil(t, chain.C)
	assert.Equal(t, "google-places", chain.A.Name())
	assert.Equal(t, "locationiq", chain.B.Name())
	assert.NotNil(t, nearby)
}

func TestHTTPClientConfig(t *testing.T) {
	hc := HTTPClientConfig(config.ProvidersConfig{
		TimeoutSeconds: 4,
		MaxRetries:     0,
		Breaker:        config.BreakerConfig{MaxRequests: 2, IntervalSeconds: 30, TimeoutSeconds: 10},
	})

	assert.Equal(t, 4*time.Second, hc.Client.Timeout)
	assert.Equal(t, 0, hc.Backoff.MaxRetries)
	assert.Equal(t, uint32(2), hc.Breaker.MaxRequests)
	assert.Equal(t, 30*time.Second, hc.Breaker.Interval)
	assert.Equal(t, 10*time.Second, hc.Breaker.Timeout)
}

func TestCatalog_FileSource(t *testing.T) {
	catalog, err := Catalog(config.CatalogConfig{Source: "file", Path: "../../data/catalog.json"}, nil)
	require.NoError(t, err)

	entries, err := catalog.LookupByCity(t.Context(), "Kyoto")
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}

func TestCatalog_PostgresNeedsDB(t *testing.T) {
	_, err := Catalog(config.CatalogConfig{Source: "postgres"}, nil)
	assert.Error(t, err)
}

func TestResolverWithoutSharedCache(t *testing.T) {
	cfg, err := config.Load("tripgaps-test")
	require.NoError(t, err)
	catalog, err := Catalog(config.CatalogConfig{Source: "file", Path: "../../data/catalog.json"}, nil)
	require.NoError(t, err)

	chain, _ := Providers(config.ProvidersConfig{})
	r := Resolver(cfg, catalog, chain, nil, logging.Discard())

	place, err := r.Resolve(t.Context(), "Fushimi Inari", domain.ResolveContext{City: "Kyoto"})
	require.NoError(t, err)
	assert.Equal(t, domain.SourceLocalCatalog, place.SourceProvider)
}

func TestDetectorAndAlertConfig(t *testing.T) {
	cfg, err := config.Load("tripgaps-test")
	require.NoError(t, err)

	dc := DetectorConfig(cfg)
	assert.Equal(t, cfg.Suggestions.MinGapMinutes, dc.MinGapMinutes)
	assert.Equal(t, cfg.Suggestions.LongGapTypes, dc.LongGapTypes)
	assert.Len(t, dc.Transport.Tiers, len(cfg.Transport.Tiers))

	ac := AlertConfig(cfg)
	assert.Equal(t, 7, ac.OverloadThreshold)
	assert.Equal(t, 3, ac.FatigueThreshold)
}
