package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/tripgaps/internal/core/domain"
)

func testHTTPConfig(retries int) HTTPClientConfig {
	cfg := DefaultHTTPClientConfig()
	cfg.Client = &http.Client{Timeout: 2 * time.Second}
	cfg.Backoff = BackoffConfig{MaxRetries: retries, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}
	return cfg
}

func TestSearchQuery(t *testing.T) {
	assert.Equal(t, "Senso-ji, Tokyo, Japan", searchQuery("Senso-ji", domain.ResolveContext{City: "Tokyo"}, "Japan"))
	assert.Equal(t, "Senso-ji, Japan", searchQuery(" Senso-ji ", domain.ResolveContext{}, "Japan"))
	assert.Equal(t, "Senso-ji", searchQuery("Senso-ji", domain.ResolveContext{}, ""))
}

func TestGooglePlaces_Search(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "secret", r.Header.Get("X-Goog-Api-Key"))
		assert.Equal(t, googleTextFieldMask, r.Header.Get("X-Goog-FieldMask"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"places":[
			{"displayName":{"text":"No location"}},
			{"displayName":{"text":"Senso-ji"},"formattedAddress":"2 Chome-3-1 Asakusa","location":{"latitude":35.7148,"longitude":139.7967}}
		]}`))
	}))
	defer srv.Close()

	p := NewGooglePlaces(GooglePlacesConfig{APIKey: "secret", TextSearchURL: srv.URL, Language: "en", Country: "Japan"}, testHTTPConfig(0))
	hit, err := p.Search(context.Background(), "Senso-ji", domain.ResolveContext{City: "Tokyo"})
	require.NoError(t, err)
	require.NotNil(t, hit)

	assert.Equal(t, "Senso-ji, Tokyo, Japan", gotBody["textQuery"])
	assert.Equal(t, "en", gotBody["languageCode"])
	assert.Equal(t, domain.Coordinate{Lat: 35.7148, Lng: 139.7967}, hit.Coordinate)
	assert.Equal(t, "Senso-ji", hit.DisplayName)
	assert.Equal(t, "2 Chome-3-1 Asakusa", hit.Address)
}

func TestGooglePlaces_NoResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	p := NewGooglePlaces(GooglePlacesConfig{APIKey: "k", TextSearchURL: srv.URL}, testHTTPConfig(0))
	hit, err := p.Search(context.Background(), "nowhere", domain.ResolveContext{})
	require.NoError(t, err)
	assert.Nil(t, hit)
}

func TestGooglePlaces_RequiresKey(t *testing.T) {
	p := NewGooglePlaces(GooglePlacesConfig{}, testHTTPConfig(0))
	_, err := p.Search(context.Background(), "Senso-ji", domain.ResolveContext{})
	assert.ErrorIs(t, err, errNotConfigured)
}

func TestGooglePlaces_SearchNearby(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, googleNearbyFieldMask, r.Header.Get("X-Goog-FieldMask"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"places":[
			{"id":"p1","displayName":{"text":"Blue Bottle"},"location":{"latitude":35.68,"longitude":139.77},"rating":4.4,"primaryType":"cafe"},
			{"id":"p2","displayName":{"text":""},"location":{"latitude":35.68,"longitude":139.77}}
		]}`))
	}))
	defer srv.Close()

	p := NewGooglePlaces(GooglePlacesConfig{APIKey: "k", NearbySearchURL: srv.URL}, testHTTPConfig(0))
	places, err := p.SearchNearby(context.Background(), domain.Coordinate{Lat: 35.6812, Lng: 139.7671}, 1500, []string{"cafe"})
	require.NoError(t, err)
	require.Len(t, places, 1)

	assert.Equal(t, "Blue Bottle", places[0].Name)
	assert.Equal(t, "cafe", places[0].Category)
	require.NotNil(t, places[0].Rating)
	assert.InDelta(t, 4.4, *places[0].Rating, 1e-9)

	assert.Equal(t, []any{"cafe"}, gotBody["includedTypes"])
	circle := gotBody["locationRestriction"].(map[string]any)["circle"].(map[string]any)
	assert.Equal(t, 1500.0, circle["radius"])
}

func TestLocationIQ_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k", r.URL.Query().Get("key"))
		assert.Equal(t, "Kinkaku-ji, Kyoto, Japan", r.URL.Query().Get("q"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		_, _ = w.Write([]byte(`[{"lat":"35.0394","lon":"135.7292","display_name":"Kinkaku-ji, Kita Ward, Kyoto"}]`))
	}))
	defer srv.Close()

	p := NewLocationIQ("k", srv.URL, "Japan", testHTTPConfig(0))
	hit, err := p.Search(context.Background(), "Kinkaku-ji", domain.ResolveContext{City: "Kyoto"})
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, domain.Coordinate{Lat: 35.0394, Lng: 135.7292}, hit.Coordinate)
	assert.Equal(t, "Kinkaku-ji", hit.DisplayName)
	assert.Equal(t, "Kinkaku-ji, Kita Ward, Kyoto", hit.Address)
}

func TestLocationIQ_NotFoundIsNoResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"Unable to geocode"}`))
	}))
	defer srv.Close()

	p := NewLocationIQ("k", srv.URL, "Japan", testHTTPConfig(2))
	hit, err := p.Search(context.Background(), "zzz", domain.ResolveContext{})
	require.NoError(t, err)
	assert.Nil(t, hit)
}

func TestNominatim_SendsUserAgent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tripgaps-test/1.0", r.Header.Get("User-Agent"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`[{"lat":"34.9671","lon":"135.7727","display_name":"Fushimi Inari Taisha"}]`))
	}))
	defer srv.Close()

	p := NewNominatim(srv.URL, "tripgaps-test/1.0", "Japan", testHTTPConfig(0))
	hit, err := p.Search(context.Background(), "Fushimi Inari", domain.ResolveContext{City: "Kyoto"})
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.InDelta(t, 34.9671, hit.Coordinate.Lat, 1e-9)
}

func TestNominatim_EmptyAndMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") == "broken" {
			_, _ = w.Write([]byte(`[{"lat":"north","lon":"1"}]`))
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()
	p := NewNominatim(srv.URL, "ua", "", testHTTPConfig(0))

	hit, err := p.Search(context.Background(), "empty", domain.ResolveContext{})
	require.NoError(t, err)
	assert.Nil(t, hit)

	_, err = p.Search(context.Background(), "broken", domain.ResolveContext{})
	assert.Error(t, err)
}

func TestResilience_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`[{"lat":"35","lon":"139","display_name":"ok"}]`))
	}))
	defer srv.Close()

	p := NewNominatim(srv.URL, "ua", "", testHTTPConfig(2))
	hit, err := p.Search(context.Background(), "x", domain.ResolveContext{})
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, int32(3), calls.Load())
}

func TestResilience_GivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewNominatim(srv.URL, "ua", "", testHTTPConfig(1))
	_, err := p.Search(context.Background(), "x", domain.ResolveContext{})
	assert.True(t, errors.Is(err, errRateLimited), "got %v", err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestResilience_ClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	p := NewGooglePlaces(GooglePlacesConfig{APIKey: "bad", TextSearchURL: srv.URL}, testHTTPConfig(3))
	_, err := p.Search(context.Background(), "x", domain.ResolveContext{})
	assert.True(t, isStatus(err, http.StatusForbidden), "got %v", err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestResilience_BreakerOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewNominatim(srv.URL, "ua", "", testHTTPConfig(0))
	var err error
	for i := 0; i < 10; i++ {
		_, err = p.Search(context.Background(), "x", domain.ResolveContext{})
	}
	assert.ErrorIs(t, err, errCircuitOpen)
	assert.Less(t, calls.Load(), int32(10))
}

func TestResilience_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := NewNominatim("http://127.0.0.1:1", "ua", "", testHTTPConfig(0))
	_, err := p.Search(ctx, "x", domain.ResolveContext{})
	assert.ErrorIs(t, err, context.Canceled)
}
