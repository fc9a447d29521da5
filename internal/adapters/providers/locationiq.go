package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/samirrijal/tripgaps/internal/core/domain"
)

const locationIQSearchURL = "https://us1.locationiq.com/v1/search"

// LocationIQ is the medium-confidence geocoder.
type LocationIQ struct {
	apiKey  string
	baseURL string
	country string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewLocationIQ(apiKey, baseURL, country string, httpCfg HTTPClientConfig) *LocationIQ {
	if baseURL == "" {
		baseURL = locationIQSearchURL
	}
	return &LocationIQ{
		apiKey:  apiKey,
		baseURL: baseURL,
		country: country,
		httpCfg: httpCfg,
		circuit: newBreaker("locationiq", httpCfg.Breaker),
	}
}

func (p *LocationIQ) Name() string { return "locationiq" }

func (p *LocationIQ) Search(ctx context.Context, text string, rc domain.ResolveContext) (hit *domain.GeocodeHit, err error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("locationiq: %w", errNotConfigured)
	}
	start := time.Now()
	defer func() { observe(p.Name(), start, err, hit != nil) }()

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, func() (*http.Request, error) {
		values := url.Values{}
		values.Set("key", p.apiKey)
		values.Set("q", searchQuery(text, rc, p.country))
		values.Set("format", "json")
		values.Set("limit", "1")
		return http.NewRequest(http.MethodGet, p.baseURL+"?"+values.Encode(), nil)
	})
	if err != nil {
		// LocationIQ answers 404 when nothing matches.
		if isStatus(err, http.StatusNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("locationiq search: %w", err)
	}
	defer resp.Body.Close()

	var payload []osmResult
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("locationiq decode: %w", err)
	}
	return firstOSMHit(payload, text)
}
