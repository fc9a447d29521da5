package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/samirrijal/tripgaps/internal/core/domain"
)

const nominatimSearchURL = "https://nominatim.openstreetmap.org/search"

// Nominatim is the low-confidence fallback geocoder. The public instance
// requires an identifying User-Agent.
type Nominatim struct {
	baseURL   string
	userAgent string
	country   string
	httpCfg   HTTPClientConfig
	circuit   *gobreaker.CircuitBreaker
}

func NewNominatim(baseURL, userAgent, country string, httpCfg HTTPClientConfig) *Nominatim {
	if baseURL == "" {
		baseURL = nominatimSearchURL
	}
	return &Nominatim{
		baseURL:   baseURL,
		userAgent: userAgent,
		country:   country,
		httpCfg:   httpCfg,
		circuit:   newBreaker("nominatim", httpCfg.Breaker),
	}
}

func (p *Nominatim) Name() string { return "nominatim" }

func (p *Nominatim) Search(ctx context.Context, text string, rc domain.ResolveContext) (hit *domain.GeocodeHit, err error) {
	start := time.Now()
	defer func() { observe(p.Name(), start, err, hit != nil) }()

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, func() (*http.Request, error) {
		values := url.Values{}
		values.Set("q", searchQuery(text, rc, p.country))
		values.Set("format", "json")
		values.Set("limit", "1")
		req, err := http.NewRequest(http.MethodGet, p.baseURL+"?"+values.Encode(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", p.userAgent)
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("nominatim search: %w", err)
	}
	defer resp.Body.Close()

	var payload []osmResult
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("nominatim decode: %w", err)
	}
	return firstOSMHit(payload, text)
}

// osmResult is the search row shared by Nominatim and LocationIQ.
// Both encode coordinates as strings.
type osmResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

func firstOSMHit(rows []osmResult, text string) (*domain.GeocodeHit, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	lat, err := strconv.ParseFloat(rows[0].Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("parse lat %q: %w", rows[0].Lat, err)
	}
	lng, err := strconv.ParseFloat(rows[0].Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("parse lon %q: %w", rows[0].Lon, err)
	}
	return &domain.GeocodeHit{
		Coordinate:  domain.Coordinate{Lat: lat, Lng: lng},
		DisplayName: text,
		Address:     rows[0].DisplayName,
	}, nil
}

func isStatus(err error, code int) bool {
	var se *statusError
	return errors.As(err, &se) && se.code == code
}
