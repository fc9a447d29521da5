package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/samirrijal/tripgaps/internal/core/domain"
)

const (
	googleTextSearchURL   = "https://places.googleapis.com/v1/places:searchText"
	googleNearbySearchURL = "https://places.googleapis.com/v1/places:searchNearby"

	googleTextFieldMask   = "places.displayName,places.formattedAddress,places.location"
	googleNearbyFieldMask = "places.id,places.displayName,places.formattedAddress,places.location,places.rating,places.primaryType"

	// searchNearby rejects maxResultCount above 20.
	googleMaxResults = 20
)

// GooglePlacesConfig configures the Google Places (New) API adapter.
type GooglePlacesConfig struct {
	APIKey          string
	TextSearchURL   string
	NearbySearchURL string
	Language        string
	Country         string
}

// GooglePlaces is the high-confidence geocoder and the nearby-search provider.
type GooglePlaces struct {
	cfg     GooglePlacesConfig
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewGooglePlaces(cfg GooglePlacesConfig, httpCfg HTTPClientConfig) *GooglePlaces {
	if cfg.TextSearchURL == "" {
		cfg.TextSearchURL = googleTextSearchURL
	}
	if cfg.NearbySearchURL == "" {
		cfg.NearbySearchURL = googleNearbySearchURL
	}
	return &GooglePlaces{
		cfg:     cfg,
		httpCfg: httpCfg,
		circuit: newBreaker("google-places", httpCfg.Breaker),
	}
}

func (p *GooglePlaces) Name() string { return "google-places" }

type googlePlace struct {
	ID          string `json:"id"`
	DisplayName struct {
		Text string `json:"text"`
	} `json:"displayName"`
	FormattedAddress string `json:"formattedAddress"`
	Location         *struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"location"`
	Rating      *float64 `json:"rating"`
	PrimaryType string   `json:"primaryType"`
}

type googleResponse struct {
	Places []googlePlace `json:"places"`
}

// Search runs a Text Search and returns the first place with a location.
func (p *GooglePlaces) Search(ctx context.Context, text string, rc domain.ResolveContext) (hit *domain.GeocodeHit, err error) {
	if p.cfg.APIKey == "" {
		return nil, fmt.Errorf("google places: %w", errNotConfigured)
	}
	start := time.Now()
	defer func() { observe(p.Name(), start, err, hit != nil) }()

	body := map[string]any{"textQuery": searchQuery(text, rc, p.cfg.Country)}
	if p.cfg.Language != "" {
		body["languageCode"] = p.cfg.Language
	}

	var payload googleResponse
	if err := p.post(ctx, p.cfg.TextSearchURL, googleTextFieldMask, body, &payload); err != nil {
		return nil, fmt.Errorf("google places text search: %w", err)
	}

	for _, place := range payload.Places {
		if place.Location == nil {
			continue
		}
		name := place.DisplayName.Text
		if name == "" {
			name = text
		}
		return &domain.GeocodeHit{
			Coordinate:  domain.Coordinate{Lat: place.Location.Latitude, Lng: place.Location.Longitude},
			DisplayName: name,
			Address:     place.FormattedAddress,
		}, nil
	}
	return nil, nil
}

// SearchNearby lists places of the given types within radiusMeters of center.
func (p *GooglePlaces) SearchNearby(ctx context.Context, center domain.Coordinate, radiusMeters int, types []string) (places []domain.Place, err error) {
	if p.cfg.APIKey == "" {
		return nil, fmt.Errorf("google places: %w", errNotConfigured)
	}
	if err := center.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() { observe(p.Name()+"-nearby", start, err, len(places) > 0) }()

	body := map[string]any{
		"maxResultCount": googleMaxResults,
		"locationRestriction": map[string]any{
			"circle": map[string]any{
				"center": map[string]float64{"latitude": center.Lat, "longitude": center.Lng},
				"radius": float64(radiusMeters),
			},
		},
	}
	if len(types) > 0 {
		body["includedTypes"] = types
	}
	if p.cfg.Language != "" {
		body["languageCode"] = p.cfg.Language
	}

	var payload googleResponse
	if err := p.post(ctx, p.cfg.NearbySearchURL, googleNearbyFieldMask, body, &payload); err != nil {
		return nil, fmt.Errorf("google places nearby search: %w", err)
	}

	places = make([]domain.Place, 0, len(payload.Places))
	for _, gp := range payload.Places {
		if gp.Location == nil || gp.DisplayName.Text == "" {
			continue
		}
		places = append(places, domain.Place{
			ID:         gp.ID,
			Name:       gp.DisplayName.Text,
			Coordinate: domain.Coordinate{Lat: gp.Location.Latitude, Lng: gp.Location.Longitude},
			Category:   gp.PrimaryType,
			Rating:     gp.Rating,
			Address:    gp.FormattedAddress,
		})
	}
	return places, nil
}

func (p *GooglePlaces) post(ctx context.Context, url, fieldMask string, body any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Goog-Api-Key", p.cfg.APIKey)
		req.Header.Set("X-Goog-FieldMask", fieldMask)
		return req, nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return json.NewDecoder(resp.Body).Decode(out)
}
