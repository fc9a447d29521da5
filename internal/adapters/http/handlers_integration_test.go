//go:build integration
// +build integration

package http_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	handler "github.com/samirrijal/tripgaps/internal/adapters/http"
	"github.com/samirrijal/tripgaps/internal/adapters/postgres"
	"github.com/samirrijal/tripgaps/internal/core/domain"
	"github.com/samirrijal/tripgaps/internal/core/usecases"
	"github.com/samirrijal/tripgaps/internal/pkg/config"
	"github.com/samirrijal/tripgaps/internal/pkg/logging"
)

// setupTestDB connects to the database named by the test configuration.
func setupTestDB(t *testing.T) *postgres.DB {
	cfg, err := config.Load("tripgaps-test")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(db.Close)
	return db
}

// setupPostgresDeps wires the real repositories for one itinerary.
func setupPostgresDeps(t *testing.T, db *postgres.DB, itineraryID string) *handler.Dependencies {
	logger := logging.Discard()
	store := postgres.NewItineraryRepo(db, itineraryID)
	catalog := postgres.NewCatalogRepo(db)
	lodging := postgres.NewLodgingRepo(db, itineraryID)

	detector := usecases.NewGapDetector(catalog, usecases.DefaultDetectorConfig(), logger, usecases.WithHomeBases(lodging))
	alerts := usecases.NewAlertsEngine(usecases.DefaultAlertConfig())

	return &handler.Dependencies{
		Resolver:    usecases.NewPlaceResolver(catalog, usecases.ResolverProviders{}, logger),
		Suggestions: usecases.NewSuggestionService(store, detector, alerts, nil, logger),
		Store:       store,
		Repair:      usecases.RepairOptions{RateLimit: false},
		ItineraryID: itineraryID,
		DB:          db,
		Logger:      logger,
	}
}

// seedTrip stores a one-day itinerary and a catalog for a city nobody else uses.
func seedTrip(t *testing.T, db *postgres.DB, itineraryID, city string) {
	ctx := context.Background()

	gardens := domain.Coordinate{Lat: 35.6852, Lng: 139.7528}
	sensoji := domain.Coordinate{Lat: 35.7148, Lng: 139.7967}
	if _, err := postgres.NewCatalogRepo(db).UpsertBatch(ctx, []domain.CatalogEntry{
		{Name: "East Gardens " + city, City: city, Coordinate: &gardens, Category: "park", DurationMinutes: 45},
		{Name: "Senso-ji " + city, City: city, Coordinate: &sensoji, Category: "temple", DurationMinutes: 60},
	}); err != nil {
		t.Fatalf("seed catalog: %v", err)
	}

	station := domain.Coordinate{Lat: 35.6812, Lng: 139.7671}
	it := &domain.Itinerary{ID: itineraryID, Days: []domain.Day{{
		Number: 1,
		City:   city,
		Activities: []domain.Activity{
			{ID: uuid.NewString(), Title: "Station walk", StartTime: "09:00", DurationMinutes: 90, City: city, Coordinate: &station},
			{ID: uuid.NewString(), Title: "Senso-ji " + city, StartTime: "14:00", City: city},
		},
	}}}
	if err := postgres.NewItineraryRepo(db, itineraryID).SaveItinerary(ctx, it); err != nil {
		t.Fatalf("seed itinerary: %v", err)
	}
}

func TestIntegration_RepairThenSuggest(t *testing.T) {
	db := setupTestDB(t)
	itineraryID := "it-" + uuid.NewString()
	city := "Testcity-" + uuid.NewString()[:8]
	seedTrip(t, db, itineraryID, city)

	app := setupApp(setupPostgresDeps(t, db, itineraryID))

	// Repair fills the afternoon activity from the catalog and stores it.
	status, body := doJSON(t, app, "POST", "/v1/itinerary/resolve", "")
	if status != 200 {
		t.Fatalf("resolve: expected 200, got %d: %s", status, body)
	}
	var repaired handler.ResolveItineraryResponse
	json.Unmarshal(body, &repaired)
	if repaired.Result.Fixed != 1 || repaired.Result.Failed != 0 {
		t.Fatalf("expected 1 fixed, got %+v", repaired.Result)
	}

	status, body = doJSON(t, app, "GET", "/v1/days/1/activities", "")
	if status != 200 {
		t.Fatalf("activities: expected 200, got %d", status)
	}
	var activities []domain.Activity
	json.Unmarshal(body, &activities)
	if len(activities) != 2 || activities[1].Coordinate == nil {
		t.Fatalf("expected repaired coordinate to be persisted, got %+v", activities)
	}

	// The report offers the gardens for the 10:30-14:00 gap.
	status, body = doJSON(t, app, "GET", "/v1/days/1/report", "")
	if status != 200 {
		t.Fatalf("report: expected 200, got %d: %s", status, body)
	}
	var report domain.DayReport
	json.Unmarshal(body, &report)
	if len(report.Gaps) != 1 || len(report.Gaps[0].CandidateSuggestions) == 0 {
		t.Fatalf("expected a gap with suggestions, got %+v", report.Gaps)
	}
	pick := report.Gaps[0].CandidateSuggestions[0]

	commit, _ := json.Marshal(handler.CommitSuggestionRequest{
		Suggestion: pick,
		Context: domain.InsertionContext{
			Kind:             domain.InsertAfterGap,
			AnchorActivityID: report.Gaps[0].PrecedingActivity.ID,
			City:             city,
		},
	})
	status, body = doJSON(t, app, "POST", "/v1/days/1/suggestions", string(commit))
	if status != 201 {
		t.Fatalf("commit: expected 201, got %d: %s", status, body)
	}

	_, body = doJSON(t, app, "GET", "/v1/days/1/activities", "")
	activities = nil
	json.Unmarshal(body, &activities)
	if len(activities) != 3 || activities[1].Title != pick.Name {
		t.Errorf("expected %q inserted at index 1, got %+v", pick.Name, activities)
	}
}

func TestIntegration_Ready(t *testing.T) {
	db := setupTestDB(t)
	app := setupApp(setupPostgresDeps(t, db, "ready-check"))

	status, body := doJSON(t, app, "GET", "/v1/ready", "")
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}
}
