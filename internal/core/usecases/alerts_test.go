package usecases_test

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/samirrijal/tripgaps/internal/core/domain"
	"github.com/samirrijal/tripgaps/internal/core/usecases"
)

func activities(n int, category string) []domain.Activity {
	out := make([]domain.Activity, n)
	for i := range out {
		out[i] = domain.Activity{Title: fmt.Sprintf("Stop %d", i), Category: category, Coordinate: &tokyoStation}
	}
	return out
}

func kinds(alerts []domain.Alert) []domain.AlertKind {
	var out []domain.AlertKind
	for _, a := range alerts {
		out = append(out, a.Kind)
	}
	return out
}

func TestAlerts_OverloadThreshold(t *testing.T) {
	engine := usecases.NewAlertsEngine(usecases.DefaultAlertConfig())

	for n := 0; n <= 10; n++ {
		alerts, err := engine.Evaluate(activities(n, ""))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		fired := false
		for _, a := range alerts {
			if a.Kind == domain.AlertOverloaded {
				fired = true
				if a.Severity != domain.SeverityWarning || len(a.RemediationHints) != 3 {
					t.Errorf("unexpected overload alert: %+v", a)
				}
			}
		}
		if fired != (n >= 7) {
			t.Errorf("%d activities: expected overloaded=%v, got %v", n, n >= 7, fired)
		}
	}
}

func TestAlerts_CategoryFatigue(t *testing.T) {
	day := append(activities(3, "temple"), domain.Activity{Title: "National Museum", Category: "museum", Coordinate: &tokyoStation})
	engine := usecases.NewAlertsEngine(usecases.DefaultAlertConfig())

	alerts, err := engine.Evaluate(day)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %v", kinds(alerts))
	}
	a := alerts[0]
	if a.Kind != domain.AlertCategoryFatigue || a.Category != "temple" || a.Count != 3 {
		t.Errorf("expected temple fatigue with count 3, got %+v", a)
	}

	report := engine.Fatigue(day)
	if !report.HasIssue || report.Category != "temple" || report.Count != 3 {
		t.Errorf("unexpected fatigue report: %+v", report)
	}
}

func TestAlerts_FatigueCountsCaseInsensitively(t *testing.T) {
	day := []domain.Activity{
		{Title: "a", Category: "Shrine"}, {Title: "b", Category: "shrine"}, {Title: "c", Category: "SHRINE "},
	}
	report := usecases.NewAlertsEngine(usecases.DefaultAlertConfig()).Fatigue(day)
	if !report.HasIssue || report.Count != 3 || report.Category != "Shrine" {
		t.Errorf("unexpected fatigue report: %+v", report)
	}
}

func TestAlerts_NoFatigueMeansVariety(t *testing.T) {
	day := []domain.Activity{{Category: "temple"}, {Category: "museum"}, {Category: "food"}, {}}
	report := usecases.NewAlertsEngine(usecases.DefaultAlertConfig()).Fatigue(day)
	if report.HasIssue {
		t.Errorf("expected no fatigue, got %+v", report)
	}
}

func TestAlerts_MissingCoordinatesListsTitles(t *testing.T) {
	day := []domain.Activity{
		{Title: "Placed", Coordinate: &tokyoStation},
		{Title: "Ghibli Museum"},
		{Title: "Omoide Yokocho"},
	}
	alerts, err := usecases.NewAlertsEngine(usecases.DefaultAlertConfig()).Evaluate(day)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(alerts) != 1 || alerts[0].Kind != domain.AlertMissingCoordinates {
		t.Fatalf("expected a missing-coordinates alert, got %v", kinds(alerts))
	}
	got := alerts[0].Activities
	if len(got) != 2 || got[0] != "Ghibli Museum" || got[1] != "Omoide Yokocho" {
		t.Errorf("unexpected titles: %v", got)
	}
	if alerts[0].Severity != domain.SeverityInfo {
		t.Errorf("expected info severity, got %s", alerts[0].Severity)
	}
}

func TestAlerts_ExcessiveTransport(t *testing.T) {
	// Each 20.3 km leg is an express hop: ceil(40.6)+15 = 56 minutes.
	leg := func(n int) []domain.Activity {
		var day []domain.Activity
		for i := 0; i < n; i++ {
			c := kmNorth(tokyoStation, 20.3*float64(i))
			day = append(day, domain.Activity{Title: fmt.Sprintf("Leg %d", i), Coordinate: &c})
		}
		return day
	}
	engine := usecases.NewAlertsEngine(usecases.DefaultAlertConfig())

	alerts, err := engine.Evaluate(leg(3)) // 112 minutes
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(alerts) != 0 {
		t.Errorf("expected no alert under 120 minutes, got %v", kinds(alerts))
	}

	alerts, err = engine.Evaluate(leg(4)) // 168 minutes
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(alerts) != 1 || alerts[0].Kind != domain.AlertExcessiveTransport {
		t.Fatalf("expected an excessive transport alert, got %v", kinds(alerts))
	}
	if alerts[0].Hours != 2.8 || alerts[0].Message != "~2.8 h of travel between activities" {
		t.Errorf("unexpected transport alert: %+v", alerts[0])
	}
}

func TestAlerts_RulesAreIndependentAndOrdered(t *testing.T) {
	day := make([]domain.Activity, 7)
	for i := range day {
		day[i] = domain.Activity{Title: fmt.Sprintf("Onsen %d", i), Category: "onsen"}
	}
	alerts, err := usecases.NewAlertsEngine(usecases.DefaultAlertConfig()).Evaluate(day)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []domain.AlertKind{domain.AlertOverloaded, domain.AlertMissingCoordinates, domain.AlertCategoryFatigue}
	got := kinds(alerts)
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("alert %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestAlerts_ConfigurableThresholds(t *testing.T) {
	cfg := usecases.DefaultAlertConfig()
	cfg.OverloadThreshold = 3
	cfg.FatigueThreshold = 5

	alerts, err := usecases.NewAlertsEngine(cfg).Evaluate(activities(4, "temple"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := kinds(alerts)
	if len(got) != 1 || got[0] != domain.AlertOverloaded {
		t.Errorf("expected only overloaded, got %v", got)
	}
}

func TestAlerts_InvalidGeometry(t *testing.T) {
	bad := domain.Coordinate{Lat: math.NaN(), Lng: 0}
	day := []domain.Activity{{Title: "a", Coordinate: &tokyoStation}, {Title: "b", Coordinate: &bad}}
	if _, err := usecases.NewAlertsEngine(usecases.DefaultAlertConfig()).Evaluate(day); !errors.Is(err, domain.ErrInvalidCoordinate) {
		t.Errorf("expected ErrInvalidCoordinate, got %v", err)
	}
}
