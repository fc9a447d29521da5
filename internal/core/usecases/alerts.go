package usecases

import (
	"fmt"
	"math"
	"strings"

	"github.com/samirrijal/tripgaps/internal/core/domain"
	"github.com/samirrijal/tripgaps/internal/pkg/geospatial"
	"github.com/samirrijal/tripgaps/internal/pkg/metrics"
)

// AlertConfig holds the alert thresholds.
type AlertConfig struct {
	OverloadThreshold       int
	FatigueThreshold        int
	TransportWarningMinutes int
	Transport               geospatial.TransportConfig
}

func DefaultAlertConfig() AlertConfig {
	return AlertConfig{
		OverloadThreshold:       7,
		FatigueThreshold:        3,
		TransportWarningMinutes: 120,
		Transport:               geospatial.DefaultTransportConfig(),
	}
}

// AlertsEngine evaluates independent heuristic rules over a day's activities.
type AlertsEngine struct {
	cfg   AlertConfig
	rules []alertRule
}

type alertRule func(cfg AlertConfig, activities []domain.Activity) ([]domain.Alert, error)

func NewAlertsEngine(cfg AlertConfig) *AlertsEngine {
	if len(cfg.Transport.Tiers) == 0 {
		cfg.Transport = geospatial.DefaultTransportConfig()
	}
	return &AlertsEngine{
		cfg:   cfg,
		rules: []alertRule{overloadRule, transportRule, missingCoordinatesRule, categoryFatigueRule},
	}
}

// Evaluate runs every rule and returns the alerts in rule order.
func (e *AlertsEngine) Evaluate(activities []domain.Activity) ([]domain.Alert, error) {
	alerts := make([]domain.Alert, 0)
	for _, rule := range e.rules {
		fired, err := rule(e.cfg, activities)
		if err != nil {
			return nil, err
		}
		for _, a := range fired {
			metrics.AlertsRaised.WithLabelValues(string(a.Kind)).Inc()
		}
		alerts = append(alerts, fired...)
	}
	return alerts, nil
}

// Fatigue reports the first category repeated at least FatigueThreshold times.
func (e *AlertsEngine) Fatigue(activities []domain.Activity) domain.FatigueReport {
	for _, c := range categoryCounts(activities) {
		if c.count >= e.cfg.FatigueThreshold {
			return domain.FatigueReport{
				HasIssue:   true,
				Category:   c.name,
				Count:      c.count,
				Message:    fmt.Sprintf("%d activities of type %q on the same day", c.count, c.name),
				Suggestion: "Mix in a different kind of activity to keep the day fresh",
			}
		}
	}
	return domain.FatigueReport{Message: "Good variety of activities"}
}

func overloadRule(cfg AlertConfig, activities []domain.Activity) ([]domain.Alert, error) {
	if len(activities) < cfg.OverloadThreshold {
		return nil, nil
	}
	return []domain.Alert{{
		Kind:     domain.AlertOverloaded,
		Severity: domain.SeverityWarning,
		Title:    "Overloaded day",
		Message:  fmt.Sprintf("%d activities planned. The day may be too packed.", len(activities)),
		Count:    len(activities),
		RemediationHints: []string{
			"Drop lower-priority activities",
			"Move some activities to a lighter day",
			"Leave time to rest between visits",
		},
	}}, nil
}

// transportRule sums the estimated travel time between consecutive activities
// that have coordinates, in the day's order.
func transportRule(cfg AlertConfig, activities []domain.Activity) ([]domain.Alert, error) {
	total := 0
	var prev *domain.Coordinate
	for _, a := range activities {
		if a.Coordinate == nil {
			continue
		}
		if prev != nil {
			km, err := geospatial.DistanceKm(*prev, *a.Coordinate)
			if err != nil {
				return nil, fmt.Errorf("activity %q: %w", a.Title, err)
			}
			total += cfg.Transport.Estimate(km).Minutes
		}
		prev = a.Coordinate
	}
	if total <= cfg.TransportWarningMinutes {
		return nil, nil
	}

	hours := math.Round(float64(total)/60*10) / 10
	return []domain.Alert{{
		Kind:     domain.AlertExcessiveTransport,
		Severity: domain.SeverityInfo,
		Title:    "A lot of travel",
		Message:  fmt.Sprintf("~%.1f h of travel between activities", hours),
		Hours:    hours,
		RemediationHints: []string{
			"Group activities by neighborhood",
			"Reorder activities to reduce backtracking",
		},
	}}, nil
}

func missingCoordinatesRule(_ AlertConfig, activities []domain.Activity) ([]domain.Alert, error) {
	var titles []string
	for _, a := range activities {
		if a.Coordinate == nil {
			titles = append(titles, a.Title)
		}
	}
	if len(titles) == 0 {
		return nil, nil
	}
	return []domain.Alert{{
		Kind:       domain.AlertMissingCoordinates,
		Severity:   domain.SeverityInfo,
		Title:      "Activities without location",
		Message:    fmt.Sprintf("%d activities have no coordinates: %s", len(titles), strings.Join(titles, ", ")),
		Count:      len(titles),
		Activities: titles,
		RemediationHints: []string{
			"Run the itinerary repair to geocode them",
			"Pick the place from the catalog or add an address",
		},
	}}, nil
}

// categoryFatigueRule emits one warning per category at or above the threshold.
func categoryFatigueRule(cfg AlertConfig, activities []domain.Activity) ([]domain.Alert, error) {
	var alerts []domain.Alert
	for _, c := range categoryCounts(activities) {
		if c.count < cfg.FatigueThreshold {
			continue
		}
		alerts = append(alerts, domain.Alert{
			Kind:     domain.AlertCategoryFatigue,
			Severity: domain.SeverityWarning,
			Title:    "Repetitive day",
			Message:  fmt.Sprintf("%d %s activities on the same day", c.count, c.name),
			Category: c.name,
			Count:    c.count,
			RemediationHints: []string{
				"Swap one for a different kind of activity",
				"Spread them across other days",
			},
		})
	}
	return alerts, nil
}

type categoryCount struct {
	name  string
	count int
}

// categoryCounts groups case-insensitively, in order of first appearance.
func categoryCounts(activities []domain.Activity) []categoryCount {
	var counts []categoryCount
	index := make(map[string]int)
	for _, a := range activities {
		key := strings.ToLower(strings.TrimSpace(a.Category))
		if key == "" {
			continue
		}
		if i, ok := index[key]; ok {
			counts[i].count++
			continue
		}
		index[key] = len(counts)
		counts = append(counts, categoryCount{name: a.Category, count: 1})
	}
	return counts
}
