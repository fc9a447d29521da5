package domain

import (
	"time"
)

// ConfidenceTier ranks how much a resolved coordinate can be trusted.
type ConfidenceTier string

const (
	ConfidenceHigh   ConfidenceTier = "high"
	ConfidenceMedium ConfidenceTier = "medium"
	ConfidenceLow    ConfidenceTier = "low"
)

// Sources of resolved places and suggestions that are not named providers.
const (
	SourceLocalCatalog = "local-catalog"
	SourceNearbySearch = "nearby-search"
)

// ResolveContext narrows a free-text place query.
type ResolveContext struct {
	City string `json:"city,omitempty"`
}

// ResolvedPlace is the outcome of a successful place resolution. Values handed
// out by the resolver are shared through its cache and must not be modified.
type ResolvedPlace struct {
	Coordinate     Coordinate     `json:"coordinate"`
	DisplayName    string         `json:"display_name"`
	SourceProvider string         `json:"source_provider"`
	Confidence     ConfidenceTier `json:"confidence_tier"`
	Address        string         `json:"address,omitempty"`
}

// GeocodeHit is the first usable result of a geocoding provider.
type GeocodeHit struct {
	Coordinate  Coordinate `json:"coordinate"`
	DisplayName string     `json:"display_name"`
	Address     string     `json:"address,omitempty"`
}

// Activity is one scheduled entry of an itinerary day.
type Activity struct {
	ID              string      `json:"id"`
	Title           string      `json:"title"`
	StartTime       string      `json:"start_time,omitempty"` // HH:MM
	DurationMinutes int         `json:"duration_minutes,omitempty"`
	City            string      `json:"city,omitempty"`
	Coordinate      *Coordinate `json:"coordinate,omitempty"`
	Category        string      `json:"category,omitempty"`
	Cost            float64     `json:"cost,omitempty"`
	Rating          *float64    `json:"rating,omitempty"`
	Address         string      `json:"address,omitempty"`
	Source          string      `json:"source,omitempty"`
}

// Day is the ordered activity list of one itinerary day.
type Day struct {
	Number     int        `json:"day"`
	City       string     `json:"city,omitempty"`
	Activities []Activity `json:"activities"`
}

// Itinerary is a whole trip.
type Itinerary struct {
	ID        string    `json:"id"`
	Days      []Day     `json:"days"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CatalogEntry is a curated point of interest.
type CatalogEntry struct {
	ID              string      `json:"id,omitempty"`
	Name            string      `json:"name"`
	City            string      `json:"city"`
	Coordinate      *Coordinate `json:"coordinate,omitempty"`
	Category        string      `json:"category"`
	Cost            float64     `json:"cost,omitempty"`
	DurationMinutes int         `json:"duration_minutes,omitempty"`
	DurationLabel   string      `json:"duration_label,omitempty"`
	Rating          *float64    `json:"rating,omitempty"`
	Address         string      `json:"address,omitempty"`
}

// Duration returns the visit length in minutes, falling back to the label and then to def.
func (e CatalogEntry) Duration(def int) int {
	if e.DurationMinutes > 0 {
		return e.DurationMinutes
	}
	if m := ParseDurationLabel(e.DurationLabel); m > 0 {
		return m
	}
	return def
}

// Place is a point of interest returned by a nearby-search provider.
type Place struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Coordinate Coordinate `json:"coordinate"`
	Category   string     `json:"category,omitempty"`
	Rating     *float64   `json:"rating,omitempty"`
	Address    string     `json:"address,omitempty"`
}

// HomeBase is the traveler's lodging for a city. FromDay/ToDay of zero means the
// stay is not bound to a day range.
type HomeBase struct {
	Name       string     `json:"name"`
	City       string     `json:"city"`
	Coordinate Coordinate `json:"coordinate"`
	FromDay    int        `json:"from_day,omitempty"`
	ToDay      int        `json:"to_day,omitempty"`
}

// Suggestion is a transient candidate activity. It only becomes an Activity when applied.
type Suggestion struct {
	ID                       string     `json:"id,omitempty"`
	Name                     string     `json:"name"`
	Coordinate               Coordinate `json:"coordinate"`
	Category                 string     `json:"category,omitempty"`
	EstimatedCost            float64    `json:"estimated_cost"`
	EstimatedDurationMinutes int        `json:"estimated_duration_minutes"`
	TravelMinutesFromAnchor  int        `json:"travel_minutes_from_anchor"`
	TravelMode               string     `json:"travel_mode"`
	TravelCost               int        `json:"travel_cost"`
	DistanceKm               float64    `json:"distance_km"`
	Rating                   *float64   `json:"rating,omitempty"`
	SuggestedStartTime       string     `json:"suggested_start_time"`
	SourceProvider           string     `json:"source_provider"`
	Address                  string     `json:"address,omitempty"`
	DistanceToHomeBaseKm     *float64   `json:"distance_to_home_base_km,omitempty"`
	NearHomeBase             bool       `json:"near_home_base"`
	Score                    float64    `json:"score"`
}

// TimeGap is an idle window between two consecutive scheduled activities.
type TimeGap struct {
	StartMinute          int          `json:"start_minute"`
	EndMinute            int          `json:"end_minute"`
	DurationMinutes      int          `json:"duration_minutes"`
	StartTime            string       `json:"start_time"`
	EndTime              string       `json:"end_time"`
	PrecedingActivity    Activity     `json:"preceding_activity"`
	FollowingActivity    Activity     `json:"following_activity"`
	CandidateSuggestions []Suggestion `json:"candidate_suggestions"`
}

// NearbyOpportunity lists unscheduled points of interest close to an activity.
type NearbyOpportunity struct {
	AnchorActivity       Activity     `json:"anchor_activity"`
	CandidateSuggestions []Suggestion `json:"candidate_suggestions"`
}

type AlertKind string

const (
	AlertOverloaded         AlertKind = "overloaded"
	AlertExcessiveTransport AlertKind = "excessiveTransport"
	AlertMissingCoordinates AlertKind = "missingCoordinates"
	AlertCategoryFatigue    AlertKind = "categoryFatigue"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

// Alert is a heuristic warning about a day's plan.
type Alert struct {
	Kind             AlertKind `json:"kind"`
	Severity         Severity  `json:"severity"`
	Title            string    `json:"title"`
	Message          string    `json:"message"`
	RemediationHints []string  `json:"remediation_hints"`
	Category         string    `json:"category,omitempty"`
	Count            int       `json:"count,omitempty"`
	Hours            float64   `json:"hours,omitempty"`
	Activities       []string  `json:"activities,omitempty"`
}

// FatigueReport summarises category repetition for a day.
type FatigueReport struct {
	HasIssue   bool   `json:"has_issue"`
	Category   string `json:"category,omitempty"`
	Count      int    `json:"count,omitempty"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// DayReport is everything the planner shows for one day.
type DayReport struct {
	DayNumber       int                 `json:"day"`
	Sequence        uint64              `json:"sequence"`
	TotalActivities int                 `json:"total_activities"`
	Gaps            []TimeGap           `json:"gaps"`
	Nearby          []NearbyOpportunity `json:"nearby"`
	Alerts          []Alert             `json:"alerts"`
	Fatigue         FatigueReport       `json:"fatigue"`
	GeneratedAt     time.Time           `json:"generated_at"`
}

// ResolutionStats are cumulative place resolution counters.
type ResolutionStats struct {
	Cached       int64 `json:"cached"`
	LocalCatalog int64 `json:"local_catalog"`
	ProviderA    int64 `json:"provider_a"`
	ProviderB    int64 `json:"provider_b"`
	ProviderC    int64 `json:"provider_c"`
	Failed       int64 `json:"failed"`
	CacheSize    int   `json:"cache_size"`
}

// RepairResult counts the outcome of a batch coordinate repair.
type RepairResult struct {
	Fixed  int `json:"fixed"`
	Failed int `json:"failed"`
}

type InsertionKind string

const (
	InsertAfterGap   InsertionKind = "gap"
	InsertNearAnchor InsertionKind = "nearby"
)

// InsertionContext tells ApplySuggestion where a suggestion came from.
// AnchorActivityID is the gap's preceding activity or the nearby anchor.
type InsertionContext struct {
	Kind             InsertionKind `json:"kind"`
	AnchorActivityID string        `json:"anchor_activity_id,omitempty"`
	AnchorTitle      string        `json:"anchor_title,omitempty"`
	City             string        `json:"city,omitempty"`
}

// SuggestionApplied is published after a suggestion became an activity.
type SuggestionApplied struct {
	EventID   string        `json:"event_id"`
	Day       int           `json:"day"`
	Index     int           `json:"index"`
	Activity  Activity      `json:"activity"`
	Kind      InsertionKind `json:"kind"`
	Timestamp time.Time     `json:"timestamp"`
}

// RepairRequested asks the background repairer to fix missing coordinates.
type RepairRequested struct {
	EventID     string    `json:"event_id"`
	ItineraryID string    `json:"itinerary_id"`
	Timestamp   time.Time `json:"timestamp"`
}

// ItineraryRepaired is published when a batch repair finishes.
type ItineraryRepaired struct {
	EventID     string       `json:"event_id"`
	ItineraryID string       `json:"itinerary_id"`
	Result      RepairResult `json:"result"`
	Timestamp   time.Time    `json:"timestamp"`
}
