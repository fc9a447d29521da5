package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/samirrijal/tripgaps/internal/core/domain"
	"github.com/samirrijal/tripgaps/internal/core/ports"
	"github.com/samirrijal/tripgaps/internal/pkg/metrics"
)

const (
	defaultSuggestionStart    = "12:00"
	defaultSuggestionDuration = 60
	defaultSuggestionCategory = "attraction"
)

// SuggestionService assembles day reports and turns suggestions into activities.
type SuggestionService struct {
	store     ports.ItineraryStore
	detector  *GapDetector
	alerts    *AlertsEngine
	publisher ports.EventPublisher
	logger    *slog.Logger
	sequence  atomic.Uint64
	now       func() time.Time
}

// NewSuggestionService creates a new SuggestionService. publisher may be nil.
func NewSuggestionService(store ports.ItineraryStore, detector *GapDetector, alerts *AlertsEngine, publisher ports.EventPublisher, logger *slog.Logger) *SuggestionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SuggestionService{
		store:     store,
		detector:  detector,
		alerts:    alerts,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// BuildDayReport runs gap, neighborhood and alert detection for one day.
// Every report carries a larger Sequence than the previous one so callers can
// drop stale results when refreshes complete out of order.
func (s *SuggestionService) BuildDayReport(ctx context.Context, day int) (*domain.DayReport, error) {
	l := s.logger.With(slog.String("method", "BuildDayReport"), slog.Int("day", day))

	activities, err := s.store.GetDayActivities(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("load day %d: %w", day, err)
	}

	report := &domain.DayReport{
		DayNumber:       day,
		Sequence:        s.sequence.Add(1),
		TotalActivities: len(activities),
		Gaps:            []domain.TimeGap{},
		Nearby:          []domain.NearbyOpportunity{},
	}

	if report.Gaps, err = s.detector.DetectGaps(ctx, day, activities); err != nil {
		return nil, err
	}
	if report.Nearby, err = s.detector.DetectNearby(ctx, day, activities); err != nil {
		return nil, err
	}
	if report.Alerts, err = s.alerts.Evaluate(activities); err != nil {
		return nil, err
	}
	report.Fatigue = s.alerts.Fatigue(activities)
	report.GeneratedAt = s.now().UTC()

	l.InfoContext(ctx, "day report built",
		slog.Int("activities", len(activities)),
		slog.Int("gaps", len(report.Gaps)),
		slog.Int("nearby", len(report.Nearby)),
		slog.Int("alerts", len(report.Alerts)),
	)
	return report, nil
}

// CommitSuggestion applies a suggestion to the stored day, persists the new
// activity and announces it.
func (s *SuggestionService) CommitSuggestion(ctx context.Context, day int, suggestion domain.Suggestion, ic domain.InsertionContext) (*domain.Activity, error) {
	l := s.logger.With(slog.String("method", "CommitSuggestion"), slog.Int("day", day))

	activities, err := s.store.GetDayActivities(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("load day %d: %w", day, err)
	}

	_, activity, index, err := ApplySuggestion(activities, suggestion, ic)
	if err != nil {
		return nil, err
	}
	if err := s.store.CommitActivity(ctx, day, activity, index); err != nil {
		return nil, fmt.Errorf("commit activity: %w", err)
	}
	metrics.SuggestionsApplied.WithLabelValues(string(ic.Kind)).Inc()

	if s.publisher != nil {
		event := &domain.SuggestionApplied{
			EventID:   uuid.NewString(),
			Day:       day,
			Index:     index,
			Activity:  activity,
			Kind:      ic.Kind,
			Timestamp: s.now().UTC(),
		}
		if err := s.publisher.PublishSuggestionApplied(ctx, event); err != nil {
			l.WarnContext(ctx, "publish suggestion applied", slog.Any("error", err))
		}
	}

	l.InfoContext(ctx, "suggestion applied", slog.String("activity", activity.Title), slog.Int("index", index))
	return &activity, nil
}

// ApplySuggestion converts a suggestion into a new activity and splices it
// into activities right after the anchor activity. Without an anchor the
// activity is appended. The input slice is not modified.
func ApplySuggestion(activities []domain.Activity, suggestion domain.Suggestion, ic domain.InsertionContext) ([]domain.Activity, domain.Activity, int, error) {
	if strings.TrimSpace(suggestion.Name) == "" {
		return nil, domain.Activity{}, 0, fmt.Errorf("suggestion has no name")
	}
	if err := suggestion.Coordinate.Validate(); err != nil {
		return nil, domain.Activity{}, 0, err
	}

	activity := NewActivityFromSuggestion(suggestion, ic.City)

	index := len(activities)
	if ic.AnchorActivityID != "" || ic.AnchorTitle != "" {
		anchor := findAnchor(activities, ic)
		if anchor < 0 {
			return nil, domain.Activity{}, 0, fmt.Errorf("%w: %s", domain.ErrAnchorNotFound, anchorLabel(ic))
		}
		index = anchor + 1
	}

	updated := make([]domain.Activity, 0, len(activities)+1)
	updated = append(updated, activities[:index]...)
	updated = append(updated, activity)
	updated = append(updated, activities[index:]...)
	return updated, activity, index, nil
}

// NewActivityFromSuggestion fills the defaults a suggestion may lack.
func NewActivityFromSuggestion(s domain.Suggestion, city string) domain.Activity {
	start := s.SuggestedStartTime
	if start == "" {
		start = defaultSuggestionStart
	}
	duration := s.EstimatedDurationMinutes
	if duration <= 0 {
		duration = defaultSuggestionDuration
	}
	category := s.Category
	if category == "" {
		category = defaultSuggestionCategory
	}
	coord := s.Coordinate
	return domain.Activity{
		ID:              uuid.NewString(),
		Title:           s.Name,
		StartTime:       start,
		DurationMinutes: duration,
		City:            city,
		Coordinate:      &coord,
		Category:        category,
		Cost:            s.EstimatedCost,
		Rating:          s.Rating,
		Address:         s.Address,
		Source:          s.SourceProvider,
	}
}

func findAnchor(activities []domain.Activity, ic domain.InsertionContext) int {
	if ic.AnchorActivityID != "" {
		for i, a := range activities {
			if a.ID == ic.AnchorActivityID {
				return i
			}
		}
	}
	if ic.AnchorTitle != "" {
		for i, a := range activities {
			if strings.EqualFold(a.Title, ic.AnchorTitle) {
				return i
			}
		}
	}
	return -1
}

func anchorLabel(ic domain.InsertionContext) string {
	if ic.AnchorActivityID != "" {
		return ic.AnchorActivityID
	}
	return ic.AnchorTitle
}
