package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/samirrijal/tripgaps/internal/core/domain"
	"github.com/samirrijal/tripgaps/internal/core/ports"
	"github.com/samirrijal/tripgaps/internal/pkg/geospatial"
	"github.com/samirrijal/tripgaps/internal/pkg/metrics"
	"github.com/samirrijal/tripgaps/internal/pkg/telemetry"
)

// DetectorConfig holds the gap and neighborhood search thresholds.
type DetectorConfig struct {
	DefaultCity             string
	MinGapMinutes           int
	MaxGapMinutes           int
	GapRadiusKm             float64
	NearbyRadiusKm          float64
	BufferMinutes           int
	MaxPerGap               int
	MaxNearby               int
	PoolFactor              int
	DefaultActivityMinutes  int
	DefaultCandidateMinutes int
	DefaultRating           float64
	HomeBaseRadiusKm        float64
	HomeBaseBonus           float64
	HomeBaseCloseKm         float64
	HomeBaseCloseBonus      float64
	ShortGapMinutes         int
	ShortGapTypes           []string
	LongGapTypes            []string
	NearbyTypes             []string
	Transport               geospatial.TransportConfig
}

// DefaultDetectorConfig returns the stock thresholds.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		DefaultCity:             "Tokyo",
		MinGapMinutes:           45,
		MaxGapMinutes:           300,
		GapRadiusKm:             2.0,
		NearbyRadiusKm:          1.5,
		BufferMinutes:           15,
		MaxPerGap:               10,
		MaxNearby:               8,
		PoolFactor:              3,
		DefaultActivityMinutes:  90,
		DefaultCandidateMinutes: 60,
		DefaultRating:           4,
		HomeBaseRadiusKm:        1.0,
		HomeBaseBonus:           20,
		HomeBaseCloseKm:         0.5,
		HomeBaseCloseBonus:      10,
		ShortGapMinutes:         90,
		ShortGapTypes:           []string{"coffee_shop", "bakery", "convenience_store"},
		LongGapTypes:            []string{"tourist_attraction", "museum", "park", "shopping_mall", "japanese_restaurant", "ramen_restaurant"},
		NearbyTypes:             []string{"tourist_attraction", "museum", "park", "cafe", "restaurant"},
		Transport:               geospatial.DefaultTransportConfig(),
	}
}

// GapDetector finds idle windows and nearby opportunities in a day and fills
// them with candidates from the local catalog and the nearby-search provider.
type GapDetector struct {
	cfg     DetectorConfig
	catalog ports.PlaceCatalog
	nearby  ports.NearbySearcher
	homes   ports.HomeBaseResolver
	days    ports.DayCityResolver
	logger  *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// DetectorOption customises a GapDetector.
type DetectorOption func(*GapDetector)

// WithNearbySearcher adds an external nearby-search provider.
func WithNearbySearcher(n ports.NearbySearcher) DetectorOption {
	return func(d *GapDetector) { d.nearby = n }
}

// WithHomeBases enables the lodging proximity bonus.
func WithHomeBases(h ports.HomeBaseResolver) DetectorOption {
	return func(d *GapDetector) { d.homes = h }
}

// WithDayCities lets activities without a city inherit their day's city.
func WithDayCities(r ports.DayCityResolver) DetectorOption {
	return func(d *GapDetector) { d.days = r }
}

// WithRand fixes the PRNG used to shuffle the gap candidate pool.
func WithRand(rng *rand.Rand) DetectorOption {
	return func(d *GapDetector) { d.rng = rng }
}

func NewGapDetector(catalog ports.PlaceCatalog, cfg DetectorConfig, logger *slog.Logger, opts ...DetectorOption) *GapDetector {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Transport.Tiers) == 0 {
		cfg.Transport = geospatial.DefaultTransportConfig()
	}
	d := &GapDetector{cfg: cfg, catalog: catalog, logger: logger}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// slot is a timed activity placed on the day's timeline.
type slot struct {
	activity   domain.Activity
	start, end int
}

// DetectGaps returns every actionable idle window between consecutive timed
// activities, each with candidates that fit inside it. Activities without a
// usable start time are skipped. Only invalid geometry is returned as an error.
func (d *GapDetector) DetectGaps(ctx context.Context, day int, activities []domain.Activity) ([]domain.TimeGap, error) {
	ctx, span := telemetry.Tracer("detector").Start(ctx, "GapDetector.DetectGaps", trace.WithAttributes(
		attribute.Int("day", day),
		attribute.Int("activities", len(activities)),
	))
	defer span.End()

	timeline := d.timeline(ctx, day, activities)
	excluded := scheduledKeys(activities)
	lookups := d.newLookups(day)

	gaps := make([]domain.TimeGap, 0)
	for i := 0; i+1 < len(timeline); i++ {
		cur, next := timeline[i], timeline[i+1]
		gapMinutes := next.start - cur.end
		if gapMinutes < d.cfg.MinGapMinutes || gapMinutes > d.cfg.MaxGapMinutes {
			continue
		}

		gap := domain.TimeGap{
			StartMinute:          cur.end,
			EndMinute:            next.start,
			DurationMinutes:      gapMinutes,
			StartTime:            domain.FormatClock(cur.end),
			EndTime:              domain.FormatClock(next.start),
			PrecedingActivity:    cur.activity,
			FollowingActivity:    next.activity,
			CandidateSuggestions: []domain.Suggestion{},
		}
		if cur.activity.Coordinate != nil {
			suggestions, err := d.gapSuggestions(ctx, lookups, cur, gapMinutes, excluded)
			if err != nil {
				span.RecordError(err)
				return nil, err
			}
			gap.CandidateSuggestions = suggestions
		}
		metrics.SuggestionsEmitted.WithLabelValues("gap").Observe(float64(len(gap.CandidateSuggestions)))
		gaps = append(gaps, gap)
	}

	span.SetAttributes(attribute.Int("gaps", len(gaps)))
	return gaps, nil
}

// DetectNearby returns, for each activity with a coordinate, the unscheduled
// points of interest within the neighborhood radius ranked by score.
func (d *GapDetector) DetectNearby(ctx context.Context, day int, activities []domain.Activity) ([]domain.NearbyOpportunity, error) {
	ctx, span := telemetry.Tracer("detector").Start(ctx, "GapDetector.DetectNearby", trace.WithAttributes(
		attribute.Int("day", day),
	))
	defer span.End()

	excluded := scheduledKeys(activities)
	lookups := d.newLookups(day)

	opportunities := make([]domain.NearbyOpportunity, 0)
	for _, a := range activities {
		if a.Coordinate == nil {
			continue
		}
		if err := a.Coordinate.Validate(); err != nil {
			return nil, fmt.Errorf("activity %q: %w", a.Title, err)
		}

		candidates, err := d.gather(ctx, lookups, *a.Coordinate, lookups.cityFor(ctx, a), d.cfg.NearbyRadiusKm, d.cfg.NearbyTypes, excluded, true)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		if len(candidates) == 0 {
			continue
		}

		anchorEnd := -1
		if start, err := domain.ParseClock(a.StartTime); err == nil {
			anchorEnd = start + d.durationOf(a)
		}
		for i := range candidates {
			if anchorEnd >= 0 {
				candidates[i].SuggestedStartTime = domain.FormatClock(anchorEnd + candidates[i].TravelMinutesFromAnchor)
			}
		}

		rank(candidates)
		if len(candidates) > d.cfg.MaxNearby {
			candidates = candidates[:d.cfg.MaxNearby]
		}
		metrics.SuggestionsEmitted.WithLabelValues("nearby").Observe(float64(len(candidates)))
		opportunities = append(opportunities, domain.NearbyOpportunity{
			AnchorActivity:       a,
			CandidateSuggestions: candidates,
		})
	}
	return opportunities, nil
}

func (d *GapDetector) timeline(ctx context.Context, day int, activities []domain.Activity) []slot {
	timeline := make([]slot, 0, len(activities))
	for _, a := range activities {
		if a.StartTime == "" {
			continue
		}
		start, err := domain.ParseClock(a.StartTime)
		if err != nil {
			d.logger.DebugContext(ctx, "activity skipped for gap detection",
				slog.Int("day", day), slog.String("activity", a.Title), slog.Any("error", err))
			continue
		}
		timeline = append(timeline, slot{activity: a, start: start, end: start + d.durationOf(a)})
	}
	sort.SliceStable(timeline, func(i, j int) bool { return timeline[i].start < timeline[j].start })
	return timeline
}

func (d *GapDetector) gapSuggestions(ctx context.Context, lk *lookups, cur slot, gapMinutes int, excluded map[string]bool) ([]domain.Suggestion, error) {
	types := d.cfg.LongGapTypes
	if gapMinutes < d.cfg.ShortGapMinutes {
		types = d.cfg.ShortGapTypes
	}

	candidates, err := d.gather(ctx, lk, *cur.activity.Coordinate, lk.cityFor(ctx, cur.activity), d.cfg.GapRadiusKm, types, excluded, false)
	if err != nil {
		return nil, err
	}

	fits := candidates[:0]
	for _, s := range candidates {
		if s.EstimatedDurationMinutes+s.TravelMinutesFromAnchor+d.cfg.BufferMinutes > gapMinutes {
			continue
		}
		s.SuggestedStartTime = domain.FormatClock(cur.end + s.TravelMinutesFromAnchor)
		fits = append(fits, s)
	}

	rank(fits)
	pool := fits
	if limit := d.cfg.MaxPerGap * d.cfg.PoolFactor; len(pool) > limit {
		pool = pool[:limit]
	}
	d.shuffle(pool)
	if len(pool) > d.cfg.MaxPerGap {
		pool = pool[:d.cfg.MaxPerGap]
	}
	return pool, nil
}

// gather collects catalog and provider candidates within radiusKm of anchor.
// The two sources are queried concurrently and each failure only removes that
// source's contribution.
func (d *GapDetector) gather(ctx context.Context, lk *lookups, anchor domain.Coordinate, city string, radiusKm float64, types []string, excluded map[string]bool, skipSamePoint bool) ([]domain.Suggestion, error) {
	if err := anchor.Validate(); err != nil {
		return nil, err
	}

	var (
		entries []domain.CatalogEntry
		places  []domain.Place
		home    *domain.HomeBase
		g       errgroup.Group
	)
	g.Go(func() error {
		entries = lk.catalog(ctx, city)
		return nil
	})
	g.Go(func() error {
		home = lk.homeBase(ctx, city)
		return nil
	})
	if d.nearby != nil {
		g.Go(func() error {
			p, err := d.nearby.SearchNearby(ctx, anchor, int(radiusKm*1000), types)
			if err != nil {
				d.logger.WarnContext(ctx, "nearby search failed", slog.String("city", city), slog.Any("error", err))
				return nil
			}
			places = p
			return nil
		})
	}
	_ = g.Wait()

	var homeCoord *domain.Coordinate
	if home != nil {
		if err := home.Coordinate.Validate(); err != nil {
			return nil, fmt.Errorf("home base %q: %w", home.Name, err)
		}
		homeCoord = &home.Coordinate
	}

	seen := make(map[string]bool)
	out := make([]domain.Suggestion, 0)
	accept := func(name, id string, coord domain.Coordinate) (float64, bool) {
		key := normalizeName(name)
		if key == "" || seen[key] || excluded[key] || (id != "" && excluded[id]) {
			return 0, false
		}
		dist, _ := geospatial.DistanceKm(anchor, coord)
		if dist > radiusKm || (skipSamePoint && dist == 0) {
			return 0, false
		}
		seen[key] = true
		return dist, true
	}

	for _, e := range entries {
		if e.Coordinate == nil {
			continue
		}
		if err := e.Coordinate.Validate(); err != nil {
			return nil, fmt.Errorf("catalog entry %q: %w", e.Name, err)
		}
		dist, ok := accept(e.Name, e.ID, *e.Coordinate)
		if !ok {
			continue
		}
		out = append(out, d.suggestion(candidate{
			id:       e.ID,
			name:     e.Name,
			category: e.Category,
			source:   domain.SourceLocalCatalog,
			address:  e.Address,
			coord:    *e.Coordinate,
			rating:   e.Rating,
			cost:     e.Cost,
			duration: e.Duration(d.cfg.DefaultCandidateMinutes),
		}, dist, homeCoord))
	}

	for _, p := range places {
		if err := p.Coordinate.Validate(); err != nil {
			d.logger.WarnContext(ctx, "nearby place with unusable geometry", slog.String("place", p.Name), slog.Any("error", err))
			continue
		}
		dist, ok := accept(p.Name, p.ID, p.Coordinate)
		if !ok {
			continue
		}
		out = append(out, d.suggestion(candidate{
			id:       p.ID,
			name:     p.Name,
			category: p.Category,
			source:   domain.SourceNearbySearch,
			address:  p.Address,
			coord:    p.Coordinate,
			rating:   p.Rating,
			duration: d.cfg.DefaultCandidateMinutes,
		}, dist, homeCoord))
	}
	return out, nil
}

type candidate struct {
	id, name, category, source, address string
	coord                               domain.Coordinate
	rating                              *float64
	cost                                float64
	duration                            int
}

func (d *GapDetector) suggestion(c candidate, distKm float64, home *domain.Coordinate) domain.Suggestion {
	est := d.cfg.Transport.Estimate(distKm)
	s := domain.Suggestion{
		ID:                       c.id,
		Name:                     c.name,
		Coordinate:               c.coord,
		Category:                 c.category,
		EstimatedCost:            c.cost,
		EstimatedDurationMinutes: c.duration,
		TravelMinutesFromAnchor:  est.Minutes,
		TravelMode:               est.Mode,
		TravelCost:               est.Cost,
		DistanceKm:               geospatial.RoundKm(distKm),
		Rating:                   c.rating,
		SourceProvider:           c.source,
		Address:                  c.address,
	}

	var homeKm *float64
	if home != nil {
		hk, _ := geospatial.DistanceKm(c.coord, *home)
		rounded := geospatial.RoundKm(hk)
		s.DistanceToHomeBaseKm = &rounded
		s.NearHomeBase = hk < d.cfg.HomeBaseRadiusKm
		homeKm = &hk
	}
	s.Score = d.score(c.rating, distKm, homeKm)
	return s
}

// score is rating*10 - distance*5 plus the lodging proximity bonuses.
func (d *GapDetector) score(rating *float64, distKm float64, homeKm *float64) float64 {
	r := d.cfg.DefaultRating
	if rating != nil && *rating > 0 {
		r = *rating
	}
	s := r*10 - distKm*5
	if homeKm != nil {
		if *homeKm < d.cfg.HomeBaseRadiusKm {
			s += d.cfg.HomeBaseBonus
		}
		if *homeKm < d.cfg.HomeBaseCloseKm {
			s += d.cfg.HomeBaseCloseBonus
		}
	}
	return s
}

func (d *GapDetector) shuffle(s []domain.Suggestion) {
	swap := func(i, j int) { s[i], s[j] = s[j], s[i] }
	if d.rng == nil {
		rand.Shuffle(len(s), swap)
		return
	}
	d.mu.Lock()
	d.rng.Shuffle(len(s), swap)
	d.mu.Unlock()
}

func (d *GapDetector) durationOf(a domain.Activity) int {
	if a.DurationMinutes > 0 {
		return a.DurationMinutes
	}
	return d.cfg.DefaultActivityMinutes
}


// rank orders by score, highest first, breaking ties by name.
func rank(s []domain.Suggestion) {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].Score != s[j].Score {
			return s[i].Score > s[j].Score
		}
		return s[i].Name < s[j].Name
	})
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// scheduledKeys indexes a day's activities by id and normalised title.
func scheduledKeys(activities []domain.Activity) map[string]bool {
	keys := make(map[string]bool, 2*len(activities))
	for _, a := range activities {
		if a.ID != "" {
			keys[a.ID] = true
		}
		if t := normalizeName(a.Title); t != "" {
			keys[t] = true
		}
	}
	return keys
}

// lookups memoises catalog and lodging lookups for the duration of one detection run.
type lookups struct {
	d   *GapDetector
	day int

	dayCityOnce sync.Once
	dayCity     string

	mu       sync.Mutex
	catalogs map[string][]domain.CatalogEntry
	homes    map[string]*domain.HomeBase
}

// cityFor picks the activity's own city, then the day's, then the default.
func (lk *lookups) cityFor(ctx context.Context, a domain.Activity) string {
	if a.City != "" {
		return a.City
	}
	lk.dayCityOnce.Do(func() {
		if lk.d.days == nil {
			return
		}
		city, err := lk.d.days.DayCity(ctx, lk.day)
		if err != nil {
			lk.d.logger.WarnContext(ctx, "day city lookup failed", slog.Int("day", lk.day), slog.Any("error", err))
			return
		}
		lk.dayCity = city
	})
	if lk.dayCity != "" {
		return lk.dayCity
	}
	return lk.d.cfg.DefaultCity
}

func (d *GapDetector) newLookups(day int) *lookups {
	return &lookups{
		d:        d,
		day:      day,
		catalogs: make(map[string][]domain.CatalogEntry),
		homes:    make(map[string]*domain.HomeBase),
	}
}

func (lk *lookups) catalog(ctx context.Context, city string) []domain.CatalogEntry {
	key := strings.ToLower(city)
	lk.mu.Lock()
	entries, ok := lk.catalogs[key]
	lk.mu.Unlock()
	if ok || lk.d.catalog == nil {
		return entries
	}

	entries, err := lk.d.catalog.LookupByCity(ctx, city)
	if err != nil {
		lk.d.logger.WarnContext(ctx, "catalog lookup failed", slog.String("city", city), slog.Any("error", err))
		entries = nil
	}
	lk.mu.Lock()
	lk.catalogs[key] = entries
	lk.mu.Unlock()
	return entries
}

func (lk *lookups) homeBase(ctx context.Context, city string) *domain.HomeBase {
	if lk.d.homes == nil {
		return nil
	}
	key := strings.ToLower(city)
	lk.mu.Lock()
	home, ok := lk.homes[key]
	lk.mu.Unlock()
	if ok {
		return home
	}

	home, err := lk.d.homes.HomeBaseForCity(ctx, city, lk.day)
	if err != nil {
		lk.d.logger.WarnContext(ctx, "home base lookup failed", slog.String("city", city), slog.Any("error", err))
		home = nil
	}
	lk.mu.Lock()
	lk.homes[key] = home
	lk.mu.Unlock()
	return home
}
