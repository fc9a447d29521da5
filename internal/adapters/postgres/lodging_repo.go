package postgres

import (
	"context"
	"strings"

	"github.com/samirrijal/tripgaps/internal/core/domain"
)

// LodgingRepo implements ports.HomeBaseResolver over the active itinerary's lodgings.
type LodgingRepo struct {
	db       *DB
	activeID string
}

func NewLodgingRepo(db *DB, activeID string) *LodgingRepo {
	return &LodgingRepo{db: db, activeID: activeID}
}

// HomeBaseForCity returns the lodging to score suggestions against, or nil.
func (r *LodgingRepo) HomeBaseForCity(ctx context.Context, city string, day int) (*domain.HomeBase, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return nil, nil
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT name, city, ST_Y(location::geometry), ST_X(location::geometry),
		       COALESCE(from_day, 0), COALESCE(to_day, 0)
		FROM lodgings
		WHERE itinerary_id = $1 AND lower(city) LIKE lower($2) || '%'
		ORDER BY id
	`, r.activeID, city)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []domain.HomeBase
	for rows.Next() {
		var h domain.HomeBase
		if err := rows.Scan(&h.Name, &h.City, &h.Coordinate.Lat, &h.Coordinate.Lng, &h.FromDay, &h.ToDay); err != nil {
			return nil, err
		}
		candidates = append(candidates, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return pickHomeBase(candidates, city, day), nil
}

// pickHomeBase prefers, in order: same city with a day range covering day,
// same city with no range, then a city that merely starts with city.
// Day 0 ignores ranges.
func pickHomeBase(candidates []domain.HomeBase, city string, day int) *domain.HomeBase {
	var unranged, prefixed *domain.HomeBase
	for i := range candidates {
		h := &candidates[i]
		exact := strings.EqualFold(strings.TrimSpace(h.City), city)
		ranged := h.FromDay > 0
		switch {
		case exact && ranged && (day == 0 || covers(*h, day)):
			return h
		case exact && !ranged:
			if unranged == nil {
				unranged = h
			}
		case !exact && strings.HasPrefix(strings.ToLower(h.City), strings.ToLower(city)):
			if prefixed == nil && (!ranged || day == 0 || covers(*h, day)) {
				prefixed = h
			}
		}
	}
	if unranged != nil {
		return unranged
	}
	return prefixed
}

func covers(h domain.HomeBase, day int) bool {
	to := h.ToDay
	if to == 0 {
		to = h.FromDay
	}
	return day >= h.FromDay && day <= to
}

// Upsert stores a lodging for the active itinerary.
func (r *LodgingRepo) Upsert(ctx context.Context, h domain.HomeBase) error {
	if err := h.Coordinate.Validate(); err != nil {
		return err
	}
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO lodgings (itinerary_id, name, city, location, from_day, to_day)
		VALUES ($1, $2, $3, ST_SetSRID(ST_MakePoint($4, $5), 4326)::geography, NULLIF($6, 0), NULLIF($7, 0))
		ON CONFLICT (itinerary_id, name, city) DO UPDATE
		SET location = EXCLUDED.location, from_day = EXCLUDED.from_day, to_day = EXCLUDED.to_day
	`, r.activeID, h.Name, h.City, h.Coordinate.Lng, h.Coordinate.Lat, h.FromDay, h.ToDay)
	return err
}
