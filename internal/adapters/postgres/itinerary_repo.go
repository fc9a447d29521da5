package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/tripgaps/internal/core/domain"
)

// ItineraryRepo implements ports.ItineraryStore. Day-level operations act on
// the planner's active itinerary.
type ItineraryRepo struct {
	db       *DB
	activeID string
}

func NewItineraryRepo(db *DB, activeID string) *ItineraryRepo {
	return &ItineraryRepo{db: db, activeID: activeID}
}

// activityColumns selects one activity row; city is the expression for its city.
func activityColumns(city string) string {
	return `
	a.id, a.title, COALESCE(a.start_time, ''), COALESCE(a.duration_minutes, 0), ` + city + `,
	ST_Y(a.location::geometry), ST_X(a.location::geometry),
	COALESCE(a.category, ''), COALESCE(a.cost, 0), a.rating, COALESCE(a.address, ''), COALESCE(a.source, '')`
}

// dayActivitySQL lists a day's activities. Activities without a city inherit the day's.
var dayActivitySQL = `
	SELECT ` + activityColumns(`COALESCE(NULLIF(a.city, ''), d.city, '')`) + `
	FROM itinerary_activities a
	LEFT JOIN itinerary_days d ON d.itinerary_id = a.itinerary_id AND d.day = a.day
	WHERE a.itinerary_id = $1 AND a.day = $2
	ORDER BY a.position`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanActivity(row rowScanner, extra ...any) (domain.Activity, error) {
	var (
		a        domain.Activity
		lat, lng *float64
	)
	dest := append(extra,
		&a.ID, &a.Title, &a.StartTime, &a.DurationMinutes, &a.City,
		&lat, &lng,
		&a.Category, &a.Cost, &a.Rating, &a.Address, &a.Source,
	)
	if err := row.Scan(dest...); err != nil {
		return domain.Activity{}, err
	}
	if lat != nil && lng != nil {
		a.Coordinate = &domain.Coordinate{Lat: *lat, Lng: *lng}
	}
	return a, nil
}

// GetDayActivities returns the active itinerary's activities for day, in order.
func (r *ItineraryRepo) GetDayActivities(ctx context.Context, day int) ([]domain.Activity, error) {
	rows, err := r.db.Pool.Query(ctx, dayActivitySQL, r.activeID, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	activities := make([]domain.Activity, 0)
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		activities = append(activities, a)
	}
	return activities, rows.Err()
}

// DayCity returns the active itinerary's city for day, or "" when none is set.
func (r *ItineraryRepo) DayCity(ctx context.Context, day int) (string, error) {
	var city string
	err := r.db.Pool.QueryRow(ctx, `
		SELECT COALESCE(city, '') FROM itinerary_days WHERE itinerary_id = $1 AND day = $2
	`, r.activeID, day).Scan(&city)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return city, err
}

// CommitActivity inserts activity at index, shifting later activities down.
func (r *ItineraryRepo) CommitActivity(ctx context.Context, day int, activity domain.Activity, index int) error {
	if activity.ID == "" {
		activity.ID = uuid.NewString()
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `
		INSERT INTO itineraries (id, updated_at) VALUES ($1, now())
		ON CONFLICT (id) DO UPDATE SET updated_at = now()
	`, r.activeID); err != nil {
		return fmt.Errorf("touch itinerary: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE itinerary_activities SET position = position + 1
		WHERE itinerary_id = $1 AND day = $2 AND position >= $3
	`, r.activeID, day, index); err != nil {
		return fmt.Errorf("shift activities: %w", err)
	}
	if _, err := tx.Exec(ctx, insertActivitySQL, activityArgs(r.activeID, day, index, activity)...); err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}

	return tx.Commit(ctx)
}

const insertActivitySQL = `
	INSERT INTO itinerary_activities (
		itinerary_id, day, position, id, title, start_time, duration_minutes, city,
		location, category, cost, rating, address, source
	) VALUES (
		$1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, 0), NULLIF($8, ''),
		CASE WHEN $9::float8 IS NULL THEN NULL
		     ELSE ST_SetSRID(ST_MakePoint($10::float8, $9::float8), 4326)::geography END,
		NULLIF($11, ''), $12, $13, NULLIF($14, ''), NULLIF($15, '')
	)`

func activityArgs(itineraryID string, day, position int, a domain.Activity) []any {
	var lat, lng *float64
	if a.Coordinate != nil {
		lat, lng = &a.Coordinate.Lat, &a.Coordinate.Lng
	}
	return []any{
		itineraryID, day, position, a.ID, a.Title, a.StartTime, a.DurationMinutes, a.City,
		lat, lng, a.Category, a.Cost, a.Rating, a.Address, a.Source,
	}
}

// GetItinerary loads a whole itinerary. Days without activities are kept.
func (r *ItineraryRepo) GetItinerary(ctx context.Context, id string) (*domain.Itinerary, error) {
	it := domain.Itinerary{ID: id}
	err := r.db.Pool.QueryRow(ctx, `SELECT updated_at FROM itineraries WHERE id = $1`, id).Scan(&it.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("itinerary %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	days := make(map[int]*domain.Day)
	dayRows, err := r.db.Pool.Query(ctx, `
		SELECT day, COALESCE(city, '') FROM itinerary_days WHERE itinerary_id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	for dayRows.Next() {
		var d domain.Day
		if err := dayRows.Scan(&d.Number, &d.City); err != nil {
			dayRows.Close()
			return nil, err
		}
		d.Activities = []domain.Activity{}
		days[d.Number] = &d
	}
	dayRows.Close()
	if err := dayRows.Err(); err != nil {
		return nil, err
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT a.day, `+activityColumns(`COALESCE(a.city, '')`)+`
		FROM itinerary_activities a
		WHERE a.itinerary_id = $1
		ORDER BY a.day, a.position
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var day int
		a, err := scanActivity(rows, &day)
		if err != nil {
			return nil, err
		}
		d, ok := days[day]
		if !ok {
			d = &domain.Day{Number: day}
			days[day] = d
		}
		d.Activities = append(d.Activities, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	it.Days = make([]domain.Day, 0, len(days))
	for _, d := range days {
		it.Days = append(it.Days, *d)
	}
	sort.Slice(it.Days, func(i, j int) bool { return it.Days[i].Number < it.Days[j].Number })
	return &it, nil
}

// SaveLocations writes coordinates found by a repair without touching rows that
// were committed or located after the repair loaded the itinerary.
func (r *ItineraryRepo) SaveLocations(ctx context.Context, itineraryID string, located []domain.Activity) (int, error) {
	if len(located) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, a := range located {
		if a.Coordinate == nil {
			continue
		}
		if err := a.Coordinate.Validate(); err != nil {
			return 0, fmt.Errorf("activity %q: %w", a.Title, err)
		}
		batch.Queue(`
			UPDATE itinerary_activities
			SET location = ST_SetSRID(ST_MakePoint($3::float8, $4::float8), 4326)::geography,
			    address = COALESCE(NULLIF(address, ''), NULLIF($5::text, ''))
			WHERE itinerary_id = $1 AND id = $2 AND location IS NULL
		`, itineraryID, a.ID, a.Coordinate.Lng, a.Coordinate.Lat, a.Address)
	}
	if batch.Len() == 0 {
		return 0, nil
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	br := tx.SendBatch(ctx, batch)
	updated := 0
	for i := 0; i < batch.Len(); i++ {
		tag, err := br.Exec()
		if err != nil {
			br.Close()
			return 0, fmt.Errorf("update location: %w", err)
		}
		updated += int(tag.RowsAffected())
	}
	if err := br.Close(); err != nil {
		return 0, err
	}

	if updated > 0 {
		if _, err := tx.Exec(ctx, `UPDATE itineraries SET updated_at = now() WHERE id = $1`, itineraryID); err != nil {
			return 0, fmt.Errorf("touch itinerary: %w", err)
		}
	}
	return updated, tx.Commit(ctx)
}

// SaveItinerary replaces the stored itinerary with it.
func (r *ItineraryRepo) SaveItinerary(ctx context.Context, it *domain.Itinerary) error {
	if it == nil || it.ID == "" {
		return fmt.Errorf("save itinerary: missing id")
	}
	it.UpdatedAt = time.Now().UTC()

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	batch := &pgx.Batch{}
	batch.Queue(`
		INSERT INTO itineraries (id, updated_at) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET updated_at = EXCLUDED.updated_at
	`, it.ID, it.UpdatedAt)
	batch.Queue(`DELETE FROM itinerary_activities WHERE itinerary_id = $1`, it.ID)
	batch.Queue(`DELETE FROM itinerary_days WHERE itinerary_id = $1`, it.ID)
	for _, d := range it.Days {
		batch.Queue(`INSERT INTO itinerary_days (itinerary_id, day, city) VALUES ($1, $2, NULLIF($3, ''))`, it.ID, d.Number, d.City)
		for i := range d.Activities {
			if d.Activities[i].ID == "" {
				d.Activities[i].ID = uuid.NewString()
			}
			batch.Queue(insertActivitySQL, activityArgs(it.ID, d.Number, i, d.Activities[i])...)
		}
	}

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("batch exec: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
