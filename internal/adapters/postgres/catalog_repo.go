package postgres

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/samirrijal/tripgaps/internal/core/domain"
)

// CatalogFilter narrows a catalog query. Zero fields are ignored.
type CatalogFilter struct {
	City     string
	Category string
	Bounds   *domain.Bounds
	Limit    uint64
}

// CatalogRepo implements ports.PlaceCatalog over the catalog_places table.
type CatalogRepo struct {
	db *DB
}

func NewCatalogRepo(db *DB) *CatalogRepo {
	return &CatalogRepo{db: db}
}

// LookupByCity returns every entry whose city overlaps city in either
// direction, so "Tokyo" also matches "Tokyo - Shinjuku". An empty city
// returns the whole catalog.
func (r *CatalogRepo) LookupByCity(ctx context.Context, city string) ([]domain.CatalogEntry, error) {
	return r.Query(ctx, CatalogFilter{City: city})
}

// Query runs a filtered catalog lookup.
func (r *CatalogRepo) Query(ctx context.Context, f CatalogFilter) ([]domain.CatalogEntry, error) {
	query, args, err := catalogQuery(f).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build catalog query: %w", err)
	}

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.CatalogEntry
	for rows.Next() {
		var (
			e        domain.CatalogEntry
			lat, lng *float64
		)
		if err := rows.Scan(
			&e.ID, &e.Name, &e.City, &lat, &lng,
			&e.Category, &e.Cost, &e.DurationMinutes, &e.DurationLabel, &e.Rating, &e.Address,
		); err != nil {
			return nil, err
		}
		if lat != nil && lng != nil {
			e.Coordinate = &domain.Coordinate{Lat: *lat, Lng: *lng}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func catalogQuery(f CatalogFilter) sq.SelectBuilder {
	q := psql.Select(
		"id", "name", "city",
		"ST_Y(location::geometry)", "ST_X(location::geometry)",
		"category", "COALESCE(cost, 0)", "COALESCE(duration_minutes, 0)",
		"COALESCE(duration_label, '')", "rating", "COALESCE(address, '')",
	).From("catalog_places")

	if city := strings.TrimSpace(f.City); city != "" {
		// An empty city would match every query through the reverse LIKE.
		q = q.Where(sq.And{
			sq.Expr("city <> ''"),
			sq.Or{
				sq.Expr("lower(city) LIKE '%' || lower(?) || '%'", city),
				sq.Expr("lower(?) LIKE '%' || lower(city) || '%'", city),
			},
		})
	}
	if f.Category != "" {
		q = q.Where(sq.Expr("lower(category) = lower(?)", f.Category))
	}
	if b := f.Bounds; b != nil {
		q = q.Where(sq.Expr("location::geometry && ST_MakeEnvelope(?, ?, ?, ?, 4326)", b.MinLng, b.MinLat, b.MaxLng, b.MaxLat))
	}
	q = q.OrderBy("name")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	return q
}

// UpsertBatch inserts or updates catalog entries keyed by (city, name).
func (r *CatalogRepo) UpsertBatch(ctx context.Context, entries []domain.CatalogEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	q := psql.Insert("catalog_places").Columns(
		"name", "city", "location", "category", "cost", "duration_minutes", "duration_label", "rating", "address",
	)
	for _, e := range entries {
		location := sq.Expr("NULL")
		if e.Coordinate != nil {
			if err := e.Coordinate.Validate(); err != nil {
				return 0, fmt.Errorf("catalog entry %q: %w", e.Name, err)
			}
			location = sq.Expr("ST_SetSRID(ST_MakePoint(?, ?), 4326)::geography", e.Coordinate.Lng, e.Coordinate.Lat)
		}
		q = q.Values(e.Name, e.City, location, e.Category, e.Cost, e.DurationMinutes, e.DurationLabel, e.Rating, e.Address)
	}
	q = q.Suffix(`ON CONFLICT (city, name) DO UPDATE
		SET location = EXCLUDED.location, category = EXCLUDED.category, cost = EXCLUDED.cost,
		    duration_minutes = EXCLUDED.duration_minutes, duration_label = EXCLUDED.duration_label,
		    rating = EXCLUDED.rating, address = EXCLUDED.address`)

	query, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build catalog upsert: %w", err)
	}
	tag, err := r.db.Pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
