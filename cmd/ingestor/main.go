package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/samirrijal/tripgaps/internal/adapters/memory"
	"github.com/samirrijal/tripgaps/internal/adapters/postgres"
	"github.com/samirrijal/tripgaps/internal/app"
	"github.com/samirrijal/tripgaps/internal/core/domain"
	"github.com/samirrijal/tripgaps/internal/pkg/config"
	"github.com/samirrijal/tripgaps/internal/pkg/logging"
)

const batchSize = 500

func main() {
	geocode := flag.Bool("geocode", false, "resolve places without a coordinate through the configured providers")
	itineraryPath := flag.String("itinerary", "", "replace the stored itinerary with the one in this JSON file and exit")
	flag.Parse()

	cfg, err := config.Load("tripgaps-ingestor")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format, "tripgaps-ingestor")

	if *itineraryPath != "" {
		importItinerary(cfg, *itineraryPath, logger)
		return
	}

	paths := flag.Args()
	if len(paths) == 0 {
		paths = []string{cfg.Catalog.Path}
	}

	var entries []domain.CatalogEntry
	for _, p := range paths {
		f, err := memory.ReadCatalogFile(p)
		if err != nil {
			log.Fatalf("%v", err)
		}
		logger.Info("catalog file read", "path", p, "places", len(f.Places))
		entries = append(entries, f.Places...)
	}
	entries = dedupe(entries)

	ctx := context.Background()

	if *geocode {
		chain, _ := app.Providers(cfg.Providers)
		resolver := app.Resolver(cfg, memory.NewCatalog(nil), chain, nil, logger)
		limiter := rate.NewLimiter(rate.Every(cfg.Resolver.BatchDelay()), 1)
		n, err := fillCoordinates(ctx, entries, resolver.Resolve, limiter, logger)
		if err != nil {
			log.Fatalf("geocode: %v", err)
		}
		logger.Info("catalog places geocoded", "filled", n)
	}

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	repo := postgres.NewCatalogRepo(db)
	start := time.Now()
	total := 0
	for i := 0; i < len(entries); i += batchSize {
		end := min(i+batchSize, len(entries))
		n, err := repo.UpsertBatch(ctx, entries[i:end])
		if err != nil {
			log.Fatalf("upsert batch %d-%d: %v", i, end, err)
		}
		total += n
	}

	for _, line := range cityCounts(entries) {
		fmt.Println(line)
	}
	logger.Info("catalog ingested",
		"places", len(entries),
		"rows", total,
		"duration", time.Since(start),
	)
}

// dedupe keeps the last entry for each city and name. Postgres refuses an
// upsert that touches the same conflict key twice.
func dedupe(entries []domain.CatalogEntry) []domain.CatalogEntry {
	index := make(map[string]int, len(entries))
	out := make([]domain.CatalogEntry, 0, len(entries))
	for _, e := range entries {
		key := strings.ToLower(strings.TrimSpace(e.City)) + "\x00" + strings.ToLower(strings.TrimSpace(e.Name))
		if i, ok := index[key]; ok {
			out[i] = e
			continue
		}
		index[key] = len(out)
		out = append(out, e)
	}
	return out
}

func importItinerary(cfg *config.Config, path string, logger *slog.Logger) {
	it, err := readItinerary(path)
	if err != nil {
		log.Fatalf("%v", err)
	}

	ctx := context.Background()
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	if err := postgres.NewItineraryRepo(db, it.ID).SaveItinerary(ctx, it); err != nil {
		log.Fatalf("save itinerary: %v", err)
	}
	activities := 0
	for _, d := range it.Days {
		activities += len(d.Activities)
	}
	logger.Info("itinerary imported", "id", it.ID, "days", len(it.Days), "activities", activities)
}

// readItinerary decodes an itinerary file. Day numbers must be positive and
// unique, and any coordinate present must be valid.
func readItinerary(path string) (*domain.Itinerary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read itinerary %s: %w", path, err)
	}
	var it domain.Itinerary
	if err := json.Unmarshal(data, &it); err != nil {
		return nil, fmt.Errorf("parse itinerary %s: %w", path, err)
	}
	if strings.TrimSpace(it.ID) == "" {
		return nil, fmt.Errorf("itinerary %s: missing id", path)
	}

	seen := make(map[int]bool, len(it.Days))
	for _, d := range it.Days {
		if d.Number <= 0 || seen[d.Number] {
			return nil, fmt.Errorf("itinerary %s: bad or repeated day number %d", path, d.Number)
		}
		seen[d.Number] = true
		for _, a := range d.Activities {
			if a.Coordinate == nil {
				continue
			}
			if err := a.Coordinate.Validate(); err != nil {
				return nil, fmt.Errorf("itinerary %s: day %d %q: %w", path, d.Number, a.Title, err)
			}
		}
	}
	return &it, nil
}

type resolveFunc func(ctx context.Context, query string, rc domain.ResolveContext) (*domain.ResolvedPlace, error)

// fillCoordinates geocodes entries that have no coordinate, waiting on limiter
// before each lookup. Failures are logged and the entry is stored without one.
func fillCoordinates(ctx context.Context, entries []domain.CatalogEntry, resolve resolveFunc, limiter *rate.Limiter, logger *slog.Logger) (int, error) {
	filled := 0
	for i := range entries {
		if entries[i].Coordinate != nil {
			continue
		}
		if err := limiter.Wait(ctx); err != nil {
			return filled, err
		}
		place, err := resolve(ctx, entries[i].Name, domain.ResolveContext{City: entries[i].City})
		if err != nil {
			level := slog.LevelWarn
			if errors.Is(err, domain.ErrPlaceNotFound) {
				level = slog.LevelInfo
			}
			logger.Log(ctx, level, "catalog place not geocoded", "name", entries[i].Name, "error", err)
			continue
		}
		c := place.Coordinate
		entries[i].Coordinate = &c
		if entries[i].Address == "" {
			entries[i].Address = place.Address
		}
		filled++
	}
	return filled, nil
}

func cityCounts(entries []domain.CatalogEntry) []string {
	counts := make(map[string]int)
	for _, e := range entries {
		counts[e.City]++
	}
	cities := make([]string, 0, len(counts))
	for c := range counts {
		cities = append(cities, c)
	}
	sort.Strings(cities)

	lines := make([]string, 0, len(cities))
	for _, c := range cities {
		lines = append(lines, fmt.Sprintf("%-28s %d", c, counts[c]))
	}
	return lines
}
