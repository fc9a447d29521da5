package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/tripgaps/internal/adapters/postgres"
	"github.com/samirrijal/tripgaps/internal/pkg/config"
	"github.com/samirrijal/tripgaps/internal/pkg/logging"
)

const migrationsDir = "migrations"

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: migrate <up|down|status>")
	}

	cfg, err := config.Load("tripgaps-migrate")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format, "tripgaps-migrate")

	ctx := context.Background()
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	if _, err := db.Pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		log.Fatalf("schema_migrations: %v", err)
	}

	ups, err := upMigrations(migrationsDir)
	if err != nil {
		log.Fatalf("list migrations: %v", err)
	}
	applied, err := appliedVersions(ctx, db)
	if err != nil {
		log.Fatalf("read applied migrations: %v", err)
	}

	switch os.Args[1] {
	case "up":
		for _, f := range ups {
			v := version(f)
			if applied[v] {
				continue
			}
			if err := apply(ctx, db, f, func(tx pgx.Tx) error {
				_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, v)
				return err
			}); err != nil {
				log.Fatalf("%v", err)
			}
			logger.Info("migration applied", "version", v)
		}
	case "down":
		last := ""
		for _, f := range ups {
			if applied[version(f)] {
				last = f
			}
		}
		if last == "" {
			logger.Info("nothing to roll back")
			return
		}
		v := version(last)
		if err := apply(ctx, db, downFile(last), func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx, `DELETE FROM schema_migrations WHERE version = $1`, v)
			return err
		}); err != nil {
			log.Fatalf("%v", err)
		}
		logger.Info("migration rolled back", "version", v)
	case "status":
		for _, f := range ups {
			state := "pending"
			if applied[version(f)] {
				state = "applied"
			}
			fmt.Printf("%-8s %s\n", state, version(f))
		}
	default:
		log.Fatalf("unknown command: %s", os.Args[1])
	}
}

// upMigrations lists the forward migration files in version order.
func upMigrations(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return nil, err
	}
	ups := files[:0]
	for _, f := range files {
		if !strings.HasSuffix(f, ".down.sql") {
			ups = append(ups, f)
		}
	}
	sort.Strings(ups)
	return ups, nil
}

func version(file string) string {
	return strings.TrimSuffix(filepath.Base(file), ".sql")
}

func downFile(up string) string {
	return strings.TrimSuffix(up, ".sql") + ".down.sql"
}

func appliedVersions(ctx context.Context, db *postgres.DB) (map[string]bool, error) {
	rows, err := db.Pool.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	applied := make(map[string]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}
	return applied, nil
}

// apply runs one file and its bookkeeping statement in a single transaction.
func apply(ctx context.Context, db *postgres.DB, file string, record func(pgx.Tx) error) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read %s: %w", file, err)
	}
	return pgx.BeginFunc(ctx, db.Pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("exec %s: %w", file, err)
		}
		return record(tx)
	})
}
