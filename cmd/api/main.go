package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/nats-io/nats.go"

	"github.com/samirrijal/tripgaps/internal/adapters/http"
	natsadapter "github.com/samirrijal/tripgaps/internal/adapters/nats"
	"github.com/samirrijal/tripgaps/internal/adapters/postgres"
	"github.com/samirrijal/tripgaps/internal/adapters/valkey"
	"github.com/samirrijal/tripgaps/internal/app"
	"github.com/samirrijal/tripgaps/internal/core/ports"
	"github.com/samirrijal/tripgaps/internal/core/usecases"
	"github.com/samirrijal/tripgaps/internal/pkg/config"
	"github.com/samirrijal/tripgaps/internal/pkg/logging"
	"github.com/samirrijal/tripgaps/internal/pkg/metrics"
	"github.com/samirrijal/tripgaps/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("tripgaps-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format, cfg.Telemetry.ServiceName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			logger.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Database holds the itinerary, so it is required.
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				metrics.UpdateDBPoolMetrics(db.Pool.Stat())
			case <-ctx.Done():
				return
			}
		}
	}()

	// Shared geocode cache (optional)
	var cache *valkey.Cache
	if c, err := valkey.New(cfg.Valkey.Addr, cfg.Valkey.Namespace); err != nil {
		logger.Warn("valkey unavailable, resolver uses its in-process cache only", "error", err)
	} else {
		cache = c
		defer cache.Close()
	}

	// Event publishing (optional)
	var publisher ports.EventPublisher
	if p, err := natsadapter.NewPublisher(cfg.NATS.URL); err != nil {
		logger.Warn("nats unavailable, events are not published", "error", err)
	} else {
		publisher = p
		defer p.Close()
	}

	// Raw NATS connection for the WebSocket relay
	var natsConn *nats.Conn
	if nc, err := natsadapter.RawConn(cfg.NATS.URL); err != nil {
		logger.Warn("nats ws conn unavailable", "error", err)
	} else {
		natsConn = nc
		defer nc.Close()
	}

	catalog, err := app.Catalog(cfg.Catalog, db)
	if err != nil {
		log.Fatalf("catalog: %v", err)
	}

	chain, nearby := app.Providers(cfg.Providers)
	store := postgres.NewItineraryRepo(db, cfg.Itinerary.ActiveID)
	lodging := postgres.NewLodgingRepo(db, cfg.Itinerary.ActiveID)

	deps := &http.Dependencies{
		Resolver:    app.Resolver(cfg, catalog, chain, cache, logger),
		Suggestions: app.Suggestions(cfg, store, catalog, nearby, lodging, publisher, logger),
		Store:       store,
		Publisher:   publisher,
		Transport:   cfg.Transport,
		Repair:      usecases.DefaultRepairOptions(),
		ItineraryID: cfg.Itinerary.ActiveID,
		NATS:        natsConn,
		DB:          db,
		Cache:       cache,
		Logger:      logger,
	}

	fiberApp := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "Tripgaps API",
	})
	fiberApp.Use(recover.New())
	fiberApp.Use(cors.New(cors.Config{
		AllowOrigins: "http://localhost:3000, http://localhost:5173",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept",
		MaxAge:       3600,
	}))

	http.SetupRoutes(fiberApp, deps)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		logger.Info("API server starting",
			"addr", addr,
			"itinerary", cfg.Itinerary.ActiveID,
			"catalog", cfg.Catalog.Source,
			"nearby_search", nearby != nil,
		)
		if err := fiberApp.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := fiberApp.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}
