package main

import (
	"context"
	"log"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	natsadapter "github.com/samirrijal/tripgaps/internal/adapters/nats"
	"github.com/samirrijal/tripgaps/internal/adapters/postgres"
	"github.com/samirrijal/tripgaps/internal/adapters/valkey"
	"github.com/samirrijal/tripgaps/internal/app"
	"github.com/samirrijal/tripgaps/internal/core/ports"
	"github.com/samirrijal/tripgaps/internal/core/usecases"
	"github.com/samirrijal/tripgaps/internal/pkg/config"
	"github.com/samirrijal/tripgaps/internal/pkg/logging"
	"github.com/samirrijal/tripgaps/internal/workflows"
)

func main() {
	cfg, err := config.Load("tripgaps-repairer")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format, "tripgaps-repairer")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	var cache *valkey.Cache
	if c, err := valkey.New(cfg.Valkey.Addr, cfg.Valkey.Namespace); err != nil {
		logger.Warn("valkey unavailable", "error", err)
	} else {
		cache = c
		defer cache.Close()
	}

	var publisher ports.EventPublisher
	if p, err := natsadapter.NewPublisher(cfg.NATS.URL); err != nil {
		logger.Warn("nats unavailable, repair results are not announced", "error", err)
	} else {
		publisher = p
		defer p.Close()
	}

	catalog, err := app.Catalog(cfg.Catalog, db)
	if err != nil {
		log.Fatalf("catalog: %v", err)
	}
	chain, _ := app.Providers(cfg.Providers)

	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.ItineraryRepairWorkflow)
	w.RegisterActivity(&workflows.RepairActivities{
		Resolver:  app.Resolver(cfg, catalog, chain, cache, logger),
		Store:     postgres.NewItineraryRepo(db, cfg.Itinerary.ActiveID),
		Publisher: publisher,
		Options:   usecases.DefaultRepairOptions(),
		Logger:    logger,
	})

	// Repair requests arrive over JetStream and are turned into workflow runs.
	sub, err := natsadapter.NewSubscriber(cfg.NATS.URL, logger)
	if err != nil {
		log.Fatalf("nats subscriber: %v", err)
	}
	defer sub.Close()
	if err := sub.SubscribeRepairRequests(ctx, workflows.RepairRequestHandler(c, cfg.Temporal.TaskQueue, logger)); err != nil {
		log.Fatalf("subscribe repair requests: %v", err)
	}

	logger.Info("repair worker started",
		"task_queue", cfg.Temporal.TaskQueue,
		"itinerary", cfg.Itinerary.ActiveID,
	)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}
