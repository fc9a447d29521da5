package http

import (
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/tripgaps/internal/adapters/postgres"
	"github.com/samirrijal/tripgaps/internal/adapters/valkey"
	"github.com/samirrijal/tripgaps/internal/core/ports"
	"github.com/samirrijal/tripgaps/internal/core/usecases"
	"github.com/samirrijal/tripgaps/internal/pkg/geospatial"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Resolver    *usecases.PlaceResolver
	Suggestions *usecases.SuggestionService
	Store       ports.ItineraryStore
	Publisher   ports.EventPublisher
	Transport   geospatial.TransportConfig
	Repair      usecases.RepairOptions
	ItineraryID string // itinerary served by /v1/itinerary
	NATS        *nats.Conn
	DB          *postgres.DB
	Cache       *valkey.Cache
	Logger      *slog.Logger
	DocsPath    string
}
