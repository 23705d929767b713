// Support API of the POS client:
//
//	GET /api/v1/health       # liveness and sync state
//	GET /api/v1/diagnostics  # per-section sync diagnostics
//	GET /api/v1/outbox       # queued offline creations
//	GET /metrics             # Prometheus metrics

package api

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"golang.org/x/exp/slog"

	diagnosticsAPI "posclient/internal/app/support/api/http/diagnostics"
	healthAPI "posclient/internal/app/support/api/http/health"
	"posclient/internal/app/support/api/http/middleware"
	"posclient/internal/app/support/api/http/middleware/logger"
	outboxAPI "posclient/internal/app/support/api/http/outbox"
)

// Deps are the read-only sources the support API serves.
type Deps struct {
	Diagnostics diagnosticsAPI.Source
	Outbox      outboxAPI.Lister
	Sync        healthAPI.SyncState
	Metrics     http.Handler
}

type Handlers struct {
	Health      *healthAPI.Handler
	Diagnostics *diagnosticsAPI.Handler
	Outbox      *outboxAPI.Handler
}

// New creates a *chi.Mux with every operation registered through huma.
func New(deps Deps, log *slog.Logger) *chi.Mux {
	mux := chi.NewMux()

	config := huma.DefaultConfig("POS Client Support API", "1.0.0")
	API := humachi.New(mux, config)

	h := handlers(deps, log)
	h.Health.SetupRoutes(API)
	h.Diagnostics.SetupRoutes(API)
	h.Outbox.SetupRoutes(API)

	if deps.Metrics != nil {
		mux.Handle("/metrics", deps.Metrics)
	}

	return mux
}

func handlers(deps Deps, log *slog.Logger) *Handlers {
	loggerMW := logger.New(log, "/api/v1/health")
	middlewares := middleware.NewContainer(loggerMW.Middleware())

	healthHandler := healthAPI.NewHandler(deps.Sync, log, middlewares.GetAllAndClear())
	diagnosticsHandler := diagnosticsAPI.NewHandler(deps.Diagnostics, log, middlewares.GetAllAndClear())
	outboxHandler := outboxAPI.NewHandler(deps.Outbox, log, middlewares.GetAllAndClear())

	return &Handlers{
		Health:      healthHandler,
		Diagnostics: diagnosticsHandler,
		Outbox:      outboxHandler,
	}
}
