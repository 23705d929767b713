package health

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"
)

// SyncState reports the snapshot sync progress.
type SyncState interface {
	IsSyncing() bool
	GetLastSyncTime() time.Time
}

type Handler struct {
	sync       SyncState
	log        *slog.Logger
	middleware huma.Middlewares
}

func NewHandler(sync SyncState, log *slog.Logger, middleware huma.Middlewares) *Handler {
	return &Handler{
		sync:       sync,
		log:        log,
		middleware: middleware,
	}
}

func (h *Handler) SetupRoutes(api huma.API) {
	huma.Register(api, h.healthCheckOp(), h.healthCheck)
}

func (h *Handler) healthCheck(_ context.Context, _ *Input) (*Output, error) {
	h.log.Debug("health check request received")

	resp := Response{Status: "OK"}
	if h.sync != nil {
		resp.Syncing = h.sync.IsSyncing()
		if last := h.sync.GetLastSyncTime(); !last.IsZero() {
			resp.LastSync = &last
		}
	}
	return &Output{Body: resp}, nil
}
