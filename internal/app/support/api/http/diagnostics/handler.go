package diagnostics

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"

	"posclient/internal/domain/snapshot"
)

// Source reads the stored sync diagnostics.
type Source interface {
	LatestDiagnostics(ctx context.Context) ([]snapshot.SectionDiagnostics, error)
}

type Handler struct {
	source     Source
	log        *slog.Logger
	middleware huma.Middlewares
}

func NewHandler(source Source, log *slog.Logger, middleware huma.Middlewares) *Handler {
	return &Handler{
		source:     source,
		log:        log.With("component", "diagnostics_handler"),
		middleware: middleware,
	}
}

func (h *Handler) SetupRoutes(api huma.API) {
	huma.Register(api, h.listOp(), h.list)
}

func (h *Handler) list(ctx context.Context, _ *Input) (*Output, error) {
	sections, err := h.source.LatestDiagnostics(ctx)
	if err != nil {
		h.log.Error("failed to load diagnostics", "error", err)
		return nil, huma.Error500InternalServerError("failed to load diagnostics")
	}
	if sections == nil {
		sections = []snapshot.SectionDiagnostics{}
	}
	return &Output{Body: Response{Sections: sections}}, nil
}
