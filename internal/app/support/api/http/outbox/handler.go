package outbox

import (
	"context"
	"fmt"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"

	domain "posclient/internal/domain/outbox"
)

// Lister reads outbox entries.
type Lister interface {
	List(ctx context.Context, filter domain.ListFilter) ([]domain.Entry, error)
}

type Handler struct {
	outbox     Lister
	log        *slog.Logger
	middleware huma.Middlewares
}

func NewHandler(outbox Lister, log *slog.Logger, middleware huma.Middlewares) *Handler {
	return &Handler{
		outbox:     outbox,
		log:        log.With("component", "outbox_handler"),
		middleware: middleware,
	}
}

func (h *Handler) SetupRoutes(api huma.API) {
	huma.Register(api, h.listOp(), h.list)
}

func (h *Handler) list(ctx context.Context, input *ListInput) (*ListOutput, error) {
	filter := domain.ListFilter{ConflictOnly: input.Conflict}
	for _, s := range input.Status {
		switch st := domain.Status(s); st {
		case domain.StatusPending, domain.StatusFailed, domain.StatusSynced:
			filter.Statuses = append(filter.Statuses, st)
		default:
			return nil, huma.Error400BadRequest(fmt.Sprintf("unknown status %q", s))
		}
	}

	entries, err := h.outbox.List(ctx, filter)
	if err != nil {
		h.log.Error("failed to list outbox", "error", err)
		return nil, huma.Error500InternalServerError("failed to list outbox")
	}
	if entries == nil {
		entries = []domain.Entry{}
	}
	return &ListOutput{Body: ListResponse{Entries: entries, Count: len(entries)}}, nil
}
