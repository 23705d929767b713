package diagnostics

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func (h *Handler) listOp() huma.Operation {
	return huma.Operation{
		OperationID: "sync-diagnostics",
		Method:      http.MethodGet,
		Path:        "/api/v1/diagnostics",
		Summary:     "Sync diagnostics",
		Description: "Per-section pagination, counts and strategy traces of the last sync",
		Tags:        []string{"diagnostics"},
		Middlewares: h.middleware,
	}
}
