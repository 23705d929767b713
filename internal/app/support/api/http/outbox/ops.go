package outbox

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func (h *Handler) listOp() huma.Operation {
	return huma.Operation{
		OperationID: "list-outbox",
		Method:      http.MethodGet,
		Path:        "/api/v1/outbox",
		Summary:     "List outbox entries",
		Description: "Queued offline creations, optionally narrowed by status or conflict flag",
		Tags:        []string{"outbox"},
		Middlewares: h.middleware,
	}
}
