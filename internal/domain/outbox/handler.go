package outbox

import (
	"context"
	"encoding/json"

	"posclient/internal/domain/erp"
)

// Handler pushes one entity type and cascades its promotion locally.
type Handler interface {
	Create(ctx context.Context, payload json.RawMessage) (string, error)
	Promote(ctx context.Context, tx Tx, localID, remoteID string) error
}

// Submitter is implemented by handlers whose documents are created as drafts and
// then submitted. The draft name is kept on the entry between the two calls.
type Submitter interface {
	Submit(ctx context.Context, name string) error
}

// CustomerHandler creates customers.
type CustomerHandler struct {
	remote Remote
}

func NewCustomerHandler(remote Remote) *CustomerHandler {
	return &CustomerHandler{remote: remote}
}

func (h *CustomerHandler) Create(ctx context.Context, payload json.RawMessage) (string, error) {
	return h.remote.CreateDocument(ctx, erp.DocTypeCustomer, payload)
}

func (h *CustomerHandler) Promote(ctx context.Context, tx Tx, localID, remoteID string) error {
	return tx.RenameCustomer(ctx, localID, remoteID)
}

// OpeningEntryHandler creates POS opening entries as drafts and submits them.
type OpeningEntryHandler struct {
	remote Remote
}

func NewOpeningEntryHandler(remote Remote) *OpeningEntryHandler {
	return &OpeningEntryHandler{remote: remote}
}

func (h *OpeningEntryHandler) Create(ctx context.Context, payload json.RawMessage) (string, error) {
	return h.remote.CreateDocument(ctx, erp.DocTypeOpeningEntry, payload)
}

func (h *OpeningEntryHandler) Submit(ctx context.Context, name string) error {
	return h.remote.SubmitDocument(ctx, erp.DocTypeOpeningEntry, name)
}

func (h *OpeningEntryHandler) Promote(ctx context.Context, tx Tx, localID, remoteID string) error {
	return tx.PromoteOpeningEntry(ctx, localID, remoteID)
}

// DefaultHandlers returns the handlers for every known entity type.
func DefaultHandlers(remote Remote) map[string]Handler {
	return map[string]Handler{
		EntityCustomer:     NewCustomerHandler(remote),
		EntityOpeningEntry: NewOpeningEntryHandler(remote),
	}
}
