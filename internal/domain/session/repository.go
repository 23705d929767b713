package session

import (
	"context"
	"encoding/json"
	"time"

	"posclient/internal/domain/erp"
	"posclient/internal/domain/outbox"
)

// Repository persists sessions and their opening and closing records.
type Repository interface {
	// Create stores the session together with its placeholder opening record.
	Create(ctx context.Context, s *Session, opening erp.OpeningEntry) error
	Get(ctx context.Context, localID string) (*Session, error)
	// Active returns open sessions.
	Active(ctx context.Context) ([]Session, error)
	// PendingClosings returns closed sessions whose closing is not confirmed remotely.
	PendingClosings(ctx context.Context) ([]Session, error)
	// LinkedOpening returns the remote opening entry linked to the session, or "".
	LinkedOpening(ctx context.Context, sessionLocalID string) (string, error)
	// OpeningEntry returns ErrOpeningNotFound when no record exists under name.
	OpeningEntry(ctx context.Context, name string) (*erp.OpeningEntry, error)
	SaveOpeningEntry(ctx context.Context, e erp.OpeningEntry) error
	// CloseLocally marks the session closed and pending sync and stores the placeholder closing.
	CloseLocally(ctx context.Context, localID string, closedAt time.Time, balances []erp.BalanceDetail, closing erp.ClosingEntry) error
	InvoicesForOpening(ctx context.Context, openingEntry string) ([]erp.Invoice, error)
	InvoicesInWindow(ctx context.Context, profile string, from, to time.Time) ([]erp.Invoice, error)
	// AdoptClosing stores the remote closing, closes the session, clears the pending
	// flag and deletes the placeholder closing record in one transaction.
	AdoptClosing(ctx context.Context, localID string, closing erp.ClosingEntry, closedAt time.Time) error
}

// Remote is the document API the reconciler talks to.
type Remote interface {
	CreateDocument(ctx context.Context, doctype string, payload any) (string, error)
	SubmitDocument(ctx context.Context, doctype, name string) error
	GetDocumentsForParent(ctx context.Context, doctype, parentField, parent string) ([]json.RawMessage, error)
}

// Enqueuer queues the opening entry for push.
type Enqueuer interface {
	Enqueue(ctx context.Context, entityType, entityLocalID string, payload any) (*outbox.Entry, error)
}
