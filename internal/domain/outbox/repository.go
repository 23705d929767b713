package outbox

import (
	"context"
	"time"
)

// Tx exposes the cascading renames a promotion may perform inside its transaction.
type Tx interface {
	// RenameCustomer rewrites the customer key and every invoice and payment
	// referencing it.
	RenameCustomer(ctx context.Context, localID, remoteID string) error
	// PromoteOpeningEntry links the session to the remote opening entry and rewrites
	// every session, invoice and payment referencing the placeholder.
	PromoteOpeningEntry(ctx context.Context, localID, remoteID string) error
}

// Repository persists outbox entries.
type Repository interface {
	Insert(ctx context.Context, e *Entry) error
	// Pushable returns entries with no remote id and no conflict flag, oldest first.
	Pushable(ctx context.Context) ([]Entry, error)
	List(ctx context.Context, filter ListFilter) ([]Entry, error)
	MarkFailed(ctx context.Context, localID, message string, conflict bool, at time.Time) error
	// SaveDraft records the name of a remote document created but not yet submitted.
	SaveDraft(ctx context.Context, localID, name string) error
	// Promote records remoteID on every entry of the entity, marks them synced and
	// runs cascade, all in one transaction. It returns the number of entries updated.
	Promote(ctx context.Context, entityType, entityLocalID, remoteID string, at time.Time, cascade func(Tx) error) (int, error)
	// Prune deletes entries whose entity no longer exists locally.
	Prune(ctx context.Context) (int, error)
}

// Remote is the document API the handlers push to.
type Remote interface {
	CreateDocument(ctx context.Context, doctype string, payload any) (string, error)
	SubmitDocument(ctx context.Context, doctype, name string) error
}
