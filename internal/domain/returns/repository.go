package returns

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"

	"posclient/internal/domain/erp"
)

// Repository reads cached invoices and profiles and stores return documents.
type Repository interface {
	// Invoice returns ErrInvoiceNotFound when the invoice is not cached.
	Invoice(ctx context.Context, name string) (*erp.Invoice, error)
	Profile(ctx context.Context, name string) (*erp.Profile, error)
	SaveCreditNote(ctx context.Context, note erp.Invoice) error
	UpsertInvoice(ctx context.Context, inv erp.Invoice) error
	SetOutstanding(ctx context.Context, invoiceName string, amount decimal.Decimal) error
	SavePaymentEntry(ctx context.Context, pe erp.PaymentEntry) error
}

// Remote is the document API used to post returns.
type Remote interface {
	GetCreditNotes(ctx context.Context, returnAgainst string) ([]erp.Invoice, error)
	GetDocument(ctx context.Context, doctype, name string) (json.RawMessage, error)
	CreateDocument(ctx context.Context, doctype string, payload any) (string, error)
	SubmitDocument(ctx context.Context, doctype, name string) error
}
