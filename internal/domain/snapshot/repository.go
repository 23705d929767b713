package snapshot

import (
	"context"
	"encoding/json"
	"time"

	"posclient/internal/domain/erp"
)

// Remote is the bootstrap endpoint of the ERP backend.
type Remote interface {
	FetchSnapshotSection(ctx context.Context, req SectionRequest) (*BootstrapResponse, error)
}

// DiagnosticsRepository stores what each sync fetched and persisted.
type DiagnosticsRepository interface {
	SaveFetch(ctx context.Context, d *Diagnostics) error
	SavePersisted(ctx context.Context, section Section, count int, at time.Time) error
	LatestDiagnostics(ctx context.Context) ([]SectionDiagnostics, error)
}

// Store writes snapshot sections. Every method runs in its own transaction.
// When prune is false absent rows are left alone.
type Store interface {
	ReplaceEntities(ctx context.Context, kind Section, rows []Entity, prune bool) (int, error)
	ReplaceExchangeRates(ctx context.Context, rates []erp.CrossRate) (int, error)
	ReplaceCustomers(ctx context.Context, rows []CustomerRecord, prune bool) (int, error)
	// ReplaceInvoices also recomputes outstanding totals of every referenced customer.
	ReplaceInvoices(ctx context.Context, rows []InvoiceRecord, prune bool) (int, error)
	ReplacePaymentEntries(ctx context.Context, rows []PaymentEntryRecord, prune bool) (int, error)
	CacheSnapshot(ctx context.Context, raw json.RawMessage, at time.Time) error
}
