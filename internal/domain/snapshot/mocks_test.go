package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stretchr/testify/mock"

	"posclient/internal/domain/erp"
	"posclient/internal/domain/pagination"
)

// MockDiagnostics is a mock implementation of DiagnosticsRepository.
type MockDiagnostics struct {
	mock.Mock
}

func (m *MockDiagnostics) SaveFetch(ctx context.Context, d *Diagnostics) error {
	args := m.Called(ctx, d)
	return args.Error(0)
}

func (m *MockDiagnostics) SavePersisted(ctx context.Context, section Section, count int, at time.Time) error {
	args := m.Called(ctx, section, count, at)
	return args.Error(0)
}

func (m *MockDiagnostics) LatestDiagnostics(ctx context.Context) ([]SectionDiagnostics, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]SectionDiagnostics), args.Error(1)
}

// MockStore is a mock implementation of Store.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) ReplaceEntities(ctx context.Context, kind Section, rows []Entity, prune bool) (int, error) {
	args := m.Called(ctx, kind, rows, prune)
	return args.Int(0), args.Error(1)
}

func (m *MockStore) ReplaceExchangeRates(ctx context.Context, rates []erp.CrossRate) (int, error) {
	args := m.Called(ctx, rates)
	return args.Int(0), args.Error(1)
}

func (m *MockStore) ReplaceCustomers(ctx context.Context, rows []CustomerRecord, prune bool) (int, error) {
	args := m.Called(ctx, rows, prune)
	return args.Int(0), args.Error(1)
}

func (m *MockStore) ReplaceInvoices(ctx context.Context, rows []InvoiceRecord, prune bool) (int, error) {
	args := m.Called(ctx, rows, prune)
	return args.Int(0), args.Error(1)
}

func (m *MockStore) ReplacePaymentEntries(ctx context.Context, rows []PaymentEntryRecord, prune bool) (int, error) {
	args := m.Called(ctx, rows, prune)
	return args.Int(0), args.Error(1)
}

func (m *MockStore) CacheSnapshot(ctx context.Context, raw json.RawMessage, at time.Time) error {
	args := m.Called(ctx, raw, at)
	return args.Error(0)
}

// fakeRemote serves paged sections by absolute offset from in-memory rows.
type fakeRemote struct {
	base     *BootstrapResponse
	sections map[Section][]json.RawMessage
	payments []json.RawMessage
	errs     map[Section]error
	pageErrs map[int]error
	requests []SectionRequest
}

func (r *fakeRemote) FetchSnapshotSection(_ context.Context, req SectionRequest) (*BootstrapResponse, error) {
	r.requests = append(r.requests, req)
	if req.Include == "" {
		return r.base, nil
	}
	if err := r.errs[req.Include]; err != nil {
		return nil, err
	}
	if err := r.pageErrs[req.Offset]; err != nil && req.Offset > 0 {
		return nil, err
	}

	rows := r.sections[req.Include]
	start := min(req.Offset, len(rows))
	end := min(start+req.Limit, len(rows))
	meta := &pagination.Meta{
		Offset:  req.Offset,
		Limit:   req.Limit,
		Total:   len(rows),
		HasMore: erp.Flag(end < len(rows)),
	}
	page := &PagedSection{Items: rows[start:end], Pagination: meta}

	resp := &BootstrapResponse{}
	switch req.Include {
	case SectionInventory:
		resp.Inventory = page
	case SectionCustomers:
		resp.Customers = page
	case SectionInvoices:
		pStart := min(start, len(r.payments))
		pEnd := min(end, len(r.payments))
		resp.Invoices = &InvoiceSection{
			Items:          page.Items,
			PaymentEntries: r.payments[pStart:pEnd],
			Pagination:     meta,
		}
	case SectionAlerts:
		resp.Alerts = page
	case SectionActivity:
		resp.Activity = page
	}
	return resp, nil
}

func (r *fakeRemote) requestsFor(s Section) []SectionRequest {
	var out []SectionRequest
	for _, req := range r.requests {
		if req.Include == s {
			out = append(out, req)
		}
	}
	return out
}

func named(prefix string, n int) []json.RawMessage {
	out := make([]json.RawMessage, n)
	for i := range out {
		out[i] = json.RawMessage(fmt.Sprintf(`{"name":"%s-%03d"}`, prefix, i))
	}
	return out
}

func rawJSON(s string) json.RawMessage { return json.RawMessage(s) }
