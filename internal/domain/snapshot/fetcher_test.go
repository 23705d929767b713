package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"posclient/internal/domain/erp"
	"posclient/internal/domain/pagination"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func baseResponse() *BootstrapResponse {
	return &BootstrapResponse{
		Context: &BootstrapContext{
			Company:          "Acme",
			DefaultWarehouse: "Fallback Store",
			DefaultPriceList: "Standard Selling",
		},
		Profiles: []json.RawMessage{
			rawJSON(`{"name":"Main","company":"Acme","warehouse":"Stores - A","selling_price_list":"Retail"}`),
			rawJSON(`{"name":"Backroom","company":"Acme"}`),
		},
		Company:       rawJSON(`{"name":"Acme","default_currency":"USD"}`),
		ExchangeRates: &erp.ExchangeRates{BaseCurrency: "USD", Rates: map[string]float64{"NIO": 36.5}},
		PaymentTerms:  []json.RawMessage{},
	}
}

func newTestFetcher(remote Remote, diag *MockDiagnostics) *Fetcher {
	return NewFetcher(remote, diag, discardLogger(), &FetcherConfig{PageSize: 2})
}

func sectionDiag(t *testing.T, d Diagnostics, s Section) SectionDiagnostics {
	t.Helper()
	for _, sd := range d.Sections {
		if sd.Section == s {
			return sd
		}
	}
	require.Failf(t, "section missing from diagnostics", "%s", s)
	return SectionDiagnostics{}
}

func TestFetcher_FetchSnapshot(t *testing.T) {
	// Arrange
	alert := `{"type":"stock","reference":"ITEM-1","timestamp":"2024-01-01","message":"low"}`
	remote := &fakeRemote{
		base: baseResponse(),
		sections: map[Section][]json.RawMessage{
			SectionInventory: named("ITEM", 3),
			SectionCustomers: named("CUST", 5),
			SectionInvoices:  named("SINV", 3),
			SectionAlerts: {
				rawJSON(alert),
				rawJSON(alert),
				rawJSON(`{"type":"stock","reference":"ITEM-2","timestamp":"2024-01-01","message":"low"}`),
			},
		},
		payments: named("PAY", 3),
	}
	diag := new(MockDiagnostics)
	diag.On("SaveFetch", mock.Anything, mock.AnythingOfType("*snapshot.Diagnostics")).Return(nil).Once()
	f := newTestFetcher(remote, diag)

	// Act
	snap, err := f.FetchSnapshot(context.Background(), "")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "Main", snap.Profile)
	assert.Equal(t, "Acme", snap.Company)
	assert.Equal(t, "Stores - A", snap.Warehouse)
	assert.Equal(t, "Retail", snap.PriceList)

	assert.Len(t, snap.Inventory, 3)
	assert.Len(t, snap.Customers, 5)
	assert.Len(t, snap.Invoices, 3)
	assert.Len(t, snap.PaymentEntries, 3)
	assert.Len(t, snap.Alerts, 2)
	assert.Empty(t, snap.Activity)

	assert.Equal(t, StatusComplete, snap.StatusOf(SectionCustomers))
	assert.Equal(t, StatusComplete, snap.StatusOf(SectionPaymentEntries))
	assert.Equal(t, StatusComplete, snap.StatusOf(SectionActivity))
	assert.Equal(t, StatusComplete, snap.StatusOf(SectionExchangeRates))
	assert.Equal(t, StatusComplete, snap.StatusOf(SectionPaymentTerms))
	assert.Equal(t, StatusSkipped, snap.StatusOf(SectionStockSettings))
	assert.Equal(t, StatusSkipped, snap.StatusOf(SectionCategories))

	for _, req := range remote.requestsFor(SectionInventory) {
		assert.Equal(t, "Stores - A", req.Warehouse)
		assert.Equal(t, "Retail", req.PriceList)
		assert.Equal(t, "Main", req.Profile)
	}

	customers := sectionDiag(t, snap.Diagnostics, SectionCustomers)
	assert.Equal(t, 5, customers.FetchedCount)
	require.NotNil(t, customers.StrategyDebug)
	assert.Equal(t, pagination.StrategyAbsolute, customers.StrategyDebug.Strategy)
	assert.Equal(t, 5, customers.Pagination.Total)

	diag.AssertExpectations(t)
}

func TestFetcher_RewritesPagination(t *testing.T) {
	remote := &fakeRemote{
		base:     baseResponse(),
		sections: map[Section][]json.RawMessage{SectionCustomers: named("CUST", 5)},
	}
	diag := new(MockDiagnostics)
	diag.On("SaveFetch", mock.Anything, mock.Anything).Return(nil)

	snap, err := newTestFetcher(remote, diag).FetchSnapshot(context.Background(), "Main")
	require.NoError(t, err)

	var payload struct {
		Customers struct {
			Items      []json.RawMessage `json:"items"`
			Pagination map[string]any    `json:"pagination"`
		} `json:"customers"`
	}
	require.NoError(t, json.Unmarshal(snap.Raw, &payload))
	assert.Len(t, payload.Customers.Items, 5)
	assert.Equal(t, map[string]any{
		"offset":   float64(0),
		"limit":    float64(2),
		"total":    float64(5),
		"has_more": false,
	}, payload.Customers.Pagination)
}

func TestFetcher_MissingWarehouseSkipsInventory(t *testing.T) {
	// Arrange
	base := baseResponse()
	base.Context.DefaultWarehouse = ""
	remote := &fakeRemote{base: base, sections: map[Section][]json.RawMessage{}}
	diag := new(MockDiagnostics)
	diag.On("SaveFetch", mock.Anything, mock.Anything).Return(nil)

	// Act
	snap, err := newTestFetcher(remote, diag).FetchSnapshot(context.Background(), "Backroom")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "Backroom", snap.Profile)
	assert.Equal(t, StatusSkipped, snap.StatusOf(SectionInventory))
	assert.Empty(t, remote.requestsFor(SectionInventory))
	assert.Equal(t, ReasonMissingWarehouse, sectionDiag(t, snap.Diagnostics, SectionInventory).Reason)
	assert.Equal(t, StatusComplete, snap.StatusOf(SectionCustomers))
}

func TestFetcher_SectionFailuresAreIsolated(t *testing.T) {
	// Arrange
	remote := &fakeRemote{
		base:     baseResponse(),
		sections: map[Section][]json.RawMessage{SectionAlerts: named("ALERT", 1)},
		errs: map[Section]error{
			SectionCustomers: &erp.RemoteError{Status: 404, Message: "not found"},
			SectionInvoices:  &erp.RemoteError{Status: 502, Message: "bad gateway"},
		},
	}
	diag := new(MockDiagnostics)
	diag.On("SaveFetch", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	// Act
	snap, err := newTestFetcher(remote, diag).FetchSnapshot(context.Background(), "")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, StatusRemoteEmpty, snap.StatusOf(SectionCustomers))
	assert.Equal(t, StatusUnavailable, snap.StatusOf(SectionInvoices))
	assert.Equal(t, StatusUnavailable, snap.StatusOf(SectionPaymentEntries))
	assert.Equal(t, StatusComplete, snap.StatusOf(SectionAlerts))
	assert.Len(t, snap.Alerts, 1)
	assert.Contains(t, sectionDiag(t, snap.Diagnostics, SectionInvoices).Error, "bad gateway")

	var payload map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(snap.Raw, &payload))
	assert.NotContains(t, payload, "invoices")
}

func TestFetcher_PaymentEntriesFollowKeptPages(t *testing.T) {
	tests := []struct {
		name         string
		invoices     int
		wantStatus   Status
		wantInvoices int
		wantPayments []string
	}{
		{
			name:         "every strategy fails after a good page",
			invoices:     6,
			wantStatus:   StatusPartial,
			wantInvoices: 2,
			wantPayments: []string{"PAY-000", "PAY-001"},
		},
		{
			name:         "page index wins after absolute fails",
			invoices:     5,
			wantStatus:   StatusComplete,
			wantInvoices: 5,
			wantPayments: []string{"PAY-000", "PAY-001", "PAY-002", "PAY-003", "PAY-004"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			remote := &fakeRemote{
				base:     baseResponse(),
				sections: map[Section][]json.RawMessage{SectionInvoices: named("SINV", tt.invoices)},
				payments: named("PAY", tt.invoices),
				pageErrs: map[int]error{4: &erp.RemoteError{Status: 504, Message: "gateway timeout"}},
			}
			diag := new(MockDiagnostics)
			diag.On("SaveFetch", mock.Anything, mock.Anything).Return(nil)

			// Act
			snap, err := newTestFetcher(remote, diag).FetchSnapshot(context.Background(), "Main")

			// Assert
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, snap.StatusOf(SectionInvoices))
			assert.Equal(t, tt.wantStatus, snap.StatusOf(SectionPaymentEntries))
			assert.Len(t, snap.Invoices, tt.wantInvoices)

			var got []string
			for _, raw := range snap.PaymentEntries {
				var pe struct {
					Name string `json:"name"`
				}
				require.NoError(t, json.Unmarshal(raw, &pe))
				got = append(got, pe.Name)
			}
			assert.ElementsMatch(t, tt.wantPayments, got)
			assert.Equal(t, len(tt.wantPayments), sectionDiag(t, snap.Diagnostics, SectionPaymentEntries).FetchedCount)
		})
	}
}

func TestFetcher_BaseFailure(t *testing.T) {
	remote := &failingRemote{err: errors.New("dial tcp: connection refused")}
	diag := new(MockDiagnostics)

	snap, err := newTestFetcher(remote, diag).FetchSnapshot(context.Background(), "")

	assert.Nil(t, snap)
	assert.ErrorContains(t, err, "connection refused")
	diag.AssertNotCalled(t, "SaveFetch", mock.Anything, mock.Anything)
}

func TestFetcher_CancelledBetweenSections(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	remote := &cancellingRemote{fakeRemote: fakeRemote{base: baseResponse()}, cancel: cancel}
	diag := new(MockDiagnostics)

	snap, err := newTestFetcher(remote, diag).FetchSnapshot(ctx, "")

	assert.Nil(t, snap)
	assert.ErrorIs(t, err, context.Canceled)
}

type failingRemote struct{ err error }

func (r *failingRemote) FetchSnapshotSection(context.Context, SectionRequest) (*BootstrapResponse, error) {
	return nil, r.err
}

// cancellingRemote cancels the context once the base snapshot is served.
type cancellingRemote struct {
	fakeRemote
	cancel context.CancelFunc
}

func (r *cancellingRemote) FetchSnapshotSection(ctx context.Context, req SectionRequest) (*BootstrapResponse, error) {
	resp, err := r.fakeRemote.FetchSnapshotSection(ctx, req)
	if req.Include == "" {
		r.cancel()
	}
	return resp, err
}

func TestResolve(t *testing.T) {
	base := baseResponse()

	tests := []struct {
		name    string
		profile string
		ctxProf string
		want    resolution
	}{
		{
			name:    "explicit profile",
			profile: "Backroom",
			want:    resolution{profile: "Backroom", company: "Acme", warehouse: "Fallback Store", priceList: "Standard Selling"},
		},
		{
			name:    "context profile",
			ctxProf: "Backroom",
			want:    resolution{profile: "Backroom", company: "Acme", warehouse: "Fallback Store", priceList: "Standard Selling"},
		},
		{
			name: "first profile",
			want: resolution{profile: "Main", company: "Acme", warehouse: "Stores - A", priceList: "Retail"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := *base
			c := *base.Context
			c.Profile = tt.ctxProf
			b.Context = &c

			assert.Equal(t, tt.want, resolve(&b, tt.profile))
		})
	}
}

func TestEventKey(t *testing.T) {
	assert.Equal(t, "ALERT-1", eventKey(rawJSON(`{"name":"ALERT-1","type":"x"}`)))
	assert.Equal(t, "stock|ITEM-1|2024|low",
		eventKey(rawJSON(`{"type":"stock","reference":"ITEM-1","timestamp":2024,"message":"low"}`)))
	assert.Equal(t, `{"a":1}`, eventKey(rawJSON(`{ "a": 1 }`)))
}
