package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"posclient/internal/domain/erp"
	"posclient/internal/domain/outbox"
)

// MockRepository is a mock implementation of Repository.
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, s *Session, opening erp.OpeningEntry) error {
	return m.Called(ctx, s, opening).Error(0)
}

func (m *MockRepository) Get(ctx context.Context, localID string) (*Session, error) {
	args := m.Called(ctx, localID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Session), args.Error(1)
}

func (m *MockRepository) Active(ctx context.Context) ([]Session, error) {
	args := m.Called(ctx)
	return args.Get(0).([]Session), args.Error(1)
}

func (m *MockRepository) PendingClosings(ctx context.Context) ([]Session, error) {
	args := m.Called(ctx)
	return args.Get(0).([]Session), args.Error(1)
}

func (m *MockRepository) LinkedOpening(ctx context.Context, sessionLocalID string) (string, error) {
	args := m.Called(ctx, sessionLocalID)
	return args.String(0), args.Error(1)
}

func (m *MockRepository) OpeningEntry(ctx context.Context, name string) (*erp.OpeningEntry, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*erp.OpeningEntry), args.Error(1)
}

func (m *MockRepository) SaveOpeningEntry(ctx context.Context, e erp.OpeningEntry) error {
	return m.Called(ctx, e).Error(0)
}

func (m *MockRepository) CloseLocally(ctx context.Context, localID string, closedAt time.Time, balances []erp.BalanceDetail, closing erp.ClosingEntry) error {
	return m.Called(ctx, localID, closedAt, balances, closing).Error(0)
}

func (m *MockRepository) InvoicesForOpening(ctx context.Context, openingEntry string) ([]erp.Invoice, error) {
	args := m.Called(ctx, openingEntry)
	return args.Get(0).([]erp.Invoice), args.Error(1)
}

func (m *MockRepository) InvoicesInWindow(ctx context.Context, profile string, from, to time.Time) ([]erp.Invoice, error) {
	args := m.Called(ctx, profile, from, to)
	return args.Get(0).([]erp.Invoice), args.Error(1)
}

func (m *MockRepository) AdoptClosing(ctx context.Context, localID string, closing erp.ClosingEntry, closedAt time.Time) error {
	return m.Called(ctx, localID, closing, closedAt).Error(0)
}

// MockRemote is a mock implementation of Remote.
type MockRemote struct {
	mock.Mock
}

func (m *MockRemote) CreateDocument(ctx context.Context, doctype string, payload any) (string, error) {
	args := m.Called(ctx, doctype, payload)
	return args.String(0), args.Error(1)
}

func (m *MockRemote) SubmitDocument(ctx context.Context, doctype, name string) error {
	return m.Called(ctx, doctype, name).Error(0)
}

func (m *MockRemote) GetDocumentsForParent(ctx context.Context, doctype, parentField, parent string) ([]json.RawMessage, error) {
	args := m.Called(ctx, doctype, parentField, parent)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]json.RawMessage), args.Error(1)
}

// MockQueue is a mock implementation of Enqueuer.
type MockQueue struct {
	mock.Mock
}

func (m *MockQueue) Enqueue(ctx context.Context, entityType, entityLocalID string, payload any) (*outbox.Entry, error) {
	args := m.Called(ctx, entityType, entityLocalID, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*outbox.Entry), args.Error(1)
}

var (
	openedAt = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	closedAt = time.Date(2024, 6, 1, 20, 0, 0, 0, time.UTC)
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(repo *MockRepository, remote *MockRemote, queue *MockQueue) *Service {
	svc := NewService(repo, remote, queue, discardLogger())
	svc.now = func() time.Time { return closedAt }
	return svc
}

func closedSession() Session {
	return Session{
		LocalID:        "sess-1",
		POSProfile:     "Main",
		Company:        "Acme",
		User:           "cashier@acme.test",
		Status:         StatusClosed,
		OpeningEntryID: "LOCAL-open-1",
		ClosingEntryID: "LOCAL-close-1",
		OpenedAt:       openedAt,
		ClosedAt:       &closedAt,
		PendingSync:    true,
		BalanceDetails: []erp.BalanceDetail{
			{ModeOfPayment: "Cash", OpeningAmount: decimal.NewFromInt(100), ClosingAmount: decimal.NewFromInt(245)},
		},
	}
}

func closingJSON(name string, docstatus int) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(
		`{"name":%q,"pos_opening_entry":"POS-OPE-1","docstatus":%d,"period_end_date":"2024-06-01 19:30:00"}`,
		name, docstatus,
	))
}

func TestService_ReconcileAdoptsFinalRemoteClosing(t *testing.T) {
	// Arrange
	repo, remote := new(MockRepository), new(MockRemote)
	sess := closedSession()
	sess.Status = StatusOpen
	sess.ClosedAt = nil

	placeholder := &erp.OpeningEntry{Name: "LOCAL-open-1", POSProfile: "Main", Company: "Acme"}

	repo.On("Active", mock.Anything).Return([]Session{sess}, nil)
	repo.On("LinkedOpening", mock.Anything, "sess-1").Return("POS-OPE-1", nil)
	repo.On("OpeningEntry", mock.Anything, "POS-OPE-1").Return(nil, ErrOpeningNotFound)
	repo.On("OpeningEntry", mock.Anything, "LOCAL-open-1").Return(placeholder, nil)
	repo.On("SaveOpeningEntry", mock.Anything, mock.MatchedBy(func(e erp.OpeningEntry) bool {
		return e.Name == "POS-OPE-1" && e.POSProfile == "Main" && e.DocStatus == erp.DocStatusSubmitted
	})).Return(nil)
	remote.On("GetDocumentsForParent", mock.Anything, erp.DocTypeClosingEntry, "pos_opening_entry", "POS-OPE-1").
		Return([]json.RawMessage{closingJSON("POS-CLO-9", 2), closingJSON("POS-CLO-1", 1)}, nil)
	repo.On("AdoptClosing", mock.Anything, "sess-1",
		mock.MatchedBy(func(c erp.ClosingEntry) bool { return c.Name == "POS-CLO-1" }),
		time.Date(2024, 6, 1, 19, 30, 0, 0, time.UTC)).Return(nil)

	// Act
	changed, err := newTestService(repo, remote, nil).ReconcileRemoteClosingsForActiveSessions(context.Background())

	// Assert
	require.NoError(t, err)
	assert.True(t, changed)
	repo.AssertExpectations(t)
	remote.AssertNotCalled(t, "SubmitDocument", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_ReconcileIgnoresDraftAndUnresolved(t *testing.T) {
	repo, remote := new(MockRepository), new(MockRemote)
	withLink := closedSession()
	withLink.Status = StatusOpen
	unresolved := withLink
	unresolved.LocalID = "sess-2"

	repo.On("Active", mock.Anything).Return([]Session{withLink, unresolved}, nil)
	repo.On("LinkedOpening", mock.Anything, "sess-1").Return("POS-OPE-1", nil)
	repo.On("LinkedOpening", mock.Anything, "sess-2").Return("", nil)
	repo.On("OpeningEntry", mock.Anything, "POS-OPE-1").Return(&erp.OpeningEntry{Name: "POS-OPE-1"}, nil)
	remote.On("GetDocumentsForParent", mock.Anything, erp.DocTypeClosingEntry, "pos_opening_entry", "POS-OPE-1").
		Return([]json.RawMessage{closingJSON("POS-CLO-1", 0)}, nil)

	changed, err := newTestService(repo, remote, nil).ReconcileRemoteClosingsForActiveSessions(context.Background())

	require.NoError(t, err)
	assert.False(t, changed)
	repo.AssertNotCalled(t, "AdoptClosing", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	remote.AssertNumberOfCalls(t, "GetDocumentsForParent", 1)
}

func TestService_PushCreatesClosing(t *testing.T) {
	// Arrange
	repo, remote := new(MockRepository), new(MockRemote)
	sess := closedSession()
	sess.OpeningEntryID = "POS-OPE-1"

	invoices := []erp.Invoice{
		{
			Name: "SINV-1", Customer: "CUST-1", GrandTotal: decimal.NewFromInt(100),
			Items:    []erp.InvoiceItem{{ItemCode: "SKU1", Qty: decimal.NewFromInt(2)}},
			Payments: []erp.InvoicePayment{{ModeOfPayment: "Cash", Amount: decimal.NewFromInt(100)}},
		},
		{
			Name: "SINV-2", Customer: "CUST-2", GrandTotal: decimal.NewFromInt(50),
			Items:    []erp.InvoiceItem{{ItemCode: "SKU2", Qty: decimal.NewFromInt(1)}},
			Payments: []erp.InvoicePayment{{ModeOfPayment: "Cash", Amount: decimal.NewFromInt(40)}, {ModeOfPayment: "Card", Amount: decimal.NewFromInt(10)}},
		},
	}

	repo.On("PendingClosings", mock.Anything).Return([]Session{sess}, nil)
	repo.On("LinkedOpening", mock.Anything, "sess-1").Return("", nil)
	repo.On("OpeningEntry", mock.Anything, "POS-OPE-1").Return(&erp.OpeningEntry{Name: "POS-OPE-1"}, nil)
	remote.On("GetDocumentsForParent", mock.Anything, erp.DocTypeClosingEntry, "pos_opening_entry", "POS-OPE-1").
		Return(nil, &erp.RemoteError{Status: 404})
	repo.On("InvoicesForOpening", mock.Anything, "POS-OPE-1").Return([]erp.Invoice{}, nil)
	repo.On("InvoicesInWindow", mock.Anything, "Main", openedAt, closedAt).Return(invoices, nil)

	var sent erp.ClosingEntry
	remote.On("CreateDocument", mock.Anything, erp.DocTypeClosingEntry, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(2).(erp.ClosingEntry) }).
		Return("POS-CLO-7", nil)
	remote.On("SubmitDocument", mock.Anything, erp.DocTypeClosingEntry, "POS-CLO-7").Return(nil)
	repo.On("AdoptClosing", mock.Anything, "sess-1",
		mock.MatchedBy(func(c erp.ClosingEntry) bool { return c.Name == "POS-CLO-7" && c.IsFinal() }),
		closedAt).Return(nil)

	// Act
	changed, err := newTestService(repo, remote, nil).PushPendingClosings(context.Background())

	// Assert
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "POS-OPE-1", sent.OpeningEntry)
	assert.Empty(t, sent.Name)
	assert.True(t, decimal.NewFromInt(150).Equal(sent.GrandTotal))
	assert.True(t, decimal.NewFromInt(3).Equal(sent.TotalQuantity))
	assert.Len(t, sent.Transactions, 2)

	require.Len(t, sent.PaymentReconciliation, 2)
	cash := sent.PaymentReconciliation[0]
	assert.Equal(t, "Cash", cash.ModeOfPayment)
	assert.True(t, decimal.NewFromInt(240).Equal(cash.ExpectedAmount))
	assert.True(t, decimal.NewFromInt(5).Equal(cash.Difference))
	card := sent.PaymentReconciliation[1]
	assert.Equal(t, "Card", card.ModeOfPayment)
	assert.True(t, decimal.NewFromInt(10).Equal(card.ExpectedAmount))

	repo.AssertExpectations(t)
	remote.AssertExpectations(t)
}

func TestService_PushSubmitsDraftClosing(t *testing.T) {
	repo, remote := new(MockRepository), new(MockRemote)
	sess := closedSession()

	repo.On("PendingClosings", mock.Anything).Return([]Session{sess}, nil)
	repo.On("LinkedOpening", mock.Anything, "sess-1").Return("POS-OPE-1", nil)
	repo.On("OpeningEntry", mock.Anything, "POS-OPE-1").Return(&erp.OpeningEntry{Name: "POS-OPE-1"}, nil)
	remote.On("GetDocumentsForParent", mock.Anything, erp.DocTypeClosingEntry, "pos_opening_entry", "POS-OPE-1").
		Return([]json.RawMessage{closingJSON("POS-CLO-3", 0)}, nil)
	remote.On("SubmitDocument", mock.Anything, erp.DocTypeClosingEntry, "POS-CLO-3").Return(nil)
	repo.On("AdoptClosing", mock.Anything, "sess-1",
		mock.MatchedBy(func(c erp.ClosingEntry) bool { return c.Name == "POS-CLO-3" && c.IsFinal() }),
		mock.Anything).Return(nil)

	changed, err := newTestService(repo, remote, nil).PushPendingClosings(context.Background())

	require.NoError(t, err)
	assert.True(t, changed)
	remote.AssertNotCalled(t, "CreateDocument", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_PushFailureLeavesSessionPending(t *testing.T) {
	repo, remote := new(MockRepository), new(MockRemote)
	sess := closedSession()

	repo.On("PendingClosings", mock.Anything).Return([]Session{sess}, nil)
	repo.On("LinkedOpening", mock.Anything, "sess-1").Return("POS-OPE-1", nil)
	repo.On("OpeningEntry", mock.Anything, "POS-OPE-1").Return(&erp.OpeningEntry{Name: "POS-OPE-1"}, nil)
	remote.On("GetDocumentsForParent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]json.RawMessage{}, nil)
	repo.On("InvoicesForOpening", mock.Anything, "POS-OPE-1").Return([]erp.Invoice{{Name: "SINV-1"}}, nil)
	remote.On("CreateDocument", mock.Anything, erp.DocTypeClosingEntry, mock.Anything).
		Return("", errors.New("gateway timeout"))

	changed, err := newTestService(repo, remote, nil).PushPendingClosings(context.Background())

	assert.False(t, changed)
	assert.ErrorContains(t, err, "gateway timeout")
	assert.ErrorContains(t, err, "sess-1")
	repo.AssertNotCalled(t, "AdoptClosing", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestService_OpenSession(t *testing.T) {
	// Arrange
	repo, queue := new(MockRepository), new(MockQueue)
	repo.On("Create", mock.Anything, mock.AnythingOfType("*session.Session"), mock.AnythingOfType("erp.OpeningEntry")).Return(nil)

	var payload erp.OpeningEntry
	queue.On("Enqueue", mock.Anything, outbox.EntityOpeningEntry, mock.MatchedBy(erp.IsPlaceholder), mock.Anything).
		Run(func(args mock.Arguments) { payload = args.Get(3).(erp.OpeningEntry) }).
		Return(&outbox.Entry{}, nil)

	svc := newTestService(repo, nil, queue)

	// Act
	sess, err := svc.OpenSession(context.Background(), OpenRequest{POSProfile: "Main", Company: "Acme"})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, sess.Status)
	assert.True(t, erp.IsPlaceholder(sess.OpeningEntryID))
	assert.Empty(t, payload.Name)
	assert.Equal(t, "Main", payload.POSProfile)

	_, err = svc.OpenSession(context.Background(), OpenRequest{})
	assert.ErrorIs(t, err, ErrMissingProfile)
}

func TestService_CloseSession(t *testing.T) {
	repo := new(MockRepository)
	open := closedSession()
	open.Status = StatusOpen
	open.ClosedAt = nil
	closed := closedSession()

	repo.On("Get", mock.Anything, "sess-1").Return(&open, nil)
	repo.On("Get", mock.Anything, "sess-2").Return(&closed, nil)
	repo.On("CloseLocally", mock.Anything, "sess-1", closedAt,
		[]erp.BalanceDetail{
			{ModeOfPayment: "Cash", OpeningAmount: decimal.NewFromInt(100), ClosingAmount: decimal.NewFromInt(300)},
			{ModeOfPayment: "Card", ClosingAmount: decimal.NewFromInt(20)},
		},
		mock.MatchedBy(func(c erp.ClosingEntry) bool { return erp.IsPlaceholder(c.Name) && c.OpeningEntry == "LOCAL-open-1" }),
	).Return(nil)

	svc := newTestService(repo, nil, nil)

	sess, err := svc.CloseSession(context.Background(), "sess-1", []ClosingCount{
		{ModeOfPayment: "Cash", Amount: decimal.NewFromInt(300)},
		{ModeOfPayment: "Card", Amount: decimal.NewFromInt(20)},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusClosed, sess.Status)
	assert.True(t, sess.PendingSync)

	_, err = svc.CloseSession(context.Background(), "sess-2", nil)
	assert.ErrorIs(t, err, ErrSessionClosed)
}
