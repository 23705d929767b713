package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"posclient/internal/domain/erp"
	"posclient/internal/domain/outbox"
	"posclient/internal/domain/session"
)

func newEntry(localID, entityType, entityLocalID string, createdAt time.Time) *outbox.Entry {
	return &outbox.Entry{
		LocalID:       localID,
		EntityType:    entityType,
		EntityLocalID: entityLocalID,
		Payload:       json.RawMessage(`{"customer_name":"Ana"}`),
		Status:        outbox.StatusPending,
		CreatedAt:     createdAt,
	}
}

func TestOutboxRepository_PushableAndMarkFailed(t *testing.T) {
	// Arrange
	ctx := context.Background()
	repo := newTestStorage(t).Outbox()
	t0 := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Insert(ctx, newEntry("e2", outbox.EntityCustomer, "LOCAL-b", t0.Add(time.Minute))))
	require.NoError(t, repo.Insert(ctx, newEntry("e1", outbox.EntityCustomer, "LOCAL-a", t0)))
	require.NoError(t, repo.Insert(ctx, newEntry("e3", outbox.EntityCustomer, "LOCAL-c", t0.Add(2*time.Minute))))

	// Act
	require.NoError(t, repo.MarkFailed(ctx, "e2", "dial tcp: timeout", false, t0.Add(time.Hour)))
	require.NoError(t, repo.MarkFailed(ctx, "e3", "Customer already exists", true, t0.Add(time.Hour)))
	pushable, err := repo.Pushable(ctx)

	// Assert
	require.NoError(t, err)
	require.Len(t, pushable, 2)
	assert.Equal(t, "e1", pushable[0].LocalID)
	assert.JSONEq(t, `{"customer_name":"Ana"}`, string(pushable[0].Payload))
	assert.Equal(t, "e2", pushable[1].LocalID)
	assert.Equal(t, outbox.StatusFailed, pushable[1].Status)
	assert.Equal(t, 1, pushable[1].Attempts)
	require.NotNil(t, pushable[1].LastError)
	assert.Equal(t, "dial tcp: timeout", *pushable[1].LastError)
	require.NotNil(t, pushable[1].LastAttemptAt)

	conflicts, err := repo.List(ctx, outbox.ListFilter{ConflictOnly: true})
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "e3", conflicts[0].LocalID)

	failed, err := repo.List(ctx, outbox.ListFilter{Statuses: []outbox.Status{outbox.StatusFailed}})
	require.NoError(t, err)
	assert.Len(t, failed, 2)

	all, err := repo.List(ctx, outbox.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	assert.ErrorIs(t, repo.MarkFailed(ctx, "missing", "x", false, t0), outbox.ErrEntryNotFound)
}

func TestOutboxRepository_PromoteCustomerCascades(t *testing.T) {
	// Arrange
	ctx := context.Background()
	s := newTestStorage(t)
	repo := s.Outbox()
	now := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.Customers().SaveLocal(ctx, Customer{Name: "LOCAL-c1", CustomerName: "Ana"}, json.RawMessage(`{"name":"LOCAL-c1"}`)))
	require.NoError(t, s.Returns().UpsertInvoice(ctx, erp.Invoice{
		Name:              "SINV-1",
		Customer:          "LOCAL-c1",
		PostingDate:       "2026-10-01",
		OutstandingAmount: decimal.NewFromInt(50),
		DocStatus:         erp.DocStatusSubmitted,
	}))
	require.NoError(t, s.Returns().SavePaymentEntry(ctx, erp.PaymentEntry{Name: "PE-1", Party: "LOCAL-c1", PaymentType: "Receive"}))
	require.NoError(t, repo.Insert(ctx, newEntry("e1", outbox.EntityCustomer, "LOCAL-c1", now)))
	require.NoError(t, repo.Insert(ctx, newEntry("e2", outbox.EntityCustomer, "LOCAL-c1", now.Add(time.Second))))

	// Act
	n, err := repo.Promote(ctx, outbox.EntityCustomer, "LOCAL-c1", "CUST-0007", now, func(tx outbox.Tx) error {
		return tx.RenameCustomer(ctx, "LOCAL-c1", "CUST-0007")
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = s.Customers().Get(ctx, "LOCAL-c1")
	assert.ErrorIs(t, err, ErrCustomerNotFound)
	c, err := s.Customers().Get(ctx, "CUST-0007")
	require.NoError(t, err)
	assert.False(t, c.LocalOnly)
	assert.Equal(t, "50", c.OutstandingTotal.String())
	assert.Equal(t, 1, c.PendingInvoices)

	inv, err := s.Returns().Invoice(ctx, "SINV-1")
	require.NoError(t, err)
	assert.Equal(t, "CUST-0007", inv.Customer)

	var party string
	require.NoError(t, s.DB().Get(&party, `SELECT party FROM payment_entries WHERE name = 'PE-1'`))
	assert.Equal(t, "CUST-0007", party)

	entries, err := repo.List(ctx, outbox.ListFilter{Statuses: []outbox.Status{outbox.StatusSynced}})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		require.NotNil(t, e.RemoteID)
		assert.Equal(t, "CUST-0007", *e.RemoteID)
	}

	// The promoted customer still exists, so nothing is pruned.
	pruned, err := repo.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, pruned)
}

func TestOutboxRepository_PromoteRollsBackOnCascadeFailure(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	repo := s.Outbox()
	now := time.Now().UTC()

	require.NoError(t, s.Customers().SaveLocal(ctx, Customer{Name: "LOCAL-c2"}, json.RawMessage(`{}`)))
	require.NoError(t, repo.Insert(ctx, newEntry("e1", outbox.EntityCustomer, "LOCAL-c2", now)))

	_, err := repo.Promote(ctx, outbox.EntityCustomer, "LOCAL-c2", "CUST-9", now, func(tx outbox.Tx) error {
		if err := tx.RenameCustomer(ctx, "LOCAL-c2", "CUST-9"); err != nil {
			return err
		}
		return errors.New("boom")
	})

	require.Error(t, err)
	_, err = s.Customers().Get(ctx, "LOCAL-c2")
	assert.NoError(t, err)
	pushable, err := repo.Pushable(ctx)
	require.NoError(t, err)
	assert.Len(t, pushable, 1)
}

func TestOutboxRepository_PromoteOpeningEntryCascades(t *testing.T) {
	// Arrange
	ctx := context.Background()
	s := newTestStorage(t)
	sessions := s.Sessions()
	repo := s.Outbox()
	now := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	placeholder := erp.NewPlaceholder()

	sess := &session.Session{
		LocalID:        "sess-1",
		POSProfile:     "Main",
		Status:         session.StatusOpen,
		OpeningEntryID: placeholder,
		OpenedAt:       now,
	}
	require.NoError(t, sessions.Create(ctx, sess, erp.OpeningEntry{Name: placeholder, POSProfile: "Main"}))
	require.NoError(t, s.Returns().UpsertInvoice(ctx, erp.Invoice{
		Name:         "SINV-1",
		POSProfile:   "Main",
		OpeningEntry: placeholder,
		PostingDate:  "2026-10-01",
		DocStatus:    erp.DocStatusSubmitted,
	}))
	require.NoError(t, repo.Insert(ctx, newEntry("e1", outbox.EntityOpeningEntry, placeholder, now)))

	// Act
	_, err := repo.Promote(ctx, outbox.EntityOpeningEntry, placeholder, "POS-OPE-0001", now, func(tx outbox.Tx) error {
		return tx.PromoteOpeningEntry(ctx, placeholder, "POS-OPE-0001")
	})

	// Assert
	require.NoError(t, err)

	linked, err := sessions.LinkedOpening(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "POS-OPE-0001", linked)

	got, err := sessions.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "POS-OPE-0001", got.OpeningEntryID)

	opening, err := sessions.OpeningEntry(ctx, "POS-OPE-0001")
	require.NoError(t, err)
	assert.Equal(t, erp.DocStatusSubmitted, opening.DocStatus)
	_, err = sessions.OpeningEntry(ctx, placeholder)
	assert.ErrorIs(t, err, session.ErrOpeningNotFound)

	invoices, err := sessions.InvoicesForOpening(ctx, "POS-OPE-0001")
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.Equal(t, "POS-OPE-0001", invoices[0].OpeningEntry)

	var leftovers int
	require.NoError(t, s.DB().Get(&leftovers,
		`SELECT COUNT(*) FROM invoices WHERE opening_entry = ? OR payload LIKE '%' || ? || '%'`, placeholder, placeholder))
	assert.Zero(t, leftovers)
}

func TestOutboxRepository_PruneDropsOrphans(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	repo := s.Outbox()
	now := time.Now().UTC()

	require.NoError(t, s.Customers().SaveLocal(ctx, Customer{Name: "LOCAL-kept"}, json.RawMessage(`{}`)))
	require.NoError(t, repo.Insert(ctx, newEntry("kept", outbox.EntityCustomer, "LOCAL-kept", now)))
	require.NoError(t, repo.Insert(ctx, newEntry("orphan", outbox.EntityCustomer, "LOCAL-gone", now)))
	require.NoError(t, repo.Insert(ctx, newEntry("orphan-opening", outbox.EntityOpeningEntry, "LOCAL-open", now)))

	n, err := repo.Prune(ctx)

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	all, err := repo.List(ctx, outbox.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "kept", all[0].LocalID)
}

// flakySubmitBackend fails the first submit and counts created documents.
type flakySubmitBackend struct {
	created   int
	submitted []string
}

func (b *flakySubmitBackend) CreateDocument(context.Context, string, any) (string, error) {
	b.created++
	return "POS-OPE-0001", nil
}

func (b *flakySubmitBackend) SubmitDocument(_ context.Context, _ string, name string) error {
	b.submitted = append(b.submitted, name)
	if len(b.submitted) == 1 {
		return errors.New("lock wait timeout")
	}
	return nil
}

func (b *flakySubmitBackend) GetDocumentsForParent(context.Context, string, string, string) ([]json.RawMessage, error) {
	return nil, nil
}

func TestOutboxRepository_OpeningEntrySubmitRetry(t *testing.T) {
	// Arrange
	ctx := context.Background()
	s := newTestStorage(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	backend := &flakySubmitBackend{}
	queue := outbox.NewService(s.Outbox(), outbox.DefaultHandlers(backend), log)
	sessions := session.NewService(s.Sessions(), backend, queue, log)

	sess, err := sessions.OpenSession(ctx, session.OpenRequest{POSProfile: "Main", Company: "Acme"})
	require.NoError(t, err)

	// Act
	first, err := queue.PushPending(ctx)
	require.NoError(t, err)
	pending, err := s.Outbox().Pushable(ctx)
	require.NoError(t, err)
	second, err := queue.PushPending(ctx)
	require.NoError(t, err)

	// Assert
	assert.False(t, first)
	require.Len(t, pending, 1)
	require.NotNil(t, pending[0].RemoteDraft)
	assert.Equal(t, "POS-OPE-0001", *pending[0].RemoteDraft)

	assert.True(t, second)
	assert.Equal(t, 1, backend.created)
	assert.Equal(t, []string{"POS-OPE-0001", "POS-OPE-0001"}, backend.submitted)

	got, err := s.Sessions().Get(ctx, sess.LocalID)
	require.NoError(t, err)
	assert.Equal(t, "POS-OPE-0001", got.OpeningEntryID)

	pending, err = s.Outbox().Pushable(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestOutboxRepository_SaveDraft(t *testing.T) {
	ctx := context.Background()
	repo := newTestStorage(t).Outbox()
	require.NoError(t, repo.Insert(ctx, newEntry("e1", outbox.EntityOpeningEntry, "LOCAL-open", time.Now().UTC())))

	require.NoError(t, repo.SaveDraft(ctx, "e1", "POS-OPE-0009"))

	pushable, err := repo.Pushable(ctx)
	require.NoError(t, err)
	require.Len(t, pushable, 1)
	require.NotNil(t, pushable[0].RemoteDraft)
	assert.Equal(t, "POS-OPE-0009", *pushable[0].RemoteDraft)
	assert.ErrorIs(t, repo.SaveDraft(ctx, "missing", "x"), outbox.ErrEntryNotFound)
}
