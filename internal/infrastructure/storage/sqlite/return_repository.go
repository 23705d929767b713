package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"posclient/internal/domain/erp"
	"posclient/internal/domain/returns"
	"posclient/internal/domain/snapshot"
)

// ReturnRepository reads cached invoices and profiles and stores return documents.
type ReturnRepository struct {
	db *sqlx.DB
}

func NewReturnRepository(db *sqlx.DB) *ReturnRepository {
	return &ReturnRepository{db: db}
}

func (r *ReturnRepository) Invoice(ctx context.Context, name string) (*erp.Invoice, error) {
	var payload string
	err := r.db.GetContext(ctx, &payload, `SELECT payload FROM invoices WHERE name = ? AND deleted = 0`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, returns.ErrInvoiceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load invoice: %w", err)
	}

	var inv erp.Invoice
	if err := json.Unmarshal([]byte(payload), &inv); err != nil {
		return nil, fmt.Errorf("decode invoice %s: %w", name, err)
	}
	return &inv, nil
}

func (r *ReturnRepository) Profile(ctx context.Context, name string) (*erp.Profile, error) {
	var payload string
	err := r.db.GetContext(ctx, &payload,
		`SELECT payload FROM entities WHERE kind = ? AND key = ? AND deleted = 0`,
		string(snapshot.SectionProfiles), name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, returns.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}

	var p erp.Profile
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", name, err)
	}
	return &p, nil
}

func (r *ReturnRepository) SaveCreditNote(ctx context.Context, note erp.Invoice) error {
	return r.UpsertInvoice(ctx, note)
}

// UpsertInvoice stores a remote invoice and refreshes its customer's outstanding total.
func (r *ReturnRepository) UpsertInvoice(ctx context.Context, inv erp.Invoice) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := upsertInvoice(ctx, tx, inv, nil, false, "", time.Now().UTC()); err != nil {
			return err
		}
		return recomputeOutstanding(ctx, tx, []string{inv.Customer})
	})
}

func (r *ReturnRepository) SetOutstanding(ctx context.Context, invoiceName string, amount decimal.Decimal) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var customer string
		err := tx.GetContext(ctx, &customer, `SELECT customer FROM invoices WHERE name = ?`, invoiceName)
		if errors.Is(err, sql.ErrNoRows) {
			return returns.ErrInvoiceNotFound
		}
		if err != nil {
			return fmt.Errorf("load invoice: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE invoices
			SET outstanding_amount = ?, payload = json_set(payload, '$.outstanding_amount', json(?)), updated_at = ?
			WHERE name = ?`,
			amount, amount.String(), time.Now().UTC(), invoiceName,
		); err != nil {
			return fmt.Errorf("set outstanding of %s: %w", invoiceName, err)
		}
		return recomputeOutstanding(ctx, tx, []string{customer})
	})
}

func (r *ReturnRepository) SavePaymentEntry(ctx context.Context, pe erp.PaymentEntry) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		return upsertPaymentEntry(ctx, tx, pe, nil, "", time.Now().UTC())
	})
}
