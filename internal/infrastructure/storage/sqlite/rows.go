package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"posclient/internal/domain/erp"
)

// inChunk bounds the number of bound variables in one IN list.
const inChunk = 500

// prune removes rows of table matching scope that the current replace did not touch:
// rows already soft-deleted are hard-deleted, active ones are soft-deleted.
func prune(ctx context.Context, tx *sqlx.Tx, table, scope, stamp string, now time.Time, scopeArgs ...any) (int64, error) {
	hard := fmt.Sprintf(`DELETE FROM %s WHERE %s AND deleted = 1 AND sync_stamp <> ?`, table, scope)
	if _, err := tx.ExecContext(ctx, hard, append(slices.Clone(scopeArgs), stamp)...); err != nil {
		return 0, fmt.Errorf("purge %s: %w", table, err)
	}

	soft := fmt.Sprintf(`UPDATE %s SET deleted = 1, updated_at = ? WHERE %s AND deleted = 0 AND sync_stamp <> ?`, table, scope)
	args := append([]any{now}, scopeArgs...)
	res, err := tx.ExecContext(ctx, soft, append(args, stamp)...)
	if err != nil {
		return 0, fmt.Errorf("soft-delete %s: %w", table, err)
	}
	return res.RowsAffected()
}

const upsertInvoiceQuery = `
	INSERT INTO invoices (name, customer, pos_profile, opening_entry, posted_at, grand_total,
	                      outstanding_amount, docstatus, is_return, return_against, local_only,
	                      payload, deleted, sync_stamp, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
	ON CONFLICT(name) DO UPDATE SET
		customer = excluded.customer,
		pos_profile = excluded.pos_profile,
		opening_entry = excluded.opening_entry,
		posted_at = excluded.posted_at,
		grand_total = excluded.grand_total,
		outstanding_amount = excluded.outstanding_amount,
		docstatus = excluded.docstatus,
		is_return = excluded.is_return,
		return_against = excluded.return_against,
		local_only = excluded.local_only,
		payload = excluded.payload,
		deleted = 0,
		sync_stamp = excluded.sync_stamp,
		updated_at = excluded.updated_at`

func upsertInvoice(ctx context.Context, tx *sqlx.Tx, inv erp.Invoice, payload json.RawMessage, localOnly bool, stamp string, now time.Time) error {
	if payload == nil {
		raw, err := json.Marshal(inv)
		if err != nil {
			return fmt.Errorf("encode invoice %s: %w", inv.Name, err)
		}
		payload = raw
	}

	_, err := tx.ExecContext(ctx, upsertInvoiceQuery,
		inv.Name,
		inv.Customer,
		inv.POSProfile,
		inv.OpeningEntry,
		postedAt(inv.PostingDate, inv.PostingTime, now),
		inv.GrandTotal,
		inv.OutstandingAmount,
		inv.DocStatus,
		bool(inv.IsReturn),
		inv.ReturnAgainst,
		localOnly,
		string(payload),
		stamp,
		now,
	)
	if err != nil {
		return fmt.Errorf("upsert invoice %s: %w", inv.Name, err)
	}
	return nil
}

const upsertPaymentEntryQuery = `
	INSERT INTO payment_entries (name, party, opening_entry, payment_type, paid_amount, docstatus,
	                             local_only, payload, deleted, sync_stamp, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
	ON CONFLICT(name) DO UPDATE SET
		party = excluded.party,
		opening_entry = excluded.opening_entry,
		payment_type = excluded.payment_type,
		paid_amount = excluded.paid_amount,
		docstatus = excluded.docstatus,
		local_only = excluded.local_only,
		payload = excluded.payload,
		deleted = 0,
		sync_stamp = excluded.sync_stamp,
		updated_at = excluded.updated_at`

func upsertPaymentEntry(ctx context.Context, tx *sqlx.Tx, pe erp.PaymentEntry, payload json.RawMessage, stamp string, now time.Time) error {
	if payload == nil {
		raw, err := json.Marshal(pe)
		if err != nil {
			return fmt.Errorf("encode payment entry %s: %w", pe.Name, err)
		}
		payload = raw
	}

	_, err := tx.ExecContext(ctx, upsertPaymentEntryQuery,
		pe.Name,
		pe.Party,
		pe.OpeningEntry,
		pe.PaymentType,
		pe.PaidAmount,
		pe.DocStatus,
		erp.IsPlaceholder(pe.Name),
		string(payload),
		stamp,
		now,
	)
	if err != nil {
		return fmt.Errorf("upsert payment entry %s: %w", pe.Name, err)
	}
	return nil
}

// recomputeOutstanding refreshes outstanding_total and pending_invoices of customers
// from their submitted invoices. Credit notes raised against an invoice are already
// reflected in that invoice's outstanding amount and are left out.
func recomputeOutstanding(ctx context.Context, tx *sqlx.Tx, customers []string) error {
	names := slices.Clone(customers)
	slices.Sort(names)
	names = slices.Compact(names)
	if len(names) > 0 && names[0] == "" {
		names = names[1:]
	}

	for start := 0; start < len(names); start += inChunk {
		chunk := names[start:min(start+inChunk, len(names))]

		query, args, err := sqlx.In(`
			SELECT customer, outstanding_amount
			FROM invoices
			WHERE deleted = 0 AND docstatus = 1 AND customer IN (?)
			  AND NOT (is_return = 1 AND return_against <> '')`, chunk)
		if err != nil {
			return fmt.Errorf("build outstanding query: %w", err)
		}

		var rows []struct {
			Customer    string          `db:"customer"`
			Outstanding decimal.Decimal `db:"outstanding_amount"`
		}
		if err := tx.SelectContext(ctx, &rows, tx.Rebind(query), args...); err != nil {
			return fmt.Errorf("load outstanding amounts: %w", err)
		}

		totals := make(map[string]decimal.Decimal, len(chunk))
		pending := make(map[string]int, len(chunk))
		for _, r := range rows {
			totals[r.Customer] = totals[r.Customer].Add(r.Outstanding)
			if r.Outstanding.IsPositive() {
				pending[r.Customer]++
			}
		}

		for _, name := range chunk {
			if _, err := tx.ExecContext(ctx,
				`UPDATE customers SET outstanding_total = ?, pending_invoices = ? WHERE name = ?`,
				totals[name], pending[name], name,
			); err != nil {
				return fmt.Errorf("update outstanding of %s: %w", name, err)
			}
		}
	}
	return nil
}

// postedAt combines the backend posting date and time. Rows without a usable date
// fall back to when they were stored.
func postedAt(date, clock string, fallback time.Time) time.Time {
	if date == "" {
		return fallback.UTC()
	}
	if clock != "" {
		clock, _, _ = strings.Cut(clock, ".")
		if t, err := time.Parse("2006-01-02 15:04:05", date+" "+clock); err == nil {
			return t
		}
	}
	if t, err := time.Parse("2006-01-02", date); err == nil {
		return t
	}
	return fallback.UTC()
}

func decodeInvoices(payloads []string) ([]erp.Invoice, error) {
	out := make([]erp.Invoice, 0, len(payloads))
	for _, p := range payloads {
		var inv erp.Invoice
		if err := json.Unmarshal([]byte(p), &inv); err != nil {
			return nil, fmt.Errorf("decode invoice: %w", err)
		}
		out = append(out, inv)
	}
	return out, nil
}
