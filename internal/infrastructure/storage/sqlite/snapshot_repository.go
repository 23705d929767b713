package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/exp/slog"

	"posclient/internal/domain/erp"
	"posclient/internal/domain/snapshot"
)

// SnapshotRepository writes snapshot sections. Each call is one transaction: rows
// are upserted under a fresh sync stamp, and pruning touches only rows that did not
// receive it.
type SnapshotRepository struct {
	db  *sqlx.DB
	log *slog.Logger
	now func() time.Time
}

func NewSnapshotRepository(db *sqlx.DB, log *slog.Logger) *SnapshotRepository {
	return &SnapshotRepository{
		db:  db,
		log: log.With("component", "snapshot_repository"),
		now: time.Now,
	}
}

func (r *SnapshotRepository) ReplaceEntities(ctx context.Context, kind snapshot.Section, rows []snapshot.Entity, prunes bool) (int, error) {
	stamp, now := uuid.NewString(), r.now().UTC()

	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, `
			INSERT INTO entities (kind, key, payload, deleted, sync_stamp, updated_at)
			VALUES (?, ?, ?, 0, ?, ?)
			ON CONFLICT(kind, key) DO UPDATE SET
				payload = excluded.payload,
				deleted = 0,
				sync_stamp = excluded.sync_stamp,
				updated_at = excluded.updated_at`)
		if err != nil {
			return fmt.Errorf("prepare entity upsert: %w", err)
		}
		defer stmt.Close()

		for _, e := range rows {
			if _, err := stmt.ExecContext(ctx, string(kind), e.Key, string(e.Payload), stamp, now); err != nil {
				return fmt.Errorf("upsert %s %q: %w", kind, e.Key, err)
			}
		}

		if !prunes {
			return nil
		}
		removed, err := prune(ctx, tx, "entities", "kind = ?", stamp, now, string(kind))
		if err != nil {
			return err
		}
		r.log.Debug("pruned entities", "section", kind, "soft_deleted", removed)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// ReplaceExchangeRates swaps the whole cross-rate table.
func (r *SnapshotRepository) ReplaceExchangeRates(ctx context.Context, rates []erp.CrossRate) (int, error) {
	now := r.now().UTC()

	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM exchange_rates`); err != nil {
			return fmt.Errorf("clear exchange rates: %w", err)
		}
		for _, rate := range rates {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO exchange_rates (from_currency, to_currency, rate, updated_at) VALUES (?, ?, ?, ?)`,
				rate.From, rate.To, rate.Rate, now,
			); err != nil {
				return fmt.Errorf("insert rate %s->%s: %w", rate.From, rate.To, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(rates), nil
}

// ReplaceCustomers upserts remote customers. Customers created offline and not yet
// pushed are never pruned.
func (r *SnapshotRepository) ReplaceCustomers(ctx context.Context, rows []snapshot.CustomerRecord, prunes bool) (int, error) {
	stamp, now := uuid.NewString(), r.now().UTC()

	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		for _, c := range rows {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO customers (name, customer_name, customer_group, territory, credit_limit,
				                       receivable_account, local_only, payload, deleted, sync_stamp, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, 0, ?, 0, ?, ?)
				ON CONFLICT(name) DO UPDATE SET
					customer_name = excluded.customer_name,
					customer_group = excluded.customer_group,
					territory = excluded.territory,
					credit_limit = excluded.credit_limit,
					receivable_account = excluded.receivable_account,
					local_only = 0,
					payload = excluded.payload,
					deleted = 0,
					sync_stamp = excluded.sync_stamp,
					updated_at = excluded.updated_at`,
				c.Name, c.CustomerName, c.CustomerGroup, c.Territory, c.CreditLimit,
				c.ReceivableAccount, string(c.Payload), stamp, now,
			)
			if err != nil {
				return fmt.Errorf("upsert customer %s: %w", c.Name, err)
			}
		}

		if !prunes {
			return nil
		}
		_, err := prune(ctx, tx, "customers", "local_only = 0", stamp, now)
		return err
	})
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// ReplaceInvoices upserts remote invoices, prunes remote ones that disappeared and
// recomputes the outstanding totals of every customer the new set references.
func (r *SnapshotRepository) ReplaceInvoices(ctx context.Context, rows []snapshot.InvoiceRecord, prunes bool) (int, error) {
	stamp, now := uuid.NewString(), r.now().UTC()

	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		customers := make([]string, 0, len(rows))
		for _, rec := range rows {
			if err := upsertInvoice(ctx, tx, rec.Invoice, rec.Payload, false, stamp, now); err != nil {
				return err
			}
			customers = append(customers, rec.Invoice.Customer)
		}

		if prunes {
			if _, err := prune(ctx, tx, "invoices", "local_only = 0", stamp, now); err != nil {
				return err
			}
		}
		return recomputeOutstanding(ctx, tx, customers)
	})
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (r *SnapshotRepository) ReplacePaymentEntries(ctx context.Context, rows []snapshot.PaymentEntryRecord, prunes bool) (int, error) {
	stamp, now := uuid.NewString(), r.now().UTC()

	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		for _, rec := range rows {
			if err := upsertPaymentEntry(ctx, tx, rec.Entry, rec.Payload, stamp, now); err != nil {
				return err
			}
		}
		if !prunes {
			return nil
		}
		_, err := prune(ctx, tx, "payment_entries", "local_only = 0", stamp, now)
		return err
	})
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (r *SnapshotRepository) CacheSnapshot(ctx context.Context, raw json.RawMessage, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO snapshot_cache (id, payload, cached_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET payload = excluded.payload, cached_at = excluded.cached_at`,
		string(raw), at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("cache snapshot: %w", err)
	}
	return nil
}

// Entities returns the active rows of a section, ordered by key.
func (r *SnapshotRepository) Entities(ctx context.Context, kind snapshot.Section) ([]snapshot.Entity, error) {
	var rows []struct {
		Key     string `db:"key"`
		Payload string `db:"payload"`
	}
	err := r.db.SelectContext(ctx, &rows,
		`SELECT key, payload FROM entities WHERE kind = ? AND deleted = 0 ORDER BY key`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}

	out := make([]snapshot.Entity, 0, len(rows))
	for _, row := range rows {
		out = append(out, snapshot.Entity{Key: row.Key, Payload: json.RawMessage(row.Payload)})
	}
	return out, nil
}

// ExchangeRate returns the stored cross rate for a pair.
func (r *SnapshotRepository) ExchangeRate(ctx context.Context, from, to string) (float64, error) {
	var rate float64
	err := r.db.GetContext(ctx, &rate,
		`SELECT rate FROM exchange_rates WHERE from_currency = ? AND to_currency = ?`, from, to)
	if err != nil {
		return 0, fmt.Errorf("rate %s->%s: %w", from, to, err)
	}
	return rate, nil
}
