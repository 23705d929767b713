package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/exp/slog"

	"posclient/internal/domain/outbox"
)

// OutboxRepository persists outbox entries and runs promotions with their cascades.
type OutboxRepository struct {
	db  *sqlx.DB
	log *slog.Logger
}

func NewOutboxRepository(db *sqlx.DB, log *slog.Logger) *OutboxRepository {
	return &OutboxRepository{
		db:  db,
		log: log.With("component", "outbox_repository"),
	}
}

const outboxColumns = `local_id, entity_type, entity_local_id, payload, status, attempts,
	last_error, remote_id, remote_draft, conflict, created_at, last_attempt_at`

func (r *OutboxRepository) Insert(ctx context.Context, e *outbox.Entry) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO outbox (`+outboxColumns+`)
		VALUES (:local_id, :entity_type, :entity_local_id, :payload, :status, :attempts,
		        :last_error, :remote_id, :remote_draft, :conflict, :created_at, :last_attempt_at)`, e)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

func (r *OutboxRepository) Pushable(ctx context.Context) ([]outbox.Entry, error) {
	var entries []outbox.Entry
	err := r.db.SelectContext(ctx, &entries, `
		SELECT `+outboxColumns+` FROM outbox
		WHERE remote_id IS NULL AND conflict = 0
		ORDER BY created_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("load pushable entries: %w", err)
	}
	return entries, nil
}

func (r *OutboxRepository) List(ctx context.Context, filter outbox.ListFilter) ([]outbox.Entry, error) {
	var (
		where []string
		args  []any
	)
	if len(filter.Statuses) > 0 {
		where = append(where, "status IN (?)")
		args = append(args, filter.Statuses)
	}
	if filter.ConflictOnly {
		where = append(where, "conflict = 1")
	}

	query := `SELECT ` + outboxColumns + ` FROM outbox`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, rowid"

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("build outbox query: %w", err)
	}

	var entries []outbox.Entry
	if err := r.db.SelectContext(ctx, &entries, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list outbox entries: %w", err)
	}
	return entries, nil
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, localID, message string, conflict bool, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE outbox
		SET attempts = attempts + 1,
		    last_error = ?,
		    last_attempt_at = ?,
		    status = ?,
		    conflict = (conflict OR ?)
		WHERE local_id = ?`,
		message, at.UTC(), outbox.StatusFailed, conflict, localID,
	)
	if err != nil {
		return fmt.Errorf("mark entry failed: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return outbox.ErrEntryNotFound
	}
	return nil
}

func (r *OutboxRepository) SaveDraft(ctx context.Context, localID, name string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE outbox SET remote_draft = ? WHERE local_id = ?`, name, localID)
	if err != nil {
		return fmt.Errorf("save remote draft: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return outbox.ErrEntryNotFound
	}
	return nil
}

// Promote records remoteID on every unsynced entry of the entity and runs cascade in
// the same transaction. Nothing is written when cascade fails.
func (r *OutboxRepository) Promote(ctx context.Context, entityType, entityLocalID, remoteID string, at time.Time, cascade func(outbox.Tx) error) (int, error) {
	var updated int64
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if cascade != nil {
			if err := cascade(&promoteTx{tx: tx, now: at.UTC()}); err != nil {
				return fmt.Errorf("cascade %s %s: %w", entityType, entityLocalID, err)
			}
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE outbox
			SET remote_id = ?, status = ?, last_error = NULL, last_attempt_at = ?
			WHERE entity_type = ? AND entity_local_id = ? AND remote_id IS NULL`,
			remoteID, outbox.StatusSynced, at.UTC(), entityType, entityLocalID,
		)
		if err != nil {
			return fmt.Errorf("record remote id: %w", err)
		}
		updated, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}

	r.log.Debug("promoted entity", "entity_type", entityType, "local_id", entityLocalID, "remote_id", remoteID, "entries", updated)
	return int(updated), nil
}

// Prune deletes entries whose entity is gone: customers by name, opening entries by
// the session referencing them. Synced entries are matched by their remote id.
func (r *OutboxRepository) Prune(ctx context.Context) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM outbox
		WHERE (entity_type = ? AND NOT EXISTS (
		          SELECT 1 FROM customers c
		          WHERE c.name = COALESCE(outbox.remote_id, outbox.entity_local_id)))
		   OR (entity_type = ? AND NOT EXISTS (
		          SELECT 1 FROM sessions s
		          WHERE s.opening_entry = COALESCE(outbox.remote_id, outbox.entity_local_id)))`,
		outbox.EntityCustomer, outbox.EntityOpeningEntry,
	)
	if err != nil {
		return 0, fmt.Errorf("prune outbox: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// promoteTx performs cascading renames inside a promotion transaction.
type promoteTx struct {
	tx  *sqlx.Tx
	now time.Time
}

func (p *promoteTx) RenameCustomer(ctx context.Context, localID, remoteID string) error {
	var exists bool
	if err := p.tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM customers WHERE name = ?)`, remoteID); err != nil {
		return fmt.Errorf("lookup customer %s: %w", remoteID, err)
	}

	if exists {
		// The snapshot already delivered the remote customer.
		if _, err := p.tx.ExecContext(ctx, `DELETE FROM customers WHERE name = ?`, localID); err != nil {
			return fmt.Errorf("drop local customer %s: %w", localID, err)
		}
	} else {
		_, err := p.tx.ExecContext(ctx, `
			UPDATE customers
			SET name = ?, local_only = 0, payload = json_set(payload, '$.name', ?), updated_at = ?
			WHERE name = ?`,
			remoteID, remoteID, p.now, localID,
		)
		if err != nil {
			return fmt.Errorf("rename customer %s: %w", localID, err)
		}
	}

	if _, err := p.tx.ExecContext(ctx,
		`UPDATE invoices SET customer = ?, payload = json_set(payload, '$.customer', ?) WHERE customer = ?`,
		remoteID, remoteID, localID,
	); err != nil {
		return fmt.Errorf("rename invoice customer: %w", err)
	}
	if _, err := p.tx.ExecContext(ctx,
		`UPDATE payment_entries SET party = ?, payload = json_set(payload, '$.party', ?) WHERE party = ?`,
		remoteID, remoteID, localID,
	); err != nil {
		return fmt.Errorf("rename payment party: %w", err)
	}

	return recomputeOutstanding(ctx, p.tx, []string{remoteID})
}

func (p *promoteTx) PromoteOpeningEntry(ctx context.Context, localID, remoteID string) error {
	if _, err := p.tx.ExecContext(ctx, `
		INSERT INTO session_links (session_local_id, opening_entry, linked_at)
		SELECT local_id, ?, ? FROM sessions WHERE opening_entry = ?
		ON CONFLICT(session_local_id) DO UPDATE SET
			opening_entry = excluded.opening_entry,
			linked_at = excluded.linked_at`,
		remoteID, p.now, localID,
	); err != nil {
		return fmt.Errorf("link session: %w", err)
	}

	renames := []struct {
		what  string
		query string
	}{
		{"sessions", `UPDATE sessions SET opening_entry = ? WHERE opening_entry = ?`},
		{"invoices", `UPDATE invoices SET opening_entry = ?, payload = json_set(payload, '$.pos_opening_entry', ?) WHERE opening_entry = ?`},
		{"payment entries", `UPDATE payment_entries SET opening_entry = ?, payload = json_set(payload, '$.pos_opening_entry', ?) WHERE opening_entry = ?`},
		{"closing entries", `UPDATE closing_entries SET opening_entry = ?, payload = json_set(payload, '$.pos_opening_entry', ?) WHERE opening_entry = ?`},
	}
	for _, rn := range renames {
		args := []any{remoteID, remoteID, localID}
		if rn.what == "sessions" {
			args = []any{remoteID, localID}
		}
		if _, err := p.tx.ExecContext(ctx, rn.query, args...); err != nil {
			return fmt.Errorf("rename opening entry in %s: %w", rn.what, err)
		}
	}

	var exists bool
	if err := p.tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM opening_entries WHERE name = ?)`, remoteID); err != nil {
		return fmt.Errorf("lookup opening entry %s: %w", remoteID, err)
	}
	if exists {
		_, err := p.tx.ExecContext(ctx, `DELETE FROM opening_entries WHERE name = ?`, localID)
		return err
	}
	_, err := p.tx.ExecContext(ctx, `
		UPDATE opening_entries
		SET name = ?, docstatus = 1, payload = json_set(payload, '$.name', ?, '$.docstatus', 1), updated_at = ?
		WHERE name = ?`,
		remoteID, remoteID, p.now, localID,
	)
	if err != nil {
		return fmt.Errorf("rename opening entry: %w", err)
	}
	return nil
}
