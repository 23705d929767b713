package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"posclient/internal/domain/erp"
	"posclient/internal/domain/session"
)

// SessionRepository persists cash-drawer sessions with their opening and closing records.
type SessionRepository struct {
	db *sqlx.DB
}

func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

type sessionRow struct {
	LocalID        string       `db:"local_id"`
	POSProfile     string       `db:"pos_profile"`
	Company        string       `db:"company"`
	User           string       `db:"user"`
	Status         string       `db:"status"`
	OpeningEntry   string       `db:"opening_entry"`
	ClosingEntry   string       `db:"closing_entry"`
	OpenedAt       time.Time    `db:"opened_at"`
	ClosedAt       sql.NullTime `db:"closed_at"`
	BalanceDetails string       `db:"balance_details"`
	PendingSync    bool         `db:"pending_sync"`
}

func (r sessionRow) toSession() (session.Session, error) {
	s := session.Session{
		LocalID:        r.LocalID,
		POSProfile:     r.POSProfile,
		Company:        r.Company,
		User:           r.User,
		Status:         session.Status(r.Status),
		OpeningEntryID: r.OpeningEntry,
		ClosingEntryID: r.ClosingEntry,
		OpenedAt:       r.OpenedAt,
		PendingSync:    r.PendingSync,
	}
	if r.ClosedAt.Valid {
		at := r.ClosedAt.Time
		s.ClosedAt = &at
	}
	if err := json.Unmarshal([]byte(r.BalanceDetails), &s.BalanceDetails); err != nil {
		return session.Session{}, fmt.Errorf("decode balance details of %s: %w", r.LocalID, err)
	}
	return s, nil
}

const sessionColumns = `local_id, pos_profile, company, user, status, opening_entry, closing_entry,
	opened_at, closed_at, balance_details, pending_sync`

func (r *SessionRepository) Create(ctx context.Context, s *session.Session, opening erp.OpeningEntry) error {
	balances, err := json.Marshal(nonNil(s.BalanceDetails))
	if err != nil {
		return fmt.Errorf("encode balance details: %w", err)
	}

	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		row := sessionRow{
			LocalID:        s.LocalID,
			POSProfile:     s.POSProfile,
			Company:        s.Company,
			User:           s.User,
			Status:         string(s.Status),
			OpeningEntry:   s.OpeningEntryID,
			ClosingEntry:   s.ClosingEntryID,
			OpenedAt:       s.OpenedAt.UTC(),
			BalanceDetails: string(balances),
			PendingSync:    s.PendingSync,
		}
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO sessions (`+sessionColumns+`)
			VALUES (:local_id, :pos_profile, :company, :user, :status, :opening_entry, :closing_entry,
			        :opened_at, :closed_at, :balance_details, :pending_sync)`, row); err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		return saveOpening(ctx, tx, opening)
	})
}

func (r *SessionRepository) Get(ctx context.Context, localID string) (*session.Session, error) {
	var row sessionRow
	err := r.db.GetContext(ctx, &row, `SELECT `+sessionColumns+` FROM sessions WHERE local_id = ?`, localID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	s, err := row.toSession()
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SessionRepository) Active(ctx context.Context) ([]session.Session, error) {
	return r.list(ctx, `WHERE status = ? ORDER BY opened_at`, session.StatusOpen)
}

func (r *SessionRepository) PendingClosings(ctx context.Context) ([]session.Session, error) {
	return r.list(ctx, `WHERE status = ? AND pending_sync = 1 ORDER BY closed_at`, session.StatusClosed)
}

// All returns every session, newest first.
func (r *SessionRepository) All(ctx context.Context) ([]session.Session, error) {
	return r.list(ctx, `ORDER BY opened_at DESC`)
}

func (r *SessionRepository) list(ctx context.Context, clause string, args ...any) ([]session.Session, error) {
	var rows []sessionRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT `+sessionColumns+` FROM sessions `+clause, args...); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	out := make([]session.Session, 0, len(rows))
	for _, row := range rows {
		s, err := row.toSession()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *SessionRepository) LinkedOpening(ctx context.Context, sessionLocalID string) (string, error) {
	var name string
	err := r.db.GetContext(ctx, &name, `SELECT opening_entry FROM session_links WHERE session_local_id = ?`, sessionLocalID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load session link: %w", err)
	}
	return name, nil
}

func (r *SessionRepository) OpeningEntry(ctx context.Context, name string) (*erp.OpeningEntry, error) {
	var payload string
	err := r.db.GetContext(ctx, &payload, `SELECT payload FROM opening_entries WHERE name = ?`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrOpeningNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load opening entry: %w", err)
	}

	var e erp.OpeningEntry
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return nil, fmt.Errorf("decode opening entry %s: %w", name, err)
	}
	e.Name = name
	return &e, nil
}

func (r *SessionRepository) SaveOpeningEntry(ctx context.Context, e erp.OpeningEntry) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		return saveOpening(ctx, tx, e)
	})
}

func saveOpening(ctx context.Context, tx *sqlx.Tx, e erp.OpeningEntry) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode opening entry: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO opening_entries (name, docstatus, payload, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			docstatus = excluded.docstatus,
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
		e.Name, e.DocStatus, string(payload), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save opening entry %s: %w", e.Name, err)
	}
	return nil
}

func saveClosing(ctx context.Context, tx *sqlx.Tx, c erp.ClosingEntry) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode closing entry: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO closing_entries (name, opening_entry, docstatus, payload, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			opening_entry = excluded.opening_entry,
			docstatus = excluded.docstatus,
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
		c.Name, c.OpeningEntry, c.DocStatus, string(payload), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save closing entry %s: %w", c.Name, err)
	}
	return nil
}

func (r *SessionRepository) CloseLocally(ctx context.Context, localID string, closedAt time.Time, balances []erp.BalanceDetail, closing erp.ClosingEntry) error {
	encoded, err := json.Marshal(nonNil(balances))
	if err != nil {
		return fmt.Errorf("encode balance details: %w", err)
	}

	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE sessions
			SET status = ?, closed_at = ?, closing_entry = ?, balance_details = ?, pending_sync = 1
			WHERE local_id = ? AND status = ?`,
			session.StatusClosed, closedAt.UTC(), closing.Name, string(encoded), localID, session.StatusOpen,
		)
		if err != nil {
			return fmt.Errorf("close session: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return session.ErrSessionNotFound
		}
		return saveClosing(ctx, tx, closing)
	})
}

func (r *SessionRepository) InvoicesForOpening(ctx context.Context, openingEntry string) ([]erp.Invoice, error) {
	var payloads []string
	err := r.db.SelectContext(ctx, &payloads, `
		SELECT payload FROM invoices
		WHERE opening_entry = ? AND deleted = 0
		ORDER BY posted_at, name`, openingEntry)
	if err != nil {
		return nil, fmt.Errorf("load invoices of %s: %w", openingEntry, err)
	}
	return decodeInvoices(payloads)
}

func (r *SessionRepository) InvoicesInWindow(ctx context.Context, profile string, from, to time.Time) ([]erp.Invoice, error) {
	var payloads []string
	err := r.db.SelectContext(ctx, &payloads, `
		SELECT payload FROM invoices
		WHERE pos_profile = ? AND posted_at >= ? AND posted_at <= ? AND deleted = 0 AND is_return = 0
		ORDER BY posted_at, name`, profile, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("load invoices of %s: %w", profile, err)
	}
	return decodeInvoices(payloads)
}

func (r *SessionRepository) AdoptClosing(ctx context.Context, localID string, closing erp.ClosingEntry, closedAt time.Time) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var previous string
		err := tx.GetContext(ctx, &previous, `SELECT closing_entry FROM sessions WHERE local_id = ?`, localID)
		if errors.Is(err, sql.ErrNoRows) {
			return session.ErrSessionNotFound
		}
		if err != nil {
			return fmt.Errorf("load session: %w", err)
		}

		if err := saveClosing(ctx, tx, closing); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE sessions
			SET status = ?, closed_at = ?, closing_entry = ?, pending_sync = 0
			WHERE local_id = ?`,
			session.StatusClosed, closedAt.UTC(), closing.Name, localID,
		); err != nil {
			return fmt.Errorf("adopt closing: %w", err)
		}

		if previous != "" && previous != closing.Name && erp.IsPlaceholder(previous) {
			if _, err := tx.ExecContext(ctx, `DELETE FROM closing_entries WHERE name = ?`, previous); err != nil {
				return fmt.Errorf("drop placeholder closing: %w", err)
			}
		}
		return nil
	})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
