package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/jmoiron/sqlx"

	"posclient/internal/domain/pagination"
	"posclient/internal/domain/snapshot"
)

// DiagnosticsRepository keeps the latest fetch and persist result of every section.
type DiagnosticsRepository struct {
	db *sqlx.DB
}

func NewDiagnosticsRepository(db *sqlx.DB) *DiagnosticsRepository {
	return &DiagnosticsRepository{db: db}
}

type diagnosticsRow struct {
	Section        string         `db:"section"`
	Status         string         `db:"status"`
	Reason         string         `db:"reason"`
	Error          string         `db:"error"`
	Pagination     sql.NullString `db:"pagination"`
	FetchedCount   int            `db:"fetched_count"`
	FetchedAt      time.Time      `db:"fetched_at"`
	PersistedCount sql.NullInt64  `db:"persisted_count"`
	PersistedAt    sql.NullTime   `db:"persisted_at"`
	StrategyDebug  sql.NullString `db:"strategy_debug"`
}

// SaveFetch replaces the fetch diagnostics of every section in d and clears their
// persisted counters.
func (r *DiagnosticsRepository) SaveFetch(ctx context.Context, d *snapshot.Diagnostics) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		for _, s := range d.Sections {
			row := diagnosticsRow{
				Section:      string(s.Section),
				Status:       string(s.Status),
				Reason:       s.Reason,
				Error:        s.Error,
				FetchedCount: s.FetchedCount,
				FetchedAt:    s.FetchedAt.UTC(),
			}
			var err error
			if row.Pagination, err = nullJSON(s.Pagination); err != nil {
				return err
			}
			if row.StrategyDebug, err = nullJSON(s.StrategyDebug); err != nil {
				return err
			}

			_, err = tx.NamedExecContext(ctx, `
				INSERT INTO sync_diagnostics (section, status, reason, error, pagination, fetched_count,
				                              fetched_at, persisted_count, persisted_at, strategy_debug)
				VALUES (:section, :status, :reason, :error, :pagination, :fetched_count,
				        :fetched_at, NULL, NULL, :strategy_debug)
				ON CONFLICT(section) DO UPDATE SET
					status = excluded.status,
					reason = excluded.reason,
					error = excluded.error,
					pagination = excluded.pagination,
					fetched_count = excluded.fetched_count,
					fetched_at = excluded.fetched_at,
					persisted_count = NULL,
					persisted_at = NULL,
					strategy_debug = excluded.strategy_debug`, row)
			if err != nil {
				return fmt.Errorf("save diagnostics of %s: %w", s.Section, err)
			}
		}
		return nil
	})
}

func (r *DiagnosticsRepository) SavePersisted(ctx context.Context, section snapshot.Section, count int, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sync_diagnostics SET persisted_count = ?, persisted_at = ? WHERE section = ?`,
		count, at.UTC(), string(section),
	)
	if err != nil {
		return fmt.Errorf("save persisted count of %s: %w", section, err)
	}
	return nil
}

// LatestDiagnostics returns the stored sections in persist order.
func (r *DiagnosticsRepository) LatestDiagnostics(ctx context.Context) ([]snapshot.SectionDiagnostics, error) {
	var rows []diagnosticsRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT * FROM sync_diagnostics`); err != nil {
		return nil, fmt.Errorf("load diagnostics: %w", err)
	}

	out := make([]snapshot.SectionDiagnostics, 0, len(rows))
	for _, row := range rows {
		d := snapshot.SectionDiagnostics{
			Section:      snapshot.Section(row.Section),
			Status:       snapshot.Status(row.Status),
			Reason:       row.Reason,
			Error:        row.Error,
			FetchedCount: row.FetchedCount,
			FetchedAt:    row.FetchedAt,
		}
		if row.PersistedCount.Valid {
			n := int(row.PersistedCount.Int64)
			d.PersistedCount = &n
		}
		if row.PersistedAt.Valid {
			at := row.PersistedAt.Time
			d.PersistedAt = &at
		}
		if row.Pagination.Valid {
			d.Pagination = new(pagination.Meta)
			if err := json.Unmarshal([]byte(row.Pagination.String), d.Pagination); err != nil {
				return nil, fmt.Errorf("decode pagination of %s: %w", row.Section, err)
			}
		}
		if row.StrategyDebug.Valid {
			d.StrategyDebug = new(pagination.Debug)
			if err := json.Unmarshal([]byte(row.StrategyDebug.String), d.StrategyDebug); err != nil {
				return nil, fmt.Errorf("decode strategy debug of %s: %w", row.Section, err)
			}
		}
		out = append(out, d)
	}

	slices.SortFunc(out, func(a, b snapshot.SectionDiagnostics) int {
		return slices.Index(snapshot.PersistOrder, a.Section) - slices.Index(snapshot.PersistOrder, b.Section)
	})
	return out, nil
}

func nullJSON[T any](v *T) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode diagnostics: %w", err)
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}
