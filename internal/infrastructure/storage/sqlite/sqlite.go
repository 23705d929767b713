package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	// Blank import registers the sqlite3 driver
	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/exp/slog"

	"posclient/internal/infrastructure/migration"
)

// busyTimeout is how long a writer waits for the database lock.
const busyTimeout = 5 * time.Second

// Storage owns the local database. It holds a single connection: sqlite has one
// writer, and every multi-row change runs in one transaction on it.
type Storage struct {
	db  *sqlx.DB
	log *slog.Logger
}

// New migrates the database at path and opens it.
func New(path string, log *slog.Logger) (*Storage, error) {
	if err := migration.NewMigration(path, nil).Up(); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	db, err := sqlx.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Storage{db: db, log: log.With("component", "sqlite_storage")}, nil
}

func dsn(path string) string {
	return fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=%d&_txlock=immediate",
		path, busyTimeout.Milliseconds())
}

func (s *Storage) DB() *sqlx.DB {
	return s.db
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) Snapshots() *SnapshotRepository {
	return NewSnapshotRepository(s.db, s.log)
}

func (s *Storage) Diagnostics() *DiagnosticsRepository {
	return NewDiagnosticsRepository(s.db)
}

func (s *Storage) Outbox() *OutboxRepository {
	return NewOutboxRepository(s.db, s.log)
}

func (s *Storage) Sessions() *SessionRepository {
	return NewSessionRepository(s.db)
}

func (s *Storage) Returns() *ReturnRepository {
	return NewReturnRepository(s.db)
}

func (s *Storage) Customers() *CustomerRepository {
	return NewCustomerRepository(s.db)
}

// withTx runs fn in a transaction, rolling back when fn fails.
func withTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
