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
)

var ErrCustomerNotFound = errors.New("customer not found")

// Customer is a stored customer with its receivable summary.
type Customer struct {
	Name              string          `db:"name" json:"name"`
	CustomerName      string          `db:"customer_name" json:"customer_name"`
	CustomerGroup     string          `db:"customer_group" json:"customer_group"`
	Territory         string          `db:"territory" json:"territory"`
	CreditLimit       decimal.Decimal `db:"credit_limit" json:"credit_limit"`
	ReceivableAccount string          `db:"receivable_account" json:"receivable_account"`
	OutstandingTotal  decimal.Decimal `db:"outstanding_total" json:"outstanding_total"`
	PendingInvoices   int             `db:"pending_invoices" json:"pending_invoices"`
	LocalOnly         bool            `db:"local_only" json:"local_only"`
	Deleted           bool            `db:"deleted" json:"deleted"`
}

// CustomerRepository stores customers created on the device and reads customers back.
type CustomerRepository struct {
	db *sqlx.DB
}

func NewCustomerRepository(db *sqlx.DB) *CustomerRepository {
	return &CustomerRepository{db: db}
}

// SaveLocal stores a customer created offline under its placeholder name. It stays
// local-only until the outbox promotes it.
func (r *CustomerRepository) SaveLocal(ctx context.Context, c Customer, payload json.RawMessage) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO customers (name, customer_name, customer_group, territory, local_only, payload, updated_at)
		VALUES (?, ?, ?, ?, 1, ?, ?)`,
		c.Name, c.CustomerName, c.CustomerGroup, c.Territory, string(payload), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save local customer: %w", err)
	}
	return nil
}

func (r *CustomerRepository) Get(ctx context.Context, name string) (*Customer, error) {
	var c Customer
	err := r.db.GetContext(ctx, &c, `
		SELECT name, customer_name, customer_group, territory, credit_limit, receivable_account,
		       outstanding_total, pending_invoices, local_only, deleted
		FROM customers WHERE name = ?`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCustomerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load customer: %w", err)
	}
	return &c, nil
}
