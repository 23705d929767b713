package returns

import (
	"github.com/shopspring/decimal"
)

// StaleTolerance bounds how far a re-fetched outstanding amount may be from the
// pre-return value and still count as a stale read.
var StaleTolerance = decimal.RequireFromString("0.01")

// Request asks to return part of an invoice.
type Request struct {
	InvoiceName string
	Quantities  map[string]decimal.Decimal
	Reason      string
	// RefundMode requests a refund through this mode of payment when set.
	RefundMode string
}

// Line is one clipped return line. Qty and Amount are positive.
type Line struct {
	ItemCode string          `json:"item_code"`
	ItemName string          `json:"item_name,omitempty"`
	Qty      decimal.Decimal `json:"qty"`
	Rate     decimal.Decimal `json:"rate"`
	Amount   decimal.Decimal `json:"amount"`
}

// Result is the outcome of a submitted return.
type Result struct {
	CreditNoteName string          `json:"credit_note_name"`
	RefundCreated  bool            `json:"refund_created"`
	RefundName     string          `json:"refund_name,omitempty"`
	Lines          []Line          `json:"lines"`
	Total          decimal.Decimal `json:"total"`
}

// soldLine aggregates every line of one item on the original invoice.
type soldLine struct {
	itemName string
	qty      decimal.Decimal
	amount   decimal.Decimal
}
