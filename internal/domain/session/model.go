package session

import (
	"time"

	"github.com/shopspring/decimal"

	"posclient/internal/domain/erp"
)

type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Session is a cash-drawer session recorded on the device. OpeningEntryID and
// ClosingEntryID hold placeholders until the backend issued names.
type Session struct {
	LocalID        string
	POSProfile     string
	Company        string
	User           string
	Status         Status
	OpeningEntryID string
	ClosingEntryID string
	OpenedAt       time.Time
	ClosedAt       *time.Time
	BalanceDetails []erp.BalanceDetail
	PendingSync    bool
}

// OpenRequest describes a new session.
type OpenRequest struct {
	POSProfile     string
	Company        string
	User           string
	BalanceDetails []erp.BalanceDetail
}

// ClosingCount is the amount counted in the drawer for one mode of payment.
type ClosingCount struct {
	ModeOfPayment string
	Amount        decimal.Decimal
}
