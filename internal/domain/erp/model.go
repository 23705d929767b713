package erp

import (
	"github.com/shopspring/decimal"
)

// Document types used against the backend.
const (
	DocTypeCustomer     = "Customer"
	DocTypeSalesInvoice = "Sales Invoice"
	DocTypePaymentEntry = "Payment Entry"
	DocTypeOpeningEntry = "POS Opening Entry"
	DocTypeClosingEntry = "POS Closing Entry"
)

// Document status values (docstatus).
const (
	DocStatusDraft     = 0
	DocStatusSubmitted = 1
	DocStatusCancelled = 2
)

// Profile is a POS profile: the register configuration a session runs under.
type Profile struct {
	Name             string           `json:"name"`
	Company          string           `json:"company"`
	Warehouse        string           `json:"warehouse"`
	SellingPriceList string           `json:"selling_price_list"`
	Currency         string           `json:"currency"`
	Payments         []ProfilePayment `json:"payments"`
}

// ProfilePayment is a mode of payment enabled on a profile.
type ProfilePayment struct {
	ModeOfPayment  string `json:"mode_of_payment"`
	Default        Flag   `json:"default"`
	AllowInReturns Flag   `json:"allow_in_returns"`
}

// AllowsReturnRefund reports whether mode may be used to refund a return.
func (p Profile) AllowsReturnRefund(mode string) bool {
	for _, pm := range p.Payments {
		if pm.ModeOfPayment == mode {
			return bool(pm.AllowInReturns)
		}
	}
	return false
}

// ResolvedCompany carries company-level defaults the backend resolved for the device.
type ResolvedCompany struct {
	Name                     string          `json:"name"`
	DefaultReceivableAccount string          `json:"default_receivable_account"`
	DefaultCreditLimit       decimal.Decimal `json:"default_credit_limit"`
}

// Customer as delivered by the bootstrap snapshot.
type Customer struct {
	Name              string                `json:"name"`
	CustomerName      string                `json:"customer_name"`
	CustomerGroup     string                `json:"customer_group"`
	Territory         string                `json:"territory"`
	Company           string                `json:"company,omitempty"`
	CreditLimit       *decimal.Decimal      `json:"credit_limit,omitempty"`
	ReceivableAccount string                `json:"receivable_account,omitempty"`
	CreditLimits      []CustomerCreditLimit `json:"credit_limits,omitempty"`
	Accounts          []CustomerAccount     `json:"accounts,omitempty"`
}

// CustomerCreditLimit is a per-company credit limit row.
type CustomerCreditLimit struct {
	Company     string          `json:"company"`
	CreditLimit decimal.Decimal `json:"credit_limit"`
}

// CustomerAccount is a per-company receivable account row.
type CustomerAccount struct {
	Company string `json:"company"`
	Account string `json:"account"`
}

// Invoice is a sales invoice or, when IsReturn is set, a credit note.
type Invoice struct {
	Name              string           `json:"name,omitempty"`
	Customer          string           `json:"customer"`
	Company           string           `json:"company"`
	POSProfile        string           `json:"pos_profile"`
	OpeningEntry      string           `json:"pos_opening_entry,omitempty"`
	PostingDate       string           `json:"posting_date"`
	PostingTime       string           `json:"posting_time,omitempty"`
	Currency          string           `json:"currency"`
	GrandTotal        decimal.Decimal  `json:"grand_total"`
	OutstandingAmount decimal.Decimal  `json:"outstanding_amount"`
	Status            string           `json:"status"`
	DocStatus         int              `json:"docstatus"`
	IsReturn          Flag             `json:"is_return"`
	ReturnAgainst     string           `json:"return_against,omitempty"`
	Remarks           string           `json:"remarks,omitempty"`
	Items             []InvoiceItem    `json:"items"`
	Payments          []InvoicePayment `json:"payments,omitempty"`
}

// InvoiceItem is one invoice line.
type InvoiceItem struct {
	ItemCode string          `json:"item_code"`
	ItemName string          `json:"item_name,omitempty"`
	Qty      decimal.Decimal `json:"qty"`
	Rate     decimal.Decimal `json:"rate"`
	Amount   decimal.Decimal `json:"amount"`
}

// InvoicePayment is a payment captured on a POS invoice.
type InvoicePayment struct {
	ModeOfPayment string          `json:"mode_of_payment"`
	Amount        decimal.Decimal `json:"amount"`
}

// PaymentEntry is a standalone payment document.
type PaymentEntry struct {
	Name          string                  `json:"name,omitempty"`
	PaymentType   string                  `json:"payment_type"`
	PartyType     string                  `json:"party_type"`
	Party         string                  `json:"party"`
	Company       string                  `json:"company"`
	ModeOfPayment string                  `json:"mode_of_payment"`
	PaidAmount    decimal.Decimal         `json:"paid_amount"`
	PostingDate   string                  `json:"posting_date"`
	OpeningEntry  string                  `json:"pos_opening_entry,omitempty"`
	DocStatus     int                     `json:"docstatus"`
	References    []PaymentEntryReference `json:"references,omitempty"`
}

// PaymentEntryReference links a payment to the document it settles.
type PaymentEntryReference struct {
	ReferenceDoctype string          `json:"reference_doctype"`
	ReferenceName    string          `json:"reference_name"`
	AllocatedAmount  decimal.Decimal `json:"allocated_amount"`
}

// ExchangeRates is the base-currency table: units of each currency per one base unit.
type ExchangeRates struct {
	BaseCurrency string             `json:"base_currency"`
	Rates        map[string]float64 `json:"rates"`
}

// CrossRate is one row of the pairwise rate table.
type CrossRate struct {
	From string  `json:"from_currency" db:"from_currency"`
	To   string  `json:"to_currency" db:"to_currency"`
	Rate float64 `json:"rate" db:"rate"`
}

// OpeningEntry is a cash-drawer opening document.
type OpeningEntry struct {
	Name           string          `json:"name,omitempty"`
	POSProfile     string          `json:"pos_profile"`
	Company        string          `json:"company"`
	User           string          `json:"user"`
	PeriodStart    Timestamp       `json:"period_start_date"`
	DocStatus      int             `json:"docstatus"`
	BalanceDetails []BalanceDetail `json:"balance_details"`
}

// ClosingEntry is a cash-drawer closing document.
type ClosingEntry struct {
	Name                  string                  `json:"name,omitempty"`
	OpeningEntry          string                  `json:"pos_opening_entry"`
	POSProfile            string                  `json:"pos_profile"`
	Company               string                  `json:"company"`
	User                  string                  `json:"user"`
	PeriodStart           Timestamp               `json:"period_start_date"`
	PeriodEnd             Timestamp               `json:"period_end_date"`
	PostingDate           string                  `json:"posting_date"`
	DocStatus             int                     `json:"docstatus"`
	GrandTotal            decimal.Decimal         `json:"grand_total"`
	NetTotal              decimal.Decimal         `json:"net_total"`
	TotalQuantity         decimal.Decimal         `json:"total_quantity"`
	Transactions          []ClosingTransaction    `json:"pos_transactions"`
	PaymentReconciliation []PaymentReconciliation `json:"payment_reconciliation"`
}

// IsFinal reports whether the closing has been submitted on the backend.
func (c ClosingEntry) IsFinal() bool {
	return c.DocStatus == DocStatusSubmitted
}

// ClosingTransaction references an invoice included in a closing.
type ClosingTransaction struct {
	Invoice     string          `json:"pos_invoice"`
	Customer    string          `json:"customer"`
	PostingDate string          `json:"posting_date"`
	GrandTotal  decimal.Decimal `json:"grand_total"`
}

// PaymentReconciliation is the per-mode drawer count of a closing.
type PaymentReconciliation struct {
	ModeOfPayment  string          `json:"mode_of_payment"`
	OpeningAmount  decimal.Decimal `json:"opening_amount"`
	ExpectedAmount decimal.Decimal `json:"expected_amount"`
	ClosingAmount  decimal.Decimal `json:"closing_amount"`
	Difference     decimal.Decimal `json:"difference"`
}

// BalanceDetail is the amount counted for one mode of payment.
type BalanceDetail struct {
	ModeOfPayment string          `json:"mode_of_payment"`
	OpeningAmount decimal.Decimal `json:"opening_amount"`
	ClosingAmount decimal.Decimal `json:"closing_amount"`
}
