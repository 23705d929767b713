package snapshot

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"posclient/internal/domain/erp"
	"posclient/internal/domain/pagination"
)

// Section names a part of the bootstrap snapshot.
type Section string

const (
	SectionProfiles        Section = "profiles"
	SectionCompany         Section = "company"
	SectionStockSettings   Section = "stock_settings"
	SectionExchangeRates   Section = "exchange_rates"
	SectionPaymentTerms    Section = "payment_terms"
	SectionDeliveryCharges Section = "delivery_charges"
	SectionCustomerGroups  Section = "customer_groups"
	SectionTerritories     Section = "territories"
	SectionCategories      Section = "categories"
	SectionInventory       Section = "inventory"
	SectionCustomers       Section = "customers"
	SectionInvoices        Section = "invoices"
	SectionPaymentEntries  Section = "payment_entries"
	SectionAlerts          Section = "alerts"
	SectionActivity        Section = "activity"
)

// PersistOrder is the order sections are written in. Later sections depend on earlier ones.
var PersistOrder = []Section{
	SectionProfiles,
	SectionCompany,
	SectionStockSettings,
	SectionExchangeRates,
	SectionPaymentTerms,
	SectionDeliveryCharges,
	SectionCustomerGroups,
	SectionTerritories,
	SectionCategories,
	SectionInventory,
	SectionCustomers,
	SectionInvoices,
	SectionPaymentEntries,
	SectionAlerts,
	SectionActivity,
}

// pagedSections are fetched page by page after the base snapshot.
var pagedSections = []Section{
	SectionInventory,
	SectionCustomers,
	SectionInvoices,
	SectionAlerts,
	SectionActivity,
}

// ParseSection validates a section name.
func ParseSection(name string) (Section, error) {
	for _, s := range PersistOrder {
		if string(s) == name {
			return s, nil
		}
	}
	return "", ErrUnknownSection
}

// Status describes what the fetcher obtained for a section.
type Status string

const (
	// StatusComplete sections are upserted and pruned.
	StatusComplete Status = "complete"
	// StatusRemoteEmpty sections were answered with not-found and prune everything remote.
	StatusRemoteEmpty Status = "remote_empty"
	// StatusPartial sections kept only the first page and are upserted without pruning.
	StatusPartial Status = "partial"
	// StatusUnavailable sections failed on the first page and are left untouched.
	StatusUnavailable Status = "unavailable"
	// StatusSkipped sections were not requested.
	StatusSkipped Status = "skipped"
)

func (s Status) persistable() bool {
	return s == StatusComplete || s == StatusRemoteEmpty || s == StatusPartial
}

func (s Status) prunes() bool {
	return s == StatusComplete || s == StatusRemoteEmpty
}

// ReasonMissingWarehouse is recorded when inventory cannot be requested.
const ReasonMissingWarehouse = "missing_warehouse"

// SectionRequest is one call to the bootstrap endpoint. An empty Include asks for
// the base snapshot without paged sections.
type SectionRequest struct {
	Profile   string
	Warehouse string
	PriceList string
	Include   Section
	Offset    int
	Limit     int
}

// BootstrapContext is the device context the backend resolved.
type BootstrapContext struct {
	Profile          string `json:"pos_profile,omitempty"`
	Company          string `json:"company,omitempty"`
	User             string `json:"user,omitempty"`
	Currency         string `json:"currency,omitempty"`
	DefaultWarehouse string `json:"default_warehouse,omitempty"`
	DefaultPriceList string `json:"default_price_list,omitempty"`
}

// PagedSection is one page of a paginated section.
type PagedSection struct {
	Items      []json.RawMessage `json:"items"`
	Pagination *pagination.Meta  `json:"pagination,omitempty"`
}

// InvoiceSection is a page of invoices plus the payment entries that settle them.
type InvoiceSection struct {
	Items          []json.RawMessage `json:"items"`
	PaymentEntries []json.RawMessage `json:"payment_entries"`
	Pagination     *pagination.Meta  `json:"pagination,omitempty"`
}

// BootstrapResponse is the payload of the bootstrap endpoint.
type BootstrapResponse struct {
	Context           *BootstrapContext     `json:"context,omitempty"`
	Profiles          []json.RawMessage     `json:"pos_profiles"`
	Company           json.RawMessage       `json:"company,omitempty"`
	StockSettings     json.RawMessage       `json:"stock_settings,omitempty"`
	ExchangeRates     *erp.ExchangeRates    `json:"exchange_rates,omitempty"`
	PaymentTerms      []json.RawMessage     `json:"payment_terms"`
	DeliveryCharges   []json.RawMessage     `json:"delivery_charges"`
	CustomerGroups    []json.RawMessage     `json:"customer_groups"`
	Territories       []json.RawMessage     `json:"territories"`
	Categories        []json.RawMessage     `json:"categories"`
	ResolvedCompanies []erp.ResolvedCompany `json:"resolved_companies,omitempty"`
	Inventory         *PagedSection         `json:"inventory,omitempty"`
	Customers         *PagedSection         `json:"customers,omitempty"`
	Invoices          *InvoiceSection       `json:"invoices,omitempty"`
	Alerts            *PagedSection         `json:"alerts,omitempty"`
	Activity          *PagedSection         `json:"activity,omitempty"`
}

// page extracts the items, pagination and payment entries of a paged section.
func (r *BootstrapResponse) page(s Section) ([]json.RawMessage, *pagination.Meta, []json.RawMessage) {
	var ps *PagedSection
	switch s {
	case SectionInvoices:
		if r.Invoices == nil {
			return nil, nil, nil
		}
		return r.Invoices.Items, r.Invoices.Pagination, r.Invoices.PaymentEntries
	case SectionInventory:
		ps = r.Inventory
	case SectionCustomers:
		ps = r.Customers
	case SectionAlerts:
		ps = r.Alerts
	case SectionActivity:
		ps = r.Activity
	}
	if ps == nil {
		return nil, nil, nil
	}
	return ps.Items, ps.Pagination, nil
}

// SectionDiagnostics is the support record of one section.
type SectionDiagnostics struct {
	Section        Section           `json:"section"`
	Status         Status            `json:"status"`
	Reason         string            `json:"reason,omitempty"`
	Error          string            `json:"error,omitempty"`
	Pagination     *pagination.Meta  `json:"pagination,omitempty"`
	FetchedCount   int               `json:"fetched_count"`
	FetchedAt      time.Time         `json:"fetched_at"`
	PersistedCount *int              `json:"persisted_count,omitempty"`
	PersistedAt    *time.Time        `json:"persisted_at,omitempty"`
	StrategyDebug  *pagination.Debug `json:"strategy_debug,omitempty"`
}

// Diagnostics summarises one snapshot fetch.
type Diagnostics struct {
	FetchedAt time.Time            `json:"fetched_at"`
	Profile   string               `json:"profile"`
	Company   string               `json:"company"`
	Warehouse string               `json:"warehouse"`
	PriceList string               `json:"price_list"`
	Sections  []SectionDiagnostics `json:"sections"`
}

// Snapshot is the merged result of one fetch. It is not modified after FetchSnapshot returns.
type Snapshot struct {
	FetchedAt time.Time
	Profile   string
	Company   string
	Warehouse string
	PriceList string

	Base *BootstrapResponse

	Inventory      []json.RawMessage
	Customers      []json.RawMessage
	Invoices       []json.RawMessage
	PaymentEntries []json.RawMessage
	Alerts         []json.RawMessage
	Activity       []json.RawMessage

	Status      map[Section]Status
	Raw         json.RawMessage
	Diagnostics Diagnostics
}

// StatusOf returns the fetch status of a section.
func (s *Snapshot) StatusOf(section Section) Status {
	if st, ok := s.Status[section]; ok {
		return st
	}
	return StatusSkipped
}

// Entity is a keyed catalog row stored with its raw payload.
type Entity struct {
	Key     string          `db:"key"`
	Payload json.RawMessage `db:"payload"`
}

// CustomerRecord is a customer with its credit terms resolved for the active company.
type CustomerRecord struct {
	Name              string          `db:"name"`
	CustomerName      string          `db:"customer_name"`
	CustomerGroup     string          `db:"customer_group"`
	Territory         string          `db:"territory"`
	CreditLimit       decimal.Decimal `db:"credit_limit"`
	ReceivableAccount string          `db:"receivable_account"`
	Payload           json.RawMessage `db:"payload"`
}

// InvoiceRecord is a remote invoice with its raw payload.
type InvoiceRecord struct {
	Invoice erp.Invoice
	Payload json.RawMessage
}

// PaymentEntryRecord is a remote payment entry with its raw payload.
type PaymentEntryRecord struct {
	Entry   erp.PaymentEntry
	Payload json.RawMessage
}
