package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/exp/slog"

	"posclient/internal/domain/erp"
)

// Persister writes a merged snapshot to local storage section by section.
type Persister struct {
	store Store
	diag  DiagnosticsRepository
	log   *slog.Logger
	now   func() time.Time
}

func NewPersister(store Store, diag DiagnosticsRepository, log *slog.Logger) *Persister {
	return &Persister{
		store: store,
		diag:  diag,
		log:   log.With("component", "snapshot_persister"),
		now:   time.Now,
	}
}

// PersistAll writes every fetched section in PersistOrder and caches the raw payload.
// It stops at the first failing section.
func (p *Persister) PersistAll(ctx context.Context, snap *Snapshot) error {
	for _, s := range PersistOrder {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("persist snapshot: %w", err)
		}
		if !snap.StatusOf(s).persistable() {
			p.log.Debug("section not persisted", "section", s, "status", snap.StatusOf(s))
			continue
		}
		if _, err := p.PersistSection(ctx, snap, s); err != nil {
			return err
		}
	}

	if err := p.store.CacheSnapshot(ctx, snap.Raw, snap.FetchedAt); err != nil {
		return fmt.Errorf("cache snapshot payload: %w", err)
	}
	return nil
}

// PersistSection writes one section in a single transaction and records the persisted count.
func (p *Persister) PersistSection(ctx context.Context, snap *Snapshot, s Section) (int, error) {
	status := snap.StatusOf(s)
	if !status.persistable() {
		return 0, fmt.Errorf("persist %s: %w", s, ErrSectionNotFetched)
	}
	prune := status.prunes()

	count, err := p.persist(ctx, snap, s, prune)
	if err != nil {
		p.log.Error("section persist failed", "section", s, "error", err)
		return 0, fmt.Errorf("persist %s: %w", s, err)
	}

	if err := p.diag.SavePersisted(ctx, s, count, p.now().UTC()); err != nil {
		p.log.Warn("failed to record persisted count", "section", s, "error", err)
	}
	p.log.Info("section persisted", "section", s, "count", count, "pruned", prune)
	return count, nil
}

func (p *Persister) persist(ctx context.Context, snap *Snapshot, s Section, prune bool) (int, error) {
	base := snap.Base
	if base == nil {
		base = &BootstrapResponse{}
	}

	switch s {
	case SectionProfiles:
		return p.store.ReplaceEntities(ctx, s, entities(base.Profiles, nameKey), prune)
	case SectionCompany:
		return p.store.ReplaceEntities(ctx, s, singleton(base.Company, s), prune)
	case SectionStockSettings:
		return p.store.ReplaceEntities(ctx, s, singleton(base.StockSettings, s), prune)
	case SectionExchangeRates:
		if base.ExchangeRates == nil {
			return 0, ErrSectionNotFetched
		}
		return p.store.ReplaceExchangeRates(ctx, CrossRates(*base.ExchangeRates))
	case SectionPaymentTerms:
		return p.store.ReplaceEntities(ctx, s, entities(base.PaymentTerms, nameKey), prune)
	case SectionDeliveryCharges:
		return p.store.ReplaceEntities(ctx, s, entities(base.DeliveryCharges, nameKey), prune)
	case SectionCustomerGroups:
		return p.store.ReplaceEntities(ctx, s, entities(base.CustomerGroups, nameKey), prune)
	case SectionTerritories:
		return p.store.ReplaceEntities(ctx, s, entities(base.Territories, nameKey), prune)
	case SectionCategories:
		return p.store.ReplaceEntities(ctx, s, entities(base.Categories, nameKey), prune)
	case SectionInventory:
		return p.store.ReplaceEntities(ctx, s, entities(snap.Inventory, sectionKeys[s]), prune)
	case SectionAlerts:
		return p.store.ReplaceEntities(ctx, s, entities(snap.Alerts, sectionKeys[s]), prune)
	case SectionActivity:
		return p.store.ReplaceEntities(ctx, s, entities(snap.Activity, sectionKeys[s]), prune)
	case SectionCustomers:
		rows, err := customerRecords(snap.Customers, snap.Company, base.ResolvedCompanies)
		if err != nil {
			return 0, err
		}
		return p.store.ReplaceCustomers(ctx, rows, prune)
	case SectionInvoices:
		rows, err := invoiceRecords(snap.Invoices)
		if err != nil {
			return 0, err
		}
		return p.store.ReplaceInvoices(ctx, rows, prune)
	case SectionPaymentEntries:
		rows, err := paymentEntryRecords(snap.PaymentEntries)
		if err != nil {
			return 0, err
		}
		return p.store.ReplacePaymentEntries(ctx, rows, prune)
	}
	return 0, ErrUnknownSection
}

func entities(items []json.RawMessage, key func(json.RawMessage) string) []Entity {
	out := make([]Entity, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, raw := range items {
		k := key(raw)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, Entity{Key: k, Payload: raw})
	}
	return out
}

// singleton stores a one-object section keyed by its name, or by the section name.
func singleton(raw json.RawMessage, s Section) []Entity {
	if isNullOrEmpty(raw) {
		return nil
	}
	key := scalar(decodeObject(raw)["name"])
	if key == "" {
		key = string(s)
	}
	return []Entity{{Key: key, Payload: raw}}
}

func customerRecords(items []json.RawMessage, company string, resolved []erp.ResolvedCompany) ([]CustomerRecord, error) {
	defaults := make(map[string]erp.ResolvedCompany, len(resolved))
	for _, rc := range resolved {
		defaults[rc.Name] = rc
	}

	out := make([]CustomerRecord, 0, len(items))
	for _, raw := range items {
		var c erp.Customer
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("decode customer: %w", err)
		}
		if c.Name == "" {
			continue
		}
		limit, account := ResolveCreditTerms(c, company, defaults[company])
		out = append(out, CustomerRecord{
			Name:              c.Name,
			CustomerName:      c.CustomerName,
			CustomerGroup:     c.CustomerGroup,
			Territory:         c.Territory,
			CreditLimit:       limit,
			ReceivableAccount: account,
			Payload:           raw,
		})
	}
	return out, nil
}

// ResolveCreditTerms picks the credit limit and receivable account for company:
// the customer's per-company rows first, then its direct attributes, then the
// company defaults.
func ResolveCreditTerms(c erp.Customer, company string, defaults erp.ResolvedCompany) (decimal.Decimal, string) {
	limit := defaults.DefaultCreditLimit
	limitSet := false
	for _, row := range c.CreditLimits {
		if row.Company == company {
			limit, limitSet = row.CreditLimit, true
			break
		}
	}
	if !limitSet && c.CreditLimit != nil {
		limit = *c.CreditLimit
	}

	account := ""
	for _, row := range c.Accounts {
		if row.Company == company && row.Account != "" {
			account = row.Account
			break
		}
	}
	if account == "" {
		account = firstNonEmpty(c.ReceivableAccount, defaults.DefaultReceivableAccount)
	}
	return limit, account
}

func invoiceRecords(items []json.RawMessage) ([]InvoiceRecord, error) {
	out := make([]InvoiceRecord, 0, len(items))
	for _, raw := range items {
		var inv erp.Invoice
		if err := json.Unmarshal(raw, &inv); err != nil {
			return nil, fmt.Errorf("decode invoice: %w", err)
		}
		if inv.Name == "" {
			continue
		}
		out = append(out, InvoiceRecord{Invoice: inv, Payload: raw})
	}
	return out, nil
}

func paymentEntryRecords(items []json.RawMessage) ([]PaymentEntryRecord, error) {
	out := make([]PaymentEntryRecord, 0, len(items))
	for _, raw := range items {
		var pe erp.PaymentEntry
		if err := json.Unmarshal(raw, &pe); err != nil {
			return nil, fmt.Errorf("decode payment entry: %w", err)
		}
		if pe.Name == "" {
			continue
		}
		out = append(out, PaymentEntryRecord{Entry: pe, Payload: raw})
	}
	return out, nil
}
