package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/exp/slog"

	"posclient/internal/domain/erp"
	"posclient/internal/domain/pagination"
)

// FetcherConfig tunes the snapshot fetcher.
type FetcherConfig struct {
	PageSize int
}

// Fetcher downloads the bootstrap snapshot and merges every paged section.
type Fetcher struct {
	remote Remote
	diag   DiagnosticsRepository
	cfg    *FetcherConfig
	log    *slog.Logger
	now    func() time.Time
}

// NewFetcher creates a fetcher. A nil config uses a page size of 200.
func NewFetcher(remote Remote, diag DiagnosticsRepository, log *slog.Logger, cfg *FetcherConfig) *Fetcher {
	if cfg == nil {
		cfg = &FetcherConfig{}
	}
	if cfg.PageSize < 1 {
		cfg.PageSize = 200
	}
	return &Fetcher{
		remote: remote,
		diag:   diag,
		cfg:    cfg,
		log:    log.With("component", "snapshot_fetcher"),
		now:    time.Now,
	}
}

type resolution struct {
	profile   string
	company   string
	warehouse string
	priceList string
}

// FetchSnapshot fetches the base snapshot and then each paged section in turn.
// A section that fails does not stop the others; only a failed base fetch or a
// cancelled context is returned as an error.
func (f *Fetcher) FetchSnapshot(ctx context.Context, profileName string) (*Snapshot, error) {
	fetchedAt := f.now().UTC()

	base, err := f.remote.FetchSnapshotSection(ctx, SectionRequest{Profile: profileName})
	if err != nil {
		return nil, fmt.Errorf("fetch base snapshot: %w", err)
	}
	if base == nil {
		return nil, fmt.Errorf("fetch base snapshot: %w", ErrInvalidPayload)
	}

	res := resolve(base, profileName)
	f.log.Debug("resolved snapshot context",
		"profile", res.profile,
		"company", res.company,
		"warehouse", res.warehouse,
		"price_list", res.priceList,
	)

	snap := &Snapshot{
		FetchedAt: fetchedAt,
		Profile:   res.profile,
		Company:   res.company,
		Warehouse: res.warehouse,
		PriceList: res.priceList,
		Base:      base,
		Status:    make(map[Section]Status, len(PersistOrder)),
		Diagnostics: Diagnostics{
			FetchedAt: fetchedAt,
			Profile:   res.profile,
			Company:   res.company,
			Warehouse: res.warehouse,
			PriceList: res.priceList,
		},
	}

	for _, s := range PersistOrder {
		if isPaged(s) || s == SectionPaymentEntries {
			continue
		}
		status, count := catalogStatus(base, s)
		snap.Status[s] = status
		snap.Diagnostics.Sections = append(snap.Diagnostics.Sections, SectionDiagnostics{
			Section:      s,
			Status:       status,
			FetchedCount: count,
			FetchedAt:    fetchedAt,
		})
	}

	limits := make(map[Section]int, len(pagedSections))
	for _, s := range pagedSections {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("fetch snapshot: %w", err)
		}

		if s == SectionInventory && res.warehouse == "" {
			f.log.Warn("skipping section", "section", s, "reason", ReasonMissingWarehouse)
			snap.Status[s] = StatusSkipped
			snap.Diagnostics.Sections = append(snap.Diagnostics.Sections, SectionDiagnostics{
				Section:   s,
				Status:    StatusSkipped,
				Reason:    ReasonMissingWarehouse,
				FetchedAt: fetchedAt,
			})
			continue
		}

		sd, err := f.fetchSection(ctx, snap, res, s)
		if err != nil {
			return nil, err
		}
		sd.FetchedAt = fetchedAt
		if sd.Pagination != nil {
			limits[s] = sd.Pagination.Limit
		}
		snap.Diagnostics.Sections = append(snap.Diagnostics.Sections, *sd)
		if s == SectionInvoices {
			snap.Diagnostics.Sections = append(snap.Diagnostics.Sections, SectionDiagnostics{
				Section:      SectionPaymentEntries,
				Status:       sd.Status,
				FetchedCount: len(snap.PaymentEntries),
				FetchedAt:    fetchedAt,
			})
		}
	}

	raw, err := json.Marshal(f.rewrite(snap, limits))
	if err != nil {
		return nil, fmt.Errorf("encode merged snapshot: %w", err)
	}
	snap.Raw = raw

	if err := f.diag.SaveFetch(ctx, &snap.Diagnostics); err != nil {
		f.log.Error("failed to save fetch diagnostics", "error", err)
	}

	return snap, nil
}

func (f *Fetcher) fetchSection(ctx context.Context, snap *Snapshot, res resolution, s Section) (*SectionDiagnostics, error) {
	log := f.log.With("section", s)
	req := SectionRequest{
		Profile:   res.profile,
		Warehouse: res.warehouse,
		PriceList: res.priceList,
		Include:   s,
		Limit:     f.cfg.PageSize,
	}

	sd := &SectionDiagnostics{Section: s}

	first, err := f.remote.FetchSnapshotSection(ctx, req)
	switch {
	case errors.Is(err, erp.ErrNotFound):
		log.Info("section not found remotely, treating as empty")
		snap.Status[s] = StatusRemoteEmpty
		if s == SectionInvoices {
			snap.Status[SectionPaymentEntries] = StatusRemoteEmpty
		}
		sd.Status = StatusRemoteEmpty
		return sd, nil
	case err != nil:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("fetch %s: %w", s, ctxErr)
		}
		log.Warn("section unavailable", "error", err)
		snap.Status[s] = StatusUnavailable
		if s == SectionInvoices {
			snap.Status[SectionPaymentEntries] = StatusUnavailable
		}
		sd.Status = StatusUnavailable
		sd.Error = err.Error()
		return sd, nil
	case first == nil:
		first = &BootstrapResponse{}
	}

	items, meta, entries := first.page(s)
	payments := pagination.NewSet(paymentEntryKey)
	payments.Add(entries...)
	// Payment entries ride along with invoice pages and are kept only for the pages
	// of the winning strategy.
	pageEntries := make(map[int][]json.RawMessage)

	fetch := func(ctx context.Context, offset, limit int) ([]rawItem, error) {
		pageReq := req
		pageReq.Offset = offset
		pageReq.Limit = limit
		resp, err := f.remote.FetchSnapshotSection(ctx, pageReq)
		if err != nil {
			return nil, err
		}
		if resp == nil {
			return nil, nil
		}
		pageItems, _, entries := resp.page(s)
		pageEntries[offset] = entries
		return pageItems, nil
	}

	result, err := pagination.Select(ctx, items, meta, fetch, sectionKeys[s])
	for _, offset := range result.Debug.FetchedOffsets() {
		payments.Add(pageEntries[offset]...)
	}
	status := StatusComplete
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("fetch %s: %w", s, ctxErr)
		}
		log.Warn("paging failed, keeping first page", "error", err)
		status = StatusPartial
		sd.Error = err.Error()
	}

	snap.Status[s] = status
	switch s {
	case SectionInventory:
		snap.Inventory = result.Items
	case SectionCustomers:
		snap.Customers = result.Items
	case SectionInvoices:
		snap.Invoices = result.Items
		snap.PaymentEntries = payments.Items()
		snap.Status[SectionPaymentEntries] = status
	case SectionAlerts:
		snap.Alerts = result.Items
	case SectionActivity:
		snap.Activity = result.Items
	}

	debug := result.Debug
	sd.Status = status
	sd.Pagination = meta
	sd.FetchedCount = len(result.Items)
	sd.StrategyDebug = &debug

	log.Info("section fetched",
		"strategy", debug.Strategy,
		"terminated_by", debug.TerminatedBy,
		"first_count", debug.FirstCount,
		"fetched_unique", debug.FetchedUnique,
		"pages_fetched", debug.PagesFetched,
	)
	return sd, nil
}

// rewrite returns the base payload with every merged section marked as a single complete page.
func (f *Fetcher) rewrite(snap *Snapshot, limits map[Section]int) *BootstrapResponse {
	out := *snap.Base

	paged := func(s Section, items []rawItem) *PagedSection {
		if !snap.StatusOf(s).persistable() {
			return nil
		}
		return &PagedSection{Items: items, Pagination: f.mergedMeta(limits[s], len(items))}
	}

	out.Inventory = paged(SectionInventory, snap.Inventory)
	out.Customers = paged(SectionCustomers, snap.Customers)
	out.Alerts = paged(SectionAlerts, snap.Alerts)
	out.Activity = paged(SectionActivity, snap.Activity)
	out.Invoices = nil
	if snap.StatusOf(SectionInvoices).persistable() {
		out.Invoices = &InvoiceSection{
			Items:          snap.Invoices,
			PaymentEntries: snap.PaymentEntries,
			Pagination:     f.mergedMeta(limits[SectionInvoices], len(snap.Invoices)),
		}
	}
	return &out
}

func (f *Fetcher) mergedMeta(limit, total int) *pagination.Meta {
	if limit < 1 {
		limit = f.cfg.PageSize
	}
	return &pagination.Meta{Offset: 0, Limit: limit, Total: total, HasMore: false}
}

// resolve picks the profile (explicit name, then context, then first profile) and
// derives company, warehouse and price list from it with context fallbacks.
func resolve(base *BootstrapResponse, profileName string) resolution {
	var bctx BootstrapContext
	if base.Context != nil {
		bctx = *base.Context
	}

	profiles := make([]erp.Profile, 0, len(base.Profiles))
	for _, raw := range base.Profiles {
		var p erp.Profile
		if err := json.Unmarshal(raw, &p); err != nil {
			continue
		}
		profiles = append(profiles, p)
	}

	name := profileName
	if name == "" {
		name = bctx.Profile
	}

	var profile *erp.Profile
	for i := range profiles {
		if profiles[i].Name == name {
			profile = &profiles[i]
			break
		}
	}
	if profile == nil && profileName == "" && len(profiles) > 0 {
		profile = &profiles[0]
	}

	res := resolution{
		profile:   name,
		company:   bctx.Company,
		warehouse: bctx.DefaultWarehouse,
		priceList: bctx.DefaultPriceList,
	}
	if profile != nil {
		res.profile = profile.Name
		res.company = firstNonEmpty(profile.Company, bctx.Company)
		res.warehouse = firstNonEmpty(profile.Warehouse, bctx.DefaultWarehouse)
		res.priceList = firstNonEmpty(profile.SellingPriceList, bctx.DefaultPriceList)
	}
	return res
}

func catalogStatus(base *BootstrapResponse, s Section) (Status, int) {
	list := func(items []json.RawMessage) (Status, int) {
		if items == nil {
			return StatusSkipped, 0
		}
		return StatusComplete, len(items)
	}
	object := func(raw json.RawMessage) (Status, int) {
		if isNullOrEmpty(raw) {
			return StatusSkipped, 0
		}
		return StatusComplete, 1
	}

	switch s {
	case SectionProfiles:
		return list(base.Profiles)
	case SectionCompany:
		return object(base.Company)
	case SectionStockSettings:
		return object(base.StockSettings)
	case SectionExchangeRates:
		if base.ExchangeRates == nil {
			return StatusSkipped, 0
		}
		return StatusComplete, len(base.ExchangeRates.Rates)
	case SectionPaymentTerms:
		return list(base.PaymentTerms)
	case SectionDeliveryCharges:
		return list(base.DeliveryCharges)
	case SectionCustomerGroups:
		return list(base.CustomerGroups)
	case SectionTerritories:
		return list(base.Territories)
	case SectionCategories:
		return list(base.Categories)
	}
	return StatusSkipped, 0
}

func isPaged(s Section) bool {
	for _, p := range pagedSections {
		if p == s {
			return true
		}
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
