package returns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/exp/slog"

	"posclient/internal/domain/erp"
)

// Service posts partial returns (credit notes) against submitted invoices.
type Service struct {
	repo   Repository
	remote Remote
	log    *slog.Logger
	now    func() time.Time
}

func NewService(repo Repository, remote Remote, log *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		remote: remote,
		log:    log.With("component", "return_service"),
		now:    time.Now,
	}
}

// SubmitPartialReturn clips the requested quantities to what is still returnable,
// posts a credit note and, when asked, a refund. Policy checks run before anything
// is written remotely.
func (s *Service) SubmitPartialReturn(ctx context.Context, req Request) (*Result, error) {
	log := s.log.With("invoice", req.InvoiceName)

	inv, err := s.repo.Invoice(ctx, req.InvoiceName)
	if err != nil {
		return nil, fmt.Errorf("load invoice %s: %w", req.InvoiceName, err)
	}
	if bool(inv.IsReturn) || inv.DocStatus != erp.DocStatusSubmitted || erp.IsPlaceholder(inv.Name) {
		return nil, fmt.Errorf("%w: %s", ErrNotReturnable, inv.Name)
	}

	prior, err := s.remote.GetCreditNotes(ctx, inv.Name)
	if err != nil {
		log.Warn("credit note lookup failed, treating sold quantities as returnable", "error", err)
		prior = nil
	}

	lines, err := ClipLines(*inv, prior, req.Quantities)
	if err != nil {
		return nil, err
	}

	if req.RefundMode != "" {
		profile, err := s.repo.Profile(ctx, inv.POSProfile)
		if err != nil {
			return nil, fmt.Errorf("load profile %s: %w", inv.POSProfile, err)
		}
		if !profile.AllowsReturnRefund(req.RefundMode) {
			return nil, fmt.Errorf("%w: %s", ErrRefundModeNotAllowed, req.RefundMode)
		}
	}

	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Amount)
	}

	note := s.creditNote(*inv, lines, total, req.Reason)
	var name string
	if draft := matchingDraft(prior, lines); draft != "" {
		log.Info("submitting existing draft credit note", "credit_note", draft)
		if err := s.remote.SubmitDocument(ctx, erp.DocTypeSalesInvoice, draft); err != nil {
			return nil, fmt.Errorf("post credit note: submit %s: %w", draft, err)
		}
		name = draft
	} else if name, err = s.createAndSubmit(ctx, erp.DocTypeSalesInvoice, note); err != nil {
		return nil, fmt.Errorf("post credit note: %w", err)
	}
	note.Name = name
	note.DocStatus = erp.DocStatusSubmitted
	log.Info("credit note submitted", "credit_note", name, "lines", len(lines), "total", total.String())

	res := &Result{CreditNoteName: name, Lines: lines, Total: total}

	var errs []error
	if err := s.repo.SaveCreditNote(ctx, note); err != nil {
		errs = append(errs, fmt.Errorf("save credit note: %w", err))
	}
	if err := s.resyncParent(ctx, *inv, total); err != nil {
		errs = append(errs, err)
	}

	if req.RefundMode != "" {
		refund, err := s.refund(ctx, *inv, name, req.RefundMode, total)
		if err != nil {
			errs = append(errs, fmt.Errorf("post refund: %w", err))
		} else {
			res.RefundCreated = true
			res.RefundName = refund
			log.Info("refund submitted", "payment_entry", refund, "mode", req.RefundMode)
		}
	}

	return res, errors.Join(errs...)
}

// ClipLines computes the return lines for requested quantities: each is clipped to
// the sold quantity minus what prior submitted credit notes returned. Non-positive
// requests and exhausted items produce no line.
func ClipLines(inv erp.Invoice, prior []erp.Invoice, requested map[string]decimal.Decimal) ([]Line, error) {
	sold := make(map[string]*soldLine, len(inv.Items))
	for _, item := range inv.Items {
		sl, ok := sold[item.ItemCode]
		if !ok {
			sl = &soldLine{itemName: item.ItemName}
			sold[item.ItemCode] = sl
		}
		amount := item.Amount
		if amount.IsZero() {
			amount = item.Rate.Mul(item.Qty)
		}
		sl.qty = sl.qty.Add(item.Qty)
		sl.amount = sl.amount.Add(amount)
	}

	returned := make(map[string]decimal.Decimal)
	for _, note := range prior {
		if note.DocStatus != erp.DocStatusSubmitted {
			continue
		}
		for _, item := range note.Items {
			returned[item.ItemCode] = returned[item.ItemCode].Add(item.Qty.Abs())
		}
	}

	codes := make([]string, 0, len(requested))
	for code := range requested {
		codes = append(codes, code)
	}
	slices.Sort(codes)

	var lines []Line
	exhausted := false
	for _, code := range codes {
		want := requested[code]
		if !want.IsPositive() {
			continue
		}
		sl, ok := sold[code]
		if !ok || !sl.qty.IsPositive() {
			exhausted = true
			continue
		}
		remaining := sl.qty.Sub(returned[code])
		if !remaining.IsPositive() {
			exhausted = true
			continue
		}

		qty := decimal.Min(want, remaining)
		rate := sl.amount.Div(sl.qty)
		lines = append(lines, Line{
			ItemCode: code,
			ItemName: sl.itemName,
			Qty:      qty,
			Rate:     rate,
			Amount:   rate.Mul(qty).Round(2),
		})
	}

	if len(lines) == 0 {
		if exhausted {
			return nil, ErrInsufficientQty
		}
		return nil, ErrEmptyReturn
	}
	return lines, nil
}

func (s *Service) creditNote(inv erp.Invoice, lines []Line, total decimal.Decimal, reason string) erp.Invoice {
	note := erp.Invoice{
		Customer:          inv.Customer,
		Company:           inv.Company,
		POSProfile:        inv.POSProfile,
		PostingDate:       s.now().UTC().Format("2006-01-02"),
		Currency:          inv.Currency,
		GrandTotal:        total.Neg(),
		OutstandingAmount: decimal.Zero,
		DocStatus:         erp.DocStatusDraft,
		IsReturn:          true,
		ReturnAgainst:     inv.Name,
		Remarks:           reason,
	}
	for _, l := range lines {
		note.Items = append(note.Items, erp.InvoiceItem{
			ItemCode: l.ItemCode,
			ItemName: l.ItemName,
			Qty:      l.Qty.Neg(),
			Rate:     l.Rate,
			Amount:   l.Amount.Neg(),
		})
	}
	return note
}

// matchingDraft returns the name of a draft credit note whose lines equal the
// computed ones, left behind when an earlier submit failed after the create.
func matchingDraft(prior []erp.Invoice, lines []Line) string {
	for _, note := range prior {
		if note.DocStatus != erp.DocStatusDraft || note.Name == "" || erp.IsPlaceholder(note.Name) {
			continue
		}
		if sameLines(note.Items, lines) {
			return note.Name
		}
	}
	return ""
}

func sameLines(items []erp.InvoiceItem, lines []Line) bool {
	want := make(map[string]decimal.Decimal, len(lines))
	for _, l := range lines {
		want[l.ItemCode] = want[l.ItemCode].Add(l.Qty)
	}
	got := make(map[string]decimal.Decimal, len(items))
	for _, item := range items {
		got[item.ItemCode] = got[item.ItemCode].Add(item.Qty.Abs())
	}
	if len(got) != len(want) {
		return false
	}
	for code, qty := range want {
		if !got[code].Equal(qty) {
			return false
		}
	}
	return true
}

// resyncParent refreshes the original invoice. When the backend still reports the
// pre-return outstanding amount, the return total is subtracted locally.
func (s *Service) resyncParent(ctx context.Context, inv erp.Invoice, total decimal.Decimal) error {
	corrected := inv.OutstandingAmount.Sub(total)

	raw, err := s.remote.GetDocument(ctx, erp.DocTypeSalesInvoice, inv.Name)
	if err != nil {
		s.log.Warn("parent invoice refresh failed, adjusting locally", "invoice", inv.Name, "error", err)
		return s.setOutstanding(ctx, inv.Name, corrected)
	}

	var fresh erp.Invoice
	if err := json.Unmarshal(raw, &fresh); err != nil || fresh.Name == "" {
		s.log.Warn("parent invoice payload unusable, adjusting locally", "invoice", inv.Name)
		return s.setOutstanding(ctx, inv.Name, corrected)
	}

	if fresh.OutstandingAmount.Sub(inv.OutstandingAmount).Abs().LessThanOrEqual(StaleTolerance) {
		s.log.Info("stale parent invoice read, applying return locally",
			"invoice", inv.Name,
			"remote_outstanding", fresh.OutstandingAmount.String(),
			"corrected", corrected.String(),
		)
		fresh.OutstandingAmount = corrected
	}

	if err := s.repo.UpsertInvoice(ctx, fresh); err != nil {
		return fmt.Errorf("save refreshed invoice: %w", err)
	}
	return nil
}

func (s *Service) setOutstanding(ctx context.Context, name string, amount decimal.Decimal) error {
	if err := s.repo.SetOutstanding(ctx, name, amount); err != nil {
		return fmt.Errorf("adjust outstanding: %w", err)
	}
	return nil
}

func (s *Service) refund(ctx context.Context, inv erp.Invoice, creditNote, mode string, total decimal.Decimal) (string, error) {
	pe := erp.PaymentEntry{
		PaymentType:   "Pay",
		PartyType:     "Customer",
		Party:         inv.Customer,
		Company:       inv.Company,
		ModeOfPayment: mode,
		PaidAmount:    total,
		PostingDate:   s.now().UTC().Format("2006-01-02"),
		DocStatus:     erp.DocStatusDraft,
		References: []erp.PaymentEntryReference{{
			ReferenceDoctype: erp.DocTypeSalesInvoice,
			ReferenceName:    creditNote,
			AllocatedAmount:  total.Neg(),
		}},
	}

	name, err := s.createAndSubmit(ctx, erp.DocTypePaymentEntry, pe)
	if err != nil {
		return "", err
	}
	pe.Name = name
	pe.DocStatus = erp.DocStatusSubmitted
	if err := s.repo.SavePaymentEntry(ctx, pe); err != nil {
		return name, fmt.Errorf("save refund: %w", err)
	}
	return name, nil
}

func (s *Service) createAndSubmit(ctx context.Context, doctype string, payload any) (string, error) {
	name, err := s.remote.CreateDocument(ctx, doctype, payload)
	if err != nil {
		return "", err
	}
	if name == "" || erp.IsPlaceholder(name) {
		return "", fmt.Errorf("%w: %q", erp.ErrPlaceholderName, name)
	}
	if err := s.remote.SubmitDocument(ctx, doctype, name); err != nil {
		s.log.Warn("submit failed, remote draft left behind", "doctype", doctype, "draft", name, "error", err)
		return "", fmt.Errorf("submit %s %s: %w", doctype, name, err)
	}
	return name, nil
}
