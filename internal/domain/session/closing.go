package session

import (
	"slices"

	"github.com/shopspring/decimal"

	"posclient/internal/domain/erp"
)

// BuildClosing assembles a closing document for the remote opening entry from the
// session's balance details and invoices. The expected amount of each mode is its
// opening amount plus every invoice payment made with it.
func BuildClosing(s Session, remoteOpening string, invoices []erp.Invoice, closedAt erp.Timestamp) erp.ClosingEntry {
	closing := erp.ClosingEntry{
		OpeningEntry: remoteOpening,
		POSProfile:   s.POSProfile,
		Company:      s.Company,
		User:         s.User,
		PeriodStart:  erp.NewTimestamp(s.OpenedAt),
		PeriodEnd:    closedAt,
		PostingDate:  closedAt.Format("2006-01-02"),
		DocStatus:    erp.DocStatusDraft,
	}

	collected := make(map[string]decimal.Decimal)
	for _, inv := range invoices {
		if inv.DocStatus == erp.DocStatusCancelled {
			continue
		}
		closing.Transactions = append(closing.Transactions, erp.ClosingTransaction{
			Invoice:     inv.Name,
			Customer:    inv.Customer,
			PostingDate: inv.PostingDate,
			GrandTotal:  inv.GrandTotal,
		})
		closing.GrandTotal = closing.GrandTotal.Add(inv.GrandTotal)
		closing.NetTotal = closing.NetTotal.Add(inv.GrandTotal)
		for _, item := range inv.Items {
			closing.TotalQuantity = closing.TotalQuantity.Add(item.Qty)
		}
		for _, p := range inv.Payments {
			collected[p.ModeOfPayment] = collected[p.ModeOfPayment].Add(p.Amount)
		}
	}

	seen := make(map[string]struct{}, len(s.BalanceDetails))
	for _, bd := range s.BalanceDetails {
		seen[bd.ModeOfPayment] = struct{}{}
		expected := bd.OpeningAmount.Add(collected[bd.ModeOfPayment])
		closing.PaymentReconciliation = append(closing.PaymentReconciliation, erp.PaymentReconciliation{
			ModeOfPayment:  bd.ModeOfPayment,
			OpeningAmount:  bd.OpeningAmount,
			ExpectedAmount: expected,
			ClosingAmount:  bd.ClosingAmount,
			Difference:     bd.ClosingAmount.Sub(expected),
		})
	}

	var extra []string
	for mode := range collected {
		if _, ok := seen[mode]; !ok {
			extra = append(extra, mode)
		}
	}
	slices.Sort(extra)
	for _, mode := range extra {
		expected := collected[mode]
		closing.PaymentReconciliation = append(closing.PaymentReconciliation, erp.PaymentReconciliation{
			ModeOfPayment:  mode,
			ExpectedAmount: expected,
			Difference:     expected.Neg(),
		})
	}

	return closing
}

// mergeCounts sets the closing amount of every counted mode, keeping opening amounts.
func mergeCounts(balances []erp.BalanceDetail, counts []ClosingCount) []erp.BalanceDetail {
	out := make([]erp.BalanceDetail, len(balances))
	copy(out, balances)

	index := make(map[string]int, len(out))
	for i, bd := range out {
		index[bd.ModeOfPayment] = i
	}
	for _, c := range counts {
		if i, ok := index[c.ModeOfPayment]; ok {
			out[i].ClosingAmount = c.Amount
			continue
		}
		index[c.ModeOfPayment] = len(out)
		out = append(out, erp.BalanceDetail{ModeOfPayment: c.ModeOfPayment, ClosingAmount: c.Amount})
	}
	return out
}
