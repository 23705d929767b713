package snapshot

import (
	"maps"
	"math"
	"slices"
	"strings"

	"posclient/internal/domain/erp"
)

// CrossRates expands a base-currency table into every ordered pair of distinct
// currencies. rate(A→B) = perBase(B) / perBase(A).
func CrossRates(table erp.ExchangeRates) []erp.CrossRate {
	perBase := make(map[string]float64, len(table.Rates)+1)
	for code, rate := range table.Rates {
		c := normalizeCurrency(code)
		if c == "" || rate <= 0 || math.IsInf(rate, 0) || math.IsNaN(rate) {
			continue
		}
		perBase[c] = rate
	}

	if base := normalizeCurrency(table.BaseCurrency); base != "" {
		if _, ok := perBase[base]; !ok {
			perBase[base] = 1
		}
	}

	codes := slices.Sorted(maps.Keys(perBase))
	out := make([]erp.CrossRate, 0, len(codes)*(len(codes)-1))
	for _, from := range codes {
		for _, to := range codes {
			if from == to {
				continue
			}
			out = append(out, erp.CrossRate{
				From: from,
				To:   to,
				Rate: perBase[to] / perBase[from],
			})
		}
	}
	return out
}

func normalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
