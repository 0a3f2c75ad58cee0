package tax

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Allocate distributes corporate income tax among portfolios.
//
// The total is capped at rate × max(0, Σ results): losses of one portfolio offset
// gains of another. Portfolios are served in descending result order, each taking
// rate × result until the cap is exhausted. Portfolios with a non-positive result
// carry no tax. Every portfolio of results is present in the returned map.
func Allocate(results map[string]decimal.Decimal, rate decimal.Decimal, round func(decimal.Decimal) decimal.Decimal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(results))
	names := make([]string, 0, len(results))
	total := decimal.Zero
	for name, r := range results {
		names = append(names, name)
		total = total.Add(r)
		out[name] = decimal.Zero
	}
	if !total.IsPositive() {
		return out
	}

	sort.Slice(names, func(i, j int) bool {
		ri, rj := results[names[i]], results[names[j]]
		if !ri.Equal(rj) {
			return ri.GreaterThan(rj)
		}
		return names[i] < names[j]
	})

	remaining := round(total.Mul(rate))
	for _, name := range names {
		r := results[name]
		if !r.IsPositive() || !remaining.IsPositive() {
			continue
		}
		share := decimal.Min(round(r.Mul(rate)), remaining)
		out[name] = share
		remaining = remaining.Sub(share)
	}
	return out
}

// Accrual is the adjustment needed to bring the booked tax of a portfolio to the
// currently required amount.
type Accrual struct {
	Portfolio string
	Required  decimal.Decimal
	Booked    decimal.Decimal
	Delta     decimal.Decimal
}

// Accruals compares required against booked per portfolio and returns the
// non-zero deltas sorted by portfolio name.
func Accruals(required, booked map[string]decimal.Decimal) []Accrual {
	names := make(map[string]struct{}, len(required)+len(booked))
	for n := range required {
		names[n] = struct{}{}
	}
	for n := range booked {
		names[n] = struct{}{}
	}

	var out []Accrual
	for n := range names {
		r, b := required[n], booked[n]
		d := r.Sub(b)
		if d.IsZero() {
			continue
		}
		out = append(out, Accrual{Portfolio: n, Required: r, Booked: b, Delta: d})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Portfolio < out[j].Portfolio })
	return out
}

// TrueUp returns the amount still payable (negative: refundable) for the year after
// mid-year assessments and withholding tax already charged at source.
func TrueUp(required, assessed, precharged decimal.Decimal) decimal.Decimal {
	return required.Sub(assessed).Sub(precharged)
}
