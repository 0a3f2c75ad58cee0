package event

import (
	"PortfolioLedger/internal/date"
	fin "PortfolioLedger/internal/math"
	"PortfolioLedger/internal/tax"

	"github.com/shopspring/decimal"
)

// FlowType distinguishes scheduled cash entitlements.
type FlowType uint8

const (
	FlowDividend FlowType = iota
	FlowCoupon
	FlowRedemption
)

func (t FlowType) String() string {
	switch t {
	case FlowDividend:
		return "dividend"
	case FlowCoupon:
		return "coupon"
	case FlowRedemption:
		return "redemption"
	default:
		return "unknown"
	}
}

// Rank places the payment among same-day events.
func (t FlowType) Rank() Rank {
	switch t {
	case FlowCoupon:
		return RankCoupon
	case FlowRedemption:
		return RankRedemption
	default:
		return RankDividend
	}
}

// Flow is a scheduled cash entitlement. The entitlement is fixed at RecordDate
// and paid at the event stamp. Amounts are derived state: Recalculate rebuilds
// them from the entitled count and the withholding policy.
type Flow struct {
	Header
	Type       FlowType
	RecordDate date.Date
	Currency   string
	PerUnit    decimal.Decimal // Cash per unit held (dividend per share, coupon or redemption per bond)
	Policy     tax.Policy

	entitled decimal.Decimal
	split    tax.Split
}

func (f *Flow) Kind() Kind { return KindFlow }

// Count is non-zero only for redemptions, which retire the entitled units.
func (f *Flow) Count() decimal.Decimal {
	if f.Type == FlowRedemption {
		return f.entitled.Neg()
	}
	return decimal.Zero
}

func (f *Flow) Amount() decimal.Decimal { return f.split.Net }

func (f *Flow) Entitled() decimal.Decimal { return f.entitled }
func (f *Flow) Gross() decimal.Decimal    { return f.split.Gross }
func (f *Flow) Tax() decimal.Decimal      { return f.split.Tax }
func (f *Flow) Net() decimal.Decimal      { return f.split.Net }

// EntitlementAt is the instant whose holding fixes the entitlement: the end of
// the record date, or right before payment when recorded on the payment date.
func (f *Flow) EntitlementAt() TimeArg {
	if f.RecordDate.IsZero() || !f.RecordDate.Before(f.At.Date) {
		return Prior(f.At)
	}
	return EndOf(f.RecordDate)
}

// Recalculate sets the entitled count and policy and recomputes gross, tax and
// net. It only depends on its arguments, so repeated calls are idempotent.
func (f *Flow) Recalculate(entitled decimal.Decimal, p tax.Policy) {
	f.entitled = entitled
	f.Policy = p
	if entitled.IsZero() {
		f.split = tax.Split{}
		return
	}
	round := fin.Rounder(f.Currency)
	gross := round(entitled.Mul(f.PerUnit))
	f.split = tax.Withhold(gross, p, round)
}
