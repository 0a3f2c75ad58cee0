package math

import (
	"PortfolioLedger/internal/date"

	"github.com/shopspring/decimal"
)

// VariationMargin returns the cash settled on count contracts when the reference
// price moves from one settlement to the next.
// Positive = long position receives, negative = long position pays.
func VariationMargin(count, multiplier, from, to decimal.Decimal, round func(decimal.Decimal) decimal.Decimal) decimal.Decimal {
	return round(to.Sub(from).Mul(count).Mul(multiplier))
}

// FeeSchedule is a deferred fee split over settlement dates.
type FeeSchedule struct {
	Fee      decimal.Decimal
	Shares   []FeeShare
	Residual decimal.Decimal // Rounding residual, added to the last share
}

type FeeShare struct {
	Date   date.Date
	Amount decimal.Decimal
}

// ComputeFeeSchedule spreads fee over the settlement dates proportionally to the
// days elapsed since the previous settlement, relative to the whole period from
// start to maturity. Dates must be ascending and within (start, maturity]. When
// the last date is maturity the shares add up to fee exactly; otherwise the
// unrecognised part is Fee less Recognised at the last date.
func ComputeFeeSchedule(fee decimal.Decimal, start, maturity date.Date, dates []date.Date, round func(decimal.Decimal) decimal.Decimal) *FeeSchedule {
	fs := &FeeSchedule{Fee: fee, Shares: make([]FeeShare, 0, len(dates))}
	total := start.DaysUntil(maturity)
	if total <= 0 || fee.IsZero() {
		return fs
	}
	totalDays := decimal.NewFromInt(int64(total))

	prev := start
	var booked decimal.Decimal
	for _, d := range dates {
		if !d.After(prev) {
			continue
		}
		if d.After(maturity) {
			d = maturity
		}
		days := decimal.NewFromInt(int64(prev.DaysUntil(d)))
		share := fee.Mul(days).Div(totalDays)
		amount := round(share)
		fs.Shares = append(fs.Shares, FeeShare{Date: d, Amount: amount})
		booked = booked.Add(amount)
		prev = d
	}

	if len(fs.Shares) > 0 && prev == maturity {
		fs.Residual = fee.Sub(booked)
		fs.Shares[len(fs.Shares)-1].Amount = fs.Shares[len(fs.Shares)-1].Amount.Add(fs.Residual)
	}
	return fs
}

// Recognised returns the part of the fee recognised up to and including d.
func (fs *FeeSchedule) Recognised(d date.Date) decimal.Decimal {
	sum := decimal.Zero
	for _, s := range fs.Shares {
		if s.Date.After(d) {
			break
		}
		sum = sum.Add(s.Amount)
	}
	return sum
}
