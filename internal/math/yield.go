package math

import (
	"errors"
	"fmt"
	gomath "math"

	"PortfolioLedger/internal/date"
)

// ErrNoConvergence is returned when the yield solver cannot bracket a root.
var ErrNoConvergence = errors.New("yield solver did not converge")

// Cashflow is an amount due at a date, per 100 of nominal.
type Cashflow struct {
	Date   date.Date
	Amount float64
}

// Schedule holds the coupon dates of a bond in ascending order. The first date is
// the regular period start at or before the earliest date the schedule is used
// for; the last date is maturity.
type Schedule struct {
	Dates     []date.Date
	Frequency int
}

// BuildSchedule rolls back from maturity in steps of 12/frequency months until a
// date at or before start is reached. Zero-coupon instruments use an annual grid.
func BuildSchedule(start, maturity date.Date, frequency int, endOfMonth bool) Schedule {
	f := frequency
	if f <= 0 || 12%f != 0 {
		f = 1
	}
	step := 12 / f
	dates := []date.Date{maturity}
	for i := 1; ; i++ {
		d := maturity.AddMonths(-step*i, endOfMonth)
		dates = append(dates, d)
		if !d.After(start) {
			break
		}
	}
	for l, r := 0, len(dates)-1; l < r; l, r = l+1, r-1 {
		dates[l], dates[r] = dates[r], dates[l]
	}
	return Schedule{Dates: dates, Frequency: f}
}

// Position maps d onto a continuous period axis: Dates[k] sits at k, dates in
// between are interpolated by calendar days within their period.
func (s Schedule) Position(d date.Date) float64 {
	n := len(s.Dates)
	if n < 2 {
		return 0
	}
	if d.Before(s.Dates[0]) {
		span := s.Dates[0].DaysUntil(s.Dates[1])
		return float64(s.Dates[0].DaysUntil(d)) / float64(span)
	}
	for k := 1; k < n; k++ {
		if d.Before(s.Dates[k]) {
			prev, next := s.Dates[k-1], s.Dates[k]
			return float64(k-1) + float64(prev.DaysUntil(d))/float64(prev.DaysUntil(next))
		}
	}
	last := s.Dates[n-1]
	span := s.Dates[n-2].DaysUntil(last)
	return float64(n-1) + float64(last.DaysUntil(d))/float64(span)
}

// PeriodStart returns the schedule date preceding the coupon date c.
func (s Schedule) PeriodStart(c date.Date) (date.Date, bool) {
	for k := 1; k < len(s.Dates); k++ {
		if s.Dates[k] == c {
			return s.Dates[k-1], true
		}
	}
	return date.Date{}, false
}

func (s Schedule) discount(y float64, periods float64) float64 {
	return gomath.Pow(1+y/float64(s.Frequency), -periods)
}

// PresentValue discounts flows to settle at the periodic yield y.
func PresentValue(settle date.Date, flows []Cashflow, s Schedule, y float64) float64 {
	p0 := s.Position(settle)
	var pv float64
	for _, cf := range flows {
		n := s.Position(cf.Date) - p0
		pv += cf.Amount * s.discount(y, n)
	}
	return pv
}

func derivative(settle date.Date, flows []Cashflow, s Schedule, y float64) float64 {
	p0 := s.Position(settle)
	f := float64(s.Frequency)
	var d float64
	for _, cf := range flows {
		n := s.Position(cf.Date) - p0
		d += -n / f * cf.Amount * gomath.Pow(1+y/f, -n-1)
	}
	return d
}

// SolveYield finds y such that PresentValue(settle, flows, s, y) equals dirtyPrice.
// Newton iterations start from guess; bisection takes over when Newton leaves the
// admissible range or stalls.
func SolveYield(settle date.Date, flows []Cashflow, s Schedule, dirtyPrice, guess float64) (float64, error) {
	if len(flows) == 0 {
		return 0, fmt.Errorf("%w: no remaining cashflows", ErrNoConvergence)
	}
	const tol = 1e-12
	f := float64(s.Frequency)
	lower, upper := -0.99*f, 10.0

	y := guess
	for i := 0; i < 50; i++ {
		diff := PresentValue(settle, flows, s, y) - dirtyPrice
		if gomath.Abs(diff) < tol {
			return y, nil
		}
		d := derivative(settle, flows, s, y)
		if d == 0 {
			break
		}
		next := y - diff/d
		if next <= lower || next >= upper || gomath.IsNaN(next) {
			break
		}
		if gomath.Abs(next-y) < tol {
			return next, nil
		}
		y = next
	}

	// PV is decreasing in y for positive cashflows
	lo, hi := lower+1e-9, upper
	flo := PresentValue(settle, flows, s, lo) - dirtyPrice
	fhi := PresentValue(settle, flows, s, hi) - dirtyPrice
	if flo*fhi > 0 {
		return 0, fmt.Errorf("%w: price %.6f outside [%.6f, %.6f]", ErrNoConvergence, dirtyPrice, flo+dirtyPrice, fhi+dirtyPrice)
	}
	for i := 0; i < 200; i++ {
		mid := (lo + hi) / 2
		fm := PresentValue(settle, flows, s, mid) - dirtyPrice
		if gomath.Abs(fm) < tol || (hi-lo)/2 < tol {
			return mid, nil
		}
		if fm*flo > 0 {
			lo, flo = mid, fm
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2, nil
}

// ModifiedDuration returns the Macaulay duration in years divided by (1 + y/f).
func ModifiedDuration(settle date.Date, flows []Cashflow, s Schedule, y float64) float64 {
	p0 := s.Position(settle)
	f := float64(s.Frequency)
	var pv, weighted float64
	for _, cf := range flows {
		n := s.Position(cf.Date) - p0
		v := cf.Amount * s.discount(y, n)
		pv += v
		weighted += n / f * v
	}
	if pv == 0 {
		return 0
	}
	return weighted / pv / (1 + y/f)
}
