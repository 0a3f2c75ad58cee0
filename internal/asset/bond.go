package asset

import (
	"fmt"

	"PortfolioLedger/internal/date"
	"PortfolioLedger/internal/event"
	fin "PortfolioLedger/internal/math"
	"PortfolioLedger/internal/refdata"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// period is one coupon of a bond. End is the regular schedule date; Pay is
// earlier only for the broken last coupon of a called bond.
type period struct {
	Start  date.Date
	End    date.Date
	Pay    date.Date
	Rate   decimal.Decimal // Annual
	Per100 decimal.Decimal
}

// terms are the bond's cashflows from a given date on, after applying an early
// call from the manual adjustments.
type terms struct {
	inst       *refdata.Instrument
	schedule   fin.Schedule
	periods    []period
	maturity   date.Date
	redemption decimal.Decimal // Percent of par
}

func newTerms(ctx Context, inst *refdata.Instrument, from date.Date) (terms, error) {
	tm := terms{
		inst:       inst,
		schedule:   fin.BuildSchedule(from, inst.Maturity, inst.Frequency, inst.EndOfMonth),
		maturity:   inst.Maturity,
		redemption: inst.RedemptionPrice(),
	}
	if call := ctx.Defs.Call(inst.ID); call != nil && call.On.After(from) && call.On.Before(inst.Maturity) {
		tm.maturity = call.On
		tm.redemption = call.Price
	}
	if inst.CouponType == refdata.CouponZero {
		return tm, nil
	}

	ds := tm.schedule.Dates
	for k := 1; k < len(ds); k++ {
		p := period{Start: ds[k-1], End: ds[k], Pay: ds[k]}
		if !p.Pay.After(from) {
			continue
		}
		if p.Start.After(tm.maturity) || p.Start == tm.maturity {
			break
		}
		if p.Pay.After(tm.maturity) {
			p.Pay = tm.maturity
		}
		p.Rate = inst.CouponRate
		if inst.CouponType == refdata.CouponFloating {
			r, ok := ctx.Defs.CouponRate(inst.ID, p.Pay)
			if !ok {
				return tm, &refdata.LookupError{Kind: "coupon", Key: inst.ID, Date: p.Pay}
			}
			p.Rate = r
		}
		frac := inst.DayCount.AccrualFraction(p.Start, p.Pay, p.End, tm.schedule.Frequency)
		p.Per100 = fin.RoundPrice(p.Rate.Mul(hundred).Mul(decimal.NewFromFloat(frac)))
		tm.periods = append(tm.periods, p)
	}
	return tm, nil
}

// accrued is the interest per 100 accrued at d within the coupon period p.
func (tm terms) accrued(p period, d date.Date) decimal.Decimal {
	frac := tm.inst.DayCount.AccrualFraction(p.Start, d, p.End, tm.schedule.Frequency)
	return fin.RoundPrice(p.Rate.Mul(hundred).Mul(decimal.NewFromFloat(frac)))
}

func couponStamp(d date.Date) event.Stamp {
	return event.Stamp{Date: d, Index: event.IndexOpen, Rank: event.RankCoupon}
}

func redemptionStamp(d date.Date) event.Stamp {
	return event.Stamp{Date: d, Index: event.IndexOpen, Rank: event.RankRedemption}
}

// unpaid returns the cashflows per 100 not yet paid as of t.
func (tm terms) unpaid(t event.TimeArg) []fin.Cashflow {
	var out []fin.Cashflow
	for _, p := range tm.periods {
		if !t.Includes(couponStamp(p.Pay)) {
			out = append(out, fin.Cashflow{Date: p.Pay, Amount: p.Per100.InexactFloat64()})
		}
	}
	if !t.Includes(redemptionStamp(tm.maturity)) {
		out = append(out, fin.Cashflow{Date: tm.maturity, Amount: tm.redemption.InexactFloat64()})
	}
	return out
}

// accruedAt is the accrued interest per 100 as of t, counted from the start of the
// first coupon period not yet paid.
func (tm terms) accruedAt(t event.TimeArg) decimal.Decimal {
	for _, p := range tm.periods {
		if !t.Includes(couponStamp(p.Pay)) {
			return tm.accrued(p, t.Date)
		}
	}
	return decimal.Zero
}

// AccruedInterest returns the accrued interest per 100 of a bond at the end of on.
// The replay engine uses it to turn a quoted clean price into the dirty price
// paid.
func AccruedInterest(ctx Context, inst *refdata.Instrument, on date.Date) (decimal.Decimal, error) {
	if inst.Type != refdata.AssetTypeBond {
		return decimal.Zero, nil
	}
	tm, err := newTerms(ctx, inst, on)
	if err != nil {
		return decimal.Zero, err
	}
	return tm.accruedAt(event.EndOf(on)), nil
}

// Bond is a fixed income lot. Amortized cost follows the yield to maturity solved
// from the purchase dirty price; prices are in percent of par.
type Bond struct {
	base
	ctx   Context
	terms terms

	ytm           float64
	pv0           float64
	purchaseDirty decimal.Decimal
}

// NewBond recognizes a bond lot and schedules its coupons and redemption.
func NewBond(ctx Context, id uuid.UUID, inst *refdata.Instrument, loc Location, class refdata.ValuationClass, r *event.Recognition) (*Bond, error) {
	if inst.Maturity.IsZero() {
		return nil, fmt.Errorf("bond %s has no maturity", inst.ID)
	}
	b := &Bond{
		base: newBase(id, refdata.AssetTypeBond, class, inst.ID, loc, inst.Currency, inst.Factor()),
		ctx:  ctx,
	}
	if err := b.AddEvent(r); err != nil {
		return nil, err
	}
	settle := r.At.Date
	if !settle.Before(inst.Maturity) {
		return nil, fmt.Errorf("bond %s recognized on %s at or after maturity %s", inst.ID, settle, inst.Maturity)
	}
	tm, err := newTerms(ctx, inst, settle)
	if err != nil {
		return nil, fmt.Errorf("bond %s: %w", inst.ID, err)
	}
	b.terms = tm
	b.purchaseDirty = r.Price.Dirty

	flows := b.terms.unpaid(event.Through(r.At))
	guess := inst.CouponRate.InexactFloat64()
	ytm, err := fin.SolveYield(settle, flows, b.terms.schedule, r.Price.Dirty.InexactFloat64(), guess)
	if err != nil {
		return nil, fmt.Errorf("bond %s yield at %s: %w", inst.ID, r.Price.Dirty, err)
	}
	b.ytm = ytm
	b.pv0 = fin.PresentValue(settle, flows, b.terms.schedule, ytm)

	for _, p := range b.terms.periods {
		if err := b.schedule(event.FlowCoupon, p.Pay, p.Per100); err != nil {
			return nil, err
		}
	}
	if err := b.schedule(event.FlowRedemption, b.terms.maturity, b.terms.redemption); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Bond) schedule(ft event.FlowType, pay date.Date, per100 decimal.Decimal) error {
	at := event.Stamp{Date: pay, Index: event.IndexOpen, Rank: ft.Rank()}
	f := &event.Flow{
		Header:     event.Header{EventID: event.NewID(b.id.String(), ft.String(), pay.String()), Parent: b.id, At: at},
		Type:       ft,
		RecordDate: pay,
		Currency:   b.currency,
		PerUnit:    per100.Mul(b.factor),
		Policy:     b.ctx.policy(ft, b.instrument, b.loc, pay),
	}
	return b.AddEvent(f)
}

// Maturity is the effective final redemption date, after an early call.
func (b *Bond) Maturity() date.Date { return b.terms.maturity }

// AccruedPrice is the accrued interest per 100 as of t.
func (b *Bond) AccruedPrice(t event.TimeArg) decimal.Decimal {
	if !b.IsActive(t) {
		return decimal.Zero
	}
	return b.terms.accruedAt(t)
}

// AmortizedCostPrice reprices the unpaid cashflows at the purchase yield. The
// offset to the purchase dirty price makes it exact at recognition.
func (b *Bond) AmortizedCostPrice(t event.TimeArg) event.Price {
	if !b.IsActive(t) {
		return event.Price{}
	}
	pv := fin.PresentValue(t.Date, b.terms.unpaid(t), b.terms.schedule, b.ytm)
	dirty := b.purchaseDirty.Add(fin.FromFloat(pv - b.pv0))
	return event.Price{Clean: dirty.Sub(b.terms.accruedAt(t)), Dirty: dirty}
}

// MarketPrice is the latest quoted clean price on or before t plus accrued
// interest. A missing quote is an error.
func (b *Bond) MarketPrice(t event.TimeArg) (event.Price, error) {
	if !b.IsActive(t) {
		return event.Price{}, nil
	}
	q, err := b.ctx.Defs.PriceAsOf(b.instrument, t.Date)
	if err != nil {
		return event.Price{}, err
	}
	return event.Price{Clean: q.Price, Dirty: q.Price.Add(b.terms.accruedAt(t))}, nil
}

func (b *Bond) NominalAmount(t event.TimeArg) decimal.Decimal {
	return b.amount(b.Count(t), hundred)
}

func (b *Bond) InterestAmount(t event.TimeArg) decimal.Decimal {
	return b.amount(b.Count(t), b.AccruedPrice(t))
}

func (b *Bond) MarketAmount(t event.TimeArg) (decimal.Decimal, error) {
	p, err := b.MarketPrice(t)
	if err != nil {
		return decimal.Zero, err
	}
	return b.amount(b.Count(t), p.Dirty), nil
}

func (b *Bond) AmortizedCostAmount(t event.TimeArg) decimal.Decimal {
	return b.amount(b.Count(t), b.AmortizedCostPrice(t).Dirty)
}

// Tenor is the remaining time to maturity in years.
func (b *Bond) Tenor(t event.TimeArg) float64 {
	if !b.IsActive(t) {
		return 0
	}
	return float64(t.Date.DaysUntil(b.terms.maturity)) / 365
}

func (b *Bond) ModifiedDuration(t event.TimeArg) float64 {
	if !b.IsActive(t) {
		return 0
	}
	return fin.ModifiedDuration(t.Date, b.terms.unpaid(t), b.terms.schedule, b.ytm)
}

// YieldToMaturity is the yield solved at recognition. It is not re-solved when a
// floating coupon resets.
func (b *Bond) YieldToMaturity(t event.TimeArg) float64 {
	if !b.IsActive(t) {
		return 0
	}
	return b.ytm
}

func (b *Bond) Income(start, end event.TimeArg) (Income, error) {
	return b.income(start, end, b.AmortizedCostAmount, b.InterestAmount), nil
}

func (b *Bond) FXGainLoss(start, end event.TimeArg) (decimal.Decimal, error) {
	return decimal.Zero, fmt.Errorf("bond fx gain/loss: %w", ErrNotSupported)
}

// Valuate appends a valuation snapshot at at. Amortized-cost lots without a quote
// are valued at amortized cost; fair value lots fail.
func (b *Bond) Valuate(at event.Stamp) (*event.Valuation, error) {
	t := event.Prior(at)
	if !b.IsActive(t) {
		return nil, nil
	}
	ac := b.AmortizedCostPrice(t)
	market, err := b.MarketPrice(t)
	if err != nil {
		if b.class != refdata.AmortizedCost {
			return nil, err
		}
		market = ac
	}
	v := b.snapshot(at, market, ac)
	if err := b.AddEvent(v); err != nil {
		return nil, err
	}
	return v, nil
}
