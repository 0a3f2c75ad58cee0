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

// Futures is a long futures position settled against the closing price at every
// month end. The purchase fee is deferred and recognised over the contract's
// life in proportion to elapsed days.
type Futures struct {
	base
	ctx      Context
	maturity date.Date
	fees     *fin.FeeSchedule
}

// NewFutures recognizes the position and plans the fee recognition over the
// month-end settlements up to maturity.
func NewFutures(ctx Context, id uuid.UUID, inst *refdata.Instrument, loc Location, r *event.Recognition) (*Futures, error) {
	if inst.Maturity.IsZero() {
		return nil, fmt.Errorf("futures %s has no maturity", inst.ID)
	}
	if !r.Units.IsPositive() {
		return nil, fmt.Errorf("futures %s: short positions: %w", inst.ID, ErrNotSupported)
	}
	f := &Futures{
		base:     newBase(id, refdata.AssetTypeFutures, refdata.FVTPL, inst.ID, loc, inst.Currency, inst.Factor()),
		ctx:      ctx,
		maturity: inst.Maturity,
	}
	if err := f.base.AddEvent(r); err != nil {
		return nil, err
	}
	start := r.At.Date
	dates := date.MonthEnds(start, inst.Maturity)
	if len(dates) == 0 || dates[len(dates)-1] != inst.Maturity {
		dates = append(dates, inst.Maturity)
	}
	f.fees = fin.ComputeFeeSchedule(r.Fee, start, inst.Maturity, dates, fin.Rounder(f.currency))
	return f, nil
}

// Maturity is the final settlement date.
func (f *Futures) Maturity() date.Date { return f.maturity }

// AddEvent inserts e and rederives every settlement margin.
func (f *Futures) AddEvent(e event.Event) error {
	if err := f.base.AddEvent(e); err != nil {
		return err
	}
	return f.RecalculateFlows()
}

// RecalculateFlows rederives the margin of every settlement from the settlement
// price chain: each settlement starts where the previous one (or the purchase)
// ended. Closing prices are read again so that corrected quotes flow through.
func (f *Futures) RecalculateFlows() error {
	prev := decimal.Zero
	for _, e := range f.events {
		switch v := e.(type) {
		case *event.Recognition:
			prev = v.Price.Clean
		case *event.Settlement:
			to := v.To
			if q, err := f.ctx.Defs.PriceAsOf(f.instrument, v.At.Date); err == nil {
				to = q.Price
			}
			v.Units = f.Count(event.Prior(v.At))
			v.Recalculate(prev, to, v.FeeShare)
			prev = to
		}
	}
	f.refreshBounds()
	return nil
}

// lastPrice is the latest settlement price as of t, the purchase price before the
// first settlement.
func (f *Futures) lastPrice(t event.TimeArg) decimal.Decimal {
	p := decimal.Zero
	for _, e := range f.events {
		if !t.Includes(e.Stamp()) {
			break
		}
		switch v := e.(type) {
		case *event.Recognition:
			p = v.Price.Clean
		case *event.Settlement:
			p = v.To
		}
	}
	return p
}

// Settle marks the position to the closing price at at. The final settlement
// closes the position and recognises whatever fee is still deferred.
func (f *Futures) Settle(at event.Stamp, final bool) (*event.Settlement, error) {
	before := event.Prior(at)
	units := f.Count(before)
	if units.IsZero() {
		return nil, nil
	}
	q, err := f.ctx.Defs.PriceAsOf(f.instrument, at.Date)
	if err != nil {
		return nil, fmt.Errorf("settle %s: %w", f.instrument, err)
	}
	deferred := f.DeferredFee(before)
	share := decimal.Min(f.fees.Recognised(at.Date).Sub(f.fees.Recognised(at.Date.Add(-1))), deferred)
	if final {
		share = deferred
	}
	s := &event.Settlement{
		Header:     event.Header{EventID: event.NewID(f.id.String(), "settlement", at.String()), Parent: f.id, At: at},
		Units:      units,
		Multiplier: f.factor,
		Currency:   f.currency,
		FeeShare:   share,
		Final:      final,
	}
	s.Recalculate(f.lastPrice(before), q.Price, share)
	if err := f.AddEvent(s); err != nil {
		return nil, err
	}
	return s, nil
}

// CloseMargin is the margin realised by a closing derecognition: the sale price
// against the last settlement price.
func (f *Futures) CloseMargin(d *event.Derecognition) decimal.Decimal {
	return fin.VariationMargin(d.Units, f.factor, f.lastPrice(event.Prior(d.At)), d.Price.Clean, fin.Rounder(f.currency))
}

func (f *Futures) PurchasePrice(t event.TimeArg) event.Price {
	if !f.IsActive(t) {
		return event.Price{}
	}
	return f.base.PurchasePrice(t)
}

func (f *Futures) MarketPrice(t event.TimeArg) (event.Price, error) {
	if !f.IsActive(t) {
		return event.Price{}, nil
	}
	q, err := f.ctx.Defs.PriceAsOf(f.instrument, t.Date)
	if err != nil {
		return event.Price{}, err
	}
	return event.Flat(q.Price), nil
}

// AmortizedCostPrice is the last settlement price.
func (f *Futures) AmortizedCostPrice(t event.TimeArg) event.Price {
	if !f.IsActive(t) {
		return event.Price{}
	}
	return event.Flat(f.lastPrice(t))
}

// NominalAmount is the notional exposure at the last settlement price.
func (f *Futures) NominalAmount(t event.TimeArg) decimal.Decimal {
	return f.amount(f.Count(t), f.AmortizedCostPrice(t).Clean)
}

func (f *Futures) InterestAmount(event.TimeArg) decimal.Decimal { return decimal.Zero }
func (f *Futures) PurchaseAmount(event.TimeArg) decimal.Decimal { return decimal.Zero }
func (f *Futures) TaxCostAmount(event.TimeArg) decimal.Decimal  { return decimal.Zero }

// MarketAmount is the margin not yet settled.
func (f *Futures) MarketAmount(t event.TimeArg) (decimal.Decimal, error) {
	p, err := f.MarketPrice(t)
	if err != nil {
		return decimal.Zero, err
	}
	return fin.VariationMargin(f.Count(t), f.factor, f.lastPrice(t), p.Clean, f.round), nil
}

// AmortizedCostAmount is the deferred fee, the only balance a settled position
// carries.
func (f *Futures) AmortizedCostAmount(t event.TimeArg) decimal.Decimal {
	return f.DeferredFee(t)
}

func (f *Futures) Tenor(t event.TimeArg) float64 {
	if !f.IsActive(t) {
		return 0
	}
	return float64(t.Date.DaysUntil(f.maturity)) / 365
}

func (f *Futures) ModifiedDuration(event.TimeArg) float64 { return 0 }
func (f *Futures) YieldToMaturity(event.TimeArg) float64  { return 0 }

// Income is the margin settled over the window, less the fee recognised.
func (f *Futures) Income(start, end event.TimeArg) (Income, error) {
	inc := Income{}
	recognised := f.DeferredFee(start).Sub(f.DeferredFee(end))
	for _, e := range f.window(start, end) {
		switch v := e.(type) {
		case *event.Recognition:
			recognised = recognised.Add(v.Fee)
		case *event.Settlement:
			inc.Realized = inc.Realized.Add(v.Margin)
		case *event.Derecognition:
			inc.Realized = inc.Realized.Add(f.CloseMargin(v))
		}
	}
	inc.Realized = inc.Realized.Sub(recognised)
	return inc, nil
}

func (f *Futures) FXGainLoss(start, end event.TimeArg) (decimal.Decimal, error) {
	return decimal.Zero, fmt.Errorf("futures fx gain/loss: %w", ErrNotSupported)
}
