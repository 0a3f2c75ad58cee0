package asset

import (
	"fmt"

	"PortfolioLedger/internal/event"
	"PortfolioLedger/internal/refdata"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Security is an equity, ETF or fund lot. It carries no time value: amortized
// cost is the purchase price.
type Security struct {
	base
	ctx Context
}

// NewSecurity recognizes the lot and schedules the dividends recorded on or
// after the recognition date.
func NewSecurity(ctx Context, id uuid.UUID, inst *refdata.Instrument, loc Location, class refdata.ValuationClass, r *event.Recognition) (*Security, error) {
	if !inst.Type.IsSecurity() {
		return nil, fmt.Errorf("instrument %s of type %s is not a security", inst.ID, inst.Type)
	}
	s := &Security{
		base: newBase(id, inst.Type, class, inst.ID, loc, inst.Currency, inst.Factor()),
		ctx:  ctx,
	}
	if err := s.AddEvent(r); err != nil {
		return nil, err
	}
	for _, q := range ctx.Defs.Dividends(inst.ID) {
		if q.RecordDate.Before(r.At.Date) || q.PayDate.Before(r.At.Date) {
			continue
		}
		currency := q.Currency
		if currency == "" {
			currency = inst.Currency
		}
		f := &event.Flow{
			Header: event.Header{
				EventID: event.NewID(id.String(), "dividend", q.PayDate.String()),
				Parent:  id,
				At:      event.Stamp{Date: q.PayDate, Index: event.IndexOpen, Rank: event.RankDividend},
			},
			Type:       event.FlowDividend,
			RecordDate: q.RecordDate,
			Currency:   currency,
			PerUnit:    q.Amount,
			Policy:     ctx.policy(event.FlowDividend, inst.ID, loc, q.PayDate),
		}
		if err := s.AddEvent(f); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// MarketPrice is the latest close on or before t. A missing quote is an error.
func (s *Security) MarketPrice(t event.TimeArg) (event.Price, error) {
	if !s.IsActive(t) {
		return event.Price{}, nil
	}
	q, err := s.ctx.Defs.PriceAsOf(s.instrument, t.Date)
	if err != nil {
		return event.Price{}, err
	}
	return event.Flat(q.Price), nil
}

func (s *Security) AmortizedCostPrice(t event.TimeArg) event.Price {
	if !s.IsActive(t) {
		return event.Price{}
	}
	return s.PurchasePrice(t)
}

func (s *Security) NominalAmount(t event.TimeArg) decimal.Decimal { return s.PurchaseAmount(t) }
func (s *Security) InterestAmount(event.TimeArg) decimal.Decimal  { return decimal.Zero }

func (s *Security) MarketAmount(t event.TimeArg) (decimal.Decimal, error) {
	p, err := s.MarketPrice(t)
	if err != nil {
		return decimal.Zero, err
	}
	return s.amount(s.Count(t), p.Dirty), nil
}

func (s *Security) AmortizedCostAmount(t event.TimeArg) decimal.Decimal {
	return s.amount(s.Count(t), s.AmortizedCostPrice(t).Dirty)
}

func (s *Security) Tenor(event.TimeArg) float64            { return 0 }
func (s *Security) ModifiedDuration(event.TimeArg) float64 { return 0 }
func (s *Security) YieldToMaturity(event.TimeArg) float64  { return 0 }

func (s *Security) Income(start, end event.TimeArg) (Income, error) {
	zero := func(event.TimeArg) decimal.Decimal { return decimal.Zero }
	return s.income(start, end, s.AmortizedCostAmount, zero), nil
}

// FXGainLoss revalues the cost of the units held at start with the rate change
// over the window.
func (s *Security) FXGainLoss(start, end event.TimeArg) (decimal.Decimal, error) {
	return fxGainLoss(s.ctx, s.currency, s.AmortizedCostAmount(start), start, end)
}

// Valuate appends a valuation snapshot at at. Amortized-cost lots without a quote
// are valued at cost; fair value lots fail.
func (s *Security) Valuate(at event.Stamp) (*event.Valuation, error) {
	t := event.Prior(at)
	if !s.IsActive(t) {
		return nil, nil
	}
	ac := s.AmortizedCostPrice(t)
	market, err := s.MarketPrice(t)
	if err != nil {
		if s.class != refdata.AmortizedCost {
			return nil, err
		}
		market = ac
	}
	v := s.snapshot(at, market, ac)
	if err := s.AddEvent(v); err != nil {
		return nil, err
	}
	return v, nil
}
