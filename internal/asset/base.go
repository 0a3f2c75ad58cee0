package asset

import (
	"fmt"
	"sort"

	"PortfolioLedger/internal/event"
	fin "PortfolioLedger/internal/math"
	"PortfolioLedger/internal/refdata"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// base holds what every variant shares: identity, location, the ordered event
// list and the active bounds derived from it.
type base struct {
	id         uuid.UUID
	typ        refdata.AssetType
	class      refdata.ValuationClass
	instrument string
	loc        Location
	currency   string
	factor     decimal.Decimal

	events []event.Event
	start  event.Stamp
	end    *event.Stamp
}

func newBase(id uuid.UUID, typ refdata.AssetType, class refdata.ValuationClass, instrument string, loc Location, currency string, factor decimal.Decimal) base {
	return base{
		id:         id,
		typ:        typ,
		class:      class,
		instrument: instrument,
		loc:        loc,
		currency:   currency,
		factor:     factor,
	}
}

func (b *base) ID() uuid.UUID                 { return b.id }
func (b *base) Type() refdata.AssetType       { return b.typ }
func (b *base) Class() refdata.ValuationClass { return b.class }
func (b *base) Instrument() string            { return b.instrument }
func (b *base) Location() Location            { return b.loc }
func (b *base) Currency() string              { return b.currency }
func (b *base) Factor() decimal.Decimal       { return b.factor }

func (b *base) Bounds() (event.Stamp, *event.Stamp) { return b.start, b.end }

func (b *base) round(d decimal.Decimal) decimal.Decimal {
	return fin.RoundAmount(d, b.currency, fin.RoundHalfEven)
}

// Events returns a copy of the event list in stamp order.
func (b *base) Events() []event.Event {
	out := make([]event.Event, len(b.events))
	copy(out, b.events)
	return out
}

// IsActive reports whether t lies within [start, end]. The end instant itself
// is active only through the closing event: Through(end) is, EndOf its day is not.
func (b *base) IsActive(t event.TimeArg) bool {
	if len(b.events) == 0 || !t.Includes(b.start) {
		return false
	}
	return b.end == nil || !t.Includes(*b.end) || t.Compare(event.Through(*b.end)) == 0
}

// IsActiveBetween reports whether the bounds overlap the window [start, end].
func (b *base) IsActiveBetween(start, end event.TimeArg) bool {
	if len(b.events) == 0 || !end.Includes(b.start) {
		return false
	}
	return b.end == nil || start.Compare(event.Through(*b.end)) <= 0
}

// AddEvent inserts e after every event with a lower or equal stamp, then
// recalculates the flows from the insertion point on and the bounds.
func (b *base) AddEvent(e event.Event) error {
	i, err := b.insert(e)
	if err != nil {
		return err
	}
	b.refresh(i)
	return nil
}

func (b *base) insert(e event.Event) (int, error) {
	if e.AssetID() != b.id {
		return 0, fmt.Errorf("%w: %s event %s for asset %s", ErrForeignEvent, e.Kind(), e.ID(), b.id)
	}
	s := e.Stamp()
	i := sort.Search(len(b.events), func(i int) bool { return s.Less(b.events[i].Stamp()) })
	b.events = append(b.events, nil)
	copy(b.events[i+1:], b.events[i:])
	b.events[i] = e
	return i, nil
}

// refresh recomputes the flows at or after index from and then the bounds.
// Earlier flows are fixed before the inserted event and cannot change.
func (b *base) refresh(from int) {
	for _, e := range b.events[from:] {
		if f, ok := e.(*event.Flow); ok {
			f.Recalculate(b.Count(f.EntitlementAt()), f.Policy)
		}
	}
	b.refreshBounds()
}

func (b *base) refreshBounds() {
	b.end = nil
	if len(b.events) == 0 {
		return
	}
	b.start = b.events[0].Stamp()
	running := decimal.Zero
	opened := false
	for _, e := range b.events {
		running = running.Add(e.Count())
		if !running.IsZero() {
			opened = true
			continue
		}
		if opened {
			s := e.Stamp()
			b.end = &s
			return
		}
	}
}

// Count is the number of units held as of t.
func (b *base) Count(t event.TimeArg) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range b.events {
		if !t.Includes(e.Stamp()) {
			break
		}
		sum = sum.Add(e.Count())
	}
	return sum
}

// recognition is the lot-creating event, nil for cash.
func (b *base) recognition() *event.Recognition {
	if len(b.events) == 0 {
		return nil
	}
	r, _ := b.events[0].(*event.Recognition)
	return r
}

// window returns the events included by end but not by start.
func (b *base) window(start, end event.TimeArg) []event.Event {
	var out []event.Event
	for _, e := range b.events {
		s := e.Stamp()
		if !end.Includes(s) {
			break
		}
		if !start.Includes(s) {
			out = append(out, e)
		}
	}
	return out
}

// amount converts a price into a currency amount for count units.
func (b *base) amount(count, price decimal.Decimal) decimal.Decimal {
	return b.round(count.Mul(b.factor).Mul(price))
}

// reduce releases the share of v belonging to the units removed when the running
// position drops from before to after.
func (b *base) reduce(v, before, after decimal.Decimal) decimal.Decimal {
	if after.IsZero() {
		return decimal.Zero
	}
	removed := before.Sub(after)
	return v.Sub(b.round(v.Mul(removed).Div(before)))
}

// CarriedGap is the market valuation gap (market minus amortized cost) the lot
// carries as of t: set by recognitions and valuations, released pro rata as
// units leave. Always zero for amortized-cost lots.
func (b *base) CarriedGap(t event.TimeArg) decimal.Decimal {
	if b.class == refdata.AmortizedCost || b.typ == refdata.AssetTypeCash || b.typ == refdata.AssetTypeFutures {
		return decimal.Zero
	}
	gap, running := decimal.Zero, decimal.Zero
	for _, e := range b.events {
		if !t.Includes(e.Stamp()) {
			break
		}
		switch v := e.(type) {
		case *event.Recognition:
			gap = v.Gap
		case *event.Valuation:
			gap = v.Gap
		}
		c := e.Count()
		if c.IsNegative() && running.IsPositive() {
			gap = b.reduce(gap, running, running.Add(c))
		}
		running = running.Add(c)
	}
	return gap
}

// DeferredFee is the part of the purchase fee not yet recognised as of t. The
// fee is deferred at recognition, recognised by futures settlements and
// released pro rata as units leave.
func (b *base) DeferredFee(t event.TimeArg) decimal.Decimal {
	fee, running := decimal.Zero, decimal.Zero
	for _, e := range b.events {
		if !t.Includes(e.Stamp()) {
			break
		}
		switch v := e.(type) {
		case *event.Recognition:
			fee = fee.Add(v.Fee)
		case *event.Settlement:
			if v.Final {
				fee = decimal.Zero
			} else {
				fee = fee.Sub(v.FeeShare)
			}
		}
		c := e.Count()
		if _, ok := e.(*event.Settlement); !ok && c.IsNegative() && running.IsPositive() {
			fee = b.reduce(fee, running, running.Add(c))
		}
		running = running.Add(c)
	}
	return fee
}

// TaxCostAmount is the clean cost basis of the units held, as carried by the
// tax book.
func (b *base) TaxCostAmount(t event.TimeArg) decimal.Decimal {
	r := b.recognition()
	if r == nil {
		return b.Count(t)
	}
	return b.amount(b.Count(t), r.CostPrice())
}

// PurchasePrice is the price paid for the lot.
func (b *base) PurchasePrice(event.TimeArg) event.Price {
	if r := b.recognition(); r != nil {
		return r.Price
	}
	return event.Flat(decimal.NewFromInt(1))
}

func (b *base) PurchaseAmount(t event.TimeArg) decimal.Decimal {
	return b.amount(b.Count(t), b.PurchasePrice(t).Dirty)
}

// income sums the lot's result over a window. Every event contributes its
// discontinuity of amortized cost (the units or cash it moves); the rest of the
// change is accretion. Accretion splits into interest accrued (cashflow income,
// with dividends) and the pull of amortized cost towards redemption.
func (b *base) income(start, end event.TimeArg, ac, interest func(event.TimeArg) decimal.Decimal) Income {
	inc := Income{}
	accretion := ac(end).Sub(ac(start))
	accrued := interest(end).Sub(interest(start))
	for _, e := range b.window(start, end) {
		s := e.Stamp()
		jump := ac(event.Prior(s)).Sub(ac(event.Through(s)))
		accretion = accretion.Add(jump)
		accrued = accrued.Add(interest(event.Prior(s)).Sub(interest(event.Through(s))))
		switch v := e.(type) {
		case *event.Flow:
			switch v.Type {
			case event.FlowRedemption:
				inc.Realized = inc.Realized.Add(v.Gross().Sub(jump))
			case event.FlowDividend:
				inc.Cashflow = inc.Cashflow.Add(v.Gross())
			}
		case *event.Derecognition:
			inc.Realized = inc.Realized.Add(v.Amount().Sub(jump))
		}
	}
	inc.Cashflow = inc.Cashflow.Add(accrued)
	inc.TimeValue = accretion.Sub(accrued)
	inc.Unrealized = b.CarriedGap(end).Sub(b.CarriedGap(start))
	return inc
}

// snapshot builds a valuation event of the units held right before at.
func (b *base) snapshot(at event.Stamp, market, amortized event.Price) *event.Valuation {
	units := b.Count(event.Prior(at))
	v := &event.Valuation{
		Header:    event.Header{EventID: event.NewID(b.id.String(), "valuation", at.String()), Parent: b.id, At: at},
		Units:     units,
		Factor:    b.factor,
		Currency:  b.currency,
		Market:    market,
		Amortized: amortized,
	}
	v.MarketValue = b.amount(units, market.Dirty)
	v.AmortizedValue = b.amount(units, amortized.Dirty)
	if b.class != refdata.AmortizedCost {
		v.Gap = v.MarketValue.Sub(v.AmortizedValue)
	}
	v.Accretion = v.AmortizedValue.Sub(b.amount(units, b.PurchasePrice(event.Prior(at)).Dirty))
	return v
}
