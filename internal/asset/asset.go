package asset

import (
	"errors"
	"fmt"

	"PortfolioLedger/internal/date"
	"PortfolioLedger/internal/event"
	"PortfolioLedger/internal/refdata"
	"PortfolioLedger/internal/tax"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotSupported marks a valuation path an asset variant does not implement.
	// It is distinct from a computed zero.
	ErrNotSupported = errors.New("not supported for this asset type")

	// ErrForeignEvent is returned when an event belongs to another asset.
	ErrForeignEvent = errors.New("event belongs to another asset")
)

// Location places a lot: portfolio plus its cash and custody accounts.
type Location struct {
	Portfolio      string
	CashAccount    string
	CustodyAccount string
	Broker         string
}

// LocationOf derives the location from a portfolio definition.
func LocationOf(p *refdata.Portfolio) Location {
	return Location{
		Portfolio:      p.Name,
		CashAccount:    p.CashAccount,
		CustodyAccount: p.CustodyAccount,
		Broker:         p.BrokerName(),
	}
}

// PolicyFunc decides the withholding policy of a flow.
type PolicyFunc func(ft event.FlowType, instrument string, loc Location, pay date.Date) tax.Policy

// Context gives assets read access to reference data.
type Context struct {
	Defs          *refdata.Definitions
	LocalCurrency string
	Policy        PolicyFunc
}

func (c Context) policy(ft event.FlowType, instrument string, loc Location, pay date.Date) tax.Policy {
	if c.Policy == nil {
		return tax.Policy{}
	}
	return c.Policy(ft, instrument, loc, pay)
}

// Income decomposes the result of an asset over a window.
type Income struct {
	TimeValue  decimal.Decimal // Accretion of amortized cost
	Cashflow   decimal.Decimal // Gross coupons and dividends
	Realized   decimal.Decimal // Proceeds minus amortized cost derecognized, futures margins
	Unrealized decimal.Decimal // Change of the carried market valuation gap
}

// Total is the sum of all components.
func (i Income) Total() decimal.Decimal {
	return i.TimeValue.Add(i.Cashflow).Add(i.Realized).Add(i.Unrealized)
}

// Asset is a lot (or cash balance) with its ordered event history. All queries
// take a TimeArg and only look at events it includes.
type Asset interface {
	ID() uuid.UUID
	Type() refdata.AssetType
	Class() refdata.ValuationClass
	Instrument() string
	Location() Location
	Currency() string
	Factor() decimal.Decimal

	Events() []event.Event
	Bounds() (start event.Stamp, end *event.Stamp)
	IsActive(t event.TimeArg) bool
	IsActiveBetween(start, end event.TimeArg) bool
	AddEvent(e event.Event) error

	Count(t event.TimeArg) decimal.Decimal
	PurchasePrice(t event.TimeArg) event.Price
	MarketPrice(t event.TimeArg) (event.Price, error)
	AmortizedCostPrice(t event.TimeArg) event.Price

	NominalAmount(t event.TimeArg) decimal.Decimal
	InterestAmount(t event.TimeArg) decimal.Decimal
	PurchaseAmount(t event.TimeArg) decimal.Decimal
	MarketAmount(t event.TimeArg) (decimal.Decimal, error)
	AmortizedCostAmount(t event.TimeArg) decimal.Decimal
	TaxCostAmount(t event.TimeArg) decimal.Decimal
	CarriedGap(t event.TimeArg) decimal.Decimal
	DeferredFee(t event.TimeArg) decimal.Decimal

	Tenor(t event.TimeArg) float64
	ModifiedDuration(t event.TimeArg) float64
	YieldToMaturity(t event.TimeArg) float64
	Income(start, end event.TimeArg) (Income, error)
	FXGainLoss(start, end event.TimeArg) (decimal.Decimal, error)
}

// Valuer is implemented by assets that take period-end valuations.
type Valuer interface {
	Asset
	Valuate(at event.Stamp) (*event.Valuation, error)
}

var (
	_ Asset  = (*Cash)(nil)
	_ Valuer = (*Bond)(nil)
	_ Valuer = (*Security)(nil)
	_ Asset  = (*Futures)(nil)
)

// New instantiates the variant matching the instrument type from its first
// recognition and generates the lot's scheduled flows.
func New(ctx Context, id uuid.UUID, inst *refdata.Instrument, loc Location, class refdata.ValuationClass, r *event.Recognition) (Asset, error) {
	switch inst.Type {
	case refdata.AssetTypeBond:
		return NewBond(ctx, id, inst, loc, class, r)
	case refdata.AssetTypeEquity, refdata.AssetTypeETF, refdata.AssetTypeFund:
		return NewSecurity(ctx, id, inst, loc, class, r)
	case refdata.AssetTypeFutures:
		return NewFutures(ctx, id, inst, loc, r)
	}
	return nil, fmt.Errorf("instrument %s of type %s: %w", inst.ID, inst.Type, ErrNotSupported)
}
