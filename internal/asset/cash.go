package asset

import (
	"fmt"

	"PortfolioLedger/internal/event"
	"PortfolioLedger/internal/refdata"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Cash is a balance fed by payments. Its price is 1; the bounds close when the
// running balance returns to zero.
type Cash struct {
	base
	ctx Context
}

// NewCash opens a cash lot with its first inflow.
func NewCash(ctx Context, id uuid.UUID, loc Location, currency string, first *event.Payment) (*Cash, error) {
	if first.Direction != event.Inflow || !first.Value.IsPositive() {
		return nil, fmt.Errorf("cash %s must open with a positive inflow", id)
	}
	c := &Cash{
		base: newBase(id, refdata.AssetTypeCash, refdata.AmortizedCost, currency, loc, currency, decimal.NewFromInt(1)),
		ctx:  ctx,
	}
	if err := c.AddEvent(first); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cash) price(t event.TimeArg) event.Price {
	if !c.IsActive(t) {
		return event.Price{}
	}
	return event.Flat(decimal.NewFromInt(1))
}

func (c *Cash) PurchasePrice(t event.TimeArg) event.Price             { return c.price(t) }
func (c *Cash) MarketPrice(t event.TimeArg) (event.Price, error)      { return c.price(t), nil }
func (c *Cash) AmortizedCostPrice(t event.TimeArg) event.Price        { return c.price(t) }
func (c *Cash) NominalAmount(t event.TimeArg) decimal.Decimal         { return c.Count(t) }
func (c *Cash) InterestAmount(event.TimeArg) decimal.Decimal          { return decimal.Zero }
func (c *Cash) PurchaseAmount(t event.TimeArg) decimal.Decimal        { return c.Count(t) }
func (c *Cash) MarketAmount(t event.TimeArg) (decimal.Decimal, error) { return c.Count(t), nil }
func (c *Cash) AmortizedCostAmount(t event.TimeArg) decimal.Decimal   { return c.Count(t) }
func (c *Cash) TaxCostAmount(t event.TimeArg) decimal.Decimal         { return c.Count(t) }
func (c *Cash) Tenor(event.TimeArg) float64                           { return 0 }
func (c *Cash) ModifiedDuration(event.TimeArg) float64                { return 0 }
func (c *Cash) YieldToMaturity(event.TimeArg) float64                 { return 0 }
func (c *Cash) Income(start, end event.TimeArg) (Income, error)       { return Income{}, nil }

// FXGainLoss revalues the balance held at start with the rate change over the
// window, in local currency.
func (c *Cash) FXGainLoss(start, end event.TimeArg) (decimal.Decimal, error) {
	return fxGainLoss(c.ctx, c.currency, c.Count(start), start, end)
}

func fxGainLoss(ctx Context, currency string, amount decimal.Decimal, start, end event.TimeArg) (decimal.Decimal, error) {
	if currency == ctx.LocalCurrency || amount.IsZero() {
		return decimal.Zero, nil
	}
	from, err := ctx.Defs.FXRate(currency, ctx.LocalCurrency, start.Date)
	if err != nil {
		return decimal.Zero, err
	}
	to, err := ctx.Defs.FXRate(currency, ctx.LocalCurrency, end.Date)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(to.Sub(from)).Round(2), nil
}
