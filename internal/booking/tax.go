package booking

import (
	"fmt"

	"PortfolioLedger/internal/date"
	"PortfolioLedger/internal/event"
	"PortfolioLedger/internal/ledger"
	fin "PortfolioLedger/internal/math"
	"PortfolioLedger/internal/refdata"
	"PortfolioLedger/internal/tax"

	"github.com/shopspring/decimal"
)

// taxable lists the tax book accounts that make up the corporate income tax base.
var taxable = map[ledger.AccountType]bool{
	ledger.OrdinaryIncome:   true,
	ledger.RealizedProfit:   true,
	ledger.RealizedLoss:     true,
	ledger.UnrealizedProfit: true,
	ledger.UnrealizedLoss:   true,
	ledger.Fees:             true,
}

// TaxStamp is when the corporate income tax of a month end is accrued.
func TaxStamp(d date.Date) event.Stamp {
	return event.Stamp{Date: d, Index: event.IndexClose, Rank: event.RankTaxAccrual}
}

// local converts amount in currency into local currency as of on.
func (c *Context) local(amount decimal.Decimal, currency string, on date.Date) (decimal.Decimal, error) {
	rate, err := c.Defs.FXRate(currency, c.LocalCurrency, on)
	if err != nil {
		return decimal.Zero, err
	}
	return fin.RoundAmount(amount.Mul(rate), c.LocalCurrency, fin.RoundHalfEven), nil
}

// TaxableResults sums the year-to-date taxable result of every portfolio that
// is not tax free, in local currency, from the tax book. Positive is a profit.
func (c *Context) TaxableResults(on date.Date) (map[string]decimal.Decimal, error) {
	t := event.EndOf(on)
	out := make(map[string]decimal.Decimal)
	for _, a := range c.Tax.Accounts() {
		k := a.Key
		if !taxable[k.Type] || c.isTaxFree(k.Portfolio) {
			continue
		}
		v, err := c.local(a.Net(t).Neg(), k.Currency, on)
		if err != nil {
			return nil, err
		}
		out[k.Portfolio] = out[k.Portfolio].Add(v)
	}
	return out, nil
}

// bookedIncomeTax is the corporate income tax booked so far in the year, per
// portfolio, from the main book.
func (c *Context) bookedIncomeTax(on date.Date) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	accts := c.Main.Filter(func(k ledger.AccountKey) bool {
		return k.Type == ledger.Tax && k.AssetType == refdata.AssetTypeNone && k.Currency == c.LocalCurrency
	})
	for _, a := range accts {
		out[a.Key.Portfolio] = out[a.Key.Portfolio].Add(a.Net(event.EndOf(on)))
	}
	return out
}

// AccrueIncomeTax brings the corporate income tax booked in the main book to
// what the year-to-date taxable results require. The capped total is allocated
// among portfolios in descending result order; each delta is booked as
// Tax(+) against TaxLiabilities(-) in one operation.
func AccrueIncomeTax(c *Context, on date.Date) ([]tax.Accrual, error) {
	results, err := c.TaxableResults(on)
	if err != nil {
		return nil, fmt.Errorf("income tax %s: %w", on, err)
	}
	required := tax.Allocate(results, c.IncomeTaxRate, fin.Rounder(c.LocalCurrency))
	accruals := tax.Accruals(required, c.bookedIncomeTax(on))
	if len(accruals) == 0 {
		return nil, nil
	}
	err = c.apply(TaxStamp(on), "income tax", func(main, _ *poster) error {
		for _, a := range accruals {
			m := main.on(a.Portfolio, c.LocalCurrency, refdata.AssetTypeNone)
			m.postPlain(ledger.Tax, a.Delta)
			m.postPlain(ledger.TaxLiabilities, a.Delta.Neg())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return accruals, nil
}
