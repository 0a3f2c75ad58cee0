package booking

import (
	"fmt"
	"sort"
	"time"

	"PortfolioLedger/internal/date"
	"PortfolioLedger/internal/event"
	"PortfolioLedger/internal/ledger"
	fin "PortfolioLedger/internal/math"
	"PortfolioLedger/internal/refdata"
	"PortfolioLedger/internal/tax"

	"github.com/shopspring/decimal"
)

// YearEndStamp is when the year is closed, after every other event of 31 Dec.
func YearEndStamp(year int) event.Stamp {
	return event.Stamp{Date: date.New(year, time.December, 31), Index: event.IndexClose, Rank: event.RankYearEnd}
}

// TrueUp settles the corporate income tax of one portfolio for a year.
type TrueUp struct {
	Portfolio  string
	Required   decimal.Decimal
	Assessed   decimal.Decimal
	Precharged decimal.Decimal
	Payable    decimal.Decimal
}

// CloseYear trues up the corporate income tax and closes every annual account
// of both books into PriorPeriodResult.
func CloseYear(c *Context, year int) ([]TrueUp, error) {
	trueUps, err := trueUp(c, year)
	if err != nil {
		return nil, err
	}
	at := YearEndStamp(year)
	err = c.apply(at, fmt.Sprintf("close %d", year), func(main, tax *poster) error {
		closeBook(main, at)
		closeBook(tax, at)
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, b := range []*ledger.Book{c.Main, c.Tax} {
		if err := ledger.NewInvariantValidator(b).ValidateClosed(year); err != nil {
			return nil, err
		}
	}
	return trueUps, nil
}

// closeBook moves the year's net of every annual account into the prior period
// result of its portfolio and currency.
func closeBook(p *poster, at event.Stamp) {
	t := event.EndOf(at.Date)
	for _, a := range p.book.Filter(func(k ledger.AccountKey) bool { return k.Type.IsAnnual() }) {
		net := a.Net(t)
		if net.IsZero() {
			continue
		}
		q := p.on(a.Key.Portfolio, a.Key.Currency, a.Key.AssetType)
		q.post(a.Key.Type, net.Neg())
		q.postPlain(ledger.PriorPeriodResult, net)
	}
}

// trueUp credits the withholding tax charged at source during the year against
// the corporate income tax accrued in the main book, up to the accrued amount,
// and reports what remains payable after mid-year assessments.
func trueUp(c *Context, year int) ([]TrueUp, error) {
	end := date.New(year, time.December, 31)
	t := event.EndOf(end)

	precharged := make(map[string]decimal.Decimal)
	for _, a := range c.Tax.Filter(func(k ledger.AccountKey) bool { return k.Type == ledger.PrechargedTax }) {
		v, err := c.local(a.Net(t), a.Key.Currency, end)
		if err != nil {
			return nil, fmt.Errorf("true-up %d: %w", year, err)
		}
		precharged[a.Key.Portfolio] = precharged[a.Key.Portfolio].Add(v)
	}
	assessed := make(map[string]decimal.Decimal)
	for _, adj := range c.Defs.Adjustments() {
		if a, ok := adj.(*refdata.TaxAssessment); ok && a.On.Year() == year {
			assessed[a.Portfolio] = assessed[a.Portfolio].Add(a.Amount)
		}
	}
	required := c.bookedIncomeTax(end)

	names := make(map[string]struct{})
	for _, m := range []map[string]decimal.Decimal{precharged, assessed, required} {
		for n := range m {
			names[n] = struct{}{}
		}
	}
	var out []TrueUp
	for n := range names {
		credit := decimal.Max(decimal.Zero, decimal.Min(precharged[n], required[n]))
		out = append(out, TrueUp{
			Portfolio:  n,
			Required:   required[n],
			Assessed:   assessed[n],
			Precharged: credit,
			Payable:    tax.TrueUp(required[n], assessed[n], credit),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Portfolio < out[j].Portfolio })

	err := c.apply(TaxStamp(end), fmt.Sprintf("income tax true-up %d", year), func(main, _ *poster) error {
		for _, u := range out {
			m := main.on(u.Portfolio, c.LocalCurrency, refdata.AssetTypeNone)
			m.postPlain(ledger.Tax, u.Precharged.Neg())
			m.postPlain(ledger.TaxLiabilities, u.Precharged)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, u := range out {
		c.Log.Info().
			Int("year", year).
			Str("portfolio", u.Portfolio).
			Str("required", fin.FormatAmount(u.Required, c.LocalCurrency)).
			Str("assessed", fin.FormatAmount(u.Assessed, c.LocalCurrency)).
			Str("precharged", fin.FormatAmount(u.Precharged, c.LocalCurrency)).
			Str("payable", fin.FormatAmount(u.Payable, c.LocalCurrency)).
			Msg("income tax true-up")
	}
	return out, nil
}
