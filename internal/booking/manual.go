package booking

import (
	"fmt"

	"PortfolioLedger/internal/event"
	"PortfolioLedger/internal/ledger"
	"PortfolioLedger/internal/refdata"

	"github.com/shopspring/decimal"
)

// CashMovement books a deposit (positive) or withdrawal (negative) against
// share capital in both books.
func CashMovement(c *Context, portfolio, currency string, amount decimal.Decimal, at event.Stamp) error {
	desc := "deposit"
	if amount.IsNegative() {
		desc = "withdrawal"
	}
	return c.apply(at, desc, func(main, tax *poster) error {
		for _, p := range []*poster{main, tax} {
			q := p.on(portfolio, currency, refdata.AssetTypeNone)
			q.cash(amount)
			q.postPlain(ledger.ShareCapital, amount.Neg())
		}
		return nil
	})
}

// AdditionalPremium books a premium received as ordinary income or a charge paid
// as fees, in both books.
func AdditionalPremium(c *Context, adj *refdata.AdditionalPremium, at event.Stamp) error {
	desc := adj.Description
	if desc == "" {
		desc = adj.Kind().String()
	}
	return c.apply(at, desc, func(main, tax *poster) error {
		for _, p := range []*poster{main, tax} {
			q := p.on(adj.Portfolio, adj.Currency, refdata.AssetTypeNone)
			q.cash(adj.Amount)
			if adj.Amount.IsPositive() {
				q.post(ledger.OrdinaryIncome, adj.Amount.Neg())
			} else {
				q.post(ledger.Fees, adj.Amount.Neg())
			}
		}
		return nil
	})
}

// TaxAssessment books a prepayment of corporate income tax in local currency:
// TaxLiabilities(+) against Cash(-) in both books.
func TaxAssessment(c *Context, adj *refdata.TaxAssessment, at event.Stamp) error {
	desc := fmt.Sprintf("%s %d", adj.Kind(), adj.On.Year())
	return c.apply(at, desc, func(main, tax *poster) error {
		for _, p := range []*poster{main, tax} {
			q := p.on(adj.Portfolio, c.LocalCurrency, refdata.AssetTypeNone)
			q.postPlain(ledger.TaxLiabilities, adj.Amount)
			q.cash(adj.Amount.Neg())
		}
		return nil
	})
}
