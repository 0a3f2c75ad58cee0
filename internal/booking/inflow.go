package booking

import (
	"fmt"

	"PortfolioLedger/internal/asset"
	"PortfolioLedger/internal/event"
	"PortfolioLedger/internal/ledger"
)

// Inflow books a dividend, coupon or redemption paid into cash.
//
// Main book: Cash(+net), Tax(+withheld) and the gross amount against ordinary
// income. Coupons and redemptions first bring amortized cost up to the payment
// and then derecognize what is paid out of it; a redemption books the
// difference as realized result and releases the valuation gap.
// Tax book: Cash(+net), PrechargedTax(+withheld), OrdinaryIncome(-gross), or
// NonTaxableResult for tax-free portfolios. A redemption derecognizes the clean
// cost basis and the deferred fee against ordinary income.
func Inflow(c *Context, a asset.Asset, f *event.Flow) error {
	if f.Entitled().IsZero() {
		return nil
	}
	desc := fmt.Sprintf("%s %s", f.Type, a.Instrument())
	pf := a.Location().Portfolio
	return c.apply(f.At, desc, func(main, tax *poster) error {
		m := main.onAsset(a)
		_, gap := m.carry(a, f.At)
		mf := main.on(pf, f.Currency, a.Type())
		mf.cash(f.Net())
		mf.post(ledger.Tax, f.Tax())
		if f.Type == event.FlowRedemption {
			m.unrealized(a.Class(), gap)
			mf.balance(ledger.RealizedProfit, ledger.RealizedLoss)
		} else {
			mf.balance(ledger.OrdinaryIncome, ledger.OrdinaryIncome)
		}

		income := c.incomeAccount(pf)
		tf := tax.on(pf, f.Currency, a.Type())
		tf.cash(f.Net())
		tf.post(ledger.PrechargedTax, f.Tax())
		if f.Type == event.FlowRedemption {
			cost, fee := outflow(a, f.At)
			tf.post(ledger.Assets, cost.Neg())
			tf.post(ledger.TaxReserves, fee.Neg())
			tf.post(ledger.Fees, fee)
			tf.balance(income, income)
		} else {
			tf.post(income, f.Gross().Neg())
		}
		return nil
	})
}
