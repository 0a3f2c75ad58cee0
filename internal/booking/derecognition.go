package booking

import (
	"fmt"

	"PortfolioLedger/internal/asset"
	"PortfolioLedger/internal/event"
	"PortfolioLedger/internal/ledger"

	"github.com/shopspring/decimal"
)

// Derecognition books a sale into cash.
//
// Main book: accretion up to the sale, Assets(-amortized cost derecognized),
// release of the valuation gap, Cash(+proceeds - fee), Fees(+fee) and the
// difference between proceeds and amortized cost as realized profit or loss.
// Tax book: Assets(-clean cost), TaxReserves(-deferred fee) expensed into Fees,
// OrdinaryIncome(-accrued interest sold), Cash and realized profit or loss.
// A futures close realizes the margin against the last settlement price.
func Derecognition(c *Context, a asset.Asset, d *event.Derecognition) error {
	desc := fmt.Sprintf("%s %s", d.Cause, a.Instrument())
	proceeds, accrued := d.Amount(), d.AccruedAmount()
	f, isFutures := a.(*asset.Futures)
	if isFutures {
		proceeds, accrued = f.CloseMargin(d), decimal.Zero
	}
	return c.apply(d.At, desc, func(main, tax *poster) error {
		m := main.onAsset(a)
		jump, gap := m.carry(a, d.At)
		if isFutures {
			m.post(ledger.Fees, jump.Neg())
		}
		m.unrealized(a.Class(), gap)
		m.cash(proceeds.Sub(d.Fee))
		m.post(ledger.Fees, d.Fee)
		m.balance(ledger.RealizedProfit, ledger.RealizedLoss)

		cost, fee := outflow(a, d.At)
		t := tax.onAsset(a)
		t.post(ledger.Assets, cost.Neg())
		t.post(ledger.TaxReserves, fee.Neg())
		t.post(ledger.Fees, fee.Add(d.Fee))
		t.post(ledger.OrdinaryIncome, accrued.Neg())
		t.cash(proceeds.Sub(d.Fee))
		t.balance(ledger.RealizedProfit, ledger.RealizedLoss)
		return nil
	})
}
