package booking

import (
	"fmt"

	"PortfolioLedger/internal/asset"
	"PortfolioLedger/internal/event"
	"PortfolioLedger/internal/ledger"
	"PortfolioLedger/internal/refdata"

	"github.com/shopspring/decimal"
)

// Recognition books a purchase paid from cash.
//
// Main book: Assets(+dirty cost), Fees(+fee), Cash(-).
// Tax book: Assets(+clean cost), OrdinaryIncome(+accrued interest bought),
// TaxReserves(+fee), Cash(-).
// Futures only pay and defer the fee: the contract value is not an asset.
func Recognition(c *Context, a asset.Asset, r *event.Recognition) error {
	desc := fmt.Sprintf("%s %s", r.Cause, a.Instrument())
	paid := r.Amount().Add(r.Fee)
	fee := r.Fee
	if a.Type() == refdata.AssetTypeFutures {
		paid, fee = r.Fee, decimal.Zero
	}
	return c.apply(r.At, desc, func(main, tax *poster) error {
		m := main.onAsset(a)
		if _, gap := m.carry(a, r.At); !gap.IsZero() {
			return fmt.Errorf("purchase of %s carries a valuation gap %s", a.Instrument(), gap)
		}
		m.post(ledger.Fees, fee)
		m.cash(paid.Neg())
		m.balance(ledger.RealizedProfit, ledger.RealizedLoss)

		t := tax.onAsset(a)
		t.post(ledger.Assets, a.TaxCostAmount(event.Through(r.At)))
		t.post(ledger.OrdinaryIncome, r.AccruedAmount())
		t.post(ledger.TaxReserves, r.Fee)
		t.cash(paid.Neg())
		t.balance(ledger.RealizedProfit, ledger.RealizedLoss)
		return nil
	})
}

// SpinOff books units granted for free. The main book takes them as ordinary
// income at market value, the tax book as non-taxable result.
func SpinOff(c *Context, a asset.Asset, r *event.Recognition) error {
	desc := fmt.Sprintf("%s %s", event.CauseSpinOff, a.Instrument())
	return c.apply(r.At, desc, func(main, tax *poster) error {
		m := main.onAsset(a)
		m.carry(a, r.At)
		m.balance(ledger.OrdinaryIncome, ledger.OrdinaryIncome)

		t := tax.onAsset(a)
		t.post(ledger.Assets, a.TaxCostAmount(event.Through(r.At)))
		t.balance(ledger.NonTaxableResult, ledger.NonTaxableResult)
		return nil
	})
}
