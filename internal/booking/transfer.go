package booking

import (
	"fmt"

	"PortfolioLedger/internal/asset"
	"PortfolioLedger/internal/event"
	"PortfolioLedger/internal/ledger"
)

// Transfer books the move of units from a lot of one portfolio into a new lot
// of another at carrying value. Both books move Assets, the valuation gap and
// the deferred fee from source to target without result; only rounding lands on
// the source's realized accounts.
func Transfer(c *Context, src asset.Asset, d *event.Derecognition, dst asset.Asset, r *event.Recognition) error {
	desc := fmt.Sprintf("transfer %s %s -> %s", src.Instrument(), src.Location().Portfolio, dst.Location().Portfolio)
	return c.apply(d.At, desc, func(main, tax *poster) error {
		if src.Currency() != dst.Currency() {
			return fmt.Errorf("transfer from %s into %s", src.Currency(), dst.Currency())
		}
		ms, md := main.onAsset(src), main.onAsset(dst)
		_, gapOut := ms.carry(src, d.At)
		ms.post(ledger.ValuationAdjustment, gapOut)
		_, gapIn := md.carry(dst, r.At)
		md.post(ledger.ValuationAdjustment, gapIn)
		ms.balance(ledger.RealizedProfit, ledger.RealizedLoss)

		ts, td := tax.onAsset(src), tax.onAsset(dst)
		cost, fee := outflow(src, d.At)
		ts.post(ledger.Assets, cost.Neg())
		ts.post(ledger.TaxReserves, fee.Neg())
		td.post(ledger.Assets, dst.TaxCostAmount(event.Through(r.At)))
		td.post(ledger.TaxReserves, r.Fee)
		ts.balance(ledger.RealizedProfit, ledger.RealizedLoss)
		return nil
	})
}

// Leg is one source lot given up by a switch.
type Leg struct {
	Asset asset.Asset
	Out   *event.Derecognition
}

// Switch books a fund switch: the source lots are derecognized at the switch
// price and the proceeds buy the target lot without cash moving.
//
// Main book: realizes the difference between the target cost and the amortized
// cost given up, and releases the valuation gaps.
// Tax book: the target takes its cost basis at the switch price, the gain over
// the clean cost given up is tax deferred into NonTaxableResult.
func Switch(c *Context, legs []Leg, dst asset.Asset, r *event.Recognition) error {
	if len(legs) == 0 {
		return fmt.Errorf("switch into %s without source lots", dst.Instrument())
	}
	desc := fmt.Sprintf("%s %s -> %s", event.CauseSwitch, legs[0].Asset.Instrument(), dst.Instrument())
	return c.apply(r.At, desc, func(main, tax *poster) error {
		for _, l := range legs {
			if l.Asset.Currency() != dst.Currency() {
				return fmt.Errorf("switch from %s into %s", l.Asset.Currency(), dst.Currency())
			}
			m := main.onAsset(l.Asset)
			_, gap := m.carry(l.Asset, l.Out.At)
			m.unrealized(l.Asset.Class(), gap)

			cost, fee := outflow(l.Asset, l.Out.At)
			t := tax.onAsset(l.Asset)
			t.post(ledger.Assets, cost.Neg())
			t.post(ledger.TaxReserves, fee.Neg())
		}
		md := main.onAsset(dst)
		md.carry(dst, r.At)
		main.onAsset(legs[0].Asset).balance(ledger.RealizedProfit, ledger.RealizedLoss)

		td := tax.onAsset(dst)
		td.post(ledger.Assets, dst.TaxCostAmount(event.Through(r.At)))
		td.post(ledger.TaxReserves, r.Fee)
		tax.onAsset(legs[0].Asset).balance(ledger.NonTaxableResult, ledger.NonTaxableResult)
		return nil
	})
}
