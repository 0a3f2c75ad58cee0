package booking

import (
	"fmt"

	"PortfolioLedger/internal/asset"
	"PortfolioLedger/internal/event"
	"PortfolioLedger/internal/ledger"
)

// Settlement books a futures margin settlement: the variation margin moves cash
// against realized result, and the share of the deferred fee recognised with it
// moves from the carrying amount (main) or TaxReserves (tax) into Fees.
func Settlement(c *Context, f *asset.Futures, s *event.Settlement) error {
	desc := fmt.Sprintf("settlement %s", f.Instrument())
	return c.apply(s.At, desc, func(main, tax *poster) error {
		m := main.onAsset(f)
		jump, _ := m.carry(f, s.At)
		m.post(ledger.Fees, jump.Neg())
		m.cash(s.Margin)
		m.balance(ledger.RealizedProfit, ledger.RealizedLoss)

		_, fee := outflow(f, s.At)
		t := tax.onAsset(f)
		t.post(ledger.TaxReserves, fee.Neg())
		t.post(ledger.Fees, fee)
		t.cash(s.Margin)
		t.balance(ledger.RealizedProfit, ledger.RealizedLoss)
		return nil
	})
}
