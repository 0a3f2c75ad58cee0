package booking

import (
	"fmt"

	"PortfolioLedger/internal/asset"
	"PortfolioLedger/internal/event"
	"PortfolioLedger/internal/ledger"
)

// Valuation books a period-end snapshot in the main book: accretion into
// ordinary income and the change of the market valuation gap into unrealized
// result (fair value through profit or loss) or OCI. The tax book carries cost
// and takes nothing.
func Valuation(c *Context, a asset.Asset, v *event.Valuation) error {
	desc := fmt.Sprintf("valuation %s", a.Instrument())
	return c.apply(v.At, desc, func(main, _ *poster) error {
		m := main.onAsset(a)
		_, gap := m.carry(a, v.At)
		m.unrealized(a.Class(), gap)
		m.balance(ledger.RealizedProfit, ledger.RealizedLoss)
		return nil
	})
}
