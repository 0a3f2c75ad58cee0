package booking

import (
	"fmt"

	"PortfolioLedger/internal/asset"
	"PortfolioLedger/internal/event"
	"PortfolioLedger/internal/ledger"
	"PortfolioLedger/internal/refdata"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Context carries what the booking modules post against: the main book, the
// tax book and the settings that switch rules on or off.
type Context struct {
	Main          *ledger.Book
	Tax           *ledger.Book
	Defs          *refdata.Definitions
	LocalCurrency string
	IncomeTaxRate decimal.Decimal
	TaxFree       func(portfolio string) bool
	Log           zerolog.Logger
}

func (c *Context) isTaxFree(portfolio string) bool {
	return c.TaxFree != nil && c.TaxFree(portfolio)
}

// apply runs fn against posters of both books and commits the main book, then
// the tax book. When fn fails nothing stays queued.
func (c *Context) apply(at event.Stamp, desc string, fn func(main, tax *poster) error) error {
	main := &poster{book: c.Main, at: at, desc: desc}
	tx := &poster{book: c.Tax, at: at, desc: desc}
	if err := fn(main, tx); err != nil {
		c.Main.Discard()
		c.Tax.Discard()
		return fmt.Errorf("%s at %s: %w", desc, at, err)
	}
	if _, err := c.Main.Commit(); err != nil {
		c.Tax.Discard()
		return err
	}
	if _, err := c.Tax.Commit(); err != nil {
		return err
	}
	return nil
}

// poster enqueues postings for one portfolio, currency and asset type of a book.
// Posters derived with on share the book's queue.
type poster struct {
	book      *ledger.Book
	at        event.Stamp
	desc      string
	portfolio string
	currency  string
	assetType refdata.AssetType
}

func (p *poster) on(portfolio, currency string, at refdata.AssetType) *poster {
	q := *p
	q.portfolio, q.currency, q.assetType = portfolio, currency, at
	return &q
}

func (p *poster) onAsset(a asset.Asset) *poster {
	return p.on(a.Location().Portfolio, a.Currency(), a.Type())
}

// post books amount on the account of type t split by the poster's asset type.
func (p *poster) post(t ledger.AccountType, amount decimal.Decimal) {
	p.book.Enqueue(ledger.NewAssetAccountKey(t, p.assetType, p.portfolio, p.currency), p.at, p.desc, amount)
}

// postPlain books amount on the account of type t without asset dimension.
func (p *poster) postPlain(t ledger.AccountType, amount decimal.Decimal) {
	p.book.Enqueue(ledger.NewAccountKey(t, p.portfolio, p.currency), p.at, p.desc, amount)
}

func (p *poster) cash(amount decimal.Decimal) {
	p.book.Enqueue(ledger.CashKey(p.portfolio, p.currency), p.at, p.desc, amount)
}

// result books an income (positive) or expense (negative) on the profit or the
// loss account.
func (p *poster) result(profit, loss ledger.AccountType, income decimal.Decimal) {
	if income.IsPositive() {
		p.post(profit, income.Neg())
		return
	}
	p.post(loss, income.Neg())
}

// balance books whatever the queue lacks to add up to zero in the poster's
// currency as a result.
func (p *poster) balance(profit, loss ledger.AccountType) {
	sum := decimal.Zero
	for _, e := range p.book.Pending() {
		if e.Key.Currency == p.currency {
			sum = sum.Add(e.Amount)
		}
	}
	p.result(profit, loss, sum)
}

// unrealized books a change of the market valuation gap against the result
// accounts of the lot's valuation class.
func (p *poster) unrealized(class refdata.ValuationClass, change decimal.Decimal) {
	p.post(ledger.ValuationAdjustment, change)
	if class == refdata.FVOCI {
		p.post(ledger.OtherComprehensiveIncome, change.Neg())
		return
	}
	p.result(ledger.UnrealizedProfit, ledger.UnrealizedLoss, change)
}

// carry books the accretion of amortized cost since the lot's previous event
// into ordinary income and the amortized cost that enters (positive) or leaves
// (negative) at s on the Assets account. It returns that amount and the change
// of the carried valuation gap at s, which the caller books.
func (p *poster) carry(a asset.Asset, s event.Stamp) (jump, gap decimal.Decimal) {
	before, after := event.Prior(s), event.Through(s)
	if prev, ok := previous(a, s); ok {
		acc := a.AmortizedCostAmount(before).Sub(a.AmortizedCostAmount(event.Through(prev)))
		p.post(ledger.Assets, acc)
		p.post(ledger.OrdinaryIncome, acc.Neg())
	}
	jump = a.AmortizedCostAmount(after).Sub(a.AmortizedCostAmount(before))
	p.post(ledger.Assets, jump)
	gap = a.CarriedGap(after).Sub(a.CarriedGap(before))
	return jump, gap
}

// previous is the stamp of the lot's last event before s.
func previous(a asset.Asset, s event.Stamp) (event.Stamp, bool) {
	var prev event.Stamp
	found := false
	for _, e := range a.Events() {
		if !e.Stamp().Less(s) {
			break
		}
		prev, found = e.Stamp(), true
	}
	return prev, found
}

// outflow is what leaves the tax book's carrying amounts at s: the clean cost
// basis and the deferred fee of the units removed.
func outflow(a asset.Asset, s event.Stamp) (cost, fee decimal.Decimal) {
	before, after := event.Prior(s), event.Through(s)
	cost = a.TaxCostAmount(before).Sub(a.TaxCostAmount(after))
	fee = a.DeferredFee(before).Sub(a.DeferredFee(after))
	return cost, fee
}

// incomeAccount is where the tax book puts income of a portfolio.
func (c *Context) incomeAccount(portfolio string) ledger.AccountType {
	if c.isTaxFree(portfolio) {
		return ledger.NonTaxableResult
	}
	return ledger.OrdinaryIncome
}
