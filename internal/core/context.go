package core

import (
	"PortfolioLedger/internal/asset"
	"PortfolioLedger/internal/booking"
	"PortfolioLedger/internal/date"
	"PortfolioLedger/internal/event"
	"PortfolioLedger/internal/ledger"
	"PortfolioLedger/internal/observability"
	"PortfolioLedger/internal/refdata"
	"PortfolioLedger/internal/tax"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Settings are the run parameters that are not reference data.
type Settings struct {
	LocalCurrency       string
	IncomeTaxRate       decimal.Decimal // Corporate income tax, 0.25 = 25%
	DividendWithholding decimal.Decimal
	CouponWithholding   decimal.Decimal
	TaxFreePortfolios   []string
	ReplayEnd           date.Date // Zero: 31 Dec of the last transaction's year
}

// LedgerContext is everything one replay reads and writes: the two books, the
// reference data and the settings. Nothing in the pipeline reaches for globals.
type LedgerContext struct {
	Main     *ledger.Book
	Tax      *ledger.Book
	Defs     *refdata.Definitions
	Settings Settings
	Log      zerolog.Logger
	Metrics  *observability.Metrics

	taxFree map[string]bool
}

// NewLedgerContext creates empty main and tax books over defs. metrics may be nil.
func NewLedgerContext(defs *refdata.Definitions, settings Settings, log zerolog.Logger, metrics *observability.Metrics) *LedgerContext {
	c := &LedgerContext{
		Main:     ledger.NewBook("main", false),
		Tax:      ledger.NewBook("tax", true),
		Defs:     defs,
		Settings: settings,
		Log:      log,
		Metrics:  metrics,
		taxFree:  make(map[string]bool),
	}
	for _, p := range settings.TaxFreePortfolios {
		c.taxFree[p] = true
	}
	for _, p := range defs.Portfolios() {
		if p.TaxFree {
			c.taxFree[p.Name] = true
		}
	}
	if metrics != nil {
		for _, b := range []*ledger.Book{c.Main, c.Tax} {
			name := b.Name
			b.Subscribe(func(op ledger.Operation) {
				metrics.OperationsCommitted.WithLabelValues(name).Inc()
				metrics.LastOperation.WithLabelValues(name).Set(float64(op.Index))
				for _, e := range op.Entries {
					metrics.EntriesPosted.WithLabelValues(name, e.Key.Type.String()).Inc()
				}
			})
		}
	}
	return c
}

// IsTaxFree reports whether a portfolio is exempt from withholding and income tax.
func (c *LedgerContext) IsTaxFree(portfolio string) bool { return c.taxFree[portfolio] }

// Booking is the view the booking modules post through.
func (c *LedgerContext) Booking() *booking.Context {
	return &booking.Context{
		Main:          c.Main,
		Tax:           c.Tax,
		Defs:          c.Defs,
		LocalCurrency: c.Settings.LocalCurrency,
		IncomeTaxRate: c.Settings.IncomeTaxRate,
		TaxFree:       c.IsTaxFree,
		Log:           c.Log,
	}
}

// Assets is the view assets value themselves through.
func (c *LedgerContext) Assets() asset.Context {
	return asset.Context{
		Defs:          c.Defs,
		LocalCurrency: c.Settings.LocalCurrency,
		Policy:        c.policy,
	}
}

// policy decides the withholding of a flow: the configured rate per flow type,
// the portfolio exemption and any manual override.
func (c *LedgerContext) policy(ft event.FlowType, instrument string, loc asset.Location, pay date.Date) tax.Policy {
	p := tax.Policy{
		TaxFree:  c.IsTaxFree(loc.Portfolio),
		Override: c.Defs.TaxOverride(instrument, loc.Portfolio, pay),
	}
	switch ft {
	case event.FlowDividend:
		p.Rate = c.Settings.DividendWithholding
	case event.FlowCoupon:
		p.Rate = c.Settings.CouponWithholding
	}
	return p
}
