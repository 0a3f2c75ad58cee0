package tax

import (
	"github.com/shopspring/decimal"
)

// Override is a manual correction for a single flow entitlement. Tax replaces the
// computed withholding; Gross, when set, replaces the computed gross amount.
type Override struct {
	Tax   decimal.Decimal
	Gross *decimal.Decimal
}

// Policy describes how withholding tax applies to one flow.
type Policy struct {
	Rate     decimal.Decimal // withholding rate, e.g. 0.15
	TaxFree  bool            // portfolio is exempt from withholding
	Override *Override
}

// Split is the gross/tax/net decomposition of a flow.
type Split struct {
	Gross decimal.Decimal
	Tax   decimal.Decimal
	Net   decimal.Decimal
}

// Withhold splits gross into tax and net according to p. The result only depends on
// its inputs, so applying it twice gives the same split. round is applied to the
// gross and tax figures; net is derived so that gross == tax + net exactly.
func Withhold(gross decimal.Decimal, p Policy, round func(decimal.Decimal) decimal.Decimal) Split {
	if p.Override != nil && p.Override.Gross != nil {
		gross = *p.Override.Gross
	}
	gross = round(gross)

	var withheld decimal.Decimal
	switch {
	case p.TaxFree:
		withheld = decimal.Zero
	case p.Override != nil:
		withheld = round(p.Override.Tax)
	case gross.IsPositive():
		withheld = round(gross.Mul(p.Rate))
	}
	return Split{Gross: gross, Tax: withheld, Net: gross.Sub(withheld)}
}
