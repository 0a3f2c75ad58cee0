package event

import (
	"github.com/shopspring/decimal"
)

// Valuation is a period-end snapshot of a lot.
type Valuation struct {
	Header
	Units          decimal.Decimal
	Factor         decimal.Decimal
	Currency       string
	Market         Price
	Amortized      Price
	MarketValue    decimal.Decimal // Dirty market amount of Units
	AmortizedValue decimal.Decimal // Dirty amortized-cost amount of Units
	Gap            decimal.Decimal // Cumulative market minus amortized cost carried by the lot
	Accretion      decimal.Decimal // Cumulative amortized cost minus purchase cost
}

func (v *Valuation) Kind() Kind              { return KindValuation }
func (v *Valuation) Count() decimal.Decimal  { return decimal.Zero }
func (v *Valuation) Amount() decimal.Decimal { return v.MarketValue }
