package event

import (
	fin "PortfolioLedger/internal/math"

	"github.com/shopspring/decimal"
)

// Cause records why a lot was created or reduced.
type Cause uint8

const (
	CausePurchase Cause = iota
	CauseSale
	CauseTransfer
	CauseSwitch
	CauseSpinOff
	CauseExpiry
)

func (c Cause) String() string {
	switch c {
	case CausePurchase:
		return "purchase"
	case CauseSale:
		return "sale"
	case CauseTransfer:
		return "transfer"
	case CauseSwitch:
		return "switch"
	case CauseSpinOff:
		return "spin-off"
	case CauseExpiry:
		return "expiry"
	default:
		return "unknown"
	}
}

// Recognition creates a lot.
type Recognition struct {
	Header
	Cause    Cause
	Units    decimal.Decimal
	Factor   decimal.Decimal // Currency amount per unit and price point (bond: nominal/100)
	Price    Price
	TaxPrice decimal.Decimal // Clean tax cost basis, zero means Price.Clean
	Gap      decimal.Decimal // Valuation gap carried over from a transferred lot
	Fee      decimal.Decimal
	Currency string
}

func (r *Recognition) Kind() Kind              { return KindRecognition }
func (r *Recognition) Count() decimal.Decimal  { return r.Units }
func (r *Recognition) Amount() decimal.Decimal { return r.value(r.Price.Dirty) }

// CleanAmount is the cost excluding purchased accrued interest.
func (r *Recognition) CleanAmount() decimal.Decimal { return r.value(r.Price.Clean) }

// AccruedAmount is the accrued interest paid on purchase.
func (r *Recognition) AccruedAmount() decimal.Decimal { return r.Amount().Sub(r.CleanAmount()) }

// TaxCost is the lot's cost basis in the tax book.
func (r *Recognition) TaxCost() decimal.Decimal { return r.value(r.CostPrice()) }

// CostPrice is the clean price the tax book carries the lot at.
func (r *Recognition) CostPrice() decimal.Decimal {
	if r.TaxPrice.IsZero() {
		return r.Price.Clean
	}
	return r.TaxPrice
}

func (r *Recognition) value(p decimal.Decimal) decimal.Decimal {
	return fin.RoundAmount(r.Units.Mul(r.Factor).Mul(p), r.Currency, fin.RoundHalfEven)
}

// Derecognition reduces a lot.
type Derecognition struct {
	Header
	Cause          Cause
	Units          decimal.Decimal // Units removed
	Factor         decimal.Decimal
	Price          Price // Sale price
	Fee            decimal.Decimal
	Currency       string
	PurchasePrice  Price
	AmortizedPrice Price // Amortized cost right before the event
	IsTotal        bool
}

func (d *Derecognition) Kind() Kind              { return KindDerecognition }
func (d *Derecognition) Count() decimal.Decimal  { return d.Units.Neg() }
func (d *Derecognition) Amount() decimal.Decimal { return d.value(d.Price.Dirty) }

// AccruedAmount is the accrued interest received with the sale.
func (d *Derecognition) AccruedAmount() decimal.Decimal {
	return d.Amount().Sub(d.value(d.Price.Clean))
}

func (d *Derecognition) value(p decimal.Decimal) decimal.Decimal {
	return fin.RoundAmount(d.Units.Mul(d.Factor).Mul(p), d.Currency, fin.RoundHalfEven)
}
