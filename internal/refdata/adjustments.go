package refdata

import (
	"encoding/json"
	"fmt"
	"strings"

	"PortfolioLedger/internal/date"
	fin "PortfolioLedger/internal/math"

	"github.com/shopspring/decimal"
)

// AdjustmentKind discriminates manual adjustments.
type AdjustmentKind uint8

const (
	AdjTaxOverride AdjustmentKind = iota
	AdjSpinOff
	AdjAdditionalPremium
	AdjTaxAssessment
	AdjRedemption
)

func (k AdjustmentKind) String() string {
	switch k {
	case AdjTaxOverride:
		return "tax_override"
	case AdjSpinOff:
		return "spin_off"
	case AdjAdditionalPremium:
		return "additional_premium"
	case AdjTaxAssessment:
		return "tax_assessment"
	case AdjRedemption:
		return "redemption"
	default:
		return "unknown"
	}
}

// Adjustment is a manual correction. The set of implementations is closed: every
// kind is a struct of this package and is validated when the definitions load.
type Adjustment interface {
	Kind() AdjustmentKind
	Date() date.Date
	validate(d *Definitions) error
}

// TaxOverride replaces the withholding tax (and optionally the gross amount) of
// the flows of an instrument paid on Date. An empty Portfolio matches all.
type TaxOverride struct {
	On         date.Date
	Instrument string
	Portfolio  string
	Tax        decimal.Decimal
	Gross      *decimal.Decimal
}

// SpinOff grants Ratio units of NewInstrument per unit of Instrument held.
type SpinOff struct {
	On            date.Date
	Instrument    string
	NewInstrument string
	Ratio         decimal.Decimal
	Class         ValuationClass
}

// AdditionalPremium is a cash premium (positive) or charge (negative).
type AdditionalPremium struct {
	On          date.Date
	Portfolio   string
	Currency    string
	Amount      decimal.Decimal
	Description string
}

// TaxAssessment is a corporate income tax prepayment in local currency.
type TaxAssessment struct {
	On        date.Date
	Portfolio string
	Amount    decimal.Decimal
}

// Redemption calls a bond early at Price (percent of par).
type Redemption struct {
	On         date.Date
	Instrument string
	Price      decimal.Decimal
}

func (a *TaxOverride) Kind() AdjustmentKind       { return AdjTaxOverride }
func (a *SpinOff) Kind() AdjustmentKind           { return AdjSpinOff }
func (a *AdditionalPremium) Kind() AdjustmentKind { return AdjAdditionalPremium }
func (a *TaxAssessment) Kind() AdjustmentKind     { return AdjTaxAssessment }
func (a *Redemption) Kind() AdjustmentKind        { return AdjRedemption }

func (a *TaxOverride) Date() date.Date       { return a.On }
func (a *SpinOff) Date() date.Date           { return a.On }
func (a *AdditionalPremium) Date() date.Date { return a.On }
func (a *TaxAssessment) Date() date.Date     { return a.On }
func (a *Redemption) Date() date.Date        { return a.On }

func (a *TaxOverride) validate(d *Definitions) error {
	if _, err := d.Instrument(a.Instrument); err != nil {
		return invalid("tax_override "+a.On.String(), "%v", err)
	}
	if a.Portfolio != "" {
		if _, err := d.Portfolio(a.Portfolio); err != nil {
			return invalid("tax_override "+a.On.String(), "%v", err)
		}
	}
	if a.Tax.IsNegative() {
		return invalid("tax_override "+a.On.String(), "negative tax %s", a.Tax)
	}
	return nil
}

func (a *SpinOff) validate(d *Definitions) error {
	rec := "spin_off " + a.On.String()
	parent, err := d.Instrument(a.Instrument)
	if err != nil {
		return invalid(rec, "%v", err)
	}
	child, err := d.Instrument(a.NewInstrument)
	if err != nil {
		return invalid(rec, "%v", err)
	}
	if !parent.Type.IsSecurity() || !child.Type.IsSecurity() {
		return invalid(rec, "spin-offs apply to equities, ETFs and funds")
	}
	if !a.Ratio.IsPositive() {
		return invalid(rec, "ratio must be positive, got %s", a.Ratio)
	}
	return nil
}

func (a *AdditionalPremium) validate(d *Definitions) error {
	rec := "additional_premium " + a.On.String()
	if _, err := d.Portfolio(a.Portfolio); err != nil {
		return invalid(rec, "%v", err)
	}
	if err := fin.ValidateCurrency(a.Currency); err != nil {
		return invalid(rec, "%v", err)
	}
	if a.Amount.IsZero() {
		return invalid(rec, "zero amount")
	}
	return nil
}

func (a *TaxAssessment) validate(d *Definitions) error {
	rec := "tax_assessment " + a.On.String()
	if _, err := d.Portfolio(a.Portfolio); err != nil {
		return invalid(rec, "%v", err)
	}
	if !a.Amount.IsPositive() {
		return invalid(rec, "amount must be positive, got %s", a.Amount)
	}
	return nil
}

func (a *Redemption) validate(d *Definitions) error {
	rec := "redemption " + a.On.String()
	inst, err := d.Instrument(a.Instrument)
	if err != nil {
		return invalid(rec, "%v", err)
	}
	if inst.Type != AssetTypeBond {
		return invalid(rec, "%s is not a bond", a.Instrument)
	}
	if !a.Price.IsPositive() {
		return invalid(rec, "price must be positive, got %s", a.Price)
	}
	if !inst.Maturity.IsZero() && a.On.After(inst.Maturity) {
		return invalid(rec, "call after maturity %s", inst.Maturity)
	}
	return nil
}

// rawAdjustment is the wire form of an adjustment: a type tag plus the union of
// all fields.
type rawAdjustment struct {
	Type          string           `json:"type"`
	Date          date.Date        `json:"date"`
	Instrument    string           `json:"instrument,omitempty"`
	NewInstrument string           `json:"new_instrument,omitempty"`
	Portfolio     string           `json:"portfolio,omitempty"`
	Currency      string           `json:"currency,omitempty"`
	Amount        decimal.Decimal  `json:"amount,omitempty"`
	Tax           decimal.Decimal  `json:"tax,omitempty"`
	Gross         *decimal.Decimal `json:"gross,omitempty"`
	Ratio         decimal.Decimal  `json:"ratio,omitempty"`
	Price         decimal.Decimal  `json:"price,omitempty"`
	Class         ValuationClass   `json:"class,omitempty"`
	Description   string           `json:"description,omitempty"`
}

func decodeAdjustment(b json.RawMessage) (Adjustment, error) {
	var r rawAdjustment
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("%w: adjustment: %v", ErrInvalid, err)
	}
	switch strings.ToLower(r.Type) {
	case "tax_override":
		return &TaxOverride{On: r.Date, Instrument: r.Instrument, Portfolio: r.Portfolio, Tax: r.Tax, Gross: r.Gross}, nil
	case "spin_off":
		return &SpinOff{On: r.Date, Instrument: r.Instrument, NewInstrument: r.NewInstrument, Ratio: r.Ratio, Class: r.Class}, nil
	case "additional_premium":
		return &AdditionalPremium{On: r.Date, Portfolio: r.Portfolio, Currency: r.Currency, Amount: r.Amount, Description: r.Description}, nil
	case "tax_assessment":
		return &TaxAssessment{On: r.Date, Portfolio: r.Portfolio, Amount: r.Amount}, nil
	case "redemption":
		return &Redemption{On: r.Date, Instrument: r.Instrument, Price: r.Price}, nil
	}
	return nil, fmt.Errorf("%w: unknown adjustment type %q", ErrInvalid, r.Type)
}
