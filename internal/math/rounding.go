package math

import (
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

type RoundingMode int

const (
	RoundHalfEven RoundingMode = iota // Banker's rounding (default)
	RoundDown
	RoundUp
)

// PricePrecision is the number of decimals kept on derived prices (amortized cost,
// market dirty price). Amounts are rounded to the currency fraction instead.
const PricePrecision = 10

// ValidateCurrency checks that code is a known ISO 4217 currency.
func ValidateCurrency(code string) error {
	if code == "" {
		return fmt.Errorf("empty currency code")
	}
	if money.GetCurrency(strings.ToUpper(code)) == nil {
		return fmt.Errorf("unknown currency %q", code)
	}
	return nil
}

// CurrencyFraction returns the number of minor-unit digits of a currency
// (2 for EUR, 0 for JPY). Unknown codes fall back to 2.
func CurrencyFraction(code string) int32 {
	c := money.GetCurrency(strings.ToUpper(code))
	if c == nil {
		return 2
	}
	return int32(c.Fraction)
}

// RoundAmount rounds an amount to the minor unit of its currency.
func RoundAmount(amount decimal.Decimal, currency string, mode RoundingMode) decimal.Decimal {
	places := CurrencyFraction(currency)
	switch mode {
	case RoundDown:
		return amount.RoundFloor(places)
	case RoundUp:
		return amount.RoundCeil(places)
	default:
		return amount.RoundBank(places)
	}
}

// Rounder returns a banker's rounding function bound to currency.
func Rounder(currency string) func(decimal.Decimal) decimal.Decimal {
	return func(d decimal.Decimal) decimal.Decimal {
		return RoundAmount(d, currency, RoundHalfEven)
	}
}

// RoundPrice keeps PricePrecision decimals on a derived price.
func RoundPrice(p decimal.Decimal) decimal.Decimal { return p.Round(PricePrecision) }

// FromFloat converts a float computed by the yield solver into a decimal price.
func FromFloat(f float64) decimal.Decimal { return RoundPrice(decimal.NewFromFloat(f)) }

// FormatAmount renders an amount with currency symbol and grouping, e.g. "€1,234.50".
func FormatAmount(amount decimal.Decimal, currency string) string {
	code := strings.ToUpper(currency)
	c := money.GetCurrency(code)
	if c == nil {
		return amount.StringFixed(2) + " " + code
	}
	minor := amount.Shift(int32(c.Fraction)).RoundBank(0).IntPart()
	return money.New(minor, code).Display()
}
