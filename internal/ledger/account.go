package ledger

import (
	"fmt"
	"strings"

	"PortfolioLedger/internal/event"
	"PortfolioLedger/internal/refdata"

	"github.com/shopspring/decimal"
)

// AccountType is the ledger category of an account
type AccountType uint8

const (
	Assets AccountType = iota
	ShareCapital
	Fees
	RealizedProfit
	RealizedLoss
	UnrealizedProfit
	UnrealizedLoss
	ValuationAdjustment
	OtherComprehensiveIncome
	OrdinaryIncome
	Tax
	TaxReserves
	TaxLiabilities
	PrechargedTax
	NonTaxableResult
	PriorPeriodResult
)

var accountTypeNames = [...]string{
	Assets:                   "assets",
	ShareCapital:             "share_capital",
	Fees:                     "fees",
	RealizedProfit:           "realized_profit",
	RealizedLoss:             "realized_loss",
	UnrealizedProfit:         "unrealized_profit",
	UnrealizedLoss:           "unrealized_loss",
	ValuationAdjustment:      "valuation_adjustment",
	OtherComprehensiveIncome: "oci",
	OrdinaryIncome:           "ordinary_income",
	Tax:                      "tax",
	TaxReserves:              "tax_reserves",
	TaxLiabilities:           "tax_liabilities",
	PrechargedTax:            "precharged_tax",
	NonTaxableResult:         "non_taxable_result",
	PriorPeriodResult:        "prior_period_result",
}

func (t AccountType) String() string {
	if int(t) < len(accountTypeNames) {
		return accountTypeNames[t]
	}
	return "unknown"
}

// ParseAccountType is the inverse of String.
func ParseAccountType(s string) (AccountType, error) {
	for i, n := range accountTypeNames {
		if n == strings.ToLower(s) {
			return AccountType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown account type %q", s)
}

// IsAnnual reports whether the account restarts every year: its debit and credit
// sums only look at the query year. Annual accounts are closed into
// PriorPeriodResult at year end.
func (t AccountType) IsAnnual() bool {
	switch t {
	case Fees, RealizedProfit, RealizedLoss, UnrealizedProfit, UnrealizedLoss,
		OrdinaryIncome, Tax, PrechargedTax, NonTaxableResult:
		return true
	}
	return false
}

// IsResult reports whether the account contributes to the period result.
func (t AccountType) IsResult() bool {
	return t.IsAnnual() && t != NonTaxableResult
}

// AccountTypes lists every account type in declaration order.
func AccountTypes() []AccountType {
	out := make([]AccountType, len(accountTypeNames))
	for i := range out {
		out[i] = AccountType(i)
	}
	return out
}

// AccountKey identifies an account: category, optional asset type, portfolio and
// currency. The zero AssetType (AssetTypeNone) means no asset dimension.
type AccountKey struct {
	Type      AccountType
	AssetType refdata.AssetType
	Portfolio string
	Currency  string
}

// NewAccountKey creates a key without asset dimension
func NewAccountKey(t AccountType, portfolio, currency string) AccountKey {
	return AccountKey{Type: t, Portfolio: portfolio, Currency: currency}
}

// NewAssetAccountKey creates a key split by asset type
func NewAssetAccountKey(t AccountType, at refdata.AssetType, portfolio, currency string) AccountKey {
	return AccountKey{Type: t, AssetType: at, Portfolio: portfolio, Currency: currency}
}

// CashKey is the Assets account holding a portfolio's cash
func CashKey(portfolio, currency string) AccountKey {
	return NewAssetAccountKey(Assets, refdata.AssetTypeCash, portfolio, currency)
}

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	if k.AssetType == refdata.AssetTypeNone {
		return fmt.Sprintf("%s:%s:%s", k.Type, k.Portfolio, k.Currency)
	}
	return fmt.Sprintf("%s:%s:%s:%s", k.Type, k.AssetType, k.Portfolio, k.Currency)
}

func (k AccountKey) String() string { return k.AccountPath() }

// Account owns the postings made against one key, in commit order.
type Account struct {
	Key     AccountKey
	entries []AccountEntry
}

// Entries returns a copy of the postings.
func (a *Account) Entries() []AccountEntry {
	out := make([]AccountEntry, len(a.entries))
	copy(out, a.entries)
	return out
}

func (a *Account) counts(e AccountEntry, t event.TimeArg) bool {
	if !t.Includes(e.Stamp) {
		return false
	}
	return !a.Key.Type.IsAnnual() || e.Stamp.Date.Year() == t.Date.Year()
}

// Debit sums the positive postings as of t.
func (a *Account) Debit(t event.TimeArg) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range a.entries {
		if e.Amount.IsPositive() && a.counts(e, t) {
			sum = sum.Add(e.Amount)
		}
	}
	return sum
}

// Credit sums the negative postings as of t, as a positive figure.
func (a *Account) Credit(t event.TimeArg) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range a.entries {
		if e.Amount.IsNegative() && a.counts(e, t) {
			sum = sum.Sub(e.Amount)
		}
	}
	return sum
}

// Net is debit minus credit as of t. Annual accounts only look at t's year.
func (a *Account) Net(t event.TimeArg) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range a.entries {
		if a.counts(e, t) {
			sum = sum.Add(e.Amount)
		}
	}
	return sum
}

// Balance is the all-time sum as of t, ignoring the annual restriction.
func (a *Account) Balance(t event.TimeArg) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range a.entries {
		if t.Includes(e.Stamp) {
			sum = sum.Add(e.Amount)
		}
	}
	return sum
}

// NetBetween is the movement over (start, end], ignoring the annual restriction.
func (a *Account) NetBetween(start, end event.TimeArg) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range a.entries {
		if end.Includes(e.Stamp) && !start.Includes(e.Stamp) {
			sum = sum.Add(e.Amount)
		}
	}
	return sum
}
