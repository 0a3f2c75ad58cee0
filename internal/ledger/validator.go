package ledger

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"PortfolioLedger/internal/event"

	"github.com/shopspring/decimal"
)

// ErrInvariantViolation marks a broken ledger invariant. It is always fatal.
var ErrInvariantViolation = errors.New("ledger invariant violation")

// InvariantViolation reports postings that do not add up to zero.
type InvariantViolation struct {
	Book      string
	Stamp     event.Stamp
	Imbalance map[string]decimal.Decimal
	Entries   []AccountEntry
}

func (e *InvariantViolation) Error() string {
	currencies := make([]string, 0, len(e.Imbalance))
	for c := range e.Imbalance {
		currencies = append(currencies, c)
	}
	sort.Strings(currencies)
	parts := make([]string, len(currencies))
	for i, c := range currencies {
		parts[i] = c + " " + e.Imbalance[c].String()
	}
	desc := ""
	if len(e.Entries) > 0 {
		desc = e.Entries[0].Description
	}
	return fmt.Sprintf("%s: book %s at %s %q is off by %s", ErrInvariantViolation, e.Book, e.Stamp, desc, strings.Join(parts, ", "))
}

func (e *InvariantViolation) Unwrap() error { return ErrInvariantViolation }

// InvariantValidator checks ledger-wide invariants of a book
type InvariantValidator struct {
	book *Book
}

func NewInvariantValidator(book *Book) *InvariantValidator {
	return &InvariantValidator{book: book}
}

// ValidateGlobalBalance verifies the book is zero-sum per currency as of t.
func (v *InvariantValidator) ValidateGlobalBalance(t event.TimeArg) error {
	sums := make(map[string]decimal.Decimal)
	for _, a := range v.book.Accounts() {
		sums[a.Key.Currency] = sums[a.Key.Currency].Add(a.Balance(t))
	}
	for c, s := range sums {
		if s.IsZero() {
			delete(sums, c)
		}
	}
	if len(sums) > 0 {
		return &InvariantViolation{Book: v.book.Name, Stamp: event.Stamp{Date: t.Date, Index: t.Index, Rank: t.Rank}, Imbalance: sums}
	}
	return nil
}

// ValidateClosed verifies every annual account nets to zero at the end of year,
// i.e. the year-end close ran.
func (v *InvariantValidator) ValidateClosed(year int) error {
	for _, a := range v.book.Accounts() {
		if !a.Key.Type.IsAnnual() {
			continue
		}
		end := endOfYear(year)
		if n := a.Net(end); !n.IsZero() {
			return fmt.Errorf("%w: %s not closed for %d, net %s", ErrInvariantViolation, a.Key, year, n)
		}
	}
	return nil
}

// ValidateNonNegative checks that an account's balance is not below zero as of t
func (v *InvariantValidator) ValidateNonNegative(key AccountKey, t event.TimeArg) error {
	a, ok := v.book.Lookup(key)
	if !ok {
		return nil
	}
	if b := a.Balance(t); b.IsNegative() {
		return fmt.Errorf("%w: account %s has negative balance %s as of %s", ErrInvariantViolation, key, b, t)
	}
	return nil
}
