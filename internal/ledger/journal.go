package ledger

import (
	"fmt"

	"PortfolioLedger/internal/date"
	"PortfolioLedger/internal/event"

	"github.com/shopspring/decimal"
)

// AccountEntry is one posting. Amount is signed: positive = debit.
type AccountEntry struct {
	Key              AccountKey
	Date             date.Date
	Stamp            event.Stamp
	OperationIndex   int64 // Assigned at commit, groups the postings of one operation
	TransactionIndex int64
	Description      string
	Amount           decimal.Decimal
}

// Operation is a committed, balanced set of postings
type Operation struct {
	Index   int64
	Book    string
	Stamp   event.Stamp
	Entries []AccountEntry
}

// Description of the first posting
func (o *Operation) Description() string {
	if len(o.Entries) == 0 {
		return ""
	}
	return o.Entries[0].Description
}

// Imbalance sums the postings per currency and returns the currencies that do not
// add up to zero.
func Imbalance(entries []AccountEntry) map[string]decimal.Decimal {
	sums := make(map[string]decimal.Decimal)
	for _, e := range entries {
		sums[e.Key.Currency] = sums[e.Key.Currency].Add(e.Amount)
	}
	for c, s := range sums {
		if s.IsZero() {
			delete(sums, c)
		}
	}
	return sums
}

// Validate ensures the operation is well-formed: not empty, every posting tagged
// with the operation index, and zero-sum in every currency.
func (o *Operation) Validate() error {
	if len(o.Entries) == 0 {
		return fmt.Errorf("operation %d is empty", o.Index)
	}
	for _, e := range o.Entries {
		if e.OperationIndex != o.Index {
			return fmt.Errorf("entry on %s has operation index %d, want %d", e.Key, e.OperationIndex, o.Index)
		}
		if e.Amount.IsZero() {
			return fmt.Errorf("entry on %s has zero amount", e.Key)
		}
	}
	if imb := Imbalance(o.Entries); len(imb) > 0 {
		return &InvariantViolation{Book: o.Book, Stamp: o.Stamp, Imbalance: imb, Entries: o.Entries}
	}
	return nil
}
