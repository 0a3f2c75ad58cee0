package ledger

import (
	"sort"
	"time"

	"PortfolioLedger/internal/date"
	"PortfolioLedger/internal/event"

	"github.com/shopspring/decimal"
)

// Book is a double-entry ledger. Postings are queued with Enqueue and become
// visible only when Commit accepts the whole queue.
type Book struct {
	Name          string
	ApplyTaxRules bool

	accounts    map[AccountKey]*Account
	pending     []AccountEntry
	lastOp      int64
	subscribers []func(Operation)
}

func NewBook(name string, applyTaxRules bool) *Book {
	return &Book{
		Name:          name,
		ApplyTaxRules: applyTaxRules,
		accounts:      make(map[AccountKey]*Account),
	}
}

// Enqueue appends a pending posting. Zero amounts are dropped.
func (b *Book) Enqueue(key AccountKey, at event.Stamp, description string, amount decimal.Decimal) {
	if amount.IsZero() {
		return
	}
	b.pending = append(b.pending, AccountEntry{
		Key:              key,
		Date:             at.Date,
		Stamp:            at,
		TransactionIndex: at.Index,
		Description:      description,
		Amount:           amount,
	})
}

// Pending returns a copy of the queued postings.
func (b *Book) Pending() []AccountEntry {
	out := make([]AccountEntry, len(b.pending))
	copy(out, b.pending)
	return out
}

// Discard drops the queued postings.
func (b *Book) Discard() { b.pending = b.pending[:0] }

// Commit posts the queue as one operation. An unbalanced queue is discarded and
// reported as an *InvariantViolation; nothing is posted. An empty queue commits
// nothing and returns nil.
func (b *Book) Commit() (*Operation, error) {
	if len(b.pending) == 0 {
		return nil, nil
	}
	entries := b.pending
	b.pending = nil

	if imb := Imbalance(entries); len(imb) > 0 {
		return nil, &InvariantViolation{Book: b.Name, Stamp: entries[0].Stamp, Imbalance: imb, Entries: entries}
	}

	b.lastOp++
	op := Operation{Index: b.lastOp, Book: b.Name, Stamp: entries[0].Stamp, Entries: entries}
	for i := range op.Entries {
		op.Entries[i].OperationIndex = op.Index
		a := b.GetAccount(op.Entries[i].Key)
		a.entries = append(a.entries, op.Entries[i])
	}
	for _, fn := range b.subscribers {
		fn(op)
	}
	return &op, nil
}

// Subscribe registers fn to be called after every commit.
func (b *Book) Subscribe(fn func(Operation)) {
	b.subscribers = append(b.subscribers, fn)
}

// LastOperation is the index of the latest committed operation.
func (b *Book) LastOperation() int64 { return b.lastOp }

// GetAccount returns the account for key, creating it when missing.
func (b *Book) GetAccount(key AccountKey) *Account {
	a, ok := b.accounts[key]
	if !ok {
		a = &Account{Key: key}
		b.accounts[key] = a
	}
	return a
}

// Lookup returns the account for key without creating it.
func (b *Book) Lookup(key AccountKey) (*Account, bool) {
	a, ok := b.accounts[key]
	return a, ok
}

// Accounts returns all accounts ordered by path.
func (b *Book) Accounts() []*Account {
	out := make([]*Account, 0, len(b.accounts))
	for _, a := range b.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.AccountPath() < out[j].Key.AccountPath() })
	return out
}

// Filter returns the accounts whose key matches, ordered by path.
func (b *Book) Filter(match func(AccountKey) bool) []*Account {
	var out []*Account
	for _, a := range b.Accounts() {
		if match(a.Key) {
			out = append(out, a)
		}
	}
	return out
}

// Net sums Net(t) over the matching accounts.
func (b *Book) Net(t event.TimeArg, match func(AccountKey) bool) decimal.Decimal {
	sum := decimal.Zero
	for _, a := range b.Filter(match) {
		sum = sum.Add(a.Net(t))
	}
	return sum
}

// CheckBalance verifies the book is zero-sum per currency as of t.
func (b *Book) CheckBalance(t event.TimeArg) error {
	return NewInvariantValidator(b).ValidateGlobalBalance(t)
}

// Snapshot returns the all-time balance of every account as of t (for state
// hashing).
func (b *Book) Snapshot(t event.TimeArg) map[AccountKey]decimal.Decimal {
	out := make(map[AccountKey]decimal.Decimal, len(b.accounts))
	for k, a := range b.accounts {
		out[k] = a.Balance(t)
	}
	return out
}

func endOfYear(year int) event.TimeArg {
	return event.EndOf(date.New(year, time.December, 31))
}
