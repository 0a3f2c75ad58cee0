package ledger_test

import (
	"errors"
	"testing"

	"PortfolioLedger/internal/date"
	"PortfolioLedger/internal/event"
	"PortfolioLedger/internal/ledger"
	"PortfolioLedger/internal/refdata"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func stamp(day string, idx int64) event.Stamp {
	return event.Stamp{Date: date.MustParse(day), Index: idx}
}

// ============================================================================
// Test: AccountKey
// ============================================================================

func TestAccountKey_Path(t *testing.T) {
	key := ledger.NewAssetAccountKey(ledger.Assets, refdata.AssetTypeBond, "PF1", "EUR")
	if got := key.AccountPath(); got != "assets:bond:PF1:EUR" {
		t.Errorf("got %q, want %q", got, "assets:bond:PF1:EUR")
	}
	key = ledger.NewAccountKey(ledger.Fees, "PF1", "EUR")
	if got := key.AccountPath(); got != "fees:PF1:EUR" {
		t.Errorf("got %q, want %q", got, "fees:PF1:EUR")
	}
}

func TestAccountType_Annual(t *testing.T) {
	for _, at := range []ledger.AccountType{ledger.Fees, ledger.OrdinaryIncome, ledger.RealizedLoss, ledger.Tax, ledger.NonTaxableResult} {
		if !at.IsAnnual() {
			t.Errorf("%s should be annual", at)
		}
	}
	for _, at := range []ledger.AccountType{ledger.Assets, ledger.OtherComprehensiveIncome, ledger.PriorPeriodResult, ledger.TaxLiabilities, ledger.ValuationAdjustment} {
		if at.IsAnnual() {
			t.Errorf("%s should not be annual", at)
		}
	}
	if ledger.NonTaxableResult.IsResult() {
		t.Error("non-taxable result is not part of the taxable result")
	}
}

func TestParseAccountType_RoundTrip(t *testing.T) {
	for _, at := range ledger.AccountTypes() {
		got, err := ledger.ParseAccountType(at.String())
		if err != nil || got != at {
			t.Errorf("%s: got %v, %v", at, got, err)
		}
	}
}

// ============================================================================
// Test: Book
// ============================================================================

func bookBondPurchase(b *ledger.Book, at event.Stamp) {
	// buy 100 bonds of nominal 100 at 98, fee 10
	b.Enqueue(ledger.NewAssetAccountKey(ledger.Assets, refdata.AssetTypeBond, "PF", "EUR"), at, "buy B", dec("9800"))
	b.Enqueue(ledger.NewAccountKey(ledger.Fees, "PF", "EUR"), at, "buy B", dec("10"))
	b.Enqueue(ledger.CashKey("PF", "EUR"), at, "buy B", dec("-9810"))
}

func TestBook_CommitBalanced(t *testing.T) {
	b := ledger.NewBook("main", false)
	at := stamp("2024-01-10", 1)
	bookBondPurchase(b, at)

	op, err := b.Commit()
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if op.Index != 1 || len(op.Entries) != 3 {
		t.Fatalf("got op %d with %d entries", op.Index, len(op.Entries))
	}
	if err := op.Validate(); err != nil {
		t.Errorf("validate: %v", err)
	}
	for _, e := range op.Entries {
		if e.OperationIndex != 1 || e.TransactionIndex != 1 {
			t.Errorf("entry %s: op %d tx %d", e.Key, e.OperationIndex, e.TransactionIndex)
		}
	}
	cash := b.GetAccount(ledger.CashKey("PF", "EUR")).Net(event.EndOf(at.Date))
	if !cash.Equal(dec("-9810")) {
		t.Errorf("cash: got %s", cash)
	}
	if len(b.Pending()) != 0 {
		t.Error("queue should be empty after commit")
	}
}

func TestBook_EnqueueDropsZero(t *testing.T) {
	b := ledger.NewBook("main", false)
	b.Enqueue(ledger.CashKey("PF", "EUR"), stamp("2024-01-10", 1), "nothing", decimal.Zero)
	if len(b.Pending()) != 0 {
		t.Error("zero amount should be dropped")
	}
	op, err := b.Commit()
	if op != nil || err != nil {
		t.Errorf("empty commit: got %v, %v", op, err)
	}
}

func TestBook_CommitUnbalancedRejected(t *testing.T) {
	b := ledger.NewBook("main", false)
	at := stamp("2024-01-10", 1)
	b.Enqueue(ledger.CashKey("PF", "EUR"), at, "broken", dec("100"))
	b.Enqueue(ledger.NewAccountKey(ledger.OrdinaryIncome, "PF", "EUR"), at, "broken", dec("-99.99"))

	_, err := b.Commit()
	var iv *ledger.InvariantViolation
	if !errors.As(err, &iv) {
		t.Fatalf("expected InvariantViolation, got %v", err)
	}
	if !errors.Is(err, ledger.ErrInvariantViolation) {
		t.Error("should wrap ErrInvariantViolation")
	}
	if !iv.Imbalance["EUR"].Equal(dec("0.01")) {
		t.Errorf("imbalance: got %s", iv.Imbalance["EUR"])
	}
	if len(b.Accounts()) != 0 || b.LastOperation() != 0 {
		t.Error("nothing may be posted by a rejected commit")
	}
	if len(b.Pending()) != 0 {
		t.Error("rejected queue should be discarded")
	}
}

func TestBook_ZeroSumPerCurrency(t *testing.T) {
	b := ledger.NewBook("main", false)
	at := stamp("2024-01-10", 1)
	b.Enqueue(ledger.CashKey("PF", "EUR"), at, "fx", dec("100"))
	b.Enqueue(ledger.CashKey("PF", "USD"), at, "fx", dec("-100"))

	if _, err := b.Commit(); !errors.Is(err, ledger.ErrInvariantViolation) {
		t.Fatalf("cross-currency postings must not net: %v", err)
	}
}

func TestBook_OperationIndexMonotonic(t *testing.T) {
	b := ledger.NewBook("main", false)
	var seen []int64
	b.Subscribe(func(op ledger.Operation) { seen = append(seen, op.Index) })

	for i := int64(1); i <= 3; i++ {
		bookBondPurchase(b, stamp("2024-01-10", i))
		if _, err := b.Commit(); err != nil {
			t.Fatalf("commit %d: %v", i, err)
		}
	}
	if len(seen) != 3 || seen[0] != 1 || seen[2] != 3 {
		t.Errorf("subscriber saw %v", seen)
	}
}

func TestBook_GetAccountFindOrCreate(t *testing.T) {
	b := ledger.NewBook("tax", true)
	k := ledger.NewAccountKey(ledger.TaxReserves, "PF", "EUR")
	a1 := b.GetAccount(k)
	a2 := b.GetAccount(k)
	if a1 != a2 {
		t.Error("GetAccount should return the same account")
	}
	if _, ok := b.Lookup(ledger.NewAccountKey(ledger.Tax, "PF", "EUR")); ok {
		t.Error("Lookup must not create")
	}
}

func TestAccount_AnnualRestriction(t *testing.T) {
	b := ledger.NewBook("main", false)
	for _, day := range []string{"2023-06-01", "2024-03-01"} {
		at := stamp(day, 1)
		b.Enqueue(ledger.NewAccountKey(ledger.Fees, "PF", "EUR"), at, "fee", dec("10"))
		b.Enqueue(ledger.CashKey("PF", "EUR"), at, "fee", dec("-10"))
		if _, err := b.Commit(); err != nil {
			t.Fatal(err)
		}
	}

	fees := b.GetAccount(ledger.NewAccountKey(ledger.Fees, "PF", "EUR"))
	end := event.EndOf(date.MustParse("2024-12-31"))
	if got := fees.Net(end); !got.Equal(dec("10")) {
		t.Errorf("annual net: got %s, want 10", got)
	}
	if got := fees.Balance(end); !got.Equal(dec("20")) {
		t.Errorf("balance: got %s, want 20", got)
	}
	cash := b.GetAccount(ledger.CashKey("PF", "EUR"))
	if got := cash.Credit(end); !got.Equal(dec("20")) {
		t.Errorf("cash credit: got %s, want 20", got)
	}
}

func TestAccount_AsOfTieBreak(t *testing.T) {
	b := ledger.NewBook("main", false)
	at := stamp("2024-01-10", 5)
	bookBondPurchase(b, at)
	if _, err := b.Commit(); err != nil {
		t.Fatal(err)
	}
	cash := b.GetAccount(ledger.CashKey("PF", "EUR"))
	if !cash.Net(event.Just(at.Date, 5)).IsZero() {
		t.Error("Before must exclude the posting's own transaction")
	}
	if cash.Net(event.At(at.Date, 5)).IsZero() {
		t.Error("UpToAndIncluding must include the posting's own transaction")
	}
}

// ============================================================================
// Test: InvariantValidator
// ============================================================================

func TestValidator_GlobalBalance(t *testing.T) {
	b := ledger.NewBook("main", false)
	bookBondPurchase(b, stamp("2024-01-10", 1))
	if _, err := b.Commit(); err != nil {
		t.Fatal(err)
	}
	if err := b.CheckBalance(event.EndOf(date.MustParse("2024-12-31"))); err != nil {
		t.Errorf("balanced book: %v", err)
	}
}

func TestValidator_Closed(t *testing.T) {
	b := ledger.NewBook("main", false)
	bookBondPurchase(b, stamp("2024-01-10", 1))
	if _, err := b.Commit(); err != nil {
		t.Fatal(err)
	}
	v := ledger.NewInvariantValidator(b)
	if err := v.ValidateClosed(2024); err == nil {
		t.Fatal("fees not closed yet")
	}

	ye := event.Stamp{Date: date.MustParse("2024-12-31"), Index: event.IndexClose, Rank: event.RankYearEnd}
	b.Enqueue(ledger.NewAccountKey(ledger.Fees, "PF", "EUR"), ye, "close", dec("-10"))
	b.Enqueue(ledger.NewAccountKey(ledger.PriorPeriodResult, "PF", "EUR"), ye, "close", dec("10"))
	if _, err := b.Commit(); err != nil {
		t.Fatal(err)
	}
	if err := v.ValidateClosed(2024); err != nil {
		t.Errorf("closed: %v", err)
	}
}

func TestValidator_NonNegative(t *testing.T) {
	b := ledger.NewBook("main", false)
	bookBondPurchase(b, stamp("2024-01-10", 1))
	if _, err := b.Commit(); err != nil {
		t.Fatal(err)
	}
	v := ledger.NewInvariantValidator(b)
	err := v.ValidateNonNegative(ledger.CashKey("PF", "EUR"), event.EndOf(date.MustParse("2024-01-10")))
	if !errors.Is(err, ledger.ErrInvariantViolation) {
		t.Errorf("overdrawn cash: got %v, want invariant violation", err)
	}
}
