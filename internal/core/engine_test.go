package core_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"PortfolioLedger/internal/asset"
	"PortfolioLedger/internal/core"
	"PortfolioLedger/internal/date"
	"PortfolioLedger/internal/event"
	"PortfolioLedger/internal/ledger"
	"PortfolioLedger/internal/observability"
	"PortfolioLedger/internal/refdata"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var d = date.MustParse

func settings() core.Settings {
	return core.Settings{
		LocalCurrency:       "EUR",
		IncomeTaxRate:       dec("0.25"),
		DividendWithholding: dec("0.15"),
		CouponWithholding:   dec("0.15"),
	}
}

func portfolios() []refdata.Portfolio {
	return []refdata.Portfolio{
		{Name: "PF1", CashAccount: "C-1", CustodyAccount: "BRK-1"},
		{Name: "PF2", CashAccount: "C-2", CustodyAccount: "BRK-2"},
	}
}

func cashTx(idx int64, day, amount, pf string) refdata.Transaction {
	return refdata.Transaction{Index: idx, Type: refdata.TxCash, TradeDate: d(day), Count: dec(amount), Currency: "EUR", Portfolio: pf}
}

func trade(idx int64, typ refdata.TransactionType, inst, day, count, price, fee string) refdata.Transaction {
	return refdata.Transaction{
		Index: idx, Type: typ, Instrument: inst, TradeDate: d(day),
		Count: dec(count), Price: dec(price), Fee: dec(fee), Currency: "EUR", Portfolio: "PF1",
	}
}

func newEngine(t *testing.T, data refdata.Data, s core.Settings, metrics *observability.Metrics) *core.Engine {
	t.Helper()
	data.Portfolios = append(data.Portfolios, portfolios()...)
	defs, err := refdata.New(data)
	require.NoError(t, err)

	ctx := core.NewLedgerContext(defs, s, zerolog.Nop(), metrics)
	for _, b := range []*ledger.Book{ctx.Main, ctx.Tax} {
		b.Subscribe(func(op ledger.Operation) {
			assert.NoError(t, op.Validate(), "operation %d %q", op.Index, op.Description())
		})
	}
	return core.NewEngine(ctx)
}

func run(t *testing.T, data refdata.Data) (*core.Engine, *core.Result) {
	t.Helper()
	e := newEngine(t, data, settings(), nil)
	res, err := e.Run()
	require.NoError(t, err)
	return e, res
}

func balance(b *ledger.Book, key ledger.AccountKey, on string) decimal.Decimal {
	a, ok := b.Lookup(key)
	if !ok {
		return decimal.Zero
	}
	return a.Balance(event.EndOf(d(on)))
}

func assertDec(t *testing.T, want string, got decimal.Decimal, msg string) {
	t.Helper()
	assert.True(t, got.Equal(dec(want)), "%s: got %s, want %s", msg, got, want)
}

func equity(id string) refdata.Instrument {
	return refdata.Instrument{ID: id, Type: refdata.AssetTypeEquity, Currency: "EUR"}
}

// ============================================================================
// Equity: FIFO sale and dividend
// ============================================================================

func equityData() refdata.Data {
	return refdata.Data{
		Instruments: []refdata.Instrument{equity("EQ")},
		Transactions: []refdata.Transaction{
			cashTx(1, "2024-01-02", "10000", "PF1"),
			trade(2, refdata.TxBuy, "EQ", "2024-01-03", "50", "10", "5"),
			trade(3, refdata.TxBuy, "EQ", "2024-01-10", "50", "12", "5"),
			trade(4, refdata.TxSell, "EQ", "2024-02-01", "70", "15", "7"),
		},
		Dividends: []refdata.DividendQuote{
			{Instrument: "EQ", RecordDate: d("2024-03-01"), PayDate: d("2024-03-15"), Amount: dec("1")},
		},
	}
}

func TestRun_FIFOSaleAcrossLots(t *testing.T) {
	e, res := run(t, equityData())
	main := e.Context().Main

	assert.Equal(t, 4, res.Transactions)
	assert.Equal(t, d("2024-12-31"), res.End)

	lots := e.Generator().Lots()
	require.Len(t, lots, 2)
	end := event.EndOf(d("2024-12-31"))
	assertDec(t, "0", lots[0].Count(end), "first lot sold out")
	assertDec(t, "30", lots[1].Count(end), "second lot keeps the rest")

	// 750 - 500 on the first lot, 20 x (15 - 12) on the second.
	realized := ledger.NewAssetAccountKey(ledger.RealizedProfit, refdata.AssetTypeEquity, "PF1", "EUR")
	assertDec(t, "-310", balance(main, realized, "2024-06-30"), "realized profit")

	fees := ledger.NewAssetAccountKey(ledger.Fees, refdata.AssetTypeEquity, "PF1", "EUR")
	assertDec(t, "17", balance(main, fees, "2024-06-30"), "purchase and sale fees")

	held := ledger.NewAssetAccountKey(ledger.Assets, refdata.AssetTypeEquity, "PF1", "EUR")
	assertDec(t, "360", balance(main, held, "2024-06-30"), "remaining cost")
}

func TestRun_DividendPaidIntoCash(t *testing.T) {
	e, _ := run(t, equityData())
	main, tax := e.Context().Main, e.Context().Tax

	// 10000 - 505 - 605 + 1043 + 25.5
	assertDec(t, "9958.5", balance(main, ledger.CashKey("PF1", "EUR"), "2024-12-31"), "main book cash")
	assertDec(t, "9958.5", balance(tax, ledger.CashKey("PF1", "EUR"), "2024-12-31"), "tax book cash")

	income := ledger.NewAssetAccountKey(ledger.OrdinaryIncome, refdata.AssetTypeEquity, "PF1", "EUR")
	assertDec(t, "-30", balance(main, income, "2024-06-30"), "gross dividend on 30 units")

	withheld := ledger.NewAssetAccountKey(ledger.PrechargedTax, refdata.AssetTypeEquity, "PF1", "EUR")
	assertDec(t, "4.5", balance(tax, withheld, "2024-06-30"), "withholding")

	held := decimal.Zero
	for _, c := range e.Generator().CashLots() {
		held = held.Add(c.Count(event.EndOf(d("2024-12-31"))))
	}
	assertDec(t, "9958.5", held, "cash balances")
}

func TestRun_DividendFullyWithheld(t *testing.T) {
	data := refdata.Data{
		Instruments: []refdata.Instrument{equity("EQ")},
		Transactions: []refdata.Transaction{
			cashTx(1, "2024-01-02", "1000", "PF1"),
			trade(2, refdata.TxBuy, "EQ", "2024-01-03", "50", "10", "0"),
		},
		Dividends: []refdata.DividendQuote{
			{Instrument: "EQ", RecordDate: d("2024-03-01"), PayDate: d("2024-03-15"), Amount: dec("2")},
		},
		Adjustments: []refdata.Adjustment{
			&refdata.TaxOverride{On: d("2024-03-15"), Instrument: "EQ", Tax: dec("100")},
		},
	}
	e, _ := run(t, data)
	main, tax := e.Context().Main, e.Context().Tax

	assertDec(t, "500", balance(main, ledger.CashKey("PF1", "EUR"), "2024-03-15"), "no cash received")
	assert.Len(t, e.Generator().CashLots(), 1, "no cash balance opened for a zero net")

	income := ledger.NewAssetAccountKey(ledger.OrdinaryIncome, refdata.AssetTypeEquity, "PF1", "EUR")
	assertDec(t, "-100", balance(main, income, "2024-06-30"), "gross dividend")
	withheld := ledger.NewAssetAccountKey(ledger.PrechargedTax, refdata.AssetTypeEquity, "PF1", "EUR")
	assertDec(t, "100", balance(tax, withheld, "2024-06-30"), "whole gross withheld")
}

func TestRun_YearCloseTruesUpIncomeTax(t *testing.T) {
	e, res := run(t, equityData())

	require.Len(t, res.TrueUps, 1)
	u := res.TrueUps[0]
	assert.Equal(t, "PF1", u.Portfolio)
	assert.True(t, u.Required.IsPositive(), "required %s", u.Required)
	assertDec(t, "4.5", u.Precharged, "withholding credited")

	// Annual accounts are closed into the prior period result.
	realized := ledger.NewAssetAccountKey(ledger.RealizedProfit, refdata.AssetTypeEquity, "PF1", "EUR")
	assertDec(t, "0", balance(e.Context().Main, realized, "2024-12-31"), "realized profit after close")
	require.NoError(t, ledger.NewInvariantValidator(e.Context().Main).ValidateClosed(2024))
}

func TestRun_ExplicitEndSkipsYearClose(t *testing.T) {
	s := settings()
	s.ReplayEnd = d("2024-06-30")
	e := newEngine(t, equityData(), s, nil)
	res, err := e.Run()
	require.NoError(t, err)

	assert.Equal(t, d("2024-06-30"), res.End)
	assert.Empty(t, res.TrueUps)

	liabilities := ledger.NewAccountKey(ledger.TaxLiabilities, "PF1", "EUR")
	assert.True(t, balance(e.Context().Main, liabilities, "2024-06-30").IsNegative(), "income tax accrued monthly")
}

func TestRun_EndBeforeLastSettlement(t *testing.T) {
	s := settings()
	s.ReplayEnd = d("2024-01-15")
	_, err := newEngine(t, equityData(), s, nil).Run()
	require.Error(t, err)
}

// ============================================================================
// Failures
// ============================================================================

func TestRun_InsufficientLots(t *testing.T) {
	data := refdata.Data{
		Instruments: []refdata.Instrument{equity("EQ")},
		Transactions: []refdata.Transaction{
			cashTx(1, "2024-01-02", "1000", "PF1"),
			trade(2, refdata.TxBuy, "EQ", "2024-01-03", "5", "10", "0"),
			trade(3, refdata.TxSell, "EQ", "2024-01-04", "6", "10", "0"),
		},
	}
	metrics := observability.NewMetrics()
	_, err := newEngine(t, data, settings(), metrics).Run()
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInsufficientLots), "got %v", err)
	assert.Equal(t, "insufficient_lots", core.ErrorKind(err))
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.ReplayErrors.WithLabelValues("insufficient_lots")))
}

func TestRun_InsufficientCash(t *testing.T) {
	data := refdata.Data{
		Instruments: []refdata.Instrument{equity("EQ")},
		Transactions: []refdata.Transaction{
			cashTx(1, "2024-01-02", "100", "PF1"),
			trade(2, refdata.TxBuy, "EQ", "2024-01-03", "50", "10", "5"),
		},
	}
	_, err := newEngine(t, data, settings(), nil).Run()
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInsufficientCash), "got %v", err)
}

func TestRun_CashIsPerPortfolio(t *testing.T) {
	data := refdata.Data{
		Instruments: []refdata.Instrument{equity("EQ")},
		Transactions: []refdata.Transaction{
			cashTx(1, "2024-01-02", "1000", "PF2"),
			trade(2, refdata.TxBuy, "EQ", "2024-01-03", "5", "10", "0"),
		},
	}
	_, err := newEngine(t, data, settings(), nil).Run()
	assert.True(t, errors.Is(err, core.ErrInsufficientCash), "got %v", err)
}

func TestRun_FloatingBondWithoutFixing(t *testing.T) {
	data := refdata.Data{
		Instruments: []refdata.Instrument{{
			ID: "FRN", Type: refdata.AssetTypeBond, Currency: "EUR", CouponType: refdata.CouponFloating,
			Maturity: d("2027-01-01"), Frequency: 1, Nominal: dec("1000"),
		}},
		Transactions: []refdata.Transaction{
			cashTx(1, "2024-01-02", "100000", "PF1"),
			trade(2, refdata.TxBuy, "FRN", "2024-01-03", "10", "100", "0"),
		},
	}
	_, err := newEngine(t, data, settings(), nil).Run()
	assert.True(t, errors.Is(err, refdata.ErrNotFound), "got %v", err)
	assert.Equal(t, "reference_data", core.ErrorKind(err))
}

func TestRun_OutOfSequence(t *testing.T) {
	data := refdata.Data{
		Transactions: []refdata.Transaction{
			cashTx(2, "2024-01-02", "100", "PF1"),
			cashTx(1, "2024-01-03", "100", "PF1"),
		},
	}
	_, err := newEngine(t, data, settings(), nil).Run()
	assert.True(t, errors.Is(err, core.ErrSequence), "got %v", err)
	assert.Equal(t, "sequence", core.ErrorKind(err))
}

// ============================================================================
// Futures
// ============================================================================

// runWithin fails the test when the replay does not finish in time.
func runWithin(t *testing.T, e *core.Engine, limit time.Duration) (*core.Result, error) {
	t.Helper()
	type outcome struct {
		res *core.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := e.Run()
		done <- outcome{res, err}
	}()
	select {
	case o := <-done:
		return o.res, o.err
	case <-time.After(limit):
		t.Fatalf("replay still running after %s", limit)
		return nil, nil
	}
}

func futures(maturity string) refdata.Instrument {
	return refdata.Instrument{
		ID: "FUT", Type: refdata.AssetTypeFutures, Currency: "EUR",
		Maturity: d(maturity), Multiplier: dec("10"),
	}
}

func settlementsOf(t *testing.T, e *core.Engine) (*asset.Futures, []*event.Settlement) {
	t.Helper()
	lots := e.Generator().Lots()
	require.Len(t, lots, 1)
	f, ok := lots[0].(*asset.Futures)
	require.True(t, ok)

	var out []*event.Settlement
	for _, ev := range f.Events() {
		if s, ok := ev.(*event.Settlement); ok {
			out = append(out, s)
		}
	}
	return f, out
}

func futuresAccount(typ ledger.AccountType) ledger.AccountKey {
	return ledger.NewAssetAccountKey(typ, refdata.AssetTypeFutures, "PF1", "EUR")
}

func TestRun_FuturesSettleMonthlyUntilMaturity(t *testing.T) {
	data := refdata.Data{
		Instruments: []refdata.Instrument{futures("2024-03-15")},
		Transactions: []refdata.Transaction{
			cashTx(1, "2024-01-02", "1000", "PF1"),
			trade(2, refdata.TxBuy, "FUT", "2024-01-05", "2", "100", "4"),
		},
		Prices: []refdata.PriceQuote{
			{Instrument: "FUT", Date: d("2024-01-31"), Price: dec("105")},
			{Instrument: "FUT", Date: d("2024-02-29"), Price: dec("98")},
			{Instrument: "FUT", Date: d("2024-03-15"), Price: dec("101")},
		},
	}
	metrics := observability.NewMetrics()
	e := newEngine(t, data, settings(), metrics)
	_, err := runWithin(t, e, 5*time.Second)
	require.NoError(t, err)

	f, settlements := settlementsOf(t, e)
	require.Len(t, settlements, 3)
	assertDec(t, "100", settlements[0].Margin, "January")
	assertDec(t, "-140", settlements[1].Margin, "February")
	assertDec(t, "60", settlements[2].Margin, "maturity")
	assert.True(t, settlements[2].Final)
	assert.Equal(t, d("2024-03-15"), settlements[2].At.Date)
	assertDec(t, "0", f.Count(event.EndOf(d("2024-03-15"))), "closed at maturity")
	assertDec(t, "0", f.DeferredFee(event.EndOf(d("2024-03-15"))), "fee fully recognised")

	assertDec(t, "1016", balance(e.Context().Main, ledger.CashKey("PF1", "EUR"), "2024-12-31"), "cash")
	assert.Equal(t, 3.0, promtest.ToFloat64(metrics.Settlements))
}

func TestRun_FuturesMaturingAtMonthEnd(t *testing.T) {
	data := refdata.Data{
		Instruments: []refdata.Instrument{futures("2024-02-29")},
		Transactions: []refdata.Transaction{
			cashTx(1, "2024-01-02", "1000", "PF1"),
			trade(2, refdata.TxBuy, "FUT", "2024-01-05", "2", "100", "4"),
		},
		Prices: []refdata.PriceQuote{
			{Instrument: "FUT", Date: d("2024-01-31"), Price: dec("105")},
			{Instrument: "FUT", Date: d("2024-02-29"), Price: dec("103")},
		},
	}
	e := newEngine(t, data, settings(), nil)
	_, err := runWithin(t, e, 5*time.Second)
	require.NoError(t, err)

	f, settlements := settlementsOf(t, e)
	require.Len(t, settlements, 2)
	assert.False(t, settlements[0].Final)
	assert.True(t, settlements[1].Final, "month-end checkpoint closes the contract")
	assertDec(t, "-40", settlements[1].Margin, "February")
	assertDec(t, "0", f.Count(event.EndOf(d("2024-02-29"))), "closed at maturity")
	assertDec(t, "0", f.DeferredFee(event.EndOf(d("2024-02-29"))), "fee fully recognised")

	main := e.Context().Main
	assertDec(t, "1056", balance(main, ledger.CashKey("PF1", "EUR"), "2024-12-31"), "cash")
	assertDec(t, "-100", balance(main, futuresAccount(ledger.RealizedProfit), "2024-06-30"), "profit")
	assertDec(t, "40", balance(main, futuresAccount(ledger.RealizedLoss), "2024-06-30"), "loss")
	assertDec(t, "4", balance(main, futuresAccount(ledger.Fees), "2024-06-30"), "fees")
}

func TestRun_FuturesPartialSale(t *testing.T) {
	data := refdata.Data{
		Instruments: []refdata.Instrument{futures("2024-03-15")},
		Transactions: []refdata.Transaction{
			cashTx(1, "2024-01-02", "1000", "PF1"),
			trade(2, refdata.TxBuy, "FUT", "2024-01-05", "2", "100", "4"),
			trade(3, refdata.TxSell, "FUT", "2024-02-10", "1", "107", "1"),
		},
		Prices: []refdata.PriceQuote{
			{Instrument: "FUT", Date: d("2024-01-31"), Price: dec("105")},
			{Instrument: "FUT", Date: d("2024-02-29"), Price: dec("98")},
			{Instrument: "FUT", Date: d("2024-03-15"), Price: dec("101")},
		},
	}
	e := newEngine(t, data, settings(), nil)
	_, err := runWithin(t, e, 5*time.Second)
	require.NoError(t, err)

	f, settlements := settlementsOf(t, e)
	sale := event.At(d("2024-02-10"), 3)
	assertDec(t, "1", f.Count(sale), "one contract left")

	// Half of the fee still deferred before the sale is released with it.
	deferred := f.DeferredFee(event.Just(d("2024-02-10"), 3))
	left := f.DeferredFee(sale)
	assert.True(t, left.IsPositive() && left.LessThan(deferred), "deferred %s, left %s", deferred, left)

	main := e.Context().Main
	// 1000 - 4 + 100 (January on 2) + 20 (closed at 107 against 105) - 1
	assertDec(t, "1115", balance(main, ledger.CashKey("PF1", "EUR"), "2024-02-10"), "cash after sale")
	assertDec(t, dec("5").Sub(left).String(), balance(main, futuresAccount(ledger.Fees), "2024-02-10"), "fees after sale")

	require.Len(t, settlements, 3)
	assertDec(t, "-70", settlements[1].Margin, "February on the remaining contract")
	assertDec(t, "30", settlements[2].Margin, "maturity")
	assertDec(t, "1075", balance(main, ledger.CashKey("PF1", "EUR"), "2024-12-31"), "cash")
	assertDec(t, "5", balance(main, futuresAccount(ledger.Fees), "2024-06-30"), "purchase and sale fees")
	assertDec(t, "-150", balance(main, futuresAccount(ledger.RealizedProfit), "2024-06-30"), "profit")
	assertDec(t, "70", balance(main, futuresAccount(ledger.RealizedLoss), "2024-06-30"), "loss")
}

func TestRun_FuturesTransferNotSupported(t *testing.T) {
	tx := trade(3, refdata.TxTransfer, "FUT", "2024-01-06", "1", "0", "0")
	tx.Target = "PF2"
	data := refdata.Data{
		Instruments: []refdata.Instrument{{
			ID: "FUT", Type: refdata.AssetTypeFutures, Currency: "EUR", Maturity: d("2024-03-15"),
		}},
		Transactions: []refdata.Transaction{
			cashTx(1, "2024-01-02", "1000", "PF1"),
			trade(2, refdata.TxBuy, "FUT", "2024-01-05", "1", "100", "0"),
			tx,
		},
		Prices: []refdata.PriceQuote{{Instrument: "FUT", Date: d("2024-01-05"), Price: dec("100")}},
	}
	_, err := newEngine(t, data, settings(), nil).Run()
	assert.True(t, errors.Is(err, asset.ErrNotSupported), "got %v", err)
	assert.Equal(t, "not_supported", core.ErrorKind(err))
}

// ============================================================================
// Transfer and switch
// ============================================================================

func TestRun_TransferKeepsCostInTargetPortfolio(t *testing.T) {
	tx := trade(3, refdata.TxTransfer, "EQ", "2024-03-01", "10", "0", "0")
	tx.Target = "PF2"
	data := refdata.Data{
		Instruments: []refdata.Instrument{equity("EQ")},
		Transactions: []refdata.Transaction{
			cashTx(1, "2024-01-02", "1000", "PF1"),
			trade(2, refdata.TxBuy, "EQ", "2024-01-03", "10", "50", "0"),
			tx,
		},
	}
	e, _ := run(t, data)
	main := e.Context().Main

	lots := e.Generator().Lots()
	require.Len(t, lots, 2)
	end := event.EndOf(d("2024-12-31"))
	assertDec(t, "0", lots[0].Count(end), "source lot")
	assert.Equal(t, "PF2", lots[1].Location().Portfolio)
	assertDec(t, "10", lots[1].Count(end), "target lot")
	assert.True(t, lots[1].AmortizedCostPrice(end).Clean.Equal(dec("50")))

	assertDec(t, "0", balance(main, ledger.NewAssetAccountKey(ledger.Assets, refdata.AssetTypeEquity, "PF1", "EUR"), "2024-06-30"), "PF1 holdings")
	assertDec(t, "500", balance(main, ledger.NewAssetAccountKey(ledger.Assets, refdata.AssetTypeEquity, "PF2", "EUR"), "2024-06-30"), "PF2 holdings")
	assertDec(t, "500", balance(main, ledger.CashKey("PF1", "EUR"), "2024-06-30"), "cash untouched")
}

func TestRun_SwitchIntoAnotherFund(t *testing.T) {
	sw := trade(3, refdata.TxSwitch, "F1", "2024-02-01", "10", "22", "0")
	sw.TargetInstrument = "F2"
	sw.TargetCount = dec("5")
	data := refdata.Data{
		Instruments: []refdata.Instrument{
			{ID: "F1", Type: refdata.AssetTypeFund, Currency: "EUR"},
			{ID: "F2", Type: refdata.AssetTypeFund, Currency: "EUR"},
		},
		Transactions: []refdata.Transaction{
			cashTx(1, "2024-01-02", "1000", "PF1"),
			trade(2, refdata.TxBuy, "F1", "2024-01-03", "10", "20", "0"),
			sw,
		},
	}
	e, _ := run(t, data)
	main := e.Context().Main

	lots := e.Generator().Lots()
	require.Len(t, lots, 2)
	end := event.EndOf(d("2024-12-31"))
	assert.Equal(t, "F2", lots[1].Instrument())
	assertDec(t, "5", lots[1].Count(end), "target units")
	assertDec(t, "44", lots[1].AmortizedCostPrice(end).Clean, "proceeds over target units")

	realized := ledger.NewAssetAccountKey(ledger.RealizedProfit, refdata.AssetTypeFund, "PF1", "EUR")
	assertDec(t, "-20", balance(main, realized, "2024-06-30"), "switch result")
	assertDec(t, "800", balance(main, ledger.CashKey("PF1", "EUR"), "2024-12-31"), "no cash moves")
}

// ============================================================================
// Determinism and replay order
// ============================================================================

func TestRun_Deterministic(t *testing.T) {
	_, first := run(t, equityData())
	_, second := run(t, equityData())

	assert.Equal(t, first.StateHash, second.StateHash)
	assert.Equal(t, first.Operations, second.Operations)
	assert.NotEqual(t, core.NewStateHasher().Hex(), first.StateHash)
}

func TestReplayOrder_BySettlementDate(t *testing.T) {
	late := cashTx(1, "2024-01-02", "100", "PF1")
	late.SettlementDate = d("2024-01-05")
	early := cashTx(2, "2024-01-03", "100", "PF1")
	txs := []refdata.Transaction{late, early}

	order := core.ReplayOrder(txs)
	require.Len(t, order, 2)
	assert.Equal(t, int64(2), order[0].Index)
	assert.Equal(t, int64(1), order[1].Index)
}

func TestRun_Metrics(t *testing.T) {
	metrics := observability.NewMetrics()
	e := newEngine(t, equityData(), settings(), metrics)
	res, err := e.Run()
	require.NoError(t, err)

	assert.Equal(t, 2.0, promtest.ToFloat64(metrics.TransactionsReplayed.WithLabelValues("buy")))
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.FlowsMaterialized.WithLabelValues("dividend")))
	assert.Equal(t, 12.0, promtest.ToFloat64(metrics.Checkpoints.WithLabelValues("month_end")))
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.Checkpoints.WithLabelValues("year_end")))
	assert.Equal(t, float64(res.Operations["main"]), promtest.ToFloat64(metrics.LastOperation.WithLabelValues("main")))
}

// ============================================================================
// Error classification
// ============================================================================

func TestErrorKind(t *testing.T) {
	cases := map[string]error{
		"invariant":         &ledger.InvariantViolation{Book: "main"},
		"insufficient_cash": fmt.Errorf("wrapped: %w", core.ErrInsufficientCash),
		"invalid_data":      fmt.Errorf("%w: bad", refdata.ErrInvalid),
		"other":             errors.New("boom"),
	}
	for want, err := range cases {
		assert.Equal(t, want, core.ErrorKind(err), "%v", err)
	}
}
