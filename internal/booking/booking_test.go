package booking_test

import (
	"testing"

	"PortfolioLedger/internal/asset"
	"PortfolioLedger/internal/booking"
	"PortfolioLedger/internal/date"
	"PortfolioLedger/internal/event"
	"PortfolioLedger/internal/ledger"
	"PortfolioLedger/internal/refdata"
	"PortfolioLedger/internal/tax"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var d = date.MustParse

func txStamp(day string, idx int64) event.Stamp {
	return event.Stamp{Date: d(day), Index: idx, Rank: event.RankTransaction}
}

type fixture struct {
	ctx  *booking.Context
	actx asset.Context
}

func newFixture(t *testing.T, data refdata.Data) *fixture {
	t.Helper()
	data.Portfolios = append(data.Portfolios,
		refdata.Portfolio{Name: "PF", CashAccount: "C1", CustodyAccount: "BRK-1"},
		refdata.Portfolio{Name: "PF2", CashAccount: "C2", CustodyAccount: "BRK-2"},
	)
	defs, err := refdata.New(data)
	require.NoError(t, err)

	f := &fixture{
		ctx: &booking.Context{
			Main:          ledger.NewBook("main", false),
			Tax:           ledger.NewBook("tax", true),
			Defs:          defs,
			LocalCurrency: "EUR",
			IncomeTaxRate: dec("0.25"),
			Log:           zerolog.Nop(),
		},
		actx: asset.Context{Defs: defs, LocalCurrency: "EUR"},
	}
	for _, b := range []*ledger.Book{f.ctx.Main, f.ctx.Tax} {
		b.Subscribe(func(op ledger.Operation) {
			assert.NoError(t, op.Validate(), "operation %d %q", op.Index, op.Description())
		})
	}
	return f
}

func balance(b *ledger.Book, t ledger.AccountType, at refdata.AssetType, pf string) decimal.Decimal {
	a, ok := b.Lookup(ledger.NewAssetAccountKey(t, at, pf, "EUR"))
	if !ok {
		return decimal.Zero
	}
	return a.Balance(event.EndOf(d("2099-12-31")))
}

func cash(b *ledger.Book, pf string) decimal.Decimal {
	return balance(b, ledger.Assets, refdata.AssetTypeCash, pf)
}

func assertDec(t *testing.T, want string, got decimal.Decimal, msg string) {
	t.Helper()
	assert.True(t, got.Equal(dec(want)), "%s: got %s, want %s", msg, got, want)
}

func recognition(id uuid.UUID, at event.Stamp, units string, factor decimal.Decimal, price event.Price, fee string) *event.Recognition {
	return &event.Recognition{
		Header:   event.Header{EventID: event.NewID(id.String(), "rec"), Parent: id, At: at},
		Cause:    event.CausePurchase,
		Units:    dec(units),
		Factor:   factor,
		Price:    price,
		Fee:      dec(fee),
		Currency: "EUR",
	}
}

func derecognition(a asset.Asset, cause event.Cause, at event.Stamp, units string, price event.Price) *event.Derecognition {
	return &event.Derecognition{
		Header:   event.Header{EventID: event.NewID(a.ID().String(), cause.String(), at.String()), Parent: a.ID(), At: at},
		Cause:    cause,
		Units:    dec(units),
		Factor:   a.Factor(),
		Price:    price,
		Currency: a.Currency(),
	}
}

// ============================================================================
// Bond purchase and sale
// ============================================================================

func bondData() refdata.Data {
	return refdata.Data{Instruments: []refdata.Instrument{{
		ID: "B", Type: refdata.AssetTypeBond, Currency: "EUR",
		Maturity: d("2027-01-01"), CouponRate: dec("0.05"), Frequency: 1, Nominal: dec("100"),
	}}}
}

func buyBond(t *testing.T, f *fixture) (asset.Asset, *refdata.Instrument) {
	t.Helper()
	inst, err := f.ctx.Defs.Instrument("B")
	require.NoError(t, err)
	id := uuid.New()
	r := recognition(id, txStamp("2024-01-01", 1), "100", inst.Factor(), event.Flat(dec("98")), "10")
	b, err := asset.New(f.actx, id, inst, asset.Location{Portfolio: "PF"}, refdata.AmortizedCost, r)
	require.NoError(t, err)
	require.NoError(t, booking.Recognition(f.ctx, b, r))
	return b, inst
}

func TestRecognition_BondPurchase(t *testing.T) {
	f := newFixture(t, bondData())
	buyBond(t, f)

	m := f.ctx.Main
	assertDec(t, "9800", balance(m, ledger.Assets, refdata.AssetTypeBond, "PF"), "main assets")
	assertDec(t, "10", balance(m, ledger.Fees, refdata.AssetTypeBond, "PF"), "main fees")
	assertDec(t, "-9810", cash(m, "PF"), "main cash")
	assert.Equal(t, int64(1), m.LastOperation())

	x := f.ctx.Tax
	assertDec(t, "9800", balance(x, ledger.Assets, refdata.AssetTypeBond, "PF"), "tax assets")
	assertDec(t, "10", balance(x, ledger.TaxReserves, refdata.AssetTypeBond, "PF"), "tax reserves")
	assertDec(t, "0", balance(x, ledger.Fees, refdata.AssetTypeBond, "PF"), "tax fees")
	assertDec(t, "-9810", cash(x, "PF"), "tax cash")

	require.NoError(t, m.CheckBalance(event.EndOf(d("2024-01-01"))))
	require.NoError(t, x.CheckBalance(event.EndOf(d("2024-01-01"))))
}

func TestDerecognition_BondSaleRealizesAgainstAmortizedCost(t *testing.T) {
	f := newFixture(t, bondData())
	b, inst := buyBond(t, f)

	at := txStamp("2024-07-01", 2)
	accrued, err := asset.AccruedInterest(f.actx, inst, at.Date)
	require.NoError(t, err)
	s := derecognition(b, event.CauseSale, at, "100", event.Price{Clean: dec("102"), Dirty: dec("102").Add(accrued)})
	s.IsTotal = true
	carried := b.AmortizedCostAmount(event.Prior(at))
	require.NoError(t, b.AddEvent(s))
	require.NoError(t, booking.Derecognition(f.ctx, b, s))

	m := f.ctx.Main
	realized := s.Amount().Sub(carried)
	require.True(t, realized.IsPositive())
	assertDec(t, realized.Neg().String(), balance(m, ledger.RealizedProfit, refdata.AssetTypeBond, "PF"), "realized")
	assertDec(t, "0", balance(m, ledger.Assets, refdata.AssetTypeBond, "PF"), "assets after sale")
	assertDec(t, carried.Sub(dec("9800")).Neg().String(), balance(m, ledger.OrdinaryIncome, refdata.AssetTypeBond, "PF"), "accretion")
	assertDec(t, s.Amount().Sub(dec("9810")).String(), cash(m, "PF"), "cash")

	x := f.ctx.Tax
	assertDec(t, "0", balance(x, ledger.Assets, refdata.AssetTypeBond, "PF"), "tax assets")
	assertDec(t, "0", balance(x, ledger.TaxReserves, refdata.AssetTypeBond, "PF"), "tax reserves")
	assertDec(t, "10", balance(x, ledger.Fees, refdata.AssetTypeBond, "PF"), "tax fees")
	assertDec(t, "-400", balance(x, ledger.RealizedProfit, refdata.AssetTypeBond, "PF"), "tax realized")
	assertDec(t, s.AccruedAmount().Neg().String(), balance(x, ledger.OrdinaryIncome, refdata.AssetTypeBond, "PF"), "accrued sold")
}

func TestInflow_CouponAfterAccretion(t *testing.T) {
	f := newFixture(t, bondData())
	b, _ := buyBond(t, f)

	var coupon *event.Flow
	for _, e := range b.Events() {
		if fl, ok := e.(*event.Flow); ok && fl.Type == event.FlowCoupon {
			coupon = fl
			break
		}
	}
	require.NotNil(t, coupon)
	require.NoError(t, booking.Inflow(f.ctx, b, coupon))

	m := f.ctx.Main
	after := b.AmortizedCostAmount(event.Through(coupon.At))
	assertDec(t, after.String(), balance(m, ledger.Assets, refdata.AssetTypeBond, "PF"), "assets carry amortized cost")
	assertDec(t, "-9310", cash(m, "PF"), "cash")
	// Income of the year: coupon plus pull to par, all ordinary
	income := balance(m, ledger.OrdinaryIncome, refdata.AssetTypeBond, "PF").Neg()
	assertDec(t, after.Sub(dec("9800")).Add(dec("500")).String(), income, "ordinary income")

	assertDec(t, "-500", balance(f.ctx.Tax, ledger.OrdinaryIncome, refdata.AssetTypeBond, "PF"), "tax income")
	assertDec(t, "9800", balance(f.ctx.Tax, ledger.Assets, refdata.AssetTypeBond, "PF"), "tax cost unchanged")
}

// ============================================================================
// Dividends
// ============================================================================

func equityData() refdata.Data {
	return refdata.Data{
		Instruments: []refdata.Instrument{{ID: "EQ", Type: refdata.AssetTypeEquity, Currency: "EUR"}},
		Prices:      []refdata.PriceQuote{{Instrument: "EQ", Date: d("2024-01-31"), Price: dec("11")}},
		Dividends: []refdata.DividendQuote{
			{Instrument: "EQ", RecordDate: d("2024-03-01"), PayDate: d("2024-03-15"), Amount: dec("2")},
		},
	}
}

func buyEquity(t *testing.T, f *fixture, class refdata.ValuationClass) asset.Asset {
	t.Helper()
	inst, err := f.ctx.Defs.Instrument("EQ")
	require.NoError(t, err)
	id := uuid.New()
	r := recognition(id, txStamp("2024-01-10", 1), "50", inst.Factor(), event.Flat(dec("10")), "0")
	a, err := asset.New(f.actx, id, inst, asset.Location{Portfolio: "PF"}, class, r)
	require.NoError(t, err)
	require.NoError(t, booking.Recognition(f.ctx, a, r))
	return a
}

func dividend(a asset.Asset) *event.Flow {
	for _, e := range a.Events() {
		if fl, ok := e.(*event.Flow); ok {
			return fl
		}
	}
	return nil
}

func TestInflow_DividendWithTaxOverride(t *testing.T) {
	f := newFixture(t, equityData())
	f.actx.Policy = func(event.FlowType, string, asset.Location, date.Date) tax.Policy {
		return tax.Policy{Rate: dec("0.25"), Override: &tax.Override{Tax: dec("15")}}
	}
	a := buyEquity(t, f, refdata.AmortizedCost)
	fl := dividend(a)
	require.NotNil(t, fl)
	require.NoError(t, booking.Inflow(f.ctx, a, fl))

	m := f.ctx.Main
	assertDec(t, "-415", cash(m, "PF"), "cash after dividend")
	assertDec(t, "15", balance(m, ledger.Tax, refdata.AssetTypeEquity, "PF"), "withholding")
	assertDec(t, "-100", balance(m, ledger.OrdinaryIncome, refdata.AssetTypeEquity, "PF"), "gross")

	x := f.ctx.Tax
	assertDec(t, "15", balance(x, ledger.PrechargedTax, refdata.AssetTypeEquity, "PF"), "precharged")
	assertDec(t, "-100", balance(x, ledger.OrdinaryIncome, refdata.AssetTypeEquity, "PF"), "tax gross")
}

func TestInflow_TaxFreePortfolio(t *testing.T) {
	f := newFixture(t, equityData())
	f.ctx.TaxFree = func(pf string) bool { return pf == "PF" }
	a := buyEquity(t, f, refdata.AmortizedCost)
	require.NoError(t, booking.Inflow(f.ctx, a, dividend(a)))

	x := f.ctx.Tax
	assertDec(t, "-100", balance(x, ledger.NonTaxableResult, refdata.AssetTypeEquity, "PF"), "non taxable")
	assertDec(t, "0", balance(x, ledger.OrdinaryIncome, refdata.AssetTypeEquity, "PF"), "ordinary")
}

// ============================================================================
// Valuation and transfer
// ============================================================================

func TestValuation_FairValueGapThenTransfer(t *testing.T) {
	f := newFixture(t, equityData())
	a := buyEquity(t, f, refdata.FVTPL)
	v, err := a.(asset.Valuer).Valuate(event.Stamp{Date: d("2024-01-31"), Index: event.IndexClose, Rank: event.RankValuation})
	require.NoError(t, err)
	require.NoError(t, booking.Valuation(f.ctx, a, v))

	m := f.ctx.Main
	assertDec(t, "50", balance(m, ledger.ValuationAdjustment, refdata.AssetTypeEquity, "PF"), "gap")
	assertDec(t, "-50", balance(m, ledger.UnrealizedProfit, refdata.AssetTypeEquity, "PF"), "unrealized")
	assertDec(t, "0", balance(f.ctx.Tax, ledger.UnrealizedProfit, refdata.AssetTypeEquity, "PF"), "tax book untouched")

	at := txStamp("2024-02-01", 2)
	out := derecognition(a, event.CauseTransfer, at, "20", event.Flat(dec("10")))
	require.NoError(t, a.AddEvent(out))
	inst, err := f.ctx.Defs.Instrument("EQ")
	require.NoError(t, err)
	id := uuid.New()
	in := recognition(id, at, "20", inst.Factor(), event.Flat(dec("10")), "0")
	in.Cause = event.CauseTransfer
	in.Gap = dec("20")
	dst, err := asset.New(f.actx, id, inst, asset.Location{Portfolio: "PF2"}, refdata.FVTPL, in)
	require.NoError(t, err)
	require.NoError(t, booking.Transfer(f.ctx, a, out, dst, in))

	assertDec(t, "300", balance(m, ledger.Assets, refdata.AssetTypeEquity, "PF"), "source assets")
	assertDec(t, "200", balance(m, ledger.Assets, refdata.AssetTypeEquity, "PF2"), "target assets")
	assertDec(t, "30", balance(m, ledger.ValuationAdjustment, refdata.AssetTypeEquity, "PF"), "source gap")
	assertDec(t, "20", balance(m, ledger.ValuationAdjustment, refdata.AssetTypeEquity, "PF2"), "target gap")
	assertDec(t, "-50", balance(m, ledger.UnrealizedProfit, refdata.AssetTypeEquity, "PF"), "no result on transfer")
	_, found := m.Lookup(ledger.NewAssetAccountKey(ledger.RealizedProfit, refdata.AssetTypeEquity, "PF", "EUR"))
	assert.False(t, found)

	x := f.ctx.Tax
	assertDec(t, "300", balance(x, ledger.Assets, refdata.AssetTypeEquity, "PF"), "tax source")
	assertDec(t, "200", balance(x, ledger.Assets, refdata.AssetTypeEquity, "PF2"), "tax target")
}

// ============================================================================
// Futures
// ============================================================================

func TestSettlement_MarginsAndFees(t *testing.T) {
	f := newFixture(t, refdata.Data{
		Instruments: []refdata.Instrument{{ID: "F", Type: refdata.AssetTypeFutures, Currency: "EUR", Maturity: d("2024-03-15"), Multiplier: dec("10")}},
		Prices: []refdata.PriceQuote{
			{Instrument: "F", Date: d("2024-01-31"), Price: dec("105")},
			{Instrument: "F", Date: d("2024-02-29"), Price: dec("103")},
			{Instrument: "F", Date: d("2024-03-15"), Price: dec("104")},
		},
	})
	inst, err := f.ctx.Defs.Instrument("F")
	require.NoError(t, err)
	id := uuid.New()
	r := recognition(id, txStamp("2024-01-15", 1), "2", inst.Factor(), event.Flat(dec("100")), "30")
	fut, err := asset.NewFutures(f.actx, id, inst, asset.Location{Portfolio: "PF"}, r)
	require.NoError(t, err)
	require.NoError(t, booking.Recognition(f.ctx, fut, r))

	m := f.ctx.Main
	assertDec(t, "30", balance(m, ledger.Assets, refdata.AssetTypeFutures, "PF"), "deferred fee")
	assertDec(t, "0", balance(m, ledger.Fees, refdata.AssetTypeFutures, "PF"), "no fee expensed")

	for _, s := range []struct {
		day   string
		final bool
	}{{"2024-01-31", false}, {"2024-02-29", false}, {"2024-03-15", true}} {
		st, err := fut.Settle(event.Stamp{Date: d(s.day), Index: event.IndexClose, Rank: event.RankSettlement}, s.final)
		require.NoError(t, err)
		require.NoError(t, booking.Settlement(f.ctx, fut, st))
	}

	assertDec(t, "0", balance(m, ledger.Assets, refdata.AssetTypeFutures, "PF"), "assets")
	assertDec(t, "30", balance(m, ledger.Fees, refdata.AssetTypeFutures, "PF"), "fees")
	assertDec(t, "-120", balance(m, ledger.RealizedProfit, refdata.AssetTypeFutures, "PF"), "profit")
	assertDec(t, "40", balance(m, ledger.RealizedLoss, refdata.AssetTypeFutures, "PF"), "loss")
	assertDec(t, "50", cash(m, "PF"), "cash")

	x := f.ctx.Tax
	assertDec(t, "0", balance(x, ledger.TaxReserves, refdata.AssetTypeFutures, "PF"), "tax reserves")
	assertDec(t, "30", balance(x, ledger.Fees, refdata.AssetTypeFutures, "PF"), "tax fees")
}

// ============================================================================
// Income tax and year-end close
// ============================================================================

func TestIncomeTax_AccrualTrueUpAndClose(t *testing.T) {
	f := newFixture(t, equityData())
	f.actx.Policy = func(event.FlowType, string, asset.Location, date.Date) tax.Policy {
		return tax.Policy{Override: &tax.Override{Tax: dec("15")}}
	}
	a := buyEquity(t, f, refdata.AmortizedCost)
	require.NoError(t, booking.Inflow(f.ctx, a, dividend(a)))

	accruals, err := booking.AccrueIncomeTax(f.ctx, d("2024-03-31"))
	require.NoError(t, err)
	require.Len(t, accruals, 1)
	assertDec(t, "25", accruals[0].Delta, "accrual")

	again, err := booking.AccrueIncomeTax(f.ctx, d("2024-04-30"))
	require.NoError(t, err)
	assert.Empty(t, again)

	ups, err := booking.CloseYear(f.ctx, 2024)
	require.NoError(t, err)
	require.Len(t, ups, 1)
	assertDec(t, "15", ups[0].Precharged, "credit")
	assertDec(t, "10", ups[0].Payable, "payable")

	m := f.ctx.Main
	corporate := ledger.NewAccountKey(ledger.Tax, "PF", "EUR")
	acct, ok := m.Lookup(corporate)
	require.True(t, ok)
	assertDec(t, "0", acct.Net(event.EndOf(d("2024-12-31"))), "closed")
	assertDec(t, "10", acct.Balance(event.Prior(booking.YearEndStamp(2024))), "tax after credit")
	assertDec(t, "-10", balance(m, ledger.TaxLiabilities, refdata.AssetTypeNone, "PF"), "liability")
	// dividend 100 less withholding 15 less corporate tax 10
	assertDec(t, "-75", balance(m, ledger.PriorPeriodResult, refdata.AssetTypeNone, "PF"), "prior period")
	// tax book: dividend 100 less precharged 15
	assertDec(t, "-85", balance(f.ctx.Tax, ledger.PriorPeriodResult, refdata.AssetTypeNone, "PF"), "tax book prior period")

	for _, b := range []*ledger.Book{m, f.ctx.Tax} {
		require.NoError(t, ledger.NewInvariantValidator(b).ValidateClosed(2024))
		require.NoError(t, b.CheckBalance(event.EndOf(d("2024-12-31"))))
	}
}

// ============================================================================
// Manual adjustments
// ============================================================================

func TestManual_CashPremiumAssessment(t *testing.T) {
	f := newFixture(t, refdata.Data{})
	require.NoError(t, booking.CashMovement(f.ctx, "PF", "EUR", dec("1000"), txStamp("2024-01-02", 1)))
	require.NoError(t, booking.AdditionalPremium(f.ctx, &refdata.AdditionalPremium{
		On: d("2024-02-01"), Portfolio: "PF", Currency: "EUR", Amount: dec("-12"),
	}, event.Stamp{Date: d("2024-02-01"), Index: event.IndexOpen, Rank: event.RankAdjustment}))
	require.NoError(t, booking.TaxAssessment(f.ctx, &refdata.TaxAssessment{
		On: d("2024-03-01"), Portfolio: "PF", Amount: dec("100"),
	}, event.Stamp{Date: d("2024-03-01"), Index: event.IndexOpen, Rank: event.RankAdjustment}))

	for _, b := range []*ledger.Book{f.ctx.Main, f.ctx.Tax} {
		assertDec(t, "888", cash(b, "PF"), b.Name+" cash")
		assertDec(t, "-1000", balance(b, ledger.ShareCapital, refdata.AssetTypeNone, "PF"), b.Name+" capital")
		assertDec(t, "12", balance(b, ledger.Fees, refdata.AssetTypeNone, "PF"), b.Name+" charge")
		assertDec(t, "100", balance(b, ledger.TaxLiabilities, refdata.AssetTypeNone, "PF"), b.Name+" prepaid")
		assert.Equal(t, int64(3), b.LastOperation())
	}
}
