package testutil

import (
	"testing"

	"PortfolioLedger/internal/core"
	"PortfolioLedger/internal/date"
	"PortfolioLedger/internal/observability"
	"PortfolioLedger/internal/refdata"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// SampleData is a half year with two portfolios: a 10000 deposit and an equity
// purchase in PF1 (broker DEGIRO), a 500 deposit in PF2 (broker IB).
func SampleData() refdata.Data {
	d := date.MustParse
	dec := decimal.RequireFromString
	return refdata.Data{
		Portfolios: []refdata.Portfolio{
			{Name: "PF1", CashAccount: "C-1", CustodyAccount: "X-1", Broker: "DEGIRO"},
			{Name: "PF2", CashAccount: "C-2", CustodyAccount: "IB-77"},
		},
		Instruments: []refdata.Instrument{{ID: "EQ", Type: refdata.AssetTypeEquity, Currency: "EUR"}},
		Transactions: []refdata.Transaction{
			{Index: 1, Type: refdata.TxCash, TradeDate: d("2024-01-02"), Count: dec("10000"), Currency: "EUR", Portfolio: "PF1"},
			{Index: 2, Type: refdata.TxBuy, Instrument: "EQ", TradeDate: d("2024-01-03"), Count: dec("50"), Price: dec("10"), Fee: dec("5"), Currency: "EUR", Portfolio: "PF1"},
			{Index: 3, Type: refdata.TxCash, TradeDate: d("2024-01-04"), Count: dec("500"), Currency: "EUR", Portfolio: "PF2"},
		},
	}
}

// SampleSettings ends the replay on 2024-06-30.
func SampleSettings() core.Settings {
	return core.Settings{
		LocalCurrency: "EUR",
		IncomeTaxRate: decimal.RequireFromString("0.25"),
		ReplayEnd:     date.MustParse("2024-06-30"),
	}
}

// SampleLedger replays SampleData. metrics may be nil.
func SampleLedger(t *testing.T, metrics *observability.Metrics) (*core.Engine, *core.Result) {
	t.Helper()
	defs, err := refdata.New(SampleData())
	require.NoError(t, err)

	engine := core.NewEngine(core.NewLedgerContext(defs, SampleSettings(), zerolog.Nop(), metrics))
	res, err := engine.Run()
	require.NoError(t, err)
	return engine, res
}
