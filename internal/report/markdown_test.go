package report_test

import (
	"strings"
	"testing"

	"PortfolioLedger/internal/query"
	"PortfolioLedger/internal/report"
	"PortfolioLedger/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBalances_Table(t *testing.T) {
	r := &query.BalanceReport{
		Book:    "tax",
		AsOf:    "2024-12-31",
		GroupBy: query.GroupByAssetType,
		Lines: []query.BalanceLine{
			{Group: "equity", AccountType: "assets", Currency: "EUR", Debit: decimal.NewFromInt(500), Balance: decimal.NewFromInt(500)},
		},
		Totals: map[string]decimal.Decimal{"EUR": decimal.Zero},
	}
	md := report.Balances(r)

	assert.True(t, strings.HasPrefix(md, "# Tax book as of 2024-12-31\n"))
	assert.Contains(t, md, "| Asset type | Type | Currency |")
	assert.Contains(t, md, "| equity | assets | EUR | 500.00 | 0.00 | 500.00 |")
	assert.Contains(t, md, "| **Net** | | EUR | | | **0.00** |")
}

func TestSummary_FromReplay(t *testing.T) {
	s := query.NewService(testutil.SampleLedger(t, nil)).Summary()
	md := report.Summary(s)

	assert.Contains(t, md, "# Replay until 2024-06-30")
	assert.Contains(t, md, "| Transactions | 3 |")
	assert.Contains(t, md, "| Operations (main) |")
	assert.NotContains(t, md, "Income tax", "no year end closed")
}

func TestAssets_MarksUnsupportedMarket(t *testing.T) {
	md := report.Assets("2024-06-30", []query.AssetResponse{
		{Portfolio: "PF1", Instrument: "FUT", Type: "futures", Count: decimal.NewFromInt(2)},
	})
	assert.Contains(t, md, "| PF1 | FUT | futures | 2 | 0.00 | 0.00 | n/a |")
}

func TestRender(t *testing.T) {
	out, err := report.Render("# Title\n\nbody", 80)
	require.NoError(t, err)
	assert.Contains(t, out, "Title")
	assert.Contains(t, out, "body")
}
