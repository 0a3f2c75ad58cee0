package projection_test

import (
	"context"
	"testing"
	"time"

	"PortfolioLedger/internal/date"
	"PortfolioLedger/internal/event"
	"PortfolioLedger/internal/ledger"
	"PortfolioLedger/internal/persistence"
	"PortfolioLedger/internal/projection"
	"PortfolioLedger/internal/testutil"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func transfer(index int64, amount int64) ledger.Operation {
	at := event.Stamp{Date: date.MustParse("2024-02-01"), Index: index}
	entry := func(k ledger.AccountKey, v int64) ledger.AccountEntry {
		return ledger.AccountEntry{Key: k, Date: at.Date, Stamp: at, OperationIndex: index, Amount: decimal.NewFromInt(v)}
	}
	return ledger.Operation{
		Index: index,
		Book:  "main",
		Stamp: at,
		Entries: []ledger.AccountEntry{
			entry(ledger.CashKey("PF1", "EUR"), amount),
			entry(ledger.NewAccountKey(ledger.ShareCapital, "PF1", "EUR"), -amount),
		},
	}
}

func TestBalanceProjector_AccumulatesAndRebuilds(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, projection.Reset(ctx, db))

	ops := []ledger.Operation{transfer(1, 1000), transfer(2, -250)}

	ch := make(chan ledger.Operation, len(ops))
	for _, op := range ops {
		ch <- op
	}
	close(ch)
	p := projection.NewBalanceProjector(db, ch, zerolog.Nop())
	require.NoError(t, p.Run(ctx))
	assert.Equal(t, 0, p.Failed())
	assert.Equal(t, int64(2), p.LastOperation("main"))

	read := func() (string, int64) {
		var bal string
		var last int64
		require.NoError(t, db.QueryRowContext(ctx,
			`SELECT balance::text, last_op_index FROM ledger.balances WHERE book = 'main' AND account_path = $1`,
			"assets:cash:PF1:EUR").Scan(&bal, &last))
		return bal, last
	}
	bal, last := read()
	assert.Equal(t, "750.000000000000", bal)
	assert.Equal(t, int64(2), last)

	// Rebuild works from the exported entries.
	ech := make(chan ledger.Operation, len(ops))
	for _, op := range ops {
		ech <- op
	}
	close(ech)
	require.NoError(t, persistence.NewExportWorker(db, ech, 10, time.Second, nil, zerolog.Nop()).Run(ctx))
	require.NoError(t, projection.Rebuild(ctx, db))

	bal, last = read()
	assert.Equal(t, "750.000000000000", bal)
	assert.Equal(t, int64(2), last)
}
