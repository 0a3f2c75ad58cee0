package persistence_test

import (
	"context"
	"testing"
	"time"

	"PortfolioLedger/internal/ledger"
	"PortfolioLedger/internal/observability"
	"PortfolioLedger/internal/persistence"
	"PortfolioLedger/internal/testutil"

	"github.com/google/uuid"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportWorker_WritesOperations(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	w := persistence.NewExportWorker(db, nil, 2, time.Second, nil, zerolog.Nop())
	require.NoError(t, w.Writer().Reset(ctx))

	metrics := observability.NewMetrics()
	ch := make(chan ledger.Operation, 8)
	worker := persistence.NewExportWorker(db, ch, 2, 50*time.Millisecond, metrics, zerolog.Nop())
	for i := int64(1); i <= 5; i++ {
		ch <- depositOperation(i, 100*i)
	}
	close(ch)
	require.NoError(t, worker.Run(ctx))

	var ops, entries int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT count(*) FROM ledger.operations`).Scan(&ops))
	require.NoError(t, db.QueryRowContext(ctx, `SELECT count(*) FROM ledger.entries`).Scan(&entries))
	assert.Equal(t, 5, ops)
	assert.Equal(t, 10, entries)
	assert.Equal(t, 5.0, promtest.ToFloat64(metrics.ExportedOperations))
	assert.Equal(t, 10.0, promtest.ToFloat64(metrics.ExportedEntries))

	var sum string
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT sum(amount)::text FROM ledger.entries WHERE book = 'main'`).Scan(&sum))
	assert.Equal(t, "0.000000000000", sum)
}

func TestExportWriter_Runs(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	w := persistence.NewExportWriter(db)
	none, err := w.LatestRun(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)

	run := persistence.RunRow{
		RunID:          uuid.New(),
		FinishedAt:     time.Now().UTC().Truncate(time.Second),
		ReplayEnd:      time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		Transactions:   12,
		MainOperations: 40,
		TaxOperations:  38,
		StateHash:      "abc",
	}
	require.NoError(t, w.WriteRun(ctx, run))

	got, err := w.LatestRun(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, run.RunID, got.RunID)
	assert.Equal(t, "abc", got.StateHash)
	assert.Equal(t, int64(38), got.TaxOperations)
}
