package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"sync"
	"time"

	"PortfolioLedger/internal/config"
	"PortfolioLedger/internal/core"
	"PortfolioLedger/internal/ledger"
	"PortfolioLedger/internal/observability"
	"PortfolioLedger/internal/persistence"
	"PortfolioLedger/internal/projection"
	"PortfolioLedger/internal/publish"
	"PortfolioLedger/internal/refdata"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
)

// app carries what every subcommand shares: configuration, logger and the
// ledger flags.
type app struct {
	cfg config.Config
	log zerolog.Logger

	data string
	end  string
}

func (a *app) setLedgerFlags(f *flag.FlagSet) {
	f.StringVar(&a.data, "data", a.cfg.DataFile, "reference data file (portfolios, instruments, prices, transactions)")
	f.StringVar(&a.end, "end", a.cfg.ReplayEnd, "replay end YYYY-MM-DD, default 31 Dec of the last settlement's year")
}

// sinks are the optional consumers of committed operations.
type sinks struct {
	export  bool
	publish bool
}

// replay loads the reference data and replays it. Committed operations are
// streamed to Postgres and NATS when requested; both sinks are drained before
// replay returns.
func (a *app) replay(ctx context.Context, metrics *observability.Metrics, out sinks) (*core.Engine, *core.Result, error) {
	cfg := a.cfg
	cfg.ReplayEnd = a.end
	settings, err := cfg.Settings()
	if err != nil {
		return nil, nil, err
	}

	defs, err := refdata.LoadFile(a.data)
	if err != nil {
		return nil, nil, err
	}
	a.log.Info().
		Str("file", a.data).
		Int("portfolios", len(defs.Portfolios())).
		Int("transactions", len(defs.Transactions())).
		Msg("reference data loaded")

	lc := core.NewLedgerContext(defs, settings, a.log, metrics)
	engine := core.NewEngine(lc)
	runID := uuid.New()

	var (
		wg        sync.WaitGroup
		errMu     sync.Mutex
		sinkErr   error
		chans     []chan ledger.Operation
		writer    *persistence.ExportWriter
		projector *projection.BalanceProjector
	)
	fail := func(err error) {
		errMu.Lock()
		defer errMu.Unlock()
		sinkErr = errors.Join(sinkErr, err)
	}
	attach := func(ch chan ledger.Operation) {
		chans = append(chans, ch)
		for _, b := range []*ledger.Book{lc.Main, lc.Tax} {
			b.Subscribe(func(op ledger.Operation) {
				select {
				case ch <- op:
				case <-ctx.Done():
				}
			})
		}
	}

	if out.export {
		db, err := a.openExport(ctx)
		if err != nil {
			return nil, nil, err
		}
		defer db.Close()

		ch := make(chan ledger.Operation, 1024)
		worker := persistence.NewExportWorker(db, ch, 256, time.Second, metrics, a.log)
		writer = worker.Writer()
		if err := writer.Reset(ctx); err != nil {
			return nil, nil, fmt.Errorf("reset export: %w", err)
		}
		if err := projection.Reset(ctx, db); err != nil {
			return nil, nil, fmt.Errorf("reset projection: %w", err)
		}
		attach(ch)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := worker.Run(ctx); err != nil {
				fail(fmt.Errorf("export: %w", err))
			}
		}()

		pch := make(chan ledger.Operation, 1024)
		projector = projection.NewBalanceProjector(db, pch, a.log)
		attach(pch)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := projector.Run(ctx); err != nil {
				fail(fmt.Errorf("projection: %w", err))
			}
		}()
	}

	if out.publish {
		if cfg.NATSURL == "" {
			return nil, nil, errors.New("publishing needs PLEDGER_NATS_URL")
		}
		nc, js, err := publish.Connect(cfg.NATSURL, a.log)
		if err != nil {
			return nil, nil, err
		}
		defer nc.Close()
		if err := publish.EnsureStream(ctx, js, a.log); err != nil {
			return nil, nil, err
		}

		ch := make(chan ledger.Operation, 1024)
		publisher := publish.NewOperationPublisher(js, ch, runID, metrics, a.log)
		attach(ch)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := publisher.Run(ctx); err != nil {
				fail(fmt.Errorf("publish: %w", err))
			}
		}()
	}

	res, runErr := engine.Run()
	for _, ch := range chans {
		close(ch)
	}
	wg.Wait()

	if runErr != nil {
		if writer != nil {
			if err := writer.Reset(context.Background()); err != nil {
				a.log.Error().Err(err).Msg("clearing partial export failed")
			}
			if err := projection.Reset(context.Background(), writer.DB()); err != nil {
				a.log.Error().Err(err).Msg("clearing partial projection failed")
			}
		}
		return nil, nil, runErr
	}
	if sinkErr != nil {
		return nil, nil, sinkErr
	}

	if projector != nil && projector.Failed() > 0 {
		a.log.Warn().Int("failed", projector.Failed()).Msg("balance projection incomplete, rebuilding from entries")
		if err := projection.Rebuild(ctx, writer.DB()); err != nil {
			return nil, nil, fmt.Errorf("rebuild projection: %w", err)
		}
	}

	if writer != nil {
		run := persistence.RunRow{
			RunID:          runID,
			FinishedAt:     time.Now().UTC(),
			ReplayEnd:      res.End.Time(),
			Transactions:   res.Transactions,
			MainOperations: res.Operations[lc.Main.Name],
			TaxOperations:  res.Operations[lc.Tax.Name],
			StateHash:      res.StateHash,
		}
		if err := writer.WriteRun(ctx, run); err != nil {
			return nil, nil, fmt.Errorf("record run: %w", err)
		}
		a.log.Info().Str("run_id", runID.String()).Msg("export complete")
	}
	return engine, res, nil
}

// openExport connects to Postgres and applies pending migrations.
func (a *app) openExport(ctx context.Context) (*sql.DB, error) {
	if a.cfg.PostgresURL == "" {
		return nil, errors.New("exporting needs PLEDGER_POSTGRES_DSN")
	}
	db, err := sql.Open("postgres", a.cfg.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(4)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := persistence.NewMigrator(db, a.cfg.MigrationsDir, a.log).Up(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}
