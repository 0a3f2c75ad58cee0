package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"PortfolioLedger/internal/ledger"
	"PortfolioLedger/internal/observability"

	"github.com/rs/zerolog"
)

// ExportWorker drains committed operations and batch-writes them to Postgres.
// It runs beside the replay. Sends into its channel block, so a slow database
// stalls the replay instead of losing operations.
type ExportWorker struct {
	writer       *ExportWriter
	inputChan    <-chan ledger.Operation
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
	log          zerolog.Logger
}

func NewExportWorker(
	db *sql.DB,
	inputChan <-chan ledger.Operation,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *ExportWorker {
	if batchSize <= 0 {
		batchSize = 256
	}
	return &ExportWorker{
		writer:       NewExportWriter(db),
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
		log:          log.With().Str("worker", "export").Logger(),
	}
}

// Run batches incoming operations and flushes when the batch is full or the
// flush timeout expires. It returns nil once the channel is closed and drained.
func (w *ExportWorker) Run(ctx context.Context) error {
	opBatch := make([]OperationRow, 0, w.batchSize)
	entryBatch := make([]EntryRow, 0, w.batchSize*4)

	timer := time.NewTimer(w.flushTimeout)
	defer timer.Stop()

	reset := func() {
		opBatch = opBatch[:0]
		entryBatch = entryBatch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			if len(opBatch) > 0 {
				if err := w.flush(context.Background(), opBatch, entryBatch); err != nil {
					w.log.Error().Err(err).Int("operations", len(opBatch)).Msg("final flush failed")
				}
			}
			return ctx.Err()

		case op, ok := <-w.inputChan:
			if !ok {
				if len(opBatch) > 0 {
					if err := w.flushWithRetry(ctx, opBatch, entryBatch); err != nil {
						return err
					}
				}
				return nil
			}

			row, entries := RowsOf(op)
			opBatch = append(opBatch, row)
			entryBatch = append(entryBatch, entries...)

			if len(opBatch) >= w.batchSize {
				if err := w.flushWithRetry(ctx, opBatch, entryBatch); err != nil {
					w.log.Error().Err(err).Msg("batch flush failed after retries")
				}
				reset()
				timer.Reset(w.flushTimeout)
			}

		case <-timer.C:
			if len(opBatch) > 0 {
				if err := w.flushWithRetry(ctx, opBatch, entryBatch); err != nil {
					w.log.Error().Err(err).Msg("timeout flush failed after retries")
				}
				reset()
			}
			timer.Reset(w.flushTimeout)
		}
	}
}

// flushWithRetry retries with exponential backoff until the write succeeds or
// the context is cancelled, in which case one last attempt is made.
func (w *ExportWorker) flushWithRetry(ctx context.Context, ops []OperationRow, entries []EntryRow) error {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			w.log.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Int("operations", len(ops)).
				Msg("export retry")
			select {
			case <-ctx.Done():
				if err := w.flush(context.Background(), ops, entries); err != nil {
					return fmt.Errorf("final flush on shutdown failed: %w", err)
				}
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		err := w.flush(ctx, ops, entries)
		if err == nil {
			if attempt > 0 {
				w.log.Info().Int("retries", attempt).Msg("export flush succeeded")
			}
			return nil
		}
		w.countError("retry")
	}
}

func (w *ExportWorker) flush(ctx context.Context, ops []OperationRow, entries []EntryRow) error {
	start := time.Now()

	tx, err := w.writer.db.BeginTx(ctx, nil)
	if err != nil {
		w.countError("tx_begin")
		return err
	}
	defer tx.Rollback()

	if err := w.writer.WriteOperationBatch(ctx, tx, ops); err != nil {
		w.countError("write_operations")
		return err
	}
	if err := w.writer.WriteEntryBatch(ctx, tx, entries); err != nil {
		w.countError("write_entries")
		return err
	}
	if err := tx.Commit(); err != nil {
		w.countError("tx_commit")
		return err
	}

	if w.metrics != nil {
		w.metrics.ExportBatchDur.Observe(time.Since(start).Seconds())
		w.metrics.ExportedOperations.Add(float64(len(ops)))
		w.metrics.ExportedEntries.Add(float64(len(entries)))
	}
	w.log.Debug().Int("operations", len(ops)).Int("entries", len(entries)).Msg("batch exported")
	return nil
}

func (w *ExportWorker) countError(stage string) {
	if w.metrics != nil {
		w.metrics.ExportErrors.WithLabelValues(stage).Inc()
	}
}

// Writer returns the underlying writer.
func (w *ExportWorker) Writer() *ExportWriter {
	return w.writer
}
