package projection

import (
	"context"
	"database/sql"
	"fmt"

	"PortfolioLedger/internal/ledger"

	"github.com/rs/zerolog"
)

// BalanceProjector keeps ledger.balances current from committed operations.
// The projection is eventually consistent: a failed update is logged and the
// table can be rebuilt from ledger.entries with Rebuild.
type BalanceProjector struct {
	db        *sql.DB
	inputChan <-chan ledger.Operation
	lastOp    map[string]int64
	failed    int
	log       zerolog.Logger
}

func NewBalanceProjector(db *sql.DB, inputChan <-chan ledger.Operation, log zerolog.Logger) *BalanceProjector {
	return &BalanceProjector{
		db:        db,
		inputChan: inputChan,
		lastOp:    make(map[string]int64),
		log:       log.With().Str("worker", "projection").Logger(),
	}
}

// Run applies operations until the channel is closed or ctx is cancelled.
func (p *BalanceProjector) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case op, ok := <-p.inputChan:
			if !ok {
				return nil
			}
			if err := p.apply(ctx, op); err != nil {
				p.failed++
				p.log.Warn().Err(err).Str("book", op.Book).Int64("index", op.Index).Msg("projection update failed")
				continue
			}
			p.lastOp[op.Book] = op.Index
		}
	}
}

// Failed counts operations whose update was lost.
func (p *BalanceProjector) Failed() int { return p.failed }

// LastOperation is the last operation applied for book.
func (p *BalanceProjector) LastOperation(book string) int64 { return p.lastOp[book] }

func (p *BalanceProjector) apply(ctx context.Context, op ledger.Operation) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range op.Entries {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ledger.balances (book, account_path, currency, balance, last_op_index)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (book, account_path)
			DO UPDATE SET balance = ledger.balances.balance + EXCLUDED.balance,
			              last_op_index = EXCLUDED.last_op_index
		`, op.Book, e.Key.AccountPath(), e.Key.Currency, e.Amount, op.Index); err != nil {
			return fmt.Errorf("balance %s: %w", e.Key, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ledger.watermark (book, last_op_index, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (book) DO UPDATE SET last_op_index = $2, updated_at = NOW()
	`, op.Book, op.Index); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

// Reset empties the projection ahead of a new replay.
func Reset(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `TRUNCATE ledger.balances, ledger.watermark`)
	return err
}

// Rebuild recomputes ledger.balances from the exported entries.
func Rebuild(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		`TRUNCATE ledger.balances, ledger.watermark`,
		`INSERT INTO ledger.balances (book, account_path, currency, balance, last_op_index)
		 SELECT book, account_path, MIN(currency), SUM(amount), MAX(op_index)
		 FROM ledger.entries
		 GROUP BY book, account_path`,
		`INSERT INTO ledger.watermark (book, last_op_index, updated_at)
		 SELECT book, MAX(op_index), NOW()
		 FROM ledger.operations
		 GROUP BY book`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("rebuild: %w", err)
		}
	}
	return tx.Commit()
}
