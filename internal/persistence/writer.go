package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"PortfolioLedger/internal/ledger"
	"PortfolioLedger/internal/refdata"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ExportWriter writes committed ledger operations to Postgres using multi-row
// INSERTs. The export is a read model: every replay replaces it.
type ExportWriter struct {
	db *sql.DB
}

// OperationRow represents a row in ledger.operations
type OperationRow struct {
	Book        string
	Index       int64
	Date        time.Time
	TxIndex     int64
	Rank        int16
	Stamp       string
	Description string
}

// EntryRow represents a row in ledger.entries
type EntryRow struct {
	Book           string
	OperationIndex int64
	Position       int
	AccountPath    string
	AccountType    string
	AssetType      string // Empty without asset dimension
	Portfolio      string
	Currency       string
	Date           time.Time
	Amount         decimal.Decimal
}

// RunRow represents a row in ledger.runs
type RunRow struct {
	RunID          uuid.UUID
	FinishedAt     time.Time
	ReplayEnd      time.Time
	Transactions   int
	MainOperations int64
	TaxOperations  int64
	StateHash      string
}

func NewExportWriter(db *sql.DB) *ExportWriter {
	return &ExportWriter{db: db}
}

// DB returns the underlying connection pool.
func (w *ExportWriter) DB() *sql.DB { return w.db }

// RowsOf flattens an operation into its export rows.
func RowsOf(op ledger.Operation) (OperationRow, []EntryRow) {
	row := OperationRow{
		Book:        op.Book,
		Index:       op.Index,
		Date:        op.Stamp.Date.Time(),
		TxIndex:     op.Stamp.Index,
		Rank:        int16(op.Stamp.Rank),
		Stamp:       op.Stamp.String(),
		Description: op.Description(),
	}
	entries := make([]EntryRow, len(op.Entries))
	for i, e := range op.Entries {
		at := ""
		if e.Key.AssetType != refdata.AssetTypeNone {
			at = e.Key.AssetType.String()
		}
		entries[i] = EntryRow{
			Book:           op.Book,
			OperationIndex: op.Index,
			Position:       i,
			AccountPath:    e.Key.AccountPath(),
			AccountType:    e.Key.Type.String(),
			AssetType:      at,
			Portfolio:      e.Key.Portfolio,
			Currency:       e.Key.Currency,
			Date:           e.Date.Time(),
			Amount:         e.Amount,
		}
	}
	return row, entries
}

// Reset empties the export ahead of a new replay.
func (w *ExportWriter) Reset(ctx context.Context) error {
	_, err := w.db.ExecContext(ctx, `TRUNCATE ledger.entries, ledger.operations`)
	return err
}

// WriteOperationBatch writes a batch of operations using multi-row INSERT.
func (w *ExportWriter) WriteOperationBatch(ctx context.Context, tx *sql.Tx, ops []OperationRow) error {
	if len(ops) == 0 {
		return nil
	}

	query := `INSERT INTO ledger.operations
		(book, op_index, op_date, tx_index, rank, stamp, description)
		VALUES `

	values := make([]string, 0, len(ops))
	args := make([]any, 0, len(ops)*7)

	for i, o := range ops {
		base := i * 7
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7,
		))
		args = append(args, o.Book, o.Index, o.Date, o.TxIndex, o.Rank, o.Stamp, o.Description)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (book, op_index) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// WriteEntryBatch writes a batch of account entries to ledger.entries.
func (w *ExportWriter) WriteEntryBatch(ctx context.Context, tx *sql.Tx, entries []EntryRow) error {
	if len(entries) == 0 {
		return nil
	}

	query := `INSERT INTO ledger.entries
		(book, op_index, position, account_path, account_type, asset_type, portfolio, currency, entry_date, amount)
		VALUES `

	values := make([]string, 0, len(entries))
	args := make([]any, 0, len(entries)*10)

	for i, e := range entries {
		base := i * 10
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10,
		))
		args = append(args,
			e.Book, e.OperationIndex, e.Position, e.AccountPath, e.AccountType,
			e.AssetType, e.Portfolio, e.Currency, e.Date, e.Amount,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (book, op_index, position) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// WriteRun records a finished replay.
func (w *ExportWriter) WriteRun(ctx context.Context, r RunRow) error {
	_, err := w.db.ExecContext(ctx, `
		INSERT INTO ledger.runs
			(run_id, finished_at, replay_end, transactions, main_operations, tax_operations, state_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, r.RunID, r.FinishedAt, r.ReplayEnd, r.Transactions, r.MainOperations, r.TaxOperations, r.StateHash)
	return err
}

// LatestRun returns the last recorded replay, nil when there is none.
func (w *ExportWriter) LatestRun(ctx context.Context) (*RunRow, error) {
	var r RunRow
	err := w.db.QueryRowContext(ctx, `
		SELECT run_id, finished_at, replay_end, transactions, main_operations, tax_operations, state_hash
		FROM ledger.runs
		ORDER BY finished_at DESC
		LIMIT 1
	`).Scan(&r.RunID, &r.FinishedAt, &r.ReplayEnd, &r.Transactions, &r.MainOperations, &r.TaxOperations, &r.StateHash)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}
