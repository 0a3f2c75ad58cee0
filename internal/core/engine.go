package core

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"PortfolioLedger/internal/asset"
	"PortfolioLedger/internal/booking"
	"PortfolioLedger/internal/date"
	"PortfolioLedger/internal/event"
	"PortfolioLedger/internal/ledger"
	"PortfolioLedger/internal/refdata"

	"github.com/rs/zerolog"
)

// Engine is the single-threaded replay pipeline: validate the log, replay every
// transaction through the generator, run the scheduled items up to the replay
// end and verify the books. Any failure aborts the whole run.
type Engine struct {
	ctx      *LedgerContext
	gen      *AssetsGenerator
	hasher   *StateHasher
	sequence *SequenceValidator
	log      zerolog.Logger
}

// Result summarises a completed replay.
type Result struct {
	Transactions int
	End          date.Date
	Operations   map[string]int64 // Book name -> last operation index
	StateHash    string
	TrueUps      []booking.TrueUp
	Duration     time.Duration
}

func NewEngine(ctx *LedgerContext) *Engine {
	e := &Engine{
		ctx:      ctx,
		gen:      NewAssetsGenerator(ctx),
		hasher:   NewStateHasher(),
		sequence: NewSequenceValidator(),
		log:      ctx.Log,
	}
	ctx.Main.Subscribe(e.hasher.Observe)
	ctx.Tax.Subscribe(e.hasher.Observe)
	return e
}

// Context is the ledger the engine writes to.
func (e *Engine) Context() *LedgerContext { return e.ctx }

// Assets returns every lot and cash balance created by the replay.
func (e *Engine) Assets() []asset.Asset { return e.gen.Assets() }

// Generator exposes the lots and cash balances of the replay.
func (e *Engine) Generator() *AssetsGenerator { return e.gen }

// Run replays the transaction log of the reference data.
func (e *Engine) Run() (*Result, error) {
	start := time.Now()
	txs := e.ctx.Defs.Transactions()

	if err := e.sequence.ValidateLog(txs); err != nil {
		return nil, e.fail(err)
	}
	if gaps := e.sequence.Metrics().GetGaps(); gaps > 0 {
		e.log.Warn().Int64("gaps", gaps).Int64("missing", e.sequence.Metrics().GetMissing()).Msg("transaction indexes have gaps")
	}

	order := ReplayOrder(txs)
	end, err := e.replayEnd(order)
	if err != nil {
		return nil, e.fail(err)
	}

	for _, tx := range order {
		if err := e.gen.Apply(tx); err != nil {
			return nil, e.fail(fmt.Errorf("transaction #%d (%s %s): %w", tx.Index, tx.Type, tx.Instrument, err))
		}
	}
	if err := e.gen.Finish(end); err != nil {
		return nil, e.fail(err)
	}
	if err := e.verify(end); err != nil {
		return nil, e.fail(err)
	}

	res := &Result{
		Transactions: len(order),
		End:          end,
		Operations:   map[string]int64{e.ctx.Main.Name: e.ctx.Main.LastOperation(), e.ctx.Tax.Name: e.ctx.Tax.LastOperation()},
		StateHash:    e.hasher.Hex(),
		TrueUps:      e.gen.TrueUps(),
		Duration:     time.Since(start),
	}
	if e.ctx.Metrics != nil {
		e.ctx.Metrics.ReplayDuration.Observe(res.Duration.Seconds())
	}
	e.log.Info().
		Int("transactions", res.Transactions).
		Str("end", end.String()).
		Int64("main_operations", res.Operations[e.ctx.Main.Name]).
		Int64("tax_operations", res.Operations[e.ctx.Tax.Name]).
		Str("state_hash", res.StateHash).
		Dur("duration", res.Duration).
		Msg("replay complete")
	return res, nil
}

// ReplayOrder returns the transactions sorted by their stamp: settlement date,
// then index.
func ReplayOrder(txs []refdata.Transaction) []*refdata.Transaction {
	out := make([]*refdata.Transaction, len(txs))
	for i := range txs {
		out[i] = &txs[i]
	}
	sort.SliceStable(out, func(i, j int) bool { return TxStamp(out[i]).Less(TxStamp(out[j])) })
	return out
}

// replayEnd is the configured end, or 31 Dec of the last settlement's year.
func (e *Engine) replayEnd(order []*refdata.Transaction) (date.Date, error) {
	end := e.ctx.Settings.ReplayEnd
	if len(order) == 0 {
		return end, nil
	}
	last := TxStamp(order[len(order)-1]).Date
	if end.IsZero() {
		return date.EndOfYear(last), nil
	}
	if end.Before(last) {
		return end, fmt.Errorf("replay end %s is before the last settlement %s", end, last)
	}
	return end, nil
}

// verify checks both books are zero-sum and the cash balances match the main
// book.
func (e *Engine) verify(end date.Date) error {
	t := event.EndOf(end)
	for _, b := range []*ledger.Book{e.ctx.Main, e.ctx.Tax} {
		if err := b.CheckBalance(t); err != nil {
			return err
		}
		v := ledger.NewInvariantValidator(b)
		for _, a := range b.Filter(isCash) {
			if err := v.ValidateNonNegative(a.Key, t); err != nil {
				return err
			}
		}
	}
	return e.gen.ReconcileCash(end)
}

func isCash(k ledger.AccountKey) bool {
	return k.Type == ledger.Assets && k.AssetType == refdata.AssetTypeCash
}

// fail logs and counts the error that aborts the run.
func (e *Engine) fail(err error) error {
	kind := ErrorKind(err)
	if e.ctx.Metrics != nil {
		e.ctx.Metrics.ReplayErrors.WithLabelValues(kind).Inc()
		var iv *ledger.InvariantViolation
		if errors.As(err, &iv) {
			e.ctx.Metrics.CommitFailures.WithLabelValues(iv.Book).Inc()
		}
	}
	e.log.Error().Err(err).Str("kind", kind).Msg("replay aborted")
	return err
}

// ErrorKind classifies a replay error for logs and metrics.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ledger.ErrInvariantViolation):
		return "invariant"
	case errors.Is(err, refdata.ErrNotFound):
		return "reference_data"
	case errors.Is(err, refdata.ErrInvalid):
		return "invalid_data"
	case errors.Is(err, ErrInsufficientLots):
		return "insufficient_lots"
	case errors.Is(err, ErrInsufficientCash):
		return "insufficient_cash"
	case errors.Is(err, ErrSequence):
		return "sequence"
	case errors.Is(err, asset.ErrNotSupported):
		return "not_supported"
	}
	return "other"
}
