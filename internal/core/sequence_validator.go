package core

import (
	"errors"
	"fmt"

	"PortfolioLedger/internal/date"
	"PortfolioLedger/internal/refdata"
)

// ErrSequence is returned when the transaction log is out of order.
var ErrSequence = errors.New("transaction log out of sequence")

// SequenceValidator checks that transaction indexes are unique and strictly
// increasing with the trade date. Gaps between indexes are tolerated and
// counted.
// Not thread-safe: only accessed from the replay loop.
type SequenceValidator struct {
	lastIndex int64
	lastDate  date.Date
	seen      bool
	metrics   *SequenceMetrics
}

func NewSequenceValidator() *SequenceValidator {
	return &SequenceValidator{metrics: NewSequenceMetrics()}
}

// ValidateSequence checks tx against the transaction validated before it.
func (sv *SequenceValidator) ValidateSequence(tx *refdata.Transaction) error {
	if !sv.seen {
		sv.seen = true
		sv.lastIndex, sv.lastDate = tx.Index, tx.TradeDate
		return nil
	}

	if tx.Index <= sv.lastIndex {
		sv.metrics.RecordOutOfOrder()
		return fmt.Errorf("%w: transaction #%d after #%d", ErrSequence, tx.Index, sv.lastIndex)
	}
	if tx.TradeDate.Before(sv.lastDate) {
		sv.metrics.RecordOutOfOrder()
		return fmt.Errorf("%w: transaction #%d traded %s before #%d traded %s",
			ErrSequence, tx.Index, tx.TradeDate, sv.lastIndex, sv.lastDate)
	}
	if tx.Index > sv.lastIndex+1 {
		sv.metrics.RecordGap(sv.lastIndex+1, tx.Index)
	}

	sv.lastIndex, sv.lastDate = tx.Index, tx.TradeDate
	return nil
}

// ValidateLog checks a whole log in order.
func (sv *SequenceValidator) ValidateLog(txs []refdata.Transaction) error {
	for i := range txs {
		if err := sv.ValidateSequence(&txs[i]); err != nil {
			return err
		}
	}
	return nil
}

// LastIndex returns the index of the last valid transaction.
func (sv *SequenceValidator) LastIndex() int64 { return sv.lastIndex }

func (sv *SequenceValidator) Metrics() *SequenceMetrics { return sv.metrics }

// --- Metrics ---

// SequenceMetrics tracks sequence validation stats.
type SequenceMetrics struct {
	gaps       int64
	missing    int64
	outOfOrder int64
}

func NewSequenceMetrics() *SequenceMetrics { return &SequenceMetrics{} }

// RecordGap counts a jump from the expected index to got.
func (m *SequenceMetrics) RecordGap(expected, got int64) {
	m.gaps++
	m.missing += got - expected
}

func (m *SequenceMetrics) RecordOutOfOrder() { m.outOfOrder++ }

func (m *SequenceMetrics) GetGaps() int64       { return m.gaps }
func (m *SequenceMetrics) GetMissing() int64    { return m.missing }
func (m *SequenceMetrics) GetOutOfOrder() int64 { return m.outOfOrder }
