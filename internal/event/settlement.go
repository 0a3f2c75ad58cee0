package event

import (
	fin "PortfolioLedger/internal/math"

	"github.com/shopspring/decimal"
)

// Settlement is a futures mark-to-market between two settlement prices.
// The final settlement at maturity closes the position.
type Settlement struct {
	Header
	Units      decimal.Decimal // Position settled
	Multiplier decimal.Decimal
	Currency   string
	From       decimal.Decimal
	To         decimal.Decimal
	Margin     decimal.Decimal // Variation margin, positive = received
	FeeShare   decimal.Decimal // Part of the deferred fee recognised with this settlement
	Final      bool
}

func (s *Settlement) Kind() Kind { return KindSettlement }

func (s *Settlement) Count() decimal.Decimal {
	if s.Final {
		return s.Units.Neg()
	}
	return decimal.Zero
}

func (s *Settlement) Amount() decimal.Decimal { return s.Margin }

// Recalculate rederives the margin from a new price pair.
func (s *Settlement) Recalculate(from, to, feeShare decimal.Decimal) {
	s.From, s.To, s.FeeShare = from, to, feeShare
	s.Margin = fin.VariationMargin(s.Units, s.Multiplier, from, to, fin.Rounder(s.Currency))
}
