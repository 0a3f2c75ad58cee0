package event

import (
	"fmt"
	"math"

	"PortfolioLedger/internal/date"
)

// Transaction index sentinels. IndexOpen sorts before every transaction of a day
// (flow payments), IndexClose after every transaction (valuations, settlements,
// period closes).
const (
	IndexOpen  int64 = -1
	IndexClose int64 = math.MaxInt64
)

// Rank orders events sharing the same (date, index).
type Rank int8

const (
	RankTransaction Rank = iota
	RankDividend
	RankCoupon
	RankRedemption
	RankAdjustment
	RankValuation
	RankSettlement
	RankTaxAccrual
	RankYearEnd
)

// Stamp is the position of an event on the ledger time axis.
type Stamp struct {
	Date  date.Date
	Index int64
	Rank  Rank
}

// Compare orders stamps by date, then index, then rank.
func (s Stamp) Compare(o Stamp) int {
	if c := s.Date.Compare(o.Date); c != 0 {
		return c
	}
	switch {
	case s.Index < o.Index:
		return -1
	case s.Index > o.Index:
		return 1
	case s.Rank < o.Rank:
		return -1
	case s.Rank > o.Rank:
		return 1
	}
	return 0
}

func (s Stamp) Less(o Stamp) bool { return s.Compare(o) < 0 }

func (s Stamp) String() string {
	switch s.Index {
	case IndexOpen:
		return s.Date.String() + "#open"
	case IndexClose:
		return fmt.Sprintf("%s#close/%d", s.Date, s.Rank)
	}
	return fmt.Sprintf("%s#%d", s.Date, s.Index)
}

// Direction decides whether a TimeArg includes the event sitting exactly at it.
type Direction uint8

const (
	UpToAndIncluding Direction = iota
	Before
)

// TimeArg selects an instant for as-of queries.
type TimeArg struct {
	Date      date.Date
	Index     int64
	Rank      Rank
	HasIndex  bool
	Direction Direction
}

// EndOf includes everything that happened on d.
func EndOf(d date.Date) TimeArg { return TimeArg{Date: d, Direction: UpToAndIncluding} }

// StartOf excludes everything that happened on d.
func StartOf(d date.Date) TimeArg { return TimeArg{Date: d, Direction: Before} }

// At includes transaction idx of day d.
func At(d date.Date, idx int64) TimeArg {
	return TimeArg{Date: d, Index: idx, HasIndex: true, Direction: UpToAndIncluding}
}

// Just stops right before transaction idx of day d.
func Just(d date.Date, idx int64) TimeArg {
	return TimeArg{Date: d, Index: idx, HasIndex: true, Direction: Before}
}

// Through includes the event at s.
func Through(s Stamp) TimeArg {
	return TimeArg{Date: s.Date, Index: s.Index, Rank: s.Rank, HasIndex: true, Direction: UpToAndIncluding}
}

// Prior excludes the event at s.
func Prior(s Stamp) TimeArg {
	return TimeArg{Date: s.Date, Index: s.Index, Rank: s.Rank, HasIndex: true, Direction: Before}
}

// Includes reports whether an event at s has happened as of t.
func (t TimeArg) Includes(s Stamp) bool {
	if c := s.Date.Compare(t.Date); c != 0 {
		return c < 0
	}
	if !t.HasIndex {
		return t.Direction == UpToAndIncluding
	}
	if c := s.Compare(Stamp{Date: s.Date, Index: t.Index, Rank: t.Rank}); c != 0 {
		return c < 0
	}
	return t.Direction == UpToAndIncluding
}

// key places t on the stamp axis: (date, index, rank, side).
func (t TimeArg) key() (date.Date, int64, Rank, int) {
	side := 0
	if t.Direction == UpToAndIncluding {
		side = 1
	}
	if !t.HasIndex {
		if t.Direction == Before {
			return t.Date, math.MinInt64, math.MinInt8, 0
		}
		return t.Date, math.MaxInt64, math.MaxInt8, 1
	}
	return t.Date, t.Index, t.Rank, side
}

// Compare orders two selectors along the time axis. A selector without index sits
// before (StartOf) or after (EndOf) every stamp of its day.
func (t TimeArg) Compare(o TimeArg) int {
	d1, i1, r1, s1 := t.key()
	d2, i2, r2, s2 := o.key()
	if c := d1.Compare(d2); c != 0 {
		return c
	}
	switch {
	case i1 != i2:
		if i1 < i2 {
			return -1
		}
		return 1
	case r1 != r2:
		if r1 < r2 {
			return -1
		}
		return 1
	case s1 != s2:
		if s1 < s2 {
			return -1
		}
		return 1
	}
	return 0
}

func (t TimeArg) Less(o TimeArg) bool { return t.Compare(o) < 0 }

func (t TimeArg) String() string {
	dir := "<="
	if t.Direction == Before {
		dir = "<"
	}
	if !t.HasIndex {
		return dir + t.Date.String()
	}
	return dir + Stamp{Date: t.Date, Index: t.Index, Rank: t.Rank}.String()
}
