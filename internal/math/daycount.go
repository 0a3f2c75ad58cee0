package math

import (
	"fmt"
	"strings"

	"PortfolioLedger/internal/date"
)

// DayCount is a day-count convention for accrued interest.
type DayCount uint8

const (
	ActActICMA DayCount = iota
	Act360
	Act365
	Thirty360
)

func (dc DayCount) String() string {
	switch dc {
	case ActActICMA:
		return "ACT/ACT"
	case Act360:
		return "ACT/360"
	case Act365:
		return "ACT/365"
	case Thirty360:
		return "30/360"
	default:
		return "unknown"
	}
}

// ParseDayCount maps the usual market spellings to a DayCount.
func ParseDayCount(s string) (DayCount, error) {
	switch strings.ToUpper(strings.ReplaceAll(s, " ", "")) {
	case "ACT/ACT", "ACT/ACTICMA", "ACTUAL/ACTUAL", "":
		return ActActICMA, nil
	case "ACT/360", "ACTUAL/360":
		return Act360, nil
	case "ACT/365", "ACT/365F", "ACTUAL/365":
		return Act365, nil
	case "30/360", "30E/360":
		return Thirty360, nil
	}
	return 0, fmt.Errorf("unknown day count convention %q", s)
}

// AccrualFraction returns the share of a coupon period's interest accrued at d, as
// a fraction of the annual rate (ACT/360: days/360) or, for ACT/ACT ICMA, already
// divided by the frequency so that a full period yields 1/frequency.
func (dc DayCount) AccrualFraction(periodStart, d, periodEnd date.Date, frequency int) float64 {
	if !d.After(periodStart) {
		return 0
	}
	if d.After(periodEnd) {
		d = periodEnd
	}
	switch dc {
	case Act360:
		return float64(periodStart.DaysUntil(d)) / 360
	case Act365:
		return float64(periodStart.DaysUntil(d)) / 365
	case Thirty360:
		return float64(days30360(periodStart, d)) / 360
	default:
		total := periodStart.DaysUntil(periodEnd)
		if total <= 0 || frequency <= 0 {
			return 0
		}
		return float64(periodStart.DaysUntil(d)) / float64(total) / float64(frequency)
	}
}

func days30360(a, b date.Date) int {
	d1, d2 := a.Day(), b.Day()
	if d1 == 31 {
		d1 = 30
	}
	if d2 == 31 && d1 == 30 {
		d2 = 30
	}
	return 360*(b.Year()-a.Year()) + 30*(int(b.Month())-int(a.Month())) + d2 - d1
}

func (dc DayCount) MarshalText() ([]byte, error) { return []byte(dc.String()), nil }

func (dc *DayCount) UnmarshalText(b []byte) error {
	v, err := ParseDayCount(string(b))
	if err != nil {
		return err
	}
	*dc = v
	return nil
}
