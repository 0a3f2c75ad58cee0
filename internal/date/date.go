package date

import (
	"encoding/json"
	"fmt"
	"time"
)

const readDateFormat = "2006-1-2" // lenient read format, allows single-digit month/day

// Format is the ISO-8601 layout used to print dates.
const Format = "2006-01-02"

// Date is a calendar day. The zero value is not a valid day and reports IsZero.
type Date struct {
	y int
	m time.Month
	d int
}

// New returns a normalized Date for the given year, month, and day.
func New(year int, month time.Month, day int) Date {
	d := Date{year, month, day}
	d.y, d.m, d.d = d.time().Date()
	return d
}

// FromTime truncates t to its calendar day in t's location.
func FromTime(t time.Time) Date { return New(t.Date()) }

func (d Date) time() time.Time { return time.Date(d.y, d.m, d.d, 0, 0, 0, 0, time.UTC) }

// Time returns midnight UTC of the day.
func (d Date) Time() time.Time { return d.time() }

func (d Date) Year() int          { return d.y }
func (d Date) Month() time.Month  { return d.m }
func (d Date) Day() int           { return d.d }
func (d Date) IsZero() bool       { return d.y == 0 && d.m == 0 && d.d == 0 }
func (d Date) Before(x Date) bool { return d.Compare(x) < 0 }
func (d Date) After(x Date) bool  { return d.Compare(x) > 0 }
func (d Date) String() string     { return d.time().Format(Format) }

// Compare returns -1, 0 or +1 depending on whether d is before, equal to or after x.
func (d Date) Compare(x Date) int {
	switch {
	case d.y != x.y:
		return cmp(d.y, x.y)
	case d.m != x.m:
		return cmp(int(d.m), int(x.m))
	default:
		return cmp(d.d, x.d)
	}
}

func cmp(a, b int) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

// Add returns the date i days after d.
func (d Date) Add(i int) Date { return New(d.y, d.m, d.d+i) }

// AddMonths shifts d by n months, clamping the day to the target month's length.
// With endOfMonth set, a month-end input always lands on the target month-end.
func (d Date) AddMonths(n int, endOfMonth bool) Date {
	first := New(d.y, d.m+time.Month(n), 1)
	last := EndOfMonth(first)
	if endOfMonth && d == EndOfMonth(d) {
		return last
	}
	if d.d > last.d {
		return last
	}
	return New(first.y, first.m, d.d)
}

// DaysUntil returns the number of calendar days from d to x (negative if x is before d).
func (d Date) DaysUntil(x Date) int {
	return int(x.time().Sub(d.time()).Hours() / 24)
}

// EndOfMonth returns the last day of d's month.
func EndOfMonth(d Date) Date { return New(d.y, d.m+1, 0) }

// EndOfYear returns 31 December of d's year.
func EndOfYear(d Date) Date { return New(d.y, time.December, 31) }

// StartOfYear returns 1 January of d's year.
func StartOfYear(d Date) Date { return New(d.y, time.January, 1) }

// IsEndOfMonth reports whether d is the last day of its month.
func (d Date) IsEndOfMonth() bool { return d == EndOfMonth(d) }

// IsLeap reports whether d's year is a leap year.
func (d Date) IsLeap() bool {
	y := d.y
	return y%4 == 0 && (y%100 != 0 || y%400 == 0)
}

// MonthEnds returns every month-end in (from, to], in order.
func MonthEnds(from, to Date) []Date {
	var out []Date
	for m := EndOfMonth(from); !m.After(to); m = EndOfMonth(m.Add(1)) {
		if m.After(from) {
			out = append(out, m)
		}
	}
	return out
}

// Min returns the earlier of a and b.
func Min(a, b Date) Date {
	if a.Before(b) {
		return a
	}
	return b
}

// Max returns the later of a and b.
func Max(a, b Date) Date {
	if a.After(b) {
		return a
	}
	return b
}

// Parse parses a Date from a string. It is lenient and accepts formats like "2025-7-1".
func Parse(str string) (Date, error) {
	on, err := time.Parse(readDateFormat, str)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q want format %q: %w", str, readDateFormat, err)
	}
	return New(on.Date()), nil
}

// MustParse is like Parse but panics on error.
func MustParse(str string) Date {
	d, err := Parse(str)
	if err != nil {
		panic(err.Error())
	}
	return d
}

func (d *Date) UnmarshalJSON(bytes []byte) error {
	var str string
	if err := json.Unmarshal(bytes, &str); err != nil {
		return err
	}
	if str == "" {
		*d = Date{}
		return nil
	}
	p, err := Parse(str)
	if err != nil {
		return err
	}
	*d = p
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return json.Marshal("")
	}
	return json.Marshal(d.String())
}

var _ json.Marshaler = Date{}
var _ json.Unmarshaler = (*Date)(nil)
