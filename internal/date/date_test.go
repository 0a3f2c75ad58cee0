package date_test

import (
	"PortfolioLedger/internal/date"
	"encoding/json"
	"testing"
	"time"
)

func TestAddMonths(t *testing.T) {
	tests := []struct {
		name string
		in   date.Date
		n    int
		eom  bool
		want date.Date
	}{
		{"plain", date.New(2024, time.March, 15), 6, false, date.New(2024, time.September, 15)},
		{"clamp", date.New(2024, time.January, 31), 1, false, date.New(2024, time.February, 29)},
		{"eom keeps month end", date.New(2024, time.February, 29), 1, true, date.New(2024, time.March, 31)},
		{"no eom", date.New(2024, time.February, 29), 1, false, date.New(2024, time.March, 29)},
		{"backwards", date.New(2025, time.June, 30), -12, true, date.New(2024, time.June, 30)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.in.AddMonths(tc.n, tc.eom); got != tc.want {
				t.Errorf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestMonthEnds(t *testing.T) {
	got := date.MonthEnds(date.New(2024, time.January, 31), date.New(2024, time.April, 15))
	want := []date.Date{date.New(2024, time.February, 29), date.New(2024, time.March, 31)}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestDaysUntil(t *testing.T) {
	a := date.New(2024, time.January, 1)
	b := date.New(2025, time.January, 1)
	if got := a.DaysUntil(b); got != 366 {
		t.Errorf("got %d, want 366", got)
	}
	if got := b.DaysUntil(a); got != -366 {
		t.Errorf("got %d, want -366", got)
	}
}

func TestCompare(t *testing.T) {
	a := date.MustParse("2024-3-1")
	b := date.MustParse("2024-03-02")
	if a.Compare(b) != -1 || b.Compare(a) != 1 || a.Compare(a) != 0 {
		t.Errorf("unexpected compare results")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	in := date.New(2024, time.December, 31)
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `"2024-12-31"` {
		t.Errorf("got %s", data)
	}
	var out date.Date
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if out != in {
		t.Errorf("got %s, want %s", out, in)
	}
}
