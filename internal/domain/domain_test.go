package domain

import (
	"testing"
	"time"
)

func TestSprintOverlaps(t *testing.T) {
	day := func(n int) time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n) }
	s := Sprint{StartDate: day(0), EndDate: day(14)}
	cases := []struct {
		name       string
		start, end time.Time
		want       bool
	}{
		{"inside", day(2), day(5), true},
		{"straddles end", day(7), day(21), true},
		{"straddles start", day(-7), day(1), true},
		{"adjacent after", day(14), day(28), false},
		{"adjacent before", day(-14), day(0), false},
		{"covers", day(-1), day(15), true},
	}
	for _, c := range cases {
		if got := s.Overlaps(c.start, c.end); got != c.want {
			t.Errorf("%s: got %v want %v", c.name, got, c.want)
		}
	}
}
