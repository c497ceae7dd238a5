package model

import (
	"sort"
	"time"
)

// DayLayout is the format of DayCount.Date.
const DayLayout = "2006-01-02"

// DayCount is the number of events seen on one UTC calendar day.
type DayCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// DayCounts is ordered ascending by Date with unique dates.
type DayCounts []DayCount

// DayKey returns the UTC calendar day of t. The zero time maps to the Unix epoch.
func DayKey(t time.Time) string {
	if t.IsZero() {
		t = time.Unix(0, 0)
	}
	return t.UTC().Format(DayLayout)
}

// Add returns a copy of c with day incremented by n, sorted ascending.
func (c DayCounts) Add(day string, n int64) DayCounts {
	byDay := make(map[string]int64, len(c)+1)
	for _, dc := range c {
		byDay[dc.Date] += dc.Count
	}
	byDay[day] += n

	out := make(DayCounts, 0, len(byDay))
	for d, n := range byDay {
		out = append(out, DayCount{Date: d, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// Get returns the count for day, or 0.
func (c DayCounts) Get(day string) int64 {
	for _, dc := range c {
		if dc.Date == day {
			return dc.Count
		}
	}
	return 0
}
