package timeline

import (
	"fmt"
	"time"
)

// Window is the half-open time interval [From, To).
type Window struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && t.Before(w.To)
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s)", w.From.Format(time.RFC3339), w.To.Format(time.RFC3339))
}

// Slots returns count contiguous windows of width step in chronological
// order. The first window starts at origin, or, when reverse is set, the
// last one does.
func Slots(origin time.Time, count int, step time.Duration, reverse bool) []Window {
	if count <= 0 || step <= 0 {
		return nil
	}

	start := origin
	if reverse {
		start = origin.Add(-step * time.Duration(count-1))
	}

	windows := make([]Window, count)
	for i := range windows {
		from := start.Add(step * time.Duration(i))
		windows[i] = Window{From: from, To: from.Add(step)}
	}
	return windows
}

// HoursPerDay is the number of windows of a summarized day.
const HoursPerDay = 24

// Day returns the 24 one-hour windows starting at midnight.
func Day(midnight time.Time) []Window {
	return Slots(midnight, HoursPerDay, time.Hour, false)
}
