package timeline

import (
	"github.com/roman-kulish/signal-exposure/internal/signal"
)

const (
	// buggyDbm is the strength some handsets report for neighbouring GSM and
	// WCDMA cells they do not actually measure.
	buggyDbm = -51

	// buggyThreshold is the number of such cells in one slot above which they
	// are considered bogus.
	buggyThreshold = 5

	topCount = 5
)

// Slot is the aggregated result of one window: every category holds the
// distinct antennas seen in the window, strongest first, or exactly one
// sentinel when none was seen.
type Slot struct {
	Window  Window
	Signals map[signal.Category][]signal.Reading

	// WiFiGroups is the Wi-Fi category grouped by physical access point.
	WiFiGroups []WiFiGroup

	valid      bool
	cumulative map[signal.Category]float64
	total      float64
	top        *signal.Reading
	topFive    []signal.Reading
}

// NewSlot builds a slot from the aggregated readings of each category. Empty
// categories receive the sentinel of the category.
func NewSlot(window Window, raw map[signal.Category][]signal.Reading) *Slot {
	s := &Slot{
		Window:     window,
		Signals:    make(map[signal.Category][]signal.Reading, len(signal.Categories)),
		cumulative: make(map[signal.Category]float64, len(signal.Categories)),
	}

	for _, c := range signal.Categories {
		readings := append([]signal.Reading(nil), raw[c]...)
		if c == signal.CategoryCellular {
			readings = removeBuggyCellular(readings)
		}
		if len(readings) == 0 {
			readings = []signal.Reading{signal.NewSentinel(c.Placeholder())}
		}
		signal.SortByStrength(readings)
		s.Signals[c] = readings

		for _, r := range readings {
			if r.IsValid() {
				s.valid = true
			}
		}
	}

	if !s.valid {
		return s
	}

	s.WiFiGroups = GroupWiFi(s.Signals[signal.CategoryWiFi])

	leaders := make([]signal.Reading, len(s.WiFiGroups))
	for i, g := range s.WiFiGroups {
		leaders[i] = g.Leader
	}

	s.cumulative[signal.CategoryWiFi] = cumulativePower(leaders)
	s.cumulative[signal.CategoryBluetooth] = cumulativePower(s.Signals[signal.CategoryBluetooth])
	s.cumulative[signal.CategoryCellular] = cumulativePower(s.Signals[signal.CategoryCellular])
	for _, c := range signal.Categories {
		s.total += s.cumulative[c]
	}

	// Wi-Fi takes part through its group leaders only, so the virtual
	// interfaces of one access point do not fill the top five.
	var candidates []signal.Reading
	candidates = append(candidates, s.Signals[signal.CategoryBluetooth]...)
	candidates = append(candidates, s.Signals[signal.CategoryCellular]...)
	candidates = append(candidates, leaders...)

	for _, r := range candidates {
		if r.IsValid() {
			s.topFive = append(s.topFive, r)
		}
	}
	signal.SortByStrength(s.topFive)
	if len(s.topFive) > 0 {
		top := s.topFive[0]
		s.top = &top
	}
	if len(s.topFive) > topCount {
		s.topFive = s.topFive[:topCount]
	}

	return s
}

// removeBuggyCellular drops unconnected GSM and WCDMA readings at exactly
// buggyDbm when a technology reports at least buggyThreshold of them.
func removeBuggyCellular(readings []signal.Reading) []signal.Reading {
	suspects := make(map[signal.Technology]int)
	for _, r := range readings {
		if isBuggySuspect(r) {
			suspects[r.Technology]++
		}
	}

	filtered := readings[:0:0]
	for _, r := range readings {
		if isBuggySuspect(r) && suspects[r.Technology] >= buggyThreshold {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered
}

func isBuggySuspect(r signal.Reading) bool {
	return (r.Technology == signal.GSM || r.Technology == signal.WCDMA) && r.Dbm == buggyDbm && !r.Connected
}

// cumulativePower sums the power of valid, in range readings.
func cumulativePower(readings []signal.Reading) float64 {
	var mw float64
	for _, r := range readings {
		if r.IsValid() && r.InRange() {
			mw += signal.DbmToMilliWatt(r.Dbm)
		}
	}
	return mw
}

// HasValidSignals reports whether at least one category holds a real reading.
func (s *Slot) HasValidSignals() bool {
	return s.valid
}

// CumulativeMilliWatt returns the summed power of a category in mW.
func (s *Slot) CumulativeMilliWatt(c signal.Category) float64 {
	return s.cumulative[c]
}

// TotalMilliWatt returns the summed power of the slot in mW.
func (s *Slot) TotalMilliWatt() float64 {
	return s.total
}

// TotalDbm returns the summed power of the slot in dBm.
func (s *Slot) TotalDbm() int {
	return signal.MilliWattToDbm(s.total)
}

// TopSignal returns the strongest real reading of the slot.
func (s *Slot) TopSignal() (signal.Reading, bool) {
	if s.top == nil {
		return signal.Reading{}, false
	}
	return *s.top, true
}

// TopFive returns up to five of the strongest real readings of the slot,
// strongest first. Wi-Fi access points are represented by their group leader.
func (s *Slot) TopFive() []signal.Reading {
	return s.topFive
}

// Timeline is one slot per requested window, in request order.
type Timeline []*Slot
