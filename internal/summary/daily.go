package summary

import (
	"github.com/roman-kulish/signal-exposure/internal/signal"
	"github.com/roman-kulish/signal-exposure/internal/timeline"
)

// TopFiveSize is the number of signals kept per day.
const TopFiveSize = 5

// TopFiveOfDay merges the top five of every slot of a day into the five
// strongest distinct sources. A source seen in several slots keeps its
// strongest reading; sentinels never take part. Wi-Fi slots contribute group
// leaders whose BSSID may change from hour to hour, so Wi-Fi readings are
// merged per access point.
func TopFiveOfDay(tl timeline.Timeline) []signal.Reading {
	var merged []signal.Reading

	for _, slot := range tl {
		if slot == nil {
			continue
		}
	next:
		for _, r := range slot.TopFive() {
			if !r.IsValid() {
				continue
			}

			for i := range merged {
				if sameSource(r, merged[i]) {
					if signal.Compare(r, merged[i]) > 0 {
						merged[i] = r
					}
					continue next
				}
			}
			merged = append(merged, r)
		}
	}

	signal.SortByStrength(merged)
	if len(merged) > TopFiveSize {
		merged = merged[:TopFiveSize]
	}
	return merged
}

// sameSource reports whether a and b come from the same physical source: the
// same access point for Wi-Fi, the same antenna otherwise.
func sameSource(a, b signal.Reading) bool {
	if a.Technology != b.Technology {
		return false
	}
	if a.Technology == signal.WiFi {
		return timeline.SameAccessPoint(a, b)
	}
	return signal.IdentityOf(a).Fingerprint() == signal.IdentityOf(b).Fingerprint()
}

// sourceSet holds the sources of past top-5 records.
type sourceSet struct {
	antennas map[uint64]struct{}
	wifi     []signal.Reading
}

func newSourceSet() *sourceSet {
	return &sourceSet{antennas: make(map[uint64]struct{})}
}

func (s *sourceSet) add(r signal.Reading) {
	if r.Technology != signal.WiFi {
		s.antennas[signal.IdentityOf(r).Fingerprint()] = struct{}{}
		return
	}
	if !s.contains(r) {
		s.wifi = append(s.wifi, r)
	}
}

func (s *sourceSet) contains(r signal.Reading) bool {
	if r.Technology != signal.WiFi {
		_, ok := s.antennas[signal.IdentityOf(r).Fingerprint()]
		return ok
	}
	for _, known := range s.wifi {
		if timeline.SameAccessPoint(known, r) {
			return true
		}
	}
	return false
}

// DailyExposureDbm averages the power of a day over the slots holding real
// readings and converts it back to dBm. A day without any such slot yields
// the floor value signal.MinDbmForRootScore-1.
func DailyExposureDbm(tl timeline.Timeline) int {
	var sum float64
	var validHours int

	for _, slot := range tl {
		if slot == nil {
			continue
		}
		sum += slot.TotalMilliWatt()
		if slot.HasValidSignals() {
			validHours++
		}
	}

	if validHours == 0 {
		return signal.MinDbmForRootScore - 1
	}
	return signal.MilliWattToDbm(sum / float64(validHours))
}

// isNewSourceCandidate reports whether r can count as a new source. Cell
// towers are excluded: handovers make them look new all the time.
func isNewSourceCandidate(r signal.Reading) bool {
	return r.IsValid() && (r.Technology == signal.WiFi || r.Technology == signal.Bluetooth)
}
