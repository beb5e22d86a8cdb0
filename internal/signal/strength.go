package signal

import (
	"cmp"
	"math"
	"slices"
)

// MinDbmForRootScore is the weakest strength used by exposure scoring. Power
// that cannot be expressed in dBm is reported one below it.
const MinDbmForRootScore = -140

// Valid strength ranges in dBm, both bounds inclusive.
const (
	GSMMinDbm   = -113
	GSMMaxDbm   = -51
	WCDMAMinDbm = -120
	WCDMAMaxDbm = -24
	LTEMinDbm   = -140 // RSRP
	LTEMaxDbm   = -43
	NRMinDbm    = -140
	NRMaxDbm    = -44
	CDMAMinDbm  = -120
	CDMAMaxDbm  = 0
	WiFiMinDbm  = -150
	WiFiMaxDbm  = -1
	BTMinDbm    = -150
	BTMaxDbm    = -1
)

// Range returns the valid strength range of the reading. For LTE the range
// depends on whether the strength came from RSSI or RSRP.
func (r Reading) Range() (minDbm, maxDbm int) {
	switch r.Technology {
	case WiFi:
		return WiFiMinDbm, WiFiMaxDbm
	case Bluetooth:
		return BTMinDbm, BTMaxDbm
	case GSM:
		return GSMMinDbm, GSMMaxDbm
	case WCDMA:
		return WCDMAMinDbm, WCDMAMaxDbm
	case LTE:
		if r.LTE != nil && r.LTE.RSSIValid() {
			return GSMMinDbm, GSMMaxDbm
		}
		return LTEMinDbm, LTEMaxDbm
	case NewRadio:
		return NRMinDbm, NRMaxDbm
	case CDMA:
		return CDMAMinDbm, CDMAMaxDbm
	default:
		return 0, -1
	}
}

// InRange reports whether Dbm lies inside the technology's valid range.
func (r Reading) InRange() bool {
	minDbm, maxDbm := r.Range()
	return minDbm <= r.Dbm && r.Dbm <= maxDbm
}

// Normalized returns r with an out of range strength replaced by one below
// the range minimum. Applying it twice is the same as applying it once.
func (r Reading) Normalized() Reading {
	if !r.InRange() {
		minDbm, _ := r.Range()
		r.Dbm = minDbm - 1
	}
	return r
}

// Compare orders readings by strength. In range readings always rank above
// out of range ones, and two out of range readings compare equal.
func Compare(a, b Reading) int {
	aIn, bIn := a.InRange(), b.InRange()
	switch {
	case aIn && bIn:
		return cmp.Compare(a.Dbm, b.Dbm)
	case aIn:
		return 1
	case bIn:
		return -1
	default:
		return 0
	}
}

// SortByStrength sorts readings strongest first. The sort is stable.
func SortByStrength(readings []Reading) {
	slices.SortStableFunc(readings, func(a, b Reading) int {
		return Compare(b, a)
	})
}

// DbmToMilliWatt converts a strength in dBm to a power in mW.
func DbmToMilliWatt(dbm int) float64 {
	return math.Pow(10, float64(dbm)/10)
}

// MilliWattToDbm converts a power in mW to the nearest dBm. Powers that are
// not strictly positive map to MinDbmForRootScore-1.
func MilliWattToDbm(mw float64) int {
	if !(mw > 0) || math.IsInf(mw, 0) {
		return MinDbmForRootScore - 1
	}
	// half rounds up, toward positive infinity
	return int(math.Floor(10*math.Log10(mw) + 0.5))
}
