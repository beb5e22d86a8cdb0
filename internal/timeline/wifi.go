package timeline

import (
	"strings"

	"github.com/roman-kulish/signal-exposure/internal/signal"
)

// bssidPart is the number of characters of a BSSID compared to detect the
// virtual interfaces of one access point.
const bssidPart = 14

// WiFiGroup is a physical access point: the virtual interfaces it exposes
// share the frequency and all but the first or last byte of their BSSID.
type WiFiGroup struct {
	// Leader is the strongest member. Its SSID is the first non-empty SSID of
	// the group.
	Leader  signal.Reading
	Members []signal.Reading
}

// SameAccessPoint reports whether two Wi-Fi readings come from the same
// physical access point.
func SameAccessPoint(a, b signal.Reading) bool {
	if a.WiFi == nil || b.WiFi == nil || a.WiFi.Frequency != b.WiFi.Frequency {
		return false
	}

	x, y := strings.ToLower(a.WiFi.BSSID), strings.ToLower(b.WiFi.BSSID)
	if len(x) < bssidPart+3 || len(y) < bssidPart+3 {
		return x != "" && x == y
	}
	return x[:bssidPart] == y[:bssidPart] || x[len(x)-bssidPart:] == y[len(y)-bssidPart:]
}

// GroupWiFi groups readings by physical access point. readings must be
// sorted strongest first; groups are returned in the same order.
func GroupWiFi(readings []signal.Reading) []WiFiGroup {
	var groups []WiFiGroup

next:
	for _, r := range readings {
		for i := range groups {
			if SameAccessPoint(groups[i].Members[0], r) {
				groups[i].Members = append(groups[i].Members, r)
				continue next
			}
		}
		groups = append(groups, WiFiGroup{Members: []signal.Reading{r}})
	}

	for i := range groups {
		groups[i].Leader = leaderOf(groups[i].Members)
	}
	return groups
}

func leaderOf(members []signal.Reading) signal.Reading {
	leader := members[0]
	if leader.WiFi == nil {
		return leader
	}

	info := *leader.WiFi
	for _, m := range members {
		if m.WiFi != nil && m.WiFi.SSID != "" {
			info.SSID = m.WiFi.SSID
			break
		}
	}
	leader.WiFi = &info
	return leader
}
