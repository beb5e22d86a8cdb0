package signal

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

const keySeparator = "\x1f"

// AntennaKey identifies a physical antenna for one technology. Two readings
// with equal keys are observations of the same antenna.
type AntennaKey struct {
	Technology Technology
	canonical  string
}

func (k AntennaKey) String() string {
	return k.Technology.String() + keySeparator + k.canonical
}

// Fingerprint returns a 64-bit hash of the key, suitable as a set or map key.
func (k AntennaKey) Fingerprint() uint64 {
	return xxhash.Sum64String(k.String())
}

type keyField struct {
	name  string
	value func(Reading) string

	// groupOnly fields take part in grouping within a window, but not in
	// identity comparisons across windows.
	groupOnly bool
}

func itoa(v int) string { return strconv.Itoa(v) }

func cellFields[T any](get func(Reading) *T, cell func(*T) Cell) []keyField {
	return []keyField{
		{name: "type", value: func(r Reading) string { return itoa(cell(get(r)).Type) }},
		{name: "mnc", value: func(r Reading) string { return itoa(cell(get(r)).MNC) }},
		{name: "mcc", value: func(r Reading) string { return itoa(cell(get(r)).MCC) }},
	}
}

// keyFields is the identity tuple of every technology, in grouping order.
var keyFields = map[Technology][]keyField{
	WiFi: {
		{name: "ssid", value: func(r Reading) string { return r.WiFi.SSID }},
		{name: "bssid", value: func(r Reading) string { return strings.ToLower(r.WiFi.BSSID) }},
		{name: "frequency", value: func(r Reading) string { return itoa(r.WiFi.Frequency) }},
	},
	Bluetooth: {
		{name: "name", value: func(r Reading) string { return r.Bluetooth.Name }},
		{name: "alias", value: func(r Reading) string { return r.Bluetooth.Alias }, groupOnly: true},
		{name: "address", value: func(r Reading) string { return strings.ToLower(r.Bluetooth.Address) }},
		{name: "deviceClass", value: func(r Reading) string { return itoa(r.Bluetooth.DeviceClass) }},
		{name: "deviceType", value: func(r Reading) string { return itoa(r.Bluetooth.DeviceType) }},
	},
	GSM: append(cellFields(func(r Reading) *GSMInfo { return r.GSM }, func(g *GSMInfo) Cell { return g.Cell }),
		keyField{name: "cid", value: func(r Reading) string { return itoa(r.GSM.CID) }},
		keyField{name: "lac", value: func(r Reading) string { return itoa(r.GSM.LAC) }},
		keyField{name: "arfcn", value: func(r Reading) string { return itoa(r.GSM.ARFCN) }},
		keyField{name: "bsic", value: func(r Reading) string { return itoa(r.GSM.BSIC) }},
	),
	WCDMA: append(cellFields(func(r Reading) *WCDMAInfo { return r.WCDMA }, func(w *WCDMAInfo) Cell { return w.Cell }),
		keyField{name: "ucid", value: func(r Reading) string { return itoa(r.WCDMA.UCID) }},
		keyField{name: "lac", value: func(r Reading) string { return itoa(r.WCDMA.LAC) }},
		keyField{name: "psc", value: func(r Reading) string { return itoa(r.WCDMA.PSC) }},
		keyField{name: "uarfcn", value: func(r Reading) string { return itoa(r.WCDMA.UARFCN) }},
	),
	LTE: append(cellFields(func(r Reading) *LTEInfo { return r.LTE }, func(l *LTEInfo) Cell { return l.Cell }),
		keyField{name: "eci", value: func(r Reading) string { return itoa(r.LTE.ECI) }},
		keyField{name: "pci", value: func(r Reading) string { return itoa(r.LTE.PCI) }},
		keyField{name: "tac", value: func(r Reading) string { return itoa(r.LTE.TAC) }},
		keyField{name: "earfcn", value: func(r Reading) string { return itoa(r.LTE.EARFCN) }},
		keyField{name: "bandwidth", value: func(r Reading) string { return itoa(r.LTE.Bandwidth) }},
	),
	NewRadio: append(cellFields(func(r Reading) *NRInfo { return r.NewRadio }, func(n *NRInfo) Cell { return n.Cell }),
		keyField{name: "nci", value: func(r Reading) string { return strconv.FormatInt(r.NewRadio.NCI, 10) }},
		keyField{name: "nrarfcn", value: func(r Reading) string { return itoa(r.NewRadio.NRARFCN) }},
		keyField{name: "pci", value: func(r Reading) string { return itoa(r.NewRadio.PCI) }},
		keyField{name: "tac", value: func(r Reading) string { return itoa(r.NewRadio.TAC) }},
	),
	CDMA: {
		{name: "type", value: func(r Reading) string { return itoa(r.CDMA.Type) }},
		{name: "networkId", value: func(r Reading) string { return itoa(r.CDMA.NetworkID) }},
		{name: "systemId", value: func(r Reading) string { return itoa(r.CDMA.SystemID) }},
		{name: "baseStationId", value: func(r Reading) string { return itoa(r.CDMA.BaseStationID) }},
		{name: "stationLatitude", value: func(r Reading) string { return itoa(r.CDMA.StationLatitude) }},
		{name: "stationLongitude", value: func(r Reading) string { return itoa(r.CDMA.StationLongitude) }},
	},
}

// KeyFields returns the names of the identity tuple of tech, in order.
func KeyFields(tech Technology) []string {
	fields := keyFields[tech]
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.name
	}
	return names
}

func buildKey(r Reading, includeGroupOnly bool) AntennaKey {
	fields, ok := keyFields[r.Technology]
	if !ok || !r.HasPayload() {
		return AntennaKey{Technology: r.Technology}
	}

	var sb strings.Builder
	var n int
	for _, f := range fields {
		if f.groupOnly && !includeGroupOnly {
			continue
		}
		if n > 0 {
			sb.WriteString(keySeparator)
		}
		sb.WriteString(f.value(r))
		n++
	}

	return AntennaKey{Technology: r.Technology, canonical: sb.String()}
}

// KeyOf returns the grouping key of r used to merge readings within a window.
func KeyOf(r Reading) AntennaKey {
	return buildKey(r, true)
}

// IdentityOf returns the key used to compare readings across windows and days.
// It differs from KeyOf only in leaving out user-editable fields such as the
// Bluetooth alias.
func IdentityOf(r Reading) AntennaKey {
	return buildKey(r, false)
}

// SameAntenna reports whether a and b were observed on the same antenna.
func SameAntenna(a, b Reading) bool {
	return IdentityOf(a) == IdentityOf(b)
}

// HasPayload reports whether the payload matching Technology is set.
func (r Reading) HasPayload() bool {
	switch r.Technology {
	case WiFi:
		return r.WiFi != nil
	case Bluetooth:
		return r.Bluetooth != nil
	case GSM:
		return r.GSM != nil
	case WCDMA:
		return r.WCDMA != nil
	case LTE:
		return r.LTE != nil
	case NewRadio:
		return r.NewRadio != nil
	case CDMA:
		return r.CDMA != nil
	default:
		return false
	}
}
