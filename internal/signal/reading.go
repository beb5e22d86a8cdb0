package signal

import (
	"math"
)

const (
	// Unavailable marks an integer field the radio stack did not report.
	Unavailable = math.MaxInt32

	// InvalidTime is the creation time carried by aggregated and sentinel readings.
	InvalidTime int64 = -1

	// BondNone and BondBonded are the Bluetooth bond states.
	BondNone   = 10
	BondBonded = 12
)

// Reading is one observation of one antenna. Exactly one of the technology
// payloads is set and it matches Technology.
type Reading struct {
	Technology Technology `json:"technology"`          // Radio technology of the observation
	Dbm        int        `json:"dbm"`                 // Public signal strength in dBm
	Connected  bool       `json:"connected"`           // Device was attached to this antenna
	Location   Location   `json:"location"`            // Where the observation was made
	Created    int64      `json:"created"`             // Milliseconds since the Unix epoch
	Sentinel   bool       `json:"sentinel,omitempty"`  // Placeholder standing in for "no data"
	WiFi       *WiFiInfo  `json:"wifi,omitempty"`      // Set when Technology is WiFi
	Bluetooth  *BTInfo    `json:"bluetooth,omitempty"` // Set when Technology is Bluetooth
	GSM        *GSMInfo   `json:"gsm,omitempty"`       // Set when Technology is GSM
	WCDMA      *WCDMAInfo `json:"wcdma,omitempty"`     // Set when Technology is WCDMA
	LTE        *LTEInfo   `json:"lte,omitempty"`       // Set when Technology is LTE
	NewRadio   *NRInfo    `json:"nr,omitempty"`        // Set when Technology is NewRadio
	CDMA       *CDMAInfo  `json:"cdma,omitempty"`      // Set when Technology is CDMA
}

type WiFiInfo struct {
	SSID      string `json:"ssid"`      // Network name, empty for hidden networks
	BSSID     string `json:"bssid"`     // Access point MAC address
	Frequency int    `json:"frequency"` // Primary channel frequency in MHz
	Standard  int    `json:"standard"`  // 802.11 generation, Unavailable if unknown
}

type BTInfo struct {
	Name        string `json:"name"`
	Alias       string `json:"alias"`
	Address     string `json:"address"`
	DeviceClass int    `json:"deviceClass"`
	DeviceType  int    `json:"deviceType"`
	BondState   int    `json:"bondState"`
}

// Cell holds the identity fields shared by the 3GPP technologies.
type Cell struct {
	Type int `json:"type"` // Network type as reported by the radio stack
	MCC  int `json:"mcc"`  // Mobile country code
	MNC  int `json:"mnc"`  // Mobile network code
}

type GSMInfo struct {
	Cell
	CID   int `json:"cid"`
	LAC   int `json:"lac"`
	ARFCN int `json:"arfcn"`
	BSIC  int `json:"bsic"`
}

type WCDMAInfo struct {
	Cell
	UCID   int `json:"ucid"`
	LAC    int `json:"lac"`
	PSC    int `json:"psc"`
	UARFCN int `json:"uarfcn"`
}

type LTEInfo struct {
	Cell
	ECI       int `json:"eci"`
	PCI       int `json:"pci"`
	TAC       int `json:"tac"`
	EARFCN    int `json:"earfcn"`
	Bandwidth int `json:"bandwidth"` // Cell bandwidth in kHz
	RSRP      int `json:"rsrp"`      // Reference signal received power in dBm
	RSSI      int `json:"rssi"`      // Received signal strength in ASU, 0..31 when valid
}

type NRInfo struct {
	Cell
	NCI     int64 `json:"nci"`
	NRARFCN int   `json:"nrarfcn"`
	PCI     int   `json:"pci"`
	TAC     int   `json:"tac"`
}

type CDMAInfo struct {
	Type             int `json:"type"`
	NetworkID        int `json:"networkId"`
	SystemID         int `json:"systemId"`
	BaseStationID    int `json:"baseStationId"`
	StationLatitude  int `json:"stationLatitude"`
	StationLongitude int `json:"stationLongitude"`
	CdmaDbm          int `json:"cdmaDbm"`
	EvdoDbm          int `json:"evdoDbm"`
}

// RSSIValid reports whether the ASU RSSI carries a usable value.
func (l *LTEInfo) RSSIValid() bool {
	return 0 <= l.RSSI && l.RSSI <= 31
}

// Strength returns RSSI converted to dBm when it is valid, RSRP otherwise.
func (l *LTEInfo) Strength() int {
	if l.RSSIValid() {
		return -113 + 2*l.RSSI
	}
	return l.RSRP
}

// Strength returns the stronger of the CDMA and EVDO strengths, ignoring the
// ones that are not valid.
func (c *CDMAInfo) Strength() int {
	cdmaValid := c.CdmaDbm < -1
	evdoValid := c.EvdoDbm < -1

	switch {
	case cdmaValid && evdoValid:
		return max(c.CdmaDbm, c.EvdoDbm)
	case cdmaValid:
		return c.CdmaDbm
	case evdoValid:
		return c.EvdoDbm
	default:
		return Unavailable
	}
}

// Derive recomputes Dbm from the raw strength fields for the technologies
// whose public strength is a function of several measurements.
func (r Reading) Derive() Reading {
	switch {
	case r.Technology == LTE && r.LTE != nil:
		r.Dbm = r.LTE.Strength()
	case r.Technology == CDMA && r.CDMA != nil:
		r.Dbm = r.CDMA.Strength()
	}
	return r
}

// IsValid reports whether the reading is a real observation rather than a sentinel.
func (r Reading) IsValid() bool {
	return !r.Sentinel
}

// NewSentinel returns the "no data" placeholder for tech. Its strength is
// already normalized so it ranks below every real observation.
func NewSentinel(tech Technology) Reading {
	r := Reading{
		Technology: tech,
		Dbm:        Unavailable,
		Location:   InvalidLocation,
		Created:    InvalidTime,
		Sentinel:   true,
	}

	cell := Cell{Type: 0, MCC: Unavailable, MNC: Unavailable}
	switch tech {
	case WiFi:
		r.WiFi = &WiFiInfo{Standard: Unavailable}
	case Bluetooth:
		r.Bluetooth = &BTInfo{BondState: BondNone}
	case GSM:
		r.GSM = &GSMInfo{Cell: cell, CID: Unavailable, LAC: Unavailable, ARFCN: Unavailable, BSIC: Unavailable}
	case WCDMA:
		r.WCDMA = &WCDMAInfo{Cell: cell, UCID: Unavailable, LAC: Unavailable, PSC: Unavailable, UARFCN: Unavailable}
	case LTE:
		r.LTE = &LTEInfo{
			Cell:      cell,
			ECI:       Unavailable,
			PCI:       Unavailable,
			TAC:       Unavailable,
			EARFCN:    Unavailable,
			Bandwidth: Unavailable,
			RSRP:      Unavailable,
			RSSI:      Unavailable,
		}
	case NewRadio:
		r.NewRadio = &NRInfo{Cell: cell, NCI: Unavailable, NRARFCN: Unavailable, PCI: Unavailable, TAC: Unavailable}
	case CDMA:
		r.CDMA = &CDMAInfo{
			NetworkID:        Unavailable,
			SystemID:         Unavailable,
			BaseStationID:    Unavailable,
			StationLatitude:  Unavailable,
			StationLongitude: Unavailable,
			CdmaDbm:          Unavailable,
			EvdoDbm:          Unavailable,
		}
	}

	return r.Normalized()
}

// CellOf returns the 3GPP cell identity of r. ok is false for Wi-Fi,
// Bluetooth, CDMA and readings missing their payload.
func CellOf(r Reading) (cell Cell, ok bool) {
	switch {
	case r.Technology == GSM && r.GSM != nil:
		return r.GSM.Cell, true
	case r.Technology == WCDMA && r.WCDMA != nil:
		return r.WCDMA.Cell, true
	case r.Technology == LTE && r.LTE != nil:
		return r.LTE.Cell, true
	case r.Technology == NewRadio && r.NewRadio != nil:
		return r.NewRadio.Cell, true
	default:
		return Cell{}, false
	}
}
