package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/roman-kulish/signal-exposure/internal/signal"
)

type scanner interface {
	Scan(dest ...any) error
}

// maxColumn is a column reduced with MAX() over a group. When the range is
// set only values inside it take part, so an unavailable measurement never
// wins over a real one.
type maxColumn struct {
	name     string
	min, max *int
}

func (c maxColumn) expr(grouped bool) string {
	if !grouped {
		return c.name
	}
	if c.min == nil || c.max == nil {
		return fmt.Sprintf("MAX(%s)", c.name)
	}
	return fmt.Sprintf("MAX(CASE WHEN %[1]s BETWEEN %[2]d AND %[3]d THEN %[1]s END)", c.name, *c.min, *c.max)
}

func bounded(name string, lo, hi int) maxColumn {
	return maxColumn{name: name, min: &lo, max: &hi}
}

func plain(name string) maxColumn {
	return maxColumn{name: name}
}

// techTable describes how one technology is stored and aggregated. The
// aggregation query is generated from groupBy and reduce, which must match
// the order scan expects.
type techTable struct {
	name    string
	columns []string
	values  func(signal.Reading) []any
	groupBy []string
	reduce  []maxColumn
	grouped bool
	scan    func(scanner) (signal.Reading, error)
}

var techTables = map[signal.Technology]*techTable{
	signal.WiFi: {
		name:    "wifi",
		columns: []string{"ssid", "bssid", "frequency", "wifi_standard", "dbm", "connected"},
		values: func(r signal.Reading) []any {
			return []any{r.WiFi.SSID, signal.MACToInt64(r.WiFi.BSSID), r.WiFi.Frequency, r.WiFi.Standard, r.Dbm, boolToInt(r.Connected)}
		},
		groupBy: []string{"ssid", "bssid", "frequency"},
		reduce:  []maxColumn{plain("wifi_standard"), bounded("dbm", signal.WiFiMinDbm, signal.WiFiMaxDbm), plain("connected")},
		grouped: true,
		scan: func(sc scanner) (r signal.Reading, err error) {
			var w signal.WiFiInfo
			var bssid int64
			var dbm sql.NullInt64
			var connected int
			if err = sc.Scan(&w.SSID, &bssid, &w.Frequency, &w.Standard, &dbm, &connected); err != nil {
				return
			}
			w.BSSID = signal.Int64ToMAC(bssid)
			return signal.Reading{Technology: signal.WiFi, Dbm: nullIntOr(dbm, signal.Unavailable), Connected: connected > 0, WiFi: &w}, nil
		},
	},
	signal.Bluetooth: {
		name:    "bluetooth",
		columns: []string{"bt_device_name", "bt_device_name_alias", "bt_address", "bt_device_class", "bt_device_type", "bt_bond_state", "dbm"},
		values: func(r signal.Reading) []any {
			b := r.Bluetooth
			return []any{b.Name, b.Alias, signal.MACToInt64(b.Address), b.DeviceClass, b.DeviceType, b.BondState, r.Dbm}
		},
		groupBy: []string{"bt_device_name", "bt_device_name_alias", "bt_address", "bt_device_class", "bt_device_type"},
		reduce:  []maxColumn{plain("bt_bond_state"), bounded("dbm", signal.BTMinDbm, signal.BTMaxDbm)},
		grouped: true,
		scan: func(sc scanner) (r signal.Reading, err error) {
			var b signal.BTInfo
			var address int64
			var dbm sql.NullInt64
			if err = sc.Scan(&b.Name, &b.Alias, &address, &b.DeviceClass, &b.DeviceType, &b.BondState, &dbm); err != nil {
				return
			}
			b.Address = signal.Int64ToMAC(address)
			// the bluetooth table has no connected column, a bonded device is reported as connected
			return signal.Reading{
				Technology: signal.Bluetooth,
				Dbm:        nullIntOr(dbm, signal.Unavailable),
				Connected:  b.BondState == signal.BondBonded,
				Bluetooth:  &b,
			}, nil
		},
	},
	signal.GSM: {
		name:    "gsm",
		columns: []string{"type", "mnc", "mcc", "cid", "lac", "arfcn", "bsic", "dbm", "connected"},
		values: func(r signal.Reading) []any {
			g := r.GSM
			return []any{g.Type, g.MNC, g.MCC, g.CID, g.LAC, g.ARFCN, g.BSIC, r.Dbm, boolToInt(r.Connected)}
		},
		groupBy: []string{"type", "mnc", "mcc", "cid", "lac", "arfcn", "bsic"},
		reduce:  []maxColumn{bounded("dbm", signal.GSMMinDbm, signal.GSMMaxDbm), plain("connected")},
		grouped: true,
		scan: func(sc scanner) (r signal.Reading, err error) {
			var g signal.GSMInfo
			var dbm sql.NullInt64
			var connected int
			if err = sc.Scan(&g.Type, &g.MNC, &g.MCC, &g.CID, &g.LAC, &g.ARFCN, &g.BSIC, &dbm, &connected); err != nil {
				return
			}
			return signal.Reading{Technology: signal.GSM, Dbm: nullIntOr(dbm, signal.Unavailable), Connected: connected > 0, GSM: &g}, nil
		},
	},
	signal.WCDMA: {
		name:    "wcdma",
		columns: []string{"type", "mnc", "mcc", "ucid", "lac", "psc", "uarfcn", "dbm", "connected"},
		values: func(r signal.Reading) []any {
			w := r.WCDMA
			return []any{w.Type, w.MNC, w.MCC, w.UCID, w.LAC, w.PSC, w.UARFCN, r.Dbm, boolToInt(r.Connected)}
		},
		groupBy: []string{"type", "mnc", "mcc", "ucid", "lac", "psc", "uarfcn"},
		reduce:  []maxColumn{bounded("dbm", signal.WCDMAMinDbm, signal.WCDMAMaxDbm), plain("connected")},
		grouped: true,
		scan: func(sc scanner) (r signal.Reading, err error) {
			var w signal.WCDMAInfo
			var dbm sql.NullInt64
			var connected int
			if err = sc.Scan(&w.Type, &w.MNC, &w.MCC, &w.UCID, &w.LAC, &w.PSC, &w.UARFCN, &dbm, &connected); err != nil {
				return
			}
			return signal.Reading{Technology: signal.WCDMA, Dbm: nullIntOr(dbm, signal.Unavailable), Connected: connected > 0, WCDMA: &w}, nil
		},
	},
	signal.LTE: {
		name:    "lte",
		columns: []string{"type", "mnc", "mcc", "eci", "pci", "tac", "earfcn", "bandwidth", "rsrp", "rssi", "connected"},
		values: func(r signal.Reading) []any {
			l := r.LTE
			return []any{l.Type, l.MNC, l.MCC, l.ECI, l.PCI, l.TAC, l.EARFCN, l.Bandwidth, l.RSRP, l.RSSI, boolToInt(r.Connected)}
		},
		groupBy: []string{"type", "mnc", "mcc", "eci", "pci", "tac", "earfcn", "bandwidth"},
		reduce: []maxColumn{
			bounded("rsrp", signal.LTEMinDbm, signal.LTEMaxDbm),
			bounded("rssi", 0, 31),
			plain("connected"),
		},
		grouped: true,
		scan: func(sc scanner) (r signal.Reading, err error) {
			var l signal.LTEInfo
			var rsrp, rssi sql.NullInt64
			var connected int
			if err = sc.Scan(&l.Type, &l.MNC, &l.MCC, &l.ECI, &l.PCI, &l.TAC, &l.EARFCN, &l.Bandwidth, &rsrp, &rssi, &connected); err != nil {
				return
			}
			l.RSRP = nullIntOr(rsrp, signal.Unavailable)
			l.RSSI = nullIntOr(rssi, signal.Unavailable)
			return signal.Reading{Technology: signal.LTE, Connected: connected > 0, LTE: &l}.Derive(), nil
		},
	},
	signal.NewRadio: {
		name:    "new_radio",
		columns: []string{"type", "mnc", "mcc", "nci", "nrarfcn", "pci", "tac", "csi_rsrp", "connected"},
		values: func(r signal.Reading) []any {
			n := r.NewRadio
			return []any{n.Type, n.MNC, n.MCC, n.NCI, n.NRARFCN, n.PCI, n.TAC, r.Dbm, boolToInt(r.Connected)}
		},
		groupBy: []string{"type", "mnc", "mcc", "nci", "nrarfcn", "pci", "tac"},
		reduce:  []maxColumn{bounded("csi_rsrp", signal.NRMinDbm, signal.NRMaxDbm), plain("connected")},
		grouped: true,
		scan: func(sc scanner) (r signal.Reading, err error) {
			var n signal.NRInfo
			var dbm sql.NullInt64
			var connected int
			if err = sc.Scan(&n.Type, &n.MNC, &n.MCC, &n.NCI, &n.NRARFCN, &n.PCI, &n.TAC, &dbm, &connected); err != nil {
				return
			}
			return signal.Reading{Technology: signal.NewRadio, Dbm: nullIntOr(dbm, signal.Unavailable), Connected: connected > 0, NewRadio: &n}, nil
		},
	},
	// CDMA rows are returned one per stored row, without grouping.
	signal.CDMA: {
		name:    "cdma",
		columns: []string{"type", "network_id", "system_id", "base_station_id", "station_latitude", "station_longitude", "cdma_dbm", "evdo_dbm", "connected"},
		values: func(r signal.Reading) []any {
			c := r.CDMA
			return []any{c.Type, c.NetworkID, c.SystemID, c.BaseStationID, c.StationLatitude, c.StationLongitude, c.CdmaDbm, c.EvdoDbm, boolToInt(r.Connected)}
		},
		groupBy: []string{"type", "network_id", "system_id", "base_station_id", "station_latitude", "station_longitude"},
		reduce:  []maxColumn{plain("cdma_dbm"), plain("evdo_dbm"), plain("connected")},
		grouped: false,
		scan: func(sc scanner) (r signal.Reading, err error) {
			var c signal.CDMAInfo
			var connected int
			if err = sc.Scan(&c.Type, &c.NetworkID, &c.SystemID, &c.BaseStationID, &c.StationLatitude, &c.StationLongitude, &c.CdmaDbm, &c.EvdoDbm, &connected); err != nil {
				return
			}
			return signal.Reading{Technology: signal.CDMA, Connected: connected > 0, CDMA: &c}.Derive(), nil
		},
	},
}

// aggregateSQL builds the per-window aggregation query of the table.
func (t *techTable) aggregateSQL() string {
	cols := make([]string, 0, len(t.groupBy)+len(t.reduce))
	cols = append(cols, t.groupBy...)
	for _, c := range t.reduce {
		cols = append(cols, c.expr(t.grouped))
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(cols, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(t.name)
	sb.WriteString(" WHERE created >= ? AND created < ?")
	if t.grouped {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(t.groupBy, ", "))
	}
	return sb.String()
}

func (t *techTable) insertSQL() string {
	cols := append(append([]string{}, t.columns...), "latitude", "longitude", "created")
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t.name, strings.Join(cols, ", "), placeholders)
}

func (t *techTable) deleteBeforeSQL() string {
	return fmt.Sprintf("DELETE FROM %s WHERE created < ?", t.name)
}

func tableFor(tech signal.Technology) (*techTable, error) {
	t, ok := techTables[tech]
	if !ok {
		return nil, fmt.Errorf("unsupported technology %s", tech)
	}
	return t, nil
}
