package signal

import (
	"fmt"
	"net"
)

// MACToInt64 packs a 48-bit MAC address into an int64. Addresses that cannot
// be parsed map to 0.
func MACToInt64(mac string) int64 {
	hw, err := net.ParseMAC(mac)
	if err != nil || len(hw) != 6 {
		return 0
	}

	var v int64
	for _, b := range hw {
		v = v<<8 | int64(b)
	}
	return v
}

// Int64ToMAC renders a packed MAC address in the colon separated lower case form.
func Int64ToMAC(v int64) string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x",
		byte(v>>40), byte(v>>32), byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}
