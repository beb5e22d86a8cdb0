package signal

import (
	"github.com/golang/geo/s2"
)

// Location is a geographic position in degrees.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// InvalidLocation marks a reading without a usable position.
var InvalidLocation = Location{Latitude: -1, Longitude: -1}

// IsValid reports whether l is a real position on the globe.
func (l Location) IsValid() bool {
	if l == InvalidLocation {
		return false
	}
	return s2.LatLngFromDegrees(l.Latitude, l.Longitude).IsValid()
}

// OrInvalid returns l, or InvalidLocation when l is not a valid position.
func (l Location) OrInvalid() Location {
	if !l.IsValid() {
		return InvalidLocation
	}
	return l
}
