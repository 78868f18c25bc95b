package schema

// AIS "not available" encodings for latitude and longitude.
const (
	latNotAvailable = 91
	lonNotAvailable = 181
)

// Position is a geographic coordinate in decimal degrees. The zero value is a
// valid coordinate (0N 0E); use UnavailablePosition for the wire format's
// explicit "not available" encoding.
type Position struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// UnavailablePosition returns the sentinel coordinate the wire format uses
// when a station reports no fix.
func UnavailablePosition() Position {
	return Position{Lat: latNotAvailable, Lon: lonNotAvailable}
}

// Valid reports whether the coordinate lies within geographic bounds. The
// wire sentinels (91, 181) are out of bounds and therefore invalid.
func (p Position) Valid() bool {
	if p.Lat < -90 || p.Lat > 90 {
		return false
	}
	if p.Lon < -180 || p.Lon > 180 {
		return false
	}
	return true
}
