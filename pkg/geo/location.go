package geo

import "math"

const earthRadiusMeters = 6371000.0

// Location is a WGS84 point
type Location struct {
	Latitude  float64 `json:"latitude" yaml:"latitude" groups:"basic"`
	Longitude float64 `json:"longitude" yaml:"longitude" groups:"basic"`
}

// Distance returns the great circle distance in meters using the haversine formula
func (l Location) Distance(other Location) float64 {
	lat1Rad := l.Latitude * math.Pi / 180
	lat2Rad := other.Latitude * math.Pi / 180
	dLat := (other.Latitude - l.Latitude) * math.Pi / 180
	dLon := (other.Longitude - l.Longitude) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

func (l Location) IsZero() bool {
	return l.Latitude == 0 && l.Longitude == 0
}
