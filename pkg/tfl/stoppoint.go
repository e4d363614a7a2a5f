package tfl

import "github.com/travigo/catchtrain/pkg/geo"

type Line struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ModeName string `json:"modeName"`
}

type StopPoint struct {
	NaptanID   string   `json:"naptanId"`
	ID         string   `json:"id"`
	CommonName string   `json:"commonName"`
	StopType   string   `json:"stopType"`
	Latitude   float64  `json:"lat"`
	Longitude  float64  `json:"lon"`
	Lines      []Line   `json:"lines"`
	Modes      []string `json:"modes"`
}

func (s StopPoint) Identifier() string {
	if s.NaptanID != "" {
		return s.NaptanID
	}
	return s.ID
}

func (s StopPoint) Location() geo.Location {
	return geo.Location{Latitude: s.Latitude, Longitude: s.Longitude}
}

// IsStation reports whether the record is a station rather than an entrance,
// platform or access area.
func (s StopPoint) IsStation() bool {
	switch s.StopType {
	case "NaptanMetroStation", "NaptanRailStation", "TransportInterchange":
		return true
	}
	return false
}

type StopPointsResponse struct {
	StopPoints []StopPoint `json:"stopPoints"`
}

type SearchMatch struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Latitude  float64  `json:"lat"`
	Longitude float64  `json:"lon"`
	Modes     []string `json:"modes"`
}

func (m SearchMatch) Location() geo.Location {
	return geo.Location{Latitude: m.Latitude, Longitude: m.Longitude}
}

type SearchResponse struct {
	Query   string        `json:"query"`
	Total   int           `json:"total"`
	Matches []SearchMatch `json:"matches"`
}
