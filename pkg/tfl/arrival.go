package tfl

import (
	"fmt"
	"regexp"
	"time"

	"github.com/travigo/catchtrain/pkg/util"
)

var (
	destinationNameRegex = regexp.MustCompile(`^(.+) (?:Underground|DLR|Rail) Station$`)
	platformNameRegex    = regexp.MustCompile(`(\w+) (?:- )?Platform (\d+)`)
)

type ArrivalPrediction struct {
	ID            string `json:"id"`
	OperationType int    `json:"operationType"`
	VehicleID     string `json:"vehicleId"`

	NaptanID    string `json:"naptanId"`
	StationName string `json:"stationName"`

	LineID   string `json:"lineId"`
	LineName string `json:"lineName"`

	PlatformName string `json:"platformName"`
	Direction    string `json:"direction"`
	Bearing      string `json:"bearing"`

	DestinationNaptanID string `json:"destinationNaptanId"`
	DestinationName     string `json:"destinationName"`

	TimeToStation int `json:"timeToStation"`

	CurrentLocation string `json:"currentLocation"`
	Towards         string `json:"towards"`

	ExpectedArrival string `json:"expectedArrival"`

	ModeName string `json:"modeName"`
}

func (a ArrivalPrediction) ExpectedArrivalTime() (time.Time, error) {
	return util.ParseTimestamp(a.ExpectedArrival)
}

// DestinationDisplay is the destination as shown to a passenger.
func (a ArrivalPrediction) DestinationDisplay() string {
	destination := a.DestinationName
	if destination == "" && a.Towards != "" && a.Towards != "Check Front of Train" {
		destination = a.Towards
	}

	if matches := destinationNameRegex.FindStringSubmatch(destination); len(matches) == 2 {
		destination = matches[1]
	}

	return destination
}

// PlatformDisplay turns "Northbound - Platform 1" into "1 - Northbound".
func (a ArrivalPrediction) PlatformDisplay() string {
	platform := a.PlatformName
	if matches := platformNameRegex.FindStringSubmatch(platform); len(matches) == 3 {
		platform = fmt.Sprintf("%s - %s", matches[2], matches[1])
	}

	return platform
}
