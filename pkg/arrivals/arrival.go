package arrivals

import (
	"time"

	"github.com/travigo/catchtrain/pkg/catch"
	"github.com/travigo/catchtrain/pkg/tfl"
	"golang.org/x/exp/slices"
)

type Arrival struct {
	ID          string `json:"id" groups:"detailed"`
	StopID      string `json:"stopid" groups:"basic"`
	StationName string `json:"stationname" groups:"detailed"`

	LineID   string `json:"lineid" groups:"basic"`
	LineName string `json:"linename" groups:"basic"`

	Platform    string `json:"platform" groups:"basic"`
	Direction   string `json:"direction" groups:"detailed"`
	Destination string `json:"destination" groups:"basic"`
	VehicleID   string `json:"vehicleid" groups:"detailed"`

	TimeToStation   int       `json:"timetostation" groups:"basic"`
	ExpectedArrival time.Time `json:"expectedarrival" groups:"basic"`
}

func (a Arrival) Train() catch.Train {
	return catch.Train{
		LineID:          a.LineID,
		LineName:        a.LineName,
		Destination:     a.Destination,
		Platform:        a.Platform,
		ExpectedArrival: a.ExpectedArrival,
	}
}

func fromPrediction(prediction tfl.ArrivalPrediction, stopID string) (Arrival, error) {
	expectedArrival, err := prediction.ExpectedArrivalTime()
	if err != nil {
		return Arrival{}, err
	}

	if prediction.NaptanID != "" {
		stopID = prediction.NaptanID
	}

	return Arrival{
		ID:              prediction.ID,
		StopID:          stopID,
		StationName:     prediction.StationName,
		LineID:          prediction.LineID,
		LineName:        prediction.LineName,
		Platform:        prediction.PlatformDisplay(),
		Direction:       prediction.Direction,
		Destination:     prediction.DestinationDisplay(),
		VehicleID:       prediction.VehicleID,
		TimeToStation:   prediction.TimeToStation,
		ExpectedArrival: expectedArrival,
	}, nil
}

// SortByExpected orders arrivals by expected arrival, soonest first.
func SortByExpected(arrivals []Arrival) {
	slices.SortStableFunc(arrivals, func(a, b Arrival) int {
		return a.ExpectedArrival.Compare(b.ExpectedArrival)
	})
}
