package catch

import (
	"time"

	"github.com/travigo/catchtrain/pkg/journey"
)

// Train is the subset of an arrival prediction needed to evaluate catchability
type Train struct {
	LineID          string    `json:"lineid" groups:"basic"`
	LineName        string    `json:"linename" groups:"basic"`
	Destination     string    `json:"destination" groups:"basic"`
	Platform        string    `json:"platform" groups:"basic"`
	ExpectedArrival time.Time `json:"expectedarrival" groups:"basic"`
}

type Info struct {
	Train

	TimeLeft time.Duration `json:"timeleft" groups:"basic"`
	Status   Status        `json:"status" groups:"basic"`
}

// Margin is the time between the train arriving and the remaining journey being completed
func Margin(expectedArrival, now time.Time, total, elapsed time.Duration) time.Duration {
	remaining := total - elapsed
	if remaining < 0 {
		remaining = 0
	}

	return expectedArrival.Sub(now) - remaining
}

func Evaluate(train Train, plan *journey.Plan, now time.Time, elapsed, uncertainty time.Duration) Info {
	timeLeft := Margin(train.ExpectedArrival, now, plan.Total(), elapsed)

	return Info{
		Train:    train,
		TimeLeft: timeLeft,
		Status:   Classify(timeLeft, uncertainty),
	}
}
