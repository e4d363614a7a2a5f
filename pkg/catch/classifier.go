package catch

import (
	"encoding/json"
	"time"
)

type Status int

const (
	StatusSafe Status = iota
	StatusTight
	StatusMissed
)

func (s Status) String() string {
	switch s {
	case StatusSafe:
		return "Safe"
	case StatusTight:
		return "Tight"
	case StatusMissed:
		return "Missed"
	default:
		return "Unknown"
	}
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Classify maps the margin before a train arrives to a Status.
// A margin inside the uncertainty band is Tight, a negative margin is always Missed.
func Classify(timeLeft, uncertainty time.Duration) Status {
	switch {
	case timeLeft < 0:
		return StatusMissed
	case timeLeft <= uncertainty:
		return StatusTight
	default:
		return StatusSafe
	}
}

// Catchable is the boolean verdict reported on progress updates
func (s Status) Catchable() bool {
	return s != StatusMissed
}
