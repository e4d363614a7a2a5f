// Package simulate replays a journey plan from a YAML file through a progress
// tracker, optionally following a scripted walk.
package simulate

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/travigo/catchtrain/pkg/catch"
	"github.com/travigo/catchtrain/pkg/geo"
	"github.com/travigo/catchtrain/pkg/journey"
	"github.com/travigo/catchtrain/pkg/util"
	"gopkg.in/yaml.v3"
)

var ErrNoTrain = errors.New("scenario has no train arrival time")

type scenarioFile struct {
	WalkToStation     string         `yaml:"walk_to_station"`
	StationToPlatform string         `yaml:"station_to_platform"`
	Transfers         []string       `yaml:"transfers"`
	Uncertainty       string         `yaml:"uncertainty"`
	TickInterval      string         `yaml:"tick_interval"`
	Origin            *geo.Location  `yaml:"origin"`
	Station           *geo.Location  `yaml:"station"`
	Train             trainFile      `yaml:"train"`
	Walk              []waypointFile `yaml:"walk"`
}

type trainFile struct {
	Line        string `yaml:"line"`
	Destination string `yaml:"destination"`
	Platform    string `yaml:"platform"`
	ArrivesIn   string `yaml:"arrives_in"`
}

type waypointFile struct {
	After     string  `yaml:"after"`
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
	Speed     float64 `yaml:"speed"`
}

// Waypoint is a position reported After the start of the journey
type Waypoint struct {
	After    time.Duration
	Location geo.Location
	Speed    float64
}

type Scenario struct {
	WalkToStation     time.Duration
	StationToPlatform time.Duration
	Transfers         []time.Duration
	Uncertainty       time.Duration
	TickInterval      time.Duration

	Origin  *geo.Location
	Station *geo.Location

	Train     catch.Train
	ArrivesIn time.Duration

	Walk []Waypoint
}

func LoadScenario(reader io.Reader) (*Scenario, error) {
	var file scenarioFile
	if err := yaml.NewDecoder(reader).Decode(&file); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}

	if file.Train.ArrivesIn == "" {
		return nil, ErrNoTrain
	}

	scenario := &Scenario{
		Uncertainty:  30 * time.Second,
		TickInterval: time.Second,
		Origin:       file.Origin,
		Station:      file.Station,
		Train: catch.Train{
			LineID:      file.Train.Line,
			LineName:    file.Train.Line,
			Destination: file.Train.Destination,
			Platform:    file.Train.Platform,
		},
	}

	for _, field := range []struct {
		value  string
		target *time.Duration
	}{
		{file.WalkToStation, &scenario.WalkToStation},
		{file.StationToPlatform, &scenario.StationToPlatform},
		{file.Train.ArrivesIn, &scenario.ArrivesIn},
		{file.Uncertainty, &scenario.Uncertainty},
		{file.TickInterval, &scenario.TickInterval},
	} {
		if err := parseInto(field.value, field.target); err != nil {
			return nil, err
		}
	}

	for _, transfer := range file.Transfers {
		parsed, err := util.ParseISODuration(transfer)
		if err != nil {
			return nil, err
		}
		scenario.Transfers = append(scenario.Transfers, parsed)
	}

	for _, waypoint := range file.Walk {
		after, err := util.ParseISODuration(waypoint.After)
		if err != nil {
			return nil, err
		}
		scenario.Walk = append(scenario.Walk, Waypoint{
			After:    after,
			Location: geo.Location{Latitude: waypoint.Latitude, Longitude: waypoint.Longitude},
			Speed:    waypoint.Speed,
		})
	}

	return scenario, nil
}

// parseInto leaves target at its default when value is empty
func parseInto(value string, target *time.Duration) error {
	if value == "" {
		return nil
	}

	parsed, err := util.ParseISODuration(value)
	if err != nil {
		return err
	}
	*target = parsed

	return nil
}

// Plan builds the journey with the train arriving relative to start
func (s *Scenario) Plan(start time.Time) *journey.Plan {
	var opts []journey.PlanOption
	if s.Origin != nil && s.Station != nil {
		opts = append(opts, journey.WithLocations(*s.Origin, *s.Station))
	}

	return journey.NewPlan(s.WalkToStation, s.StationToPlatform, s.Transfers, start.Add(s.ArrivesIn), opts...)
}
