package routes

import (
	"time"

	"github.com/travigo/catchtrain/pkg/catch"
	"github.com/travigo/catchtrain/pkg/geo"
	"github.com/travigo/catchtrain/pkg/journey"
	"github.com/travigo/catchtrain/pkg/pacing"
	"github.com/travigo/catchtrain/pkg/session"
	"github.com/travigo/catchtrain/pkg/stations"
	"github.com/travigo/catchtrain/pkg/tracker"
)

// planRequest is the JSON body describing a journey. Durations are ISO8601.
type planRequest struct {
	Station           string        `json:"station"`
	Lines             []string      `json:"lines"`
	WalkToStation     string        `json:"walktostation"`
	StationToPlatform string        `json:"stationtoplatform"`
	Transfers         []string      `json:"transfers"`
	Origin            *geo.Location `json:"origin"`
	ArrivalID         string        `json:"arrivalid"`
}

func (p planRequest) toRequest() (session.Request, error) {
	walkToStation, err := parseDuration(p.WalkToStation)
	if err != nil {
		return session.Request{}, err
	}

	request := session.Request{
		Station:       p.Station,
		Lines:         p.Lines,
		WalkToStation: walkToStation,
		Origin:        p.Origin,
	}

	if p.StationToPlatform != "" {
		stationToPlatform, err := parseDuration(p.StationToPlatform)
		if err != nil {
			return session.Request{}, err
		}
		request.StationToPlatform = &stationToPlatform
	}

	for _, transfer := range p.Transfers {
		transferDuration, err := parseDuration(transfer)
		if err != nil {
			return session.Request{}, err
		}
		request.Transfers = append(request.Transfers, transferDuration)
	}

	return request, nil
}

type trainView struct {
	ArrivalID       string    `json:"arrivalid,omitempty"`
	LineID          string    `json:"lineid"`
	LineName        string    `json:"linename"`
	Destination     string    `json:"destination"`
	Platform        string    `json:"platform"`
	ExpectedArrival time.Time `json:"expectedarrival"`
	TimeLeft        string    `json:"timeleft"`
	TimeLeftSeconds float64   `json:"timeleftseconds"`
	Status          string    `json:"status"`
}

func newTrainView(arrivalID string, info catch.Info) trainView {
	return trainView{
		ArrivalID:       arrivalID,
		LineID:          info.LineID,
		LineName:        info.LineName,
		Destination:     info.Destination,
		Platform:        info.Platform,
		ExpectedArrival: info.ExpectedArrival,
		TimeLeft:        formatDuration(info.TimeLeft),
		TimeLeftSeconds: info.TimeLeft.Seconds(),
		Status:          info.Status.String(),
	}
}

type planView struct {
	WalkToStation     string    `json:"walktostation"`
	StationToPlatform string    `json:"stationtoplatform"`
	Transfers         []string  `json:"transfers"`
	Total             string    `json:"total"`
	TargetArrival     time.Time `json:"targetarrival,omitempty"`
}

func newPlanView(plan *journey.Plan) planView {
	return planView{
		WalkToStation:     formatDuration(plan.WalkToStation()),
		StationToPlatform: formatDuration(plan.StationToPlatform()),
		Transfers:         formatDurations(plan.Transfers()),
		Total:             formatDuration(plan.Total()),
		TargetArrival:     plan.TargetArrival(),
	}
}

type candidatesView struct {
	Station    stations.Station `json:"station"`
	Plan       planView         `json:"plan"`
	Candidates []trainView      `json:"candidates"`
}

func newCandidatesView(candidates *session.Candidates) candidatesView {
	view := candidatesView{
		Station:    candidates.Station,
		Plan:       newPlanView(candidates.Base),
		Candidates: make([]trainView, 0, len(candidates.Candidates)),
	}

	for _, candidate := range candidates.Candidates {
		view.Candidates = append(view.Candidates, newTrainView(candidate.Arrival.ID, candidate.Info))
	}

	return view
}

type progressView struct {
	Phase        string  `json:"phase"`
	Fraction     float64 `json:"fraction"`
	CanCatch     bool    `json:"cancatch"`
	Delta        string  `json:"delta"`
	DeltaSeconds float64 `json:"deltaseconds"`
	Uncertainty  string  `json:"uncertainty"`
	Status       string  `json:"status"`
	Elapsed      string  `json:"elapsed"`
	Running      bool    `json:"running"`
}

func newProgressView(progress tracker.Progress, state tracker.State) progressView {
	view := progressView{
		Phase:        state.Phase.String(),
		Fraction:     state.Fraction,
		CanCatch:     progress.CanCatch,
		Delta:        formatDuration(progress.Delta),
		DeltaSeconds: progress.Delta.Seconds(),
		Uncertainty:  formatDuration(progress.Uncertainty),
		Status:       progress.Status.String(),
		Elapsed:      formatDuration(state.Elapsed),
		Running:      state.Running,
	}

	// No tick has been delivered yet
	if progress.Time.IsZero() {
		view.CanCatch = true
		view.Status = ""
		view.Delta = ""
	}

	return view
}

type pacingView struct {
	ObservedSpeed    float64 `json:"observedspeed"`
	TargetSpeed      float64 `json:"targetspeed"`
	ProjectedArrival string  `json:"projectedarrival"`
	Active           bool    `json:"active"`
	Direction        string  `json:"direction"`
	Cues             int     `json:"cues"`
}

func newPacingView(state session.PacingState) pacingView {
	return pacingView{
		ObservedSpeed:    state.ObservedSpeed,
		TargetSpeed:      state.TargetSpeed,
		ProjectedArrival: formatDuration(state.ProjectedArrival),
		Active:           state.Active,
		Direction:        state.Direction.String(),
		Cues:             state.Cues,
	}
}

type sessionView struct {
	ID           string           `json:"id"`
	CreatedAt    time.Time        `json:"createdat"`
	Station      stations.Station `json:"station"`
	Train        trainView        `json:"train"`
	Plan         planView         `json:"plan"`
	Progress     progressView     `json:"progress"`
	Pacing       pacingView       `json:"pacing"`
	Alternatives []trainView      `json:"alternatives,omitempty"`
	Ended        bool             `json:"ended"`
}

func newSessionView(snapshot session.Snapshot, detailed bool) sessionView {
	view := sessionView{
		ID:        snapshot.ID,
		CreatedAt: snapshot.CreatedAt,
		Station:   snapshot.Station,
		Train:     newTrainView("", snapshot.Train),
		Plan:      newPlanView(snapshot.Plan),
		Progress:  newProgressView(snapshot.Progress, snapshot.Tracker),
		Pacing:    newPacingView(snapshot.Pacing),
		Ended:     snapshot.Ended,
	}

	if detailed {
		for _, alternative := range snapshot.Alternatives {
			view.Alternatives = append(view.Alternatives, newTrainView(alternative.Arrival.ID, alternative.Info))
		}
	}

	return view
}

type evaluationView struct {
	Outcome     string  `json:"outcome"`
	TargetSpeed float64 `json:"targetspeed,omitempty"`
	Ratio       float64 `json:"ratio,omitempty"`
	Active      bool    `json:"active"`
	Direction   string  `json:"direction"`
	Changed     bool    `json:"changed"`
}

func newEvaluationView(evaluation pacing.Evaluation) evaluationView {
	return evaluationView{
		Outcome:     string(evaluation.Outcome),
		TargetSpeed: evaluation.TargetSpeed,
		Ratio:       evaluation.Ratio,
		Active:      evaluation.Active,
		Direction:   evaluation.Direction.String(),
		Changed:     evaluation.Changed,
	}
}

type summaryView struct {
	ID          string  `json:"id"`
	FinalStatus string  `json:"finalstatus"`
	FinalPhase  string  `json:"finalphase"`
	Fraction    float64 `json:"fraction"`
}
