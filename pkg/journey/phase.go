package journey

import "fmt"

type PhaseKind int

const (
	PhaseWalkToStation PhaseKind = iota
	PhaseStationToPlatform
	PhaseTransferWalk
	PhaseFinished
)

// Phase is a position in the leg sequence of a Plan. TransferIndex is only meaningful for PhaseTransferWalk.
type Phase struct {
	Kind          PhaseKind `json:"kind" groups:"basic"`
	TransferIndex int       `json:"transferindex" groups:"basic"`
}

var (
	WalkToStation     = Phase{Kind: PhaseWalkToStation}
	StationToPlatform = Phase{Kind: PhaseStationToPlatform}
	Finished          = Phase{Kind: PhaseFinished}
)

func TransferWalk(index int) Phase {
	return Phase{Kind: PhaseTransferWalk, TransferIndex: index}
}

// Less reports whether p comes before other in traversal order
func (p Phase) Less(other Phase) bool {
	if p.Kind != other.Kind {
		return p.Kind < other.Kind
	}
	if p.Kind == PhaseTransferWalk {
		return p.TransferIndex < other.TransferIndex
	}
	return false
}

// Max returns the later of the two phases
func (p Phase) Max(other Phase) Phase {
	if p.Less(other) {
		return other
	}
	return p
}

func (p Phase) String() string {
	switch p.Kind {
	case PhaseWalkToStation:
		return "WalkToStation"
	case PhaseStationToPlatform:
		return "StationToPlatform"
	case PhaseTransferWalk:
		return fmt.Sprintf("TransferWalk(%d)", p.TransferIndex)
	case PhaseFinished:
		return "Finished"
	default:
		return fmt.Sprintf("Phase(%d)", p.Kind)
	}
}
